package program

import (
	"errors"
	"fmt"

	"go.yaml.in/yaml/v4"
)

// MaxSteps is the number of steps the board can be told about.
const MaxSteps = 16

var (
	ErrEmpty           = errors.New("program has no step")
	ErrTooManySteps    = fmt.Errorf("program has more than %d steps", MaxSteps)
	ErrUnknownStepType = errors.New("unknown step type")
)

// A Program is an ordered list of steps run one after the other by the board.
type Program struct {
	Name  string
	Steps []Step
}

func New(name string, steps ...Step) (*Program, error) {
	p := &Program{
		Name:  name,
		Steps: steps,
	}

	return p, p.Validate()
}

func (p *Program) Len() int {
	return len(p.Steps)
}

// Step returns the step at index i. The boolean is false when there is no such step.
func (p *Program) Step(i int) (Step, bool) {
	if i < 0 || i >= len(p.Steps) {
		return nil, false
	}

	return p.Steps[i], true
}

// Duration returns the sum of the steps durations, in minutes.
func (p *Program) Duration() int {
	var d int
	for _, s := range p.Steps {
		d += int(s.Minutes())
	}

	return d
}

func (p *Program) Validate() error {
	if len(p.Steps) == 0 {
		return fmt.Errorf("%s: %w", p.Name, ErrEmpty)
	}
	if len(p.Steps) > MaxSteps {
		return fmt.Errorf("%s: %w", p.Name, ErrTooManySteps)
	}

	for i, s := range p.Steps {
		if s == nil {
			return fmt.Errorf("%s: step %d: %w", p.Name, i+1, ErrUnknownStepType)
		}
	}

	return nil
}

func (p *Program) UnmarshalYAML(value *yaml.Node) error {
	var raw struct {
		Name  string      `yaml:"name"`
		Steps []yaml.Node `yaml:"steps"`
	}
	if err := value.Decode(&raw); err != nil {
		return err
	}

	p.Name = raw.Name
	p.Steps = make([]Step, 0, len(raw.Steps))
	for i := range raw.Steps {
		s, err := decodeStep(&raw.Steps[i])
		if err != nil {
			return fmt.Errorf("%s: step %d: %w", raw.Name, i+1, err)
		}

		p.Steps = append(p.Steps, s)
	}

	return p.Validate()
}

func decodeStep(value *yaml.Node) (Step, error) {
	var header struct {
		Type string `yaml:"type"`
	}
	if err := value.Decode(&header); err != nil {
		return nil, err
	}

	t, err := ParseStepType(header.Type)
	if err != nil {
		return nil, err
	}

	switch t {
	case TypeDrying:
		var s Drying
		err = value.Decode(&s)
		return s, err
	case TypeCooling:
		var s Cooling
		err = value.Decode(&s)
		return s, err
	default:
		var s Unfolding
		err = value.Decode(&s)
		return s, err
	}
}
