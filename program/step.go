package program

import (
	"fmt"
	"strings"
)

type StepType uint16

const (
	TypeDrying    StepType = 1
	TypeCooling   StepType = 2
	TypeUnfolding StepType = 3
)

func ParseStepType(s string) (StepType, error) {
	switch strings.ToLower(s) {
	case "drying":
		return TypeDrying, nil
	case "cooling":
		return TypeCooling, nil
	case "unfolding":
		return TypeUnfolding, nil
	default:
		return 0, fmt.Errorf("%w: %q", ErrUnknownStepType, s)
	}
}

func (t StepType) String() string {
	switch t {
	case TypeDrying:
		return "drying"
	case TypeCooling:
		return "cooling"
	case TypeUnfolding:
		return "unfolding"
	case 0:
		return "none"
	default:
		return fmt.Sprintf("step-type(%d)", uint16(t))
	}
}

func (t StepType) MarshalText() ([]byte, error) {
	return []byte(t.String()), nil
}

func (t *StepType) UnmarshalText(text []byte) error {
	if string(text) == "none" {
		*t = 0
		return nil
	}

	v, err := ParseStepType(string(text))
	if err != nil {
		return err
	}

	*t = v
	return nil
}

// A Step is one of Drying, Cooling or Unfolding.
type Step interface {
	Type() StepType
	// Minutes is the step duration.
	Minutes() uint16
	step()
}

// Drying heats the drum until the duration elapses or, with humidity control,
// until the humidity falls under the target.
//
// Durations are in minutes, run and pause times in seconds, temperatures in °C,
// humidity in % and speeds in % of the nominal drum speed.
type Drying struct {
	Duration        uint16 `yaml:"duration"`
	Temperature     uint16 `yaml:"temperature"`
	Hysteresis      uint16 `yaml:"hysteresis"`
	Humidity        uint16 `yaml:"humidity"`
	Speed           uint16 `yaml:"speed"`
	RunTime         uint16 `yaml:"run_time"`
	PauseTime       uint16 `yaml:"pause_time"`
	Inversion       bool   `yaml:"inversion"`
	HumidityControl bool   `yaml:"humidity_control"`
}

// Cooling ventilates without heating until the duration elapses or the temperature is reached.
type Cooling struct {
	Duration    uint16 `yaml:"duration"`
	Temperature uint16 `yaml:"temperature"`
	Speed       uint16 `yaml:"speed"`
	RunTime     uint16 `yaml:"run_time"`
	PauseTime   uint16 `yaml:"pause_time"`
	Inversion   bool   `yaml:"inversion"`
}

// Unfolding alternates drum rotations without heating.
type Unfolding struct {
	Duration  uint16 `yaml:"duration"`
	Speed     uint16 `yaml:"speed"`
	RunTime   uint16 `yaml:"run_time"`
	PauseTime uint16 `yaml:"pause_time"`
	MaxCycles uint16 `yaml:"max_cycles"`
	Inversion bool   `yaml:"inversion"`
}

func (Drying) Type() StepType    { return TypeDrying }
func (Cooling) Type() StepType   { return TypeCooling }
func (Unfolding) Type() StepType { return TypeUnfolding }

func (s Drying) Minutes() uint16    { return s.Duration }
func (s Cooling) Minutes() uint16   { return s.Duration }
func (s Unfolding) Minutes() uint16 { return s.Duration }

func (Drying) step()    {}
func (Cooling) step()   {}
func (Unfolding) step() {}
