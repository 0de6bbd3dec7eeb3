package program

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.yaml.in/yaml/v4"
)

const cotton = `
name: Cotton
steps:
  - type: drying
    duration: 40
    temperature: 75
    hysteresis: 3
    humidity: 12
    speed: 40
    run_time: 50
    pause_time: 8
    inversion: true
    humidity_control: true
  - type: cooling
    duration: 5
    temperature: 40
    speed: 30
    run_time: 30
    pause_time: 5
  - type: Unfolding
    duration: 2
    speed: 20
    run_time: 10
    pause_time: 10
    max_cycles: 6
`

func TestProgram_UnmarshalYAML(t *testing.T) {
	var p Program
	err := yaml.Unmarshal([]byte(cotton), &p)
	require.NoError(t, err)

	assert.Equal(t, "Cotton", p.Name)
	require.Equal(t, 3, p.Len())
	assert.Equal(t, Drying{
		Duration:        40,
		Temperature:     75,
		Hysteresis:      3,
		Humidity:        12,
		Speed:           40,
		RunTime:         50,
		PauseTime:       8,
		Inversion:       true,
		HumidityControl: true,
	}, p.Steps[0])
	assert.Equal(t, Cooling{Duration: 5, Temperature: 40, Speed: 30, RunTime: 30, PauseTime: 5}, p.Steps[1])
	assert.Equal(t, Unfolding{Duration: 2, Speed: 20, RunTime: 10, PauseTime: 10, MaxCycles: 6}, p.Steps[2])
	assert.Equal(t, 47, p.Duration())
}

func TestProgram_UnmarshalYAMLErrors(t *testing.T) {
	var p Program

	err := yaml.Unmarshal([]byte("name: Empty\nsteps: []\n"), &p)
	assert.ErrorIs(t, err, ErrEmpty)

	err = yaml.Unmarshal([]byte("name: Bad\nsteps:\n  - type: ironing\n"), &p)
	assert.ErrorIs(t, err, ErrUnknownStepType)
}

func TestProgram_Step(t *testing.T) {
	p, err := New("Quick", Drying{Duration: 10}, Cooling{Duration: 2})
	require.NoError(t, err)

	s, ok := p.Step(1)
	assert.True(t, ok)
	assert.Equal(t, TypeCooling, s.Type())

	_, ok = p.Step(2)
	assert.False(t, ok)
	_, ok = p.Step(-1)
	assert.False(t, ok)
}

func TestProgram_Validate(t *testing.T) {
	_, err := New("Empty")
	assert.ErrorIs(t, err, ErrEmpty)

	steps := make([]Step, MaxSteps+1)
	for i := range steps {
		steps[i] = Unfolding{Duration: 1}
	}
	_, err = New("Long", steps...)
	assert.ErrorIs(t, err, ErrTooManySteps)

	_, err = New("Max", steps[:MaxSteps]...)
	assert.NoError(t, err)

	_, err = New("Nil", Drying{}, nil)
	assert.ErrorIs(t, err, ErrUnknownStepType)
}

func TestStepType(t *testing.T) {
	for _, typ := range []StepType{TypeDrying, TypeCooling, TypeUnfolding} {
		parsed, err := ParseStepType(typ.String())
		require.NoError(t, err)
		assert.Equal(t, typ, parsed)
	}

	assert.Equal(t, "step-type(9)", StepType(9).String())

	var typ StepType
	require.NoError(t, typ.UnmarshalText([]byte("cooling")))
	assert.Equal(t, TypeCooling, typ)
	require.NoError(t, typ.UnmarshalText([]byte("none")))
	assert.Zero(t, typ)
	assert.ErrorIs(t, typ.UnmarshalText([]byte("ironing")), ErrUnknownStepType)
}
