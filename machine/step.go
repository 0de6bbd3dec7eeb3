package machine

import (
	"fmt"

	"github.com/mdouchement/dryerd/program"
)

// StepBlock is the content of the step holding registers.
type StepBlock [StepBlockLength]uint16

// Step block words.
const (
	stepWordType    = 0
	stepWordFlags   = 1
	stepWordProgram = 12
	stepWordIndex   = 13
)

const (
	stepFlagInversion       uint16 = 1 << 0
	stepFlagHumidityControl uint16 = 1 << 1
)

// EncodeStep serializes a step and its position. Slots unused by the step type are zero.
func EncodeStep(s program.Step, programIndex, stepIndex uint16) (StepBlock, error) {
	var b StepBlock

	switch s := s.(type) {
	case program.Drying:
		b[2] = s.Duration
		b[3] = s.Temperature
		b[4] = s.Hysteresis
		b[5] = s.Humidity
		b[6] = s.Speed
		b[7] = s.RunTime
		b[8] = s.PauseTime
		b[stepWordFlags] = flag(s.Inversion, stepFlagInversion) | flag(s.HumidityControl, stepFlagHumidityControl)
	case program.Cooling:
		b[2] = s.Duration
		b[3] = s.RunTime
		b[4] = s.PauseTime
		b[5] = s.Speed
		b[6] = s.Temperature
		b[stepWordFlags] = flag(s.Inversion, stepFlagInversion)
	case program.Unfolding:
		b[2] = s.Duration
		b[3] = s.Speed
		b[4] = s.MaxCycles
		b[5] = s.RunTime
		b[6] = s.PauseTime
		b[stepWordFlags] = flag(s.Inversion, stepFlagInversion)
	default:
		return b, fmt.Errorf("%w: %T", program.ErrUnknownStepType, s)
	}

	b[stepWordType] = uint16(s.Type())
	b[stepWordProgram] = programIndex
	b[stepWordIndex] = stepIndex
	return b, nil
}

// DecodeStep is the inverse of EncodeStep.
func DecodeStep(b StepBlock) (s program.Step, programIndex, stepIndex uint16, err error) {
	flags := b[stepWordFlags]

	switch program.StepType(b[stepWordType]) {
	case program.TypeDrying:
		s = program.Drying{
			Duration:        b[2],
			Temperature:     b[3],
			Hysteresis:      b[4],
			Humidity:        b[5],
			Speed:           b[6],
			RunTime:         b[7],
			PauseTime:       b[8],
			Inversion:       flags&stepFlagInversion != 0,
			HumidityControl: flags&stepFlagHumidityControl != 0,
		}
	case program.TypeCooling:
		s = program.Cooling{
			Duration:    b[2],
			RunTime:     b[3],
			PauseTime:   b[4],
			Speed:       b[5],
			Temperature: b[6],
			Inversion:   flags&stepFlagInversion != 0,
		}
	case program.TypeUnfolding:
		s = program.Unfolding{
			Duration:  b[2],
			Speed:     b[3],
			MaxCycles: b[4],
			RunTime:   b[5],
			PauseTime: b[6],
			Inversion: flags&stepFlagInversion != 0,
		}
	default:
		return nil, 0, 0, fmt.Errorf("%w: %d", program.ErrUnknownStepType, b[stepWordType])
	}

	return s, b[stepWordProgram], b[stepWordIndex], nil
}

func flag(v bool, mask uint16) uint16 {
	if v {
		return mask
	}

	return 0
}
