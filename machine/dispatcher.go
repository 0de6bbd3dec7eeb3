package machine

import (
	"errors"
	"fmt"

	"github.com/mdouchement/dryerd/modbus"
	"github.com/mdouchement/dryerd/program"
)

var ErrInvalidCommand = errors.New("invalid command")

// A Bus runs register level operations on the board.
type Bus interface {
	ReadDiscreteInputs(index, quantity uint16, fn modbus.BitFunc) error
	ReadHoldingRegisters(index, quantity uint16, fn modbus.RegisterFunc) error
	ReadInputRegisters(index, quantity uint16, fn modbus.RegisterFunc) error
	WriteRegister(index, value uint16) error
	WriteRegisters(index uint16, values []uint16) error
	WriteCoils(index uint16, values []bool) error
}

// A Dispatcher translates commands into register operations.
// It remembers the tested outputs because they are written all at once.
type Dispatcher struct {
	bus     Bus
	outputs [OutputChannels]bool
}

func NewDispatcher(bus Bus) *Dispatcher {
	return &Dispatcher{
		bus: bus,
	}
}

// Dispatch runs cmd. Multi-operation commands stop at the first failing operation.
func (d *Dispatcher) Dispatch(cmd Command) (Response, error) {
	switch cmd := cmd.(type) {
	case GetVersion:
		var words [VersionLength]uint16
		err := d.bus.ReadHoldingRegisters(RegVersionHigh, VersionLength, func(index, value uint16) {
			words[index-RegVersionHigh] = value
		})
		if err != nil {
			return nil, fmt.Errorf("version: %w", err)
		}

		return DecodeVersion(words[0], words[1], words[2]), nil

	case TestOutput:
		if cmd.Channel >= OutputChannels {
			return nil, fmt.Errorf("%w: output channel %d", ErrInvalidCommand, cmd.Channel)
		}

		d.outputs[cmd.Channel] = cmd.Value
		if err := d.bus.WriteCoils(CoilOutputs, d.outputs[:]); err != nil {
			return nil, fmt.Errorf("outputs: %w", err)
		}

		return Done{Command: cmd.Kind()}, nil

	case TestPWM:
		if cmd.Channel >= PWMChannels {
			return nil, fmt.Errorf("%w: pwm channel %d", ErrInvalidCommand, cmd.Channel)
		}

		if err := d.bus.WriteRegister(RegPWM+cmd.Channel, cmd.Speed); err != nil {
			return nil, fmt.Errorf("pwm: %w", err)
		}

		return Done{Command: cmd.Kind()}, nil

	case GetDigitalInputs:
		var inputs DigitalInputs
		err := d.bus.ReadDiscreteInputs(InputDigital, DigitalInputChannels, func(index uint16, value bool) {
			if value {
				inputs.Mask |= 1 << (index - InputDigital)
			}
		})
		if err != nil {
			return nil, fmt.Errorf("digital_inputs: %w", err)
		}

		return inputs, nil

	case GetState:
		var state State
		if err := d.readState(&state); err != nil {
			return nil, err
		}

		return state, nil

	case GetExtendedState:
		var state ExtendedState
		if err := d.readState(&state.State); err != nil {
			return nil, err
		}

		err := d.bus.ReadHoldingRegisters(RegPositionProgram, PositionLength, func(index, value uint16) {
			switch index {
			case RegPositionProgram:
				state.Program = value
			case RegPositionStep:
				state.Step = value
			case RegPositionType:
				state.StepType = program.StepType(value)
			}
		})
		if err != nil {
			return nil, fmt.Errorf("position: %w", err)
		}

		return state, nil

	case GetSensors:
		var sensors Sensors
		if err := d.bus.ReadInputRegisters(InputCoins, SensorsLength, sensors.Set); err != nil {
			return nil, fmt.Errorf("sensors: %w", err)
		}

		return sensors, nil

	case SendParameters:
		words := cmd.Parameters.Words()
		if err := d.bus.WriteRegisters(RegParameters, words[:]); err != nil {
			return nil, fmt.Errorf("parameters: %w", err)
		}

		if err := d.writeCode(CodeInitialize); err != nil {
			return nil, err
		}

		return Done{Command: cmd.Kind()}, nil

	case SendCommand:
		if err := d.writeCode(cmd.Code); err != nil {
			return nil, err
		}

		return Done{Command: cmd.Kind()}, nil

	case Stop:
		if err := d.writeCode(CodeStop); err != nil {
			return nil, err
		}

		return Done{Command: cmd.Kind()}, nil

	case SendStep:
		block, err := EncodeStep(cmd.Step, cmd.Program, cmd.Index)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrInvalidCommand, err)
		}

		if err = d.bus.WriteRegisters(RegStep, block[:]); err != nil {
			return nil, fmt.Errorf("step: %w", err)
		}

		code := CodePause
		if cmd.Start {
			code = CodeRun
		}
		if err = d.writeCode(code); err != nil {
			return nil, err
		}

		return Done{Command: cmd.Kind()}, nil

	case WriteRegister:
		if err := d.bus.WriteRegister(cmd.Index, cmd.Value); err != nil {
			return nil, fmt.Errorf("register %d: %w", cmd.Index, err)
		}

		return Done{Command: cmd.Kind()}, nil

	case ReadStatistics:
		var words [StatisticsLength]uint16
		err := d.bus.ReadHoldingRegisters(RegStatistics, StatisticsLength, func(index, value uint16) {
			words[index-RegStatistics] = value
		})
		if err != nil {
			return nil, fmt.Errorf("statistics: %w", err)
		}

		return DecodeStatistics(words), nil

	default:
		// Restart is handled by the Worker, it owns the transport.
		return nil, fmt.Errorf("%w: %T", ErrInvalidCommand, cmd)
	}
}

func (d *Dispatcher) readState(state *State) error {
	err := d.bus.ReadHoldingRegisters(RegState, StateLength, func(index, value uint16) {
		switch index {
		case RegState:
			state.State = RunState(value)
		case RegAlarms:
			state.Alarms = Alarms(value)
		case RegFlags:
			state.Flags = Flags(value)
		case RegRemaining:
			state.Remaining = value
		}
	})
	if err != nil {
		return fmt.Errorf("state: %w", err)
	}

	return nil
}

func (d *Dispatcher) writeCode(code Code) error {
	if err := d.bus.WriteRegister(RegCommand, uint16(code)); err != nil {
		return fmt.Errorf("command %s: %w", code, err)
	}

	return nil
}
