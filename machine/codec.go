package machine

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/mdouchement/dryerd/program"
)

// Record layouts: a little-endian 16-bit tag followed by a fixed number of words.
// A command record fits the step block and its start flag, a response record fits the sensor block.
const (
	commandWords  = int(StepBlockLength) + 1
	responseWords = int(SensorsLength)

	CommandRecordSize  = 2 + 2*commandWords
	ResponseRecordSize = 2 + 2*responseWords
)

var ErrUnknownTag = errors.New("unknown record tag")

type responseTag uint16

const (
	tagVersion responseTag = iota + 1
	tagDigitalInputs
	tagState
	tagExtendedState
	tagSensors
	tagStatistics
	tagDone
	tagFailure
)

// CommandCodec implements channel.Codec for commands.
type CommandCodec struct{}

func (CommandCodec) Size() int {
	return CommandRecordSize
}

func (CommandCodec) Encode(cmd Command, buf []byte) error {
	if len(buf) != CommandRecordSize {
		return fmt.Errorf("command record: buffer of %d bytes", len(buf))
	}

	var w [commandWords]uint16

	switch cmd := cmd.(type) {
	case TestOutput:
		w[0] = cmd.Channel
		w[1] = flag(cmd.Value, 1)
	case TestPWM:
		w[0] = cmd.Channel
		w[1] = cmd.Speed
	case SendParameters:
		p := cmd.Parameters.Words()
		copy(w[:], p[:])
	case SendCommand:
		w[0] = uint16(cmd.Code)
	case SendStep:
		block, err := EncodeStep(cmd.Step, cmd.Program, cmd.Index)
		if err != nil {
			return err
		}
		copy(w[:], block[:])
		w[StepBlockLength] = flag(cmd.Start, 1)
	case WriteRegister:
		w[0] = cmd.Index
		w[1] = cmd.Value
	case nil:
		return fmt.Errorf("command record: %w", ErrInvalidCommand)
	}

	putRecord(buf, uint16(cmd.Kind()), w[:])
	return nil
}

func (CommandCodec) Decode(buf []byte) (Command, error) {
	if len(buf) != CommandRecordSize {
		return nil, fmt.Errorf("command record: %d bytes", len(buf))
	}

	var w [commandWords]uint16
	tag := getRecord(buf, w[:])

	switch Kind(tag) {
	case KindGetVersion:
		return GetVersion{}, nil
	case KindTestOutput:
		return TestOutput{Channel: w[0], Value: w[1] != 0}, nil
	case KindTestPWM:
		return TestPWM{Channel: w[0], Speed: w[1]}, nil
	case KindGetDigitalInputs:
		return GetDigitalInputs{}, nil
	case KindGetState:
		return GetState{}, nil
	case KindGetExtendedState:
		return GetExtendedState{}, nil
	case KindGetSensors:
		return GetSensors{}, nil
	case KindSendParameters:
		return SendParameters{Parameters: ParametersFromWords([ParametersLength]uint16(w[:ParametersLength]))}, nil
	case KindSendCommand:
		return SendCommand{Code: Code(w[0])}, nil
	case KindRestart:
		return Restart{}, nil
	case KindStop:
		return Stop{}, nil
	case KindSendStep:
		step, prog, index, err := DecodeStep(StepBlock(w[:StepBlockLength]))
		if err != nil {
			return nil, err
		}
		return SendStep{Step: step, Program: prog, Index: index, Start: w[StepBlockLength] != 0}, nil
	case KindWriteRegister:
		return WriteRegister{Index: w[0], Value: w[1]}, nil
	case KindReadStatistics:
		return ReadStatistics{}, nil
	default:
		return nil, fmt.Errorf("command record: %w: %d", ErrUnknownTag, tag)
	}
}

// ResponseCodec implements channel.Codec for responses.
type ResponseCodec struct{}

func (ResponseCodec) Size() int {
	return ResponseRecordSize
}

func (ResponseCodec) Encode(resp Response, buf []byte) error {
	if len(buf) != ResponseRecordSize {
		return fmt.Errorf("response record: buffer of %d bytes", len(buf))
	}

	var w [responseWords]uint16
	var tag responseTag

	switch resp := resp.(type) {
	case Version:
		tag = tagVersion
		w[0], w[1], w[2] = resp.Words()
	case DigitalInputs:
		tag = tagDigitalInputs
		w[0] = uint16(resp.Mask)
	case State:
		tag = tagState
		putState(w[:], resp)
	case ExtendedState:
		tag = tagExtendedState
		putState(w[:], resp.State)
		w[4] = resp.Program
		w[5] = resp.Step
		w[6] = uint16(resp.StepType)
	case Sensors:
		tag = tagSensors
		w = resp.Words()
	case Statistics:
		tag = tagStatistics
		s := resp.Words()
		copy(w[:], s[:])
	case Done:
		tag = tagDone
		w[0] = uint16(resp.Command)
	case Failure:
		tag = tagFailure
		w[0] = uint16(resp.Command)
		w[1] = uint16(resp.Code)
	default:
		return fmt.Errorf("response record: %w: %T", ErrUnknownTag, resp)
	}

	putRecord(buf, uint16(tag), w[:])
	return nil
}

func (ResponseCodec) Decode(buf []byte) (Response, error) {
	if len(buf) != ResponseRecordSize {
		return nil, fmt.Errorf("response record: %d bytes", len(buf))
	}

	var w [responseWords]uint16
	tag := getRecord(buf, w[:])

	switch responseTag(tag) {
	case tagVersion:
		return DecodeVersion(w[0], w[1], w[2]), nil
	case tagDigitalInputs:
		return DigitalInputs{Mask: uint8(w[0])}, nil
	case tagState:
		return getState(w[:]), nil
	case tagExtendedState:
		return ExtendedState{
			State:    getState(w[:]),
			Program:  w[4],
			Step:     w[5],
			StepType: program.StepType(w[6]),
		}, nil
	case tagSensors:
		var s Sensors
		for i, v := range w {
			s.Set(InputCoins+uint16(i), v)
		}
		return s, nil
	case tagStatistics:
		return DecodeStatistics([StatisticsLength]uint16(w[:StatisticsLength])), nil
	case tagDone:
		return Done{Command: Kind(w[0])}, nil
	case tagFailure:
		return Failure{Command: Kind(w[0]), Code: ErrorCode(w[1])}, nil
	default:
		return nil, fmt.Errorf("response record: %w: %d", ErrUnknownTag, tag)
	}
}

func putState(w []uint16, s State) {
	w[0] = uint16(s.State)
	w[1] = uint16(s.Alarms)
	w[2] = uint16(s.Flags)
	w[3] = s.Remaining
}

func getState(w []uint16) State {
	return State{
		State:     RunState(w[0]),
		Alarms:    Alarms(w[1]),
		Flags:     Flags(w[2]),
		Remaining: w[3],
	}
}

func putRecord(buf []byte, tag uint16, words []uint16) {
	binary.LittleEndian.PutUint16(buf, tag)
	for i, v := range words {
		binary.LittleEndian.PutUint16(buf[2+2*i:], v)
	}
}

func getRecord(buf []byte, words []uint16) uint16 {
	for i := range words {
		words[i] = binary.LittleEndian.Uint16(buf[2+2*i:])
	}

	return binary.LittleEndian.Uint16(buf)
}
