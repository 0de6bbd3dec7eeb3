package machine

import (
	"fmt"

	"github.com/mdouchement/dryerd/program"
)

// Kind identifies a command. It is also the tag of command records.
type Kind uint16

const (
	KindGetVersion Kind = iota + 1
	KindTestOutput
	KindTestPWM
	KindGetDigitalInputs
	KindGetState
	KindGetExtendedState
	KindGetSensors
	KindSendParameters
	KindSendCommand
	KindRestart
	KindStop
	KindSendStep
	KindWriteRegister
	KindReadStatistics
)

var kindNames = map[Kind]string{
	KindGetVersion:       "get-version",
	KindTestOutput:       "test-output",
	KindTestPWM:          "test-pwm",
	KindGetDigitalInputs: "get-digital-inputs",
	KindGetState:         "get-state",
	KindGetExtendedState: "get-extended-state",
	KindGetSensors:       "get-sensors",
	KindSendParameters:   "send-parameters",
	KindSendCommand:      "send-command",
	KindRestart:          "restart",
	KindStop:             "stop",
	KindSendStep:         "send-step",
	KindWriteRegister:    "write-register",
	KindReadStatistics:   "read-statistics",
}

func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}

	return fmt.Sprintf("kind(%d)", uint16(k))
}

func (k Kind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// A Command is a request processed by the Worker.
type Command interface {
	Kind() Kind
}

type (
	GetVersion struct{}

	// TestOutput switches one output channel, the other channels keep their last tested value.
	TestOutput struct {
		Channel uint16
		Value   bool
	}

	TestPWM struct {
		Channel uint16
		Speed   uint16
	}

	GetDigitalInputs struct{}
	GetState         struct{}
	GetExtendedState struct{}
	GetSensors       struct{}

	SendParameters struct {
		Parameters Parameters
	}

	SendCommand struct {
		Code Code
	}

	// Restart reacquires the serial port.
	Restart struct{}

	Stop struct{}

	// SendStep loads a step then runs it when Start is set, pauses otherwise.
	SendStep struct {
		Step    program.Step
		Program uint16
		Index   uint16
		Start   bool
	}

	WriteRegister struct {
		Index uint16
		Value uint16
	}

	ReadStatistics struct{}
)

func (GetVersion) Kind() Kind       { return KindGetVersion }
func (TestOutput) Kind() Kind       { return KindTestOutput }
func (TestPWM) Kind() Kind          { return KindTestPWM }
func (GetDigitalInputs) Kind() Kind { return KindGetDigitalInputs }
func (GetState) Kind() Kind         { return KindGetState }
func (GetExtendedState) Kind() Kind { return KindGetExtendedState }
func (GetSensors) Kind() Kind       { return KindGetSensors }
func (SendParameters) Kind() Kind   { return KindSendParameters }
func (SendCommand) Kind() Kind      { return KindSendCommand }
func (Restart) Kind() Kind          { return KindRestart }
func (Stop) Kind() Kind             { return KindStop }
func (SendStep) Kind() Kind         { return KindSendStep }
func (WriteRegister) Kind() Kind    { return KindWriteRegister }
func (ReadStatistics) Kind() Kind   { return KindReadStatistics }
