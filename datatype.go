package dryerd

import (
	"time"

	"github.com/mdouchement/dryerd/channel"
	"github.com/mdouchement/dryerd/machine"
	"github.com/mdouchement/dryerd/program"
)

// A Machine is the control side of the machine channel.
type Machine interface {
	channel.Sender[machine.Command]
	channel.Receiver[machine.Response]
}

// Snapshot is the state published to monitors.
type Snapshot struct {
	Health       machine.Health        `json:"health"`
	Version      *machine.Version      `json:"version,omitempty"`
	Runner       RunnerStatus          `json:"runner"`
	Flags        machine.Flags         `json:"flags"`
	Alarms       machine.Alarms        `json:"alarms"`
	Sensors      machine.Sensors       `json:"sensors"`
	Inputs       machine.DigitalInputs `json:"inputs"`
	Statistics   *machine.Statistics   `json:"statistics,omitempty"`
	StatisticsAt time.Time             `json:"statistics_at"`
	TestMode     bool                  `json:"test_mode"`
	LastError    string                `json:"last_error,omitempty"`
	UpdatedAt    time.Time             `json:"updated_at"`
}

type RunnerStatus struct {
	State       machine.RunState `json:"state"`
	Program     int              `json:"program"`
	ProgramName string           `json:"program_name"`
	Step        int              `json:"step"`
	Steps       int              `json:"steps"`
	StepType    program.StepType `json:"step_type"`
	Alarm       machine.Alarm    `json:"alarm"`
	Remaining   uint16           `json:"remaining"`
	Pending     bool             `json:"pending"`
	Synced      bool             `json:"synced"`
}

const (
	EventState      = "state"
	EventStep       = "step"
	EventProgramEnd = "program-end"
	EventAutostop   = "autostop"
)

type RunnerEvent struct {
	Name    string
	State   machine.RunState
	Program int
	Step    int
}

func ToPtr[T any](v T) *T {
	return &v
}

const (
	intentStart      = "start"
	intentStop       = "stop"
	intentPause      = "pause"
	intentRestart    = "restart"
	intentStatistics = "statistics"
	intentOutput     = "output"
	intentPWM        = "pwm"
	intentProgram    = "program"
)

// An intent is a request from the HTTP API processed by the control goroutine.
type intent struct {
	name    string
	channel uint16
	value   uint16
	reply   chan error
}

func genID() int64 {
	time.Sleep(time.Nanosecond)
	return time.Now().UnixNano()
}
