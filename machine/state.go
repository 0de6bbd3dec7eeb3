package machine

import (
	"fmt"
	"math/bits"
	"strings"
)

// A Code is written to the command register.
type Code uint16

const (
	CodeNone Code = iota
	CodeInitialize
	CodeRun
	CodePause
	CodeStop
	CodeClearAlarms
	CodeClearCoins
)

func (c Code) String() string {
	switch c {
	case CodeNone:
		return "none"
	case CodeInitialize:
		return "initialize"
	case CodeRun:
		return "run"
	case CodePause:
		return "pause"
	case CodeStop:
		return "stop"
	case CodeClearAlarms:
		return "clear-alarms"
	case CodeClearCoins:
		return "clear-coins"
	default:
		return fmt.Sprintf("code(%d)", uint16(c))
	}
}

// RunState mirrors the board state register.
type RunState uint16

const (
	Stopped RunState = iota
	Running
	Paused
	// Active means the board completed the loaded step and waits for the next one.
	Active
)

func (s RunState) String() string {
	switch s {
	case Stopped:
		return "stopped"
	case Running:
		return "running"
	case Paused:
		return "paused"
	case Active:
		return "active"
	default:
		return fmt.Sprintf("state(%d)", uint16(s))
	}
}

func (s RunState) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

func (s *RunState) UnmarshalText(text []byte) error {
	for state := Stopped; state <= Active; state++ {
		if state.String() == string(text) {
			*s = state
			return nil
		}
	}

	return fmt.Errorf("unknown run state %q", text)
}

// An Alarm is a bit of the alarms register, lower bits are more severe.
type Alarm uint16

const (
	AlarmEmergency Alarm = 1 << iota
	AlarmOverheating
	AlarmAirFlow
	AlarmInverter
	AlarmFilter
	AlarmDoorOpen

	AlarmNone Alarm = 0
)

var alarmNames = map[Alarm]string{
	AlarmEmergency:   "emergency",
	AlarmOverheating: "overheating",
	AlarmAirFlow:     "air-flow",
	AlarmInverter:    "inverter",
	AlarmFilter:      "filter",
	AlarmDoorOpen:    "door-open",
}

func (a Alarm) String() string {
	if a == AlarmNone {
		return "none"
	}
	if name, ok := alarmNames[a]; ok {
		return name
	}

	return fmt.Sprintf("alarm(0x%04X)", uint16(a))
}

func (a Alarm) MarshalText() ([]byte, error) {
	return []byte(a.String()), nil
}

func (a *Alarm) UnmarshalText(text []byte) error {
	if string(text) == AlarmNone.String() {
		*a = AlarmNone
		return nil
	}

	for alarm, name := range alarmNames {
		if name == string(text) {
			*a = alarm
			return nil
		}
	}

	return fmt.Errorf("unknown alarm %q", text)
}

// Alarms is the alarms register bitmask.
type Alarms uint16

func (a Alarms) Has(alarm Alarm) bool {
	return uint16(a)&uint16(alarm) != 0
}

// Worst returns the most severe active alarm.
func (a Alarms) Worst() Alarm {
	if a == 0 {
		return AlarmNone
	}

	return Alarm(1 << bits.TrailingZeros16(uint16(a)))
}

func (a Alarms) String() string {
	if a == 0 {
		return "none"
	}

	var names []string
	for v := uint16(a); v != 0; v &= v - 1 {
		names = append(names, Alarm(1<<bits.TrailingZeros16(v)).String())
	}

	return strings.Join(names, ",")
}

// Flags is the function flags register.
type Flags uint16

const (
	FlagInitialized Flags = 1 << iota
	FlagHeating
	FlagRotating
	FlagFan
)

func (f Flags) Has(flag Flags) bool {
	return f&flag == flag
}

// Health is the state of the communication with the board.
// Error is sticky until a successful restart.
type Health struct {
	Enabled bool `json:"enabled"`
	Error   bool `json:"error"`
}

func (h Health) OK() bool {
	return h.Enabled && !h.Error
}
