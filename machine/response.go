package machine

import (
	"fmt"
	"time"

	"github.com/mdouchement/dryerd/modbus"
	"github.com/mdouchement/dryerd/port"
	"github.com/mdouchement/dryerd/program"
)

// A Response is pushed by the Worker for each processed command.
type Response interface {
	response()
}

type Version struct {
	Major uint8  `json:"major"`
	Minor uint8  `json:"minor"`
	Patch uint16 `json:"patch"`
	Day   uint8  `json:"day"`
	Month uint8  `json:"month"`
	Year  uint8  `json:"year"` // Offset from 2000
}

// DecodeVersion decodes the 3 registers of the version block.
func DecodeVersion(high, low, date uint16) Version {
	return Version{
		Major: uint8(high >> 8),
		Minor: uint8(high),
		Patch: low,
		Day:   uint8(date & 0x1F),
		Month: uint8((date >> 5) & 0x1F),
		Year:  uint8((date >> 10) & 0x1F),
	}
}

func (v Version) Words() (high, low, date uint16) {
	high = uint16(v.Major)<<8 | uint16(v.Minor)
	date = uint16(v.Day&0x1F) | uint16(v.Month&0x1F)<<5 | uint16(v.Year&0x1F)<<10
	return high, v.Patch, date
}

// MinorRune maps the minor byte to a letter. Revisions 1 to 26 are 'a' to 'z',
// printable ASCII is kept as is and anything else is '?'.
func (v Version) MinorRune() rune {
	switch {
	case v.Minor >= 1 && v.Minor <= 26:
		return rune('a' + v.Minor - 1)
	case v.Minor >= 0x20 && v.Minor <= 0x7E:
		return rune(v.Minor)
	default:
		return '?'
	}
}

func (v Version) BuildDate() time.Time {
	return time.Date(2000+int(v.Year), time.Month(v.Month), int(v.Day), 0, 0, 0, 0, time.UTC)
}

func (v Version) String() string {
	minor := fmt.Sprint(v.Minor)
	if r := v.MinorRune(); r != '?' {
		minor = string(r)
	}

	return fmt.Sprintf("%d.%s.%d (%s)", v.Major, minor, v.Patch, v.BuildDate().Format(time.DateOnly))
}

type DigitalInputs struct {
	Mask uint8 `json:"mask"`
}

func (d DigitalInputs) Input(channel uint16) bool {
	return d.Mask&(1<<channel) != 0
}

type State struct {
	State     RunState `json:"state"`
	Alarms    Alarms   `json:"alarms"`
	Flags     Flags    `json:"flags"`
	Remaining uint16   `json:"remaining"` // Seconds
}

// ExtendedState adds the position of the board in the running program.
type ExtendedState struct {
	State
	Program  uint16           `json:"program"`
	Step     uint16           `json:"step"`
	StepType program.StepType `json:"step_type"`
}

type Sensors struct {
	Coins        [CoinLines]uint16   `json:"coins"`
	Payment      uint16              `json:"payment"`
	Temperature  uint16              `json:"temperature"` // RS-485 probe
	Humidity     uint16              `json:"humidity"`    // RS-485 probe
	ADC          [ADCChannels]uint16 `json:"adc"`
	Temperatures [2]uint16           `json:"temperatures"`
	ProbeStatus  uint16              `json:"probe_status"`
}

// sensorFields maps input registers, relative to InputCoins, to Sensors fields.
var sensorFields = [SensorsLength]func(*Sensors) *uint16{
	func(s *Sensors) *uint16 { return &s.Coins[0] },
	func(s *Sensors) *uint16 { return &s.Coins[1] },
	func(s *Sensors) *uint16 { return &s.Coins[2] },
	func(s *Sensors) *uint16 { return &s.Coins[3] },
	func(s *Sensors) *uint16 { return &s.Coins[4] },
	func(s *Sensors) *uint16 { return &s.Payment },
	func(s *Sensors) *uint16 { return &s.Temperature },
	func(s *Sensors) *uint16 { return &s.Humidity },
	func(s *Sensors) *uint16 { return &s.ADC[0] },
	func(s *Sensors) *uint16 { return &s.ADC[1] },
	func(s *Sensors) *uint16 { return &s.Temperatures[0] },
	func(s *Sensors) *uint16 { return &s.Temperatures[1] },
	func(s *Sensors) *uint16 { return &s.ProbeStatus },
}

// Set stores the value of the input register index.
func (s *Sensors) Set(index, value uint16) {
	if i := index - InputCoins; i < SensorsLength {
		*sensorFields[i](s) = value
	}
}

// Words returns the sensor block in register order.
func (s *Sensors) Words() [SensorsLength]uint16 {
	var words [SensorsLength]uint16
	for i, field := range sensorFields {
		words[i] = *field(s)
	}

	return words
}

// Statistics are the lifetime counters of the board.
type Statistics struct {
	Cycles          uint32 `json:"cycles"`
	PartialCycles   uint32 `json:"partial_cycles"`
	ActiveTime      uint32 `json:"active_time"`
	WorkTime        uint32 `json:"work_time"`
	VentilationTime uint32 `json:"ventilation_time"`
}

func (s *Statistics) counters() [StatisticsLength / 2]*uint32 {
	return [...]*uint32{&s.Cycles, &s.PartialCycles, &s.ActiveTime, &s.WorkTime, &s.VentilationTime}
}

// DecodeStatistics rebuilds the 32-bit counters, high word first.
// Both halves are read in one request but the board does not latch them.
func DecodeStatistics(words [StatisticsLength]uint16) Statistics {
	var s Statistics
	for i, counter := range s.counters() {
		*counter = uint32(words[2*i])<<16 | uint32(words[2*i+1])
	}

	return s
}

func (s Statistics) Words() [StatisticsLength]uint16 {
	var words [StatisticsLength]uint16
	for i, counter := range s.counters() {
		words[2*i] = uint16(*counter >> 16)
		words[2*i+1] = uint16(*counter)
	}

	return words
}

// Done acknowledges a command that has nothing to report.
type Done struct {
	Command Kind `json:"command"`
}

type ErrorCode uint16

const (
	CodePortNotFound ErrorCode = iota + 1
	CodeCommunication
	CodeInvalidCommand
)

func (c ErrorCode) String() string {
	switch c {
	case CodePortNotFound:
		return "port-not-found"
	case CodeCommunication:
		return "communication"
	case CodeInvalidCommand:
		return "invalid-command"
	default:
		return fmt.Sprintf("error(%d)", uint16(c))
	}
}

func (c ErrorCode) MarshalText() ([]byte, error) {
	return []byte(c.String()), nil
}

// Failure reports a command that could not be processed.
type Failure struct {
	Command Kind      `json:"command"`
	Code    ErrorCode `json:"code"`
}

func (f Failure) Err() error {
	switch f.Code {
	case CodePortNotFound:
		return fmt.Errorf("%s: %w", f.Command, port.ErrPortNotFound)
	case CodeCommunication:
		return fmt.Errorf("%s: %w", f.Command, modbus.ErrCommunication)
	default:
		return fmt.Errorf("%s: %w", f.Command, ErrInvalidCommand)
	}
}

func (Version) response()       {}
func (DigitalInputs) response() {}
func (State) response()         {}
func (ExtendedState) response() {}
func (Sensors) response()       {}
func (Statistics) response()    {}
func (Done) response()          {}
func (Failure) response()       {}
