package dryerd

import (
	"errors"
	"sync"
	"time"

	"github.com/mdouchement/dryerd/machine"
	"github.com/mdouchement/dryerd/modbus"
	"github.com/mdouchement/dryerd/program"
	"github.com/mdouchement/logger"
)

var ErrUnplugged = errors.New("dummy machine unplugged")

// A DummyMachine simulates the board firmware behind a Modbus link.
// It should only be used for dev & tests.
type DummyMachine struct {
	sync     sync.Mutex
	holding  [machine.RegStatistics + machine.StatisticsBlockLength]uint16
	input    [machine.SensorsLength]uint16
	coils    [machine.OutputChannels]bool
	discrete [machine.DigitalInputChannels]bool
	pending  []byte
	now      func() time.Time
	last     time.Time
	elapsed  time.Duration // Simulated time not yet applied
	speedup  int
	step     program.Step
	unplug   bool
	log      logger.Logger
}

// NewDummyMachine returns a board whose clock runs speedup times faster than the wall clock.
func NewDummyMachine(speedup int) *DummyMachine {
	if speedup < 1 {
		speedup = 1
	}

	m := &DummyMachine{
		now:     time.Now,
		speedup: speedup,
	}
	m.last = m.now()

	v := machine.Version{Major: 1, Minor: 'b', Patch: 3, Day: 1, Month: 10, Year: 26}
	m.holding[machine.RegVersionHigh], m.holding[machine.RegVersionLow], m.holding[machine.RegBuildDate] = v.Words()
	m.input[machine.InputTemperature] = 20
	m.input[machine.InputHumidity] = 60
	m.input[machine.InputTemperatures] = 20
	m.input[machine.InputTemperatures+1] = 20

	return m
}

func (m *DummyMachine) SetLogger(l logger.Logger) {
	m.log = l
}

// Open implements machine.Opener.
func (m *DummyMachine) Open() (machine.Link, error) {
	m.sync.Lock()
	defer m.sync.Unlock()

	if m.unplug {
		return nil, ErrUnplugged
	}
	return m, nil
}

// Unplug simulates a disconnected USB adapter.
func (m *DummyMachine) Unplug(unplug bool) {
	m.sync.Lock()
	defer m.sync.Unlock()

	m.unplug = unplug
}

// SetAlarms raises the given alarms. A door opened while running pauses the drying.
func (m *DummyMachine) SetAlarms(alarms machine.Alarms) {
	m.sync.Lock()
	defer m.sync.Unlock()

	m.holding[machine.RegAlarms] = uint16(alarms)
	if alarms.Has(machine.AlarmDoorOpen) && m.state() == machine.Running {
		m.setState(machine.Paused)
	}
}

// SetInput sets a digital input.
func (m *DummyMachine) SetInput(channel uint16, v bool) {
	m.sync.Lock()
	defer m.sync.Unlock()

	if channel < machine.DigitalInputChannels {
		m.discrete[channel] = v
	}
}

// InsertCoin credits a coin line.
func (m *DummyMachine) InsertCoin(line uint16) {
	m.sync.Lock()
	defer m.sync.Unlock()

	if line < machine.CoinLines {
		m.input[machine.InputCoins+line]++
		m.input[machine.InputPayment]++
	}
}

// Holding returns the value of a holding register.
func (m *DummyMachine) Holding(index uint16) uint16 {
	m.sync.Lock()
	defer m.sync.Unlock()

	if int(index) >= len(m.holding) {
		return 0
	}
	return m.holding[index]
}

func (m *DummyMachine) Close() error {
	return nil
}

func (m *DummyMachine) Flush() error {
	m.sync.Lock()
	defer m.sync.Unlock()

	m.pending = nil
	return nil
}

func (m *DummyMachine) Write(frame []byte) error {
	m.sync.Lock()
	defer m.sync.Unlock()

	if m.unplug {
		return ErrUnplugged
	}

	m.tick()

	req, err := modbus.ParseRequest(frame)
	if err != nil {
		m.pending = nil // Real boards ignore corrupted frames
		return nil
	}

	m.pending = m.serve(req)
	return nil
}

func (m *DummyMachine) ReadUntil(p []byte, _ time.Duration) (int, error) {
	m.sync.Lock()
	defer m.sync.Unlock()

	if m.unplug {
		return 0, ErrUnplugged
	}

	n := copy(p, m.pending)
	m.pending = m.pending[n:]
	return n, nil
}

func (m *DummyMachine) serve(req modbus.Request) []byte {
	var table machine.Table
	switch req.Function {
	case modbus.FuncReadHoldingRegisters, modbus.FuncWriteSingleRegister, modbus.FuncWriteMultipleRegisters:
		table = machine.TableHolding
	case modbus.FuncReadInputRegisters:
		table = machine.TableInput
	case modbus.FuncReadCoils, modbus.FuncWriteMultipleCoils:
		table = machine.TableCoil
	case modbus.FuncReadDiscreteInputs:
		table = machine.TableDiscrete
	default:
		return req.Exception(modbus.ExceptionIllegalFunction)
	}

	block, ok := machine.Lookup(table, req.Index, req.Quantity)
	if !ok {
		return req.Exception(modbus.ExceptionIllegalDataAddress)
	}

	switch req.Function {
	case modbus.FuncReadHoldingRegisters:
		return req.ReplyRegisters(m.holding[req.Index : req.Index+req.Quantity])
	case modbus.FuncReadInputRegisters:
		return req.ReplyRegisters(m.input[req.Index : req.Index+req.Quantity])
	case modbus.FuncReadCoils:
		return req.ReplyBits(m.coils[req.Index : req.Index+req.Quantity])
	case modbus.FuncReadDiscreteInputs:
		return req.ReplyBits(m.discrete[req.Index : req.Index+req.Quantity])
	case modbus.FuncWriteMultipleCoils:
		copy(m.coils[req.Index:], req.Bits)
		return req.ReplyWrite()
	}

	if block.Name == "state" || block.Name == "position" || block.Name == "version" || block.Name == "statistics" {
		return req.Exception(modbus.ExceptionIllegalDataAddress) // Read-only
	}

	copy(m.holding[req.Index:], req.Values)
	if block.Name == "command" {
		if !m.execute(machine.Code(req.Values[0])) {
			return req.Exception(modbus.ExceptionIllegalDataValue)
		}
	}

	return req.ReplyWrite()
}

func (m *DummyMachine) execute(code machine.Code) bool {
	defer func() {
		m.holding[machine.RegCommand] = uint16(machine.CodeNone)
	}()

	m.debugf("Command %s", code)

	switch code {
	case machine.CodeInitialize:
		m.holding[machine.RegFlags] |= uint16(machine.FlagInitialized)
	case machine.CodeRun:
		if !machine.Flags(m.holding[machine.RegFlags]).Has(machine.FlagInitialized) {
			return false
		}

		var block machine.StepBlock
		copy(block[:], m.holding[machine.RegStep:])
		step, prog, idx, err := machine.DecodeStep(block)
		if err != nil {
			return false
		}

		if m.state() == machine.Paused && m.step != nil && step == m.step {
			m.setState(machine.Running) // Resume
			return true
		}

		m.step = step
		m.holding[machine.RegPositionProgram] = prog
		m.holding[machine.RegPositionStep] = idx
		m.holding[machine.RegPositionType] = uint16(step.Type())
		m.holding[machine.RegRemaining] = step.Minutes() * 60
		m.setState(machine.Running)
	case machine.CodePause:
		if m.state() != machine.Running {
			return true
		}
		m.setState(machine.Paused)
	case machine.CodeStop:
		if m.state() == machine.Active {
			m.addStatistic(0, 1)
		}
		m.step = nil
		m.holding[machine.RegRemaining] = 0
		m.setState(machine.Stopped)
	case machine.CodeClearAlarms:
		m.holding[machine.RegAlarms] = 0
	case machine.CodeClearCoins:
		for i := range machine.CoinLines {
			m.input[machine.InputCoins+i] = 0
		}
		m.input[machine.InputPayment] = 0
	default:
		return false
	}

	return true
}

// tick applies the simulated time elapsed since the previous request.
func (m *DummyMachine) tick() {
	now := m.now()
	m.elapsed += now.Sub(m.last) * time.Duration(m.speedup)
	m.last = now

	seconds := uint16(min(m.elapsed/time.Second, 0xFFFF))
	if seconds == 0 {
		return
	}
	m.elapsed -= time.Duration(seconds) * time.Second

	switch m.state() {
	case machine.Running:
		m.addStatistic(3, uint32(seconds))
		m.heat(seconds)

		remaining := m.holding[machine.RegRemaining]
		if seconds >= remaining {
			m.holding[machine.RegRemaining] = 0
			m.addStatistic(1, 1)
			m.setState(machine.Active)
			return
		}
		m.holding[machine.RegRemaining] = remaining - seconds
	case machine.Active:
		m.addStatistic(2, uint32(seconds))
	default:
		m.cool(seconds)
	}
}

func (m *DummyMachine) heat(seconds uint16) {
	var target uint16
	switch s := m.step.(type) {
	case program.Drying:
		target = s.Temperature
	case program.Cooling:
		target = s.Temperature
	default:
		target = m.input[machine.InputTemperature]
	}

	t := &m.input[machine.InputTemperature]
	switch {
	case *t < target:
		*t = min(*t+seconds, target)
	case *t > target:
		*t = max(*t-min(seconds, *t-target), target)
	}
	m.input[machine.InputTemperatures] = *t
	m.input[machine.InputTemperatures+1] = *t * 8 / 10
}

func (m *DummyMachine) cool(seconds uint16) {
	t := &m.input[machine.InputTemperature]
	if *t > 20 {
		*t = max(*t-min(seconds, *t-20), 20)
	}
	m.input[machine.InputTemperatures] = *t
	m.input[machine.InputTemperatures+1] = *t
}

func (m *DummyMachine) state() machine.RunState {
	return machine.RunState(m.holding[machine.RegState])
}

func (m *DummyMachine) setState(s machine.RunState) {
	m.holding[machine.RegState] = uint16(s)

	flags := machine.Flags(m.holding[machine.RegFlags]) & machine.FlagInitialized
	if s == machine.Running {
		flags |= machine.FlagRotating | machine.FlagFan
		if m.step != nil && m.step.Type() == program.TypeDrying {
			flags |= machine.FlagHeating
		}
	}
	m.holding[machine.RegFlags] = uint16(flags)
}

// addStatistic adds v to the n-th 32 bits counter.
func (m *DummyMachine) addStatistic(n int, v uint32) {
	var words [machine.StatisticsLength]uint16
	copy(words[:], m.holding[machine.RegStatistics:])

	stats := machine.DecodeStatistics(words)
	switch n {
	case 0:
		stats.Cycles += v
	case 1:
		stats.PartialCycles += v
	case 2:
		stats.ActiveTime += v
	case 3:
		stats.WorkTime += v
		stats.VentilationTime += v
	}

	words = stats.Words()
	copy(m.holding[machine.RegStatistics:], words[:])
}

func (m *DummyMachine) debugf(format string, args ...any) {
	if m.log != nil {
		m.log.Debugf(format, args...)
	}
}
