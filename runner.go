package dryerd

import (
	"errors"
	"fmt"
	"time"

	"github.com/mdouchement/dryerd/channel"
	"github.com/mdouchement/dryerd/machine"
	"github.com/mdouchement/dryerd/program"
	"github.com/mdouchement/logger"
)

var (
	ErrNoProgram = errors.New("no such program")
	ErrBusy      = errors.New("a program is running")
)

// A ProgramStore gives access to the programs known by the daemon.
type ProgramStore interface {
	Program(index int) (*program.Program, bool)
}

// A Runner drives the board through the steps of the selected program.
// It only mirrors the state reported by the board, local intents are sent
// as commands and confirmed by the following telemetry.
//
// A Runner is owned by the control goroutine and is not safe for concurrent use.
type Runner struct {
	send      channel.Sender[machine.Command]
	programs  ProgramStore
	autostop  time.Duration
	now       func() time.Time
	log       logger.Logger
	listeners []func(RunnerEvent)

	program   int
	step      int
	state     machine.RunState
	alarms    machine.Alarms
	remaining uint16
	pausedAt  time.Time

	pending     bool // Start sent, waiting for Running
	stopIssued  bool
	autostopped bool
	synced      bool
	detached    bool // The board runs something we could not resynchronize with
}

func NewRunner(send channel.Sender[machine.Command], programs ProgramStore, autostop time.Duration) *Runner {
	return &Runner{
		send:     send,
		programs: programs,
		autostop: autostop,
		now:      time.Now,
	}
}

func (r *Runner) SetLogger(l logger.Logger) {
	r.log = l
}

// Subscribe registers fn to be called on each runner event.
func (r *Runner) Subscribe(fn func(RunnerEvent)) {
	r.listeners = append(r.listeners, fn)
}

// Select chooses the program run by the next Start.
func (r *Runner) Select(index int) error {
	if _, ok := r.programs.Program(index); !ok {
		return fmt.Errorf("%w: %d", ErrNoProgram, index)
	}
	if r.state != machine.Stopped {
		return ErrBusy
	}

	r.program = index
	r.step = 0
	return nil
}

// Start sends the first step of the selected program, or the current step when paused.
func (r *Runner) Start() error {
	p, ok := r.programs.Program(r.program)
	if !ok {
		return fmt.Errorf("%w: %d", ErrNoProgram, r.program)
	}

	switch r.state {
	case machine.Paused:
		// Resume
	case machine.Stopped:
		r.step = 0
	default:
		return ErrBusy
	}

	step, ok := p.Step(r.step)
	if !ok {
		return fmt.Errorf("%s: no step %d", p.Name, r.step+1)
	}

	if err := r.sendStep(step, r.step); err != nil {
		return err
	}

	r.detached = false
	r.pending = true
	return nil
}

func (r *Runner) Pause() error {
	return r.send.Send(machine.SendCommand{Code: machine.CodePause})
}

func (r *Runner) Stop() error {
	return r.send.Send(machine.Stop{})
}

// Synced reports whether the runner knows the position of the board in the program.
func (r *Runner) Synced() bool {
	return r.synced
}

// Desync makes the runner wait for a new extended state.
func (r *Runner) Desync() {
	r.synced = false
	r.pending = false
}

// Resync adopts the program position reported by the board when it is valid.
func (r *Runner) Resync(s machine.ExtendedState) {
	r.synced = true

	if s.State.State != machine.Stopped {
		p, ok := r.programs.Program(int(s.Program))
		if ok && int(s.Step) < p.Len() {
			r.program = int(s.Program)
			r.step = int(s.Step)
			r.detached = false
			r.pending = false
			r.stopIssued = false
			r.info("Resuming %s at step %d", p.Name, r.step+1)
		} else {
			r.detached = true
			r.warn("Board reports an unknown position: program %d step %d", s.Program, s.Step)
		}
	}

	r.Update(s.State)
}

// Update processes a state telemetry.
func (r *Runner) Update(s machine.State) {
	r.alarms = s.Alarms
	r.remaining = s.Remaining

	if !s.Flags.Has(machine.FlagInitialized) {
		r.synced = false
	}

	if s.State != r.state {
		r.transition(s.State)
	}

	r.advance()
	r.checkAutostop()
}

func (r *Runner) transition(state machine.RunState) {
	previous := r.state
	r.state = state
	r.stopIssued = false

	switch state {
	case machine.Running:
		r.pending = false
	case machine.Paused:
		r.pausedAt = r.now()
		r.autostopped = false
	case machine.Stopped:
		r.pending = false
		r.detached = false
		r.step = 0
	}

	r.debug("State %s -> %s", previous, state)
	r.emit(RunnerEvent{Name: EventState, State: state, Program: r.program, Step: r.step})
}

// advance loads the next step once the board completed the current one.
func (r *Runner) advance() {
	if r.state != machine.Active || r.pending || r.detached {
		return
	}

	p, ok := r.programs.Program(r.program)
	if !ok {
		r.stopOnce()
		return
	}

	next := r.step + 1
	step, ok := p.Step(next)
	if !ok {
		if r.stopOnce() {
			r.info("Program %s completed", p.Name)
			r.emit(RunnerEvent{Name: EventProgramEnd, State: r.state, Program: r.program, Step: r.step})
		}
		return
	}

	if err := r.sendStep(step, next); err != nil {
		r.errorf(err, "Could not send step %d", next+1)
		return
	}

	r.step = next
	r.pending = true
	r.emit(RunnerEvent{Name: EventStep, State: r.state, Program: r.program, Step: r.step})
}

func (r *Runner) checkAutostop() {
	if r.state != machine.Paused || r.autostopped || r.autostop <= 0 {
		return
	}
	if r.alarms.Worst() != machine.AlarmDoorOpen {
		return
	}
	if r.now().Sub(r.pausedAt) < r.autostop {
		return
	}

	if err := r.Stop(); err != nil {
		r.errorf(err, "Could not autostop")
		return
	}

	r.autostopped = true
	r.warn("Autostop after %s paused with the door open", r.autostop)
	r.emit(RunnerEvent{Name: EventAutostop, State: r.state, Program: r.program, Step: r.step})
}

// stopOnce issues a single Stop per state.
func (r *Runner) stopOnce() bool {
	if r.stopIssued {
		return false
	}

	if err := r.Stop(); err != nil {
		r.errorf(err, "Could not stop")
		return false
	}

	r.stopIssued = true
	return true
}

func (r *Runner) sendStep(step program.Step, index int) error {
	return r.send.Send(machine.SendStep{
		Step:    step,
		Program: uint16(r.program),
		Index:   uint16(index),
		Start:   true,
	})
}

// Status returns the runner view of the board.
func (r *Runner) Status() RunnerStatus {
	status := RunnerStatus{
		State:     r.state,
		Program:   r.program,
		Step:      r.step,
		Alarm:     r.alarms.Worst(),
		Remaining: r.remaining,
		Pending:   r.pending,
		Synced:    r.synced,
	}

	if p, ok := r.programs.Program(r.program); ok {
		status.ProgramName = p.Name
		status.Steps = p.Len()
		if s, ok := p.Step(r.step); ok {
			status.StepType = s.Type()
		}
	}

	return status
}

func (r *Runner) emit(e RunnerEvent) {
	for _, fn := range r.listeners {
		fn(e)
	}
}

func (r *Runner) debug(format string, args ...any) {
	if r.log != nil {
		r.log.Debugf(format, args...)
	}
}

func (r *Runner) info(format string, args ...any) {
	if r.log != nil {
		r.log.Infof(format, args...)
	}
}

func (r *Runner) warn(format string, args ...any) {
	if r.log != nil {
		r.log.Warnf(format, args...)
	}
}

func (r *Runner) errorf(err error, format string, args ...any) {
	if r.log != nil {
		r.log.WithError(err).Errorf(format, args...)
	}
}
