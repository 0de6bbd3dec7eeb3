package machine

import (
	"context"
	"errors"
	"time"

	"github.com/mdouchement/dryerd/channel"
	"github.com/mdouchement/dryerd/modbus"
	"github.com/mdouchement/logger"
)

const DefaultPoll = 30 * time.Millisecond

// A Link is an opened transport to the board.
type Link interface {
	modbus.Transport
	Close() error
}

// An Opener discovers and opens the transport.
type Opener func() (Link, error)

// A Worker is the only owner of the transport and the Modbus client.
// It processes commands one at a time and pushes one response per command.
type Worker struct {
	requests   channel.Receiver[Command]
	responses  channel.Sender[Response]
	open       Opener
	link       Link
	client     *modbus.Client
	dispatcher *Dispatcher
	health     Health
	dropped    Command
	poll       time.Duration
	log        logger.Logger
}

func NewWorker(requests channel.Receiver[Command], responses channel.Sender[Response], open Opener, cfg modbus.Config) *Worker {
	client := modbus.New(nil, cfg)

	return &Worker{
		requests:   requests,
		responses:  responses,
		open:       open,
		client:     client,
		dispatcher: NewDispatcher(client),
		poll:       DefaultPoll,
	}
}

// SetPoll sets the maximum time spent waiting for a command between housekeeping rounds.
func (w *Worker) SetPoll(d time.Duration) {
	if d > 0 {
		w.poll = d
	}
}

// Metrics exposes the protocol counters.
func (w *Worker) Metrics() *modbus.Metrics {
	return &w.client.Metrics
}

// Run acquires the transport then processes commands until ctx is done
// or the requests channel is closed. An exchange in progress is never interrupted.
func (w *Worker) Run(ctx context.Context) error {
	w.log = logger.LogWith(ctx).WithPrefix("[worker]")
	w.client.SetLogger(w.log)

	defer w.close()

	w.restart()

	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		cmd, ok, err := w.requests.ReceiveTimeout(w.poll)
		if errors.Is(err, channel.ErrClosed) {
			return nil
		}
		if err != nil {
			w.log.WithError(err).Error("Could not receive command")
			continue
		}
		if !ok {
			continue
		}

		w.Handle(cmd)
	}
}

// Handle processes one command.
func (w *Worker) Handle(cmd Command) {
	if cmd.Kind() == KindRestart {
		w.restart()
		return
	}

	if !w.health.OK() {
		// Replayed after the next successful restart.
		w.dropped = cmd
		w.debugf("Dropped %s while communication is down", cmd.Kind())
		return
	}

	resp, err := w.dispatcher.Dispatch(cmd)
	switch {
	case errors.Is(err, modbus.ErrCommunication):
		w.health.Error = true
		if w.log != nil {
			w.log.WithError(err).Errorf("Communication lost on %s", cmd.Kind())
		}
		w.emit(Failure{Command: cmd.Kind(), Code: CodeCommunication})
	case err != nil:
		if w.log != nil {
			w.log.WithError(err).Errorf("Could not process %s", cmd.Kind())
		}
		w.emit(Failure{Command: cmd.Kind(), Code: CodeInvalidCommand})
	default:
		w.emit(resp)
	}
}

func (w *Worker) restart() {
	w.close()

	link, err := w.open()
	if err != nil {
		w.health = Health{Enabled: false, Error: true}
		if w.log != nil {
			w.log.WithError(err).Error("Could not acquire serial port")
		}
		w.emit(Failure{Command: KindRestart, Code: CodePortNotFound})
		return
	}

	w.link = link
	w.client.Reset(link)
	w.health = Health{Enabled: true}
	w.emit(Done{Command: KindRestart})

	if cmd := w.dropped; cmd != nil {
		w.dropped = nil
		w.debugf("Replaying %s", cmd.Kind())
		w.Handle(cmd)
	}
}

func (w *Worker) close() {
	if w.link == nil {
		return
	}

	if err := w.link.Close(); err != nil && w.log != nil {
		w.log.WithError(err).Warnf("Could not close serial port")
	}
	w.link = nil
	w.client.Reset(nil)
}

func (w *Worker) emit(resp Response) {
	if err := w.responses.Send(resp); err != nil && w.log != nil {
		w.log.WithError(err).Errorf("Could not push %T response", resp)
	}
}

func (w *Worker) debugf(format string, args ...any) {
	if w.log != nil {
		w.log.Debugf(format, args...)
	}
}
