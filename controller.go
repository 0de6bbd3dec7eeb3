package dryerd

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/mdouchement/dryerd/channel"
	"github.com/mdouchement/dryerd/machine"
	"github.com/mdouchement/logger"
	"github.com/puzpuzpuz/xsync/v3"
)

var ErrUnavailable = errors.New("machine unavailable")

// parametersThrottle is the minimum delay between two parameter uploads
// triggered by a board reporting itself not initialized.
const parametersThrottle = 2 * time.Second

type Controller struct {
	cfg      Config
	send     channel.Sender[machine.Command]
	recv     channel.Receiver[machine.Response]
	runner   *Runner
	intents  chan intent
	listener net.Listener
	watchers *xsync.MapOf[int64, chan []byte]
	latest   atomic.Pointer[[]byte]
	now      func() time.Time
	log      logger.Logger

	// Owned by the control loop.
	snapshot     Snapshot
	testMode     bool
	paramsSentAt time.Time
}

func New(cfg Config, send channel.Sender[machine.Command], recv channel.Receiver[machine.Response]) (*Controller, error) {
	c := &Controller{
		cfg:      cfg,
		send:     send,
		recv:     recv,
		runner:   NewRunner(send, cfg, cfg.Autostop.Duration),
		intents:  make(chan intent),
		watchers: xsync.NewMapOf[int64, chan []byte](),
		now:      time.Now,
	}

	if err := c.runner.Select(cfg.SelectedProgram); err != nil {
		return nil, err
	}

	if cfg.Socket == "" {
		return c, nil
	}

	err := os.MkdirAll(filepath.Dir(cfg.Socket), 0o755)
	if err != nil {
		return nil, fmt.Errorf("socket: %w", err)
	}

	if _, err := os.Stat(cfg.Socket); err == nil {
		fmt.Printf("Removing existing %s\n", cfg.Socket)
		os.Remove(cfg.Socket)
	}
	c.listener, err = net.Listen("unix", cfg.Socket)
	if err != nil {
		return nil, fmt.Errorf("socket: %w", err)
	}

	return c, nil
}

// Runner returns the program runner driven by the controller.
func (c *Controller) Runner() *Runner {
	return c.runner
}

// Launch starts the HTTP API and the control loop. Both stop when ctx is done.
func (c *Controller) Launch(ctx context.Context) {
	c.log = logger.LogWith(ctx)
	c.runner.SetLogger(c.log.WithPrefix("[runner]"))
	c.runner.Subscribe(c.onRunnerEvent)

	if c.listener != nil {
		go func() {
			for {
				c.log.Infof("Starting HTTP server on %s", c.listener.Addr())
				err := http.Serve(c.listener, c.Handler())
				if errors.Is(err, net.ErrClosed) {
					return
				}
				if err != nil {
					c.log.WithError(err).Error("Could not serve HTTP")
				}
				time.Sleep(2 * time.Second)
			}
		}()
	}

	go c.loop(ctx)
}

func (c *Controller) loop(ctx context.Context) {
	inbound := time.NewTicker(c.cfg.Polling.Inbound.Duration)
	defer inbound.Stop()
	fast := time.NewTicker(c.cfg.Polling.State.Duration)
	defer fast.Stop()
	slow := time.NewTicker(c.cfg.Polling.Sensors.Duration)
	defer slow.Stop()

	var restart <-chan time.Time
	if c.cfg.RestartInterval.Duration > 0 {
		t := time.NewTicker(c.cfg.RestartInterval.Duration)
		defer t.Stop()
		restart = t.C
	}

	// Probe a worker that may already be running.
	c.command(machine.GetVersion{})

	for {
		select {
		case <-ctx.Done():
			c.shutdown()
			return
		case <-inbound.C:
			c.drain()
		case <-fast.C:
			c.pollState()
		case <-slow.C:
			c.pollSensors()
		case <-restart:
			c.log.Info("Periodic restart of the machine link")
			c.command(machine.Restart{})
		case in := <-c.intents:
			in.reply <- c.handle(in)
		}
	}
}

func (c *Controller) shutdown() {
	if c.listener == nil {
		return
	}

	if err := c.listener.Close(); err != nil {
		c.log.WithError(err).Error("Could not close socket listener")
	}
	if err := os.Remove(c.listener.Addr().String()); err != nil && !errors.Is(err, os.ErrNotExist) {
		c.log.WithError(err).Errorf("Could not remove socket %s", c.listener.Addr().String())
	}
}

// drain processes all the responses available without waiting.
func (c *Controller) drain() {
	var changed bool
	for {
		resp, ok, err := c.recv.ReceiveTimeout(0)
		if err != nil {
			if !errors.Is(err, channel.ErrClosed) {
				c.errorf(err, "Could not receive machine response")
			}
			break
		}
		if !ok {
			break
		}

		c.process(resp)
		changed = true
	}

	if changed {
		c.publish()
	}
}

func (c *Controller) pollState() {
	if !c.snapshot.Health.OK() {
		return
	}

	if c.runner.Synced() {
		c.command(machine.GetState{})
	} else {
		c.command(machine.GetExtendedState{})
	}

	if c.testMode {
		c.command(machine.GetDigitalInputs{})
	}
}

func (c *Controller) pollSensors() {
	if !c.snapshot.Health.OK() {
		return
	}

	c.command(machine.GetSensors{})
}

func (c *Controller) process(resp machine.Response) {
	switch r := resp.(type) {
	case machine.Failure:
		c.failure(r)
		return
	case machine.Done:
		if r.Command == machine.KindRestart {
			c.info("Machine link ready")
			c.snapshot.Health = machine.Health{Enabled: true}
			c.snapshot.LastError = ""
			c.runner.Desync()
			c.bootstrap()
			return
		}
	}

	if !c.snapshot.Health.OK() {
		// The worker only answers when its link is up.
		c.snapshot.Health = machine.Health{Enabled: true}
		c.snapshot.LastError = ""
		c.bootstrap()
	}

	switch r := resp.(type) {
	case machine.Version:
		if c.snapshot.Version == nil || *c.snapshot.Version != r {
			c.info("Board firmware %s", r)
		}
		c.snapshot.Version = ToPtr(r)
	case machine.DigitalInputs:
		c.snapshot.Inputs = r
	case machine.State:
		c.state(r)
		c.runner.Update(r)
	case machine.ExtendedState:
		c.state(r.State)
		c.runner.Resync(r)
	case machine.Sensors:
		c.snapshot.Sensors = r
	case machine.Statistics:
		c.snapshot.Statistics = ToPtr(r)
		c.snapshot.StatisticsAt = c.now()
	}
}

func (c *Controller) state(s machine.State) {
	if s.Alarms != c.snapshot.Alarms && s.Alarms != 0 {
		c.warn("Alarms: %s", s.Alarms)
	}

	c.snapshot.Alarms = s.Alarms
	c.snapshot.Flags = s.Flags

	if !s.Flags.Has(machine.FlagInitialized) && c.now().Sub(c.paramsSentAt) >= parametersThrottle {
		c.info("Board not initialized, sending parameters")
		c.sendParameters()
	}
}

func (c *Controller) failure(f machine.Failure) {
	err := f.Err()
	c.errorf(err, "Machine command %s failed", f.Command)
	c.snapshot.LastError = err.Error()

	switch f.Code {
	case machine.CodePortNotFound:
		c.snapshot.Health = machine.Health{Error: true}
		c.runner.Desync()
	case machine.CodeCommunication:
		c.snapshot.Health = machine.Health{Enabled: true, Error: true}
		c.runner.Desync()
	}
}

func (c *Controller) bootstrap() {
	c.command(machine.GetVersion{})
	c.sendParameters()
}

func (c *Controller) sendParameters() {
	c.paramsSentAt = c.now()
	c.command(machine.SendParameters{Parameters: c.cfg.Parameters})
}

func (c *Controller) command(cmd machine.Command) {
	if err := c.send.Send(cmd); err != nil {
		c.errorf(err, "Could not send %s", cmd.Kind())
	}
}

func (c *Controller) handle(in intent) error {
	if in.name != intentRestart && !c.snapshot.Health.OK() {
		return ErrUnavailable
	}

	var err error
	switch in.name {
	case intentStart:
		c.testMode = false
		err = c.runner.Start()
	case intentStop:
		err = c.runner.Stop()
	case intentPause:
		err = c.runner.Pause()
	case intentRestart:
		err = c.send.Send(machine.Restart{})
	case intentStatistics:
		err = c.send.Send(machine.ReadStatistics{})
	case intentOutput:
		if c.runner.Status().State != machine.Stopped {
			return ErrBusy
		}
		c.testMode = true
		err = c.send.Send(machine.TestOutput{Channel: in.channel, Value: in.value != 0})
	case intentPWM:
		if c.runner.Status().State != machine.Stopped {
			return ErrBusy
		}
		c.testMode = true
		err = c.send.Send(machine.TestPWM{Channel: in.channel, Speed: in.value})
	case intentProgram:
		err = c.runner.Select(int(in.value))
	default:
		err = fmt.Errorf("unknown intent %q", in.name)
	}

	if err == nil {
		c.publish()
	}
	return err
}

func (c *Controller) onRunnerEvent(e RunnerEvent) {
	switch e.Name {
	case EventStep:
		c.info("Step %d of program %d", e.Step+1, e.Program)
	case EventProgramEnd:
		c.info("Program %d completed", e.Program)
	}
}

func (c *Controller) publish() {
	c.snapshot.Runner = c.runner.Status()
	c.snapshot.TestMode = c.testMode
	c.snapshot.UpdatedAt = c.now()

	payload, err := json.Marshal(c.snapshot)
	if err != nil {
		c.errorf(err, "Could not serialize snapshot") // Should never happen
		return
	}
	c.latest.Store(&payload)

	c.watchers.Range(func(_ int64, watcher chan []byte) bool {
		select {
		case watcher <- payload:
		default:
			// Slow monitor, it will get the next one.
		}
		return true
	})
}

//
// HTTP API
//

// Handler returns the HTTP API of the controller.
func (c *Controller) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /monitor", c.monitor)
	mux.HandleFunc("GET /status", c.status)
	mux.HandleFunc("POST /start", c.intent(intentStart))
	mux.HandleFunc("POST /stop", c.intent(intentStop))
	mux.HandleFunc("POST /pause", c.intent(intentPause))
	mux.HandleFunc("POST /restart", c.intent(intentRestart))
	mux.HandleFunc("POST /statistics", c.intent(intentStatistics))
	mux.HandleFunc("POST /output", c.intent(intentOutput))
	mux.HandleFunc("POST /pwm", c.intent(intentPWM))
	mux.HandleFunc("POST /program", c.intent(intentProgram))
	return mux
}

func (c *Controller) intent(name string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		in := intent{
			name:  name,
			reply: make(chan error, 1),
		}

		var err error
		switch name {
		case intentOutput:
			if in.channel, err = queryUint16(r, "channel"); err == nil {
				in.value, err = queryUint16(r, "value")
			}
		case intentPWM:
			if in.channel, err = queryUint16(r, "channel"); err == nil {
				in.value, err = queryUint16(r, "speed")
			}
		case intentProgram:
			in.value, err = queryUint16(r, "index")
		}
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}

		select {
		case c.intents <- in:
		case <-r.Context().Done():
			return
		}

		err = <-in.reply
		switch {
		case err == nil:
			w.WriteHeader(http.StatusNoContent)
		case errors.Is(err, ErrUnavailable), errors.Is(err, channel.ErrFull):
			http.Error(w, err.Error(), http.StatusServiceUnavailable)
		case errors.Is(err, ErrBusy):
			http.Error(w, err.Error(), http.StatusConflict)
		case errors.Is(err, ErrNoProgram):
			http.Error(w, err.Error(), http.StatusNotFound)
		default:
			http.Error(w, err.Error(), http.StatusInternalServerError)
		}
	}
}

func (c *Controller) status(w http.ResponseWriter, r *http.Request) {
	payload := c.latest.Load()
	if payload == nil {
		http.Error(w, "no snapshot yet", http.StatusServiceUnavailable)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.Write(*payload)
}

func (c *Controller) monitor(w http.ResponseWriter, r *http.Request) {
	c.info("Client connected")

	// Set http headers required for SSE.
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	id := genID()
	ch := make(chan []byte, 20)
	c.watchers.Store(id, ch)
	defer c.watchers.Delete(id)

	rc := http.NewResponseController(w)
	if payload := c.latest.Load(); payload != nil {
		if err := writeSSE(w, rc, *payload); err != nil {
			c.errorf(err, "Could not write monitor SSE payload")
			return
		}
	}

	for {
		select {
		case <-r.Context().Done():
			c.info("Client disconnected")
			return
		case payload := <-ch:
			if err := writeSSE(w, rc, payload); err != nil {
				c.errorf(err, "Could not write monitor SSE payload")
				return
			}
		}
	}
}

func queryUint16(r *http.Request, key string) (uint16, error) {
	v, err := strconv.ParseUint(r.URL.Query().Get(key), 10, 16)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	return uint16(v), nil
}

func (c *Controller) info(format string, args ...any) {
	if c.log != nil {
		c.log.Infof(format, args...)
	}
}

func (c *Controller) warn(format string, args ...any) {
	if c.log != nil {
		c.log.Warnf(format, args...)
	}
}

func (c *Controller) errorf(err error, format string, args ...any) {
	if c.log != nil {
		c.log.WithError(err).Errorf(format, args...)
	}
}
