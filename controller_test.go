package dryerd

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/mdouchement/dryerd/channel"
	"github.com/mdouchement/dryerd/machine"
	"github.com/mdouchement/dryerd/modbus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type clock struct {
	t time.Time
}

func (c *clock) Now() time.Time {
	return c.t
}

func (c *clock) Add(d time.Duration) {
	c.t = c.t.Add(d)
}

// bench wires a controller to a worker driving a dummy board, all stepped by hand.
type bench struct {
	clock     *clock
	board     *DummyMachine
	requests  *channel.Queue[machine.Command]
	responses *channel.Queue[machine.Response]
	worker    *machine.Worker
	c         *Controller
}

func newBench(t *testing.T) *bench {
	t.Helper()

	b := &bench{
		clock:     &clock{t: time.Date(2026, 10, 18, 8, 0, 0, 0, time.UTC)},
		board:     NewDummyMachine(1),
		requests:  channel.NewQueue[machine.Command](32, 0),
		responses: channel.NewQueue[machine.Response](32, 0),
	}
	b.board.now = b.clock.Now
	b.board.last = b.clock.Now()

	b.worker = machine.NewWorker(b.requests, b.responses, b.board.Open, modbus.Config{Backoff: time.Millisecond})

	cfg := testPrograms(t)
	cfg.Parameters = machine.Parameters{DoorInterlock: true, SafetyTemperature: 120}

	var err error
	b.c, err = New(cfg, b.requests, b.responses)
	require.NoError(t, err)
	b.c.now = b.clock.Now
	b.c.runner.now = b.clock.Now

	return b
}

// pump lets the worker process all the queued commands then the controller all the responses.
func (b *bench) pump() {
	for range 3 {
		for {
			cmd, ok, err := b.requests.ReceiveTimeout(0)
			if err != nil || !ok {
				break
			}
			b.worker.Handle(cmd)
		}
		b.c.drain()
	}
}

func (b *bench) poll() {
	b.c.pollState()
	b.pump()
}

func (b *bench) connect(t *testing.T) {
	t.Helper()

	require.NoError(t, b.requests.Send(machine.Restart{}))
	b.pump()
	require.True(t, b.c.snapshot.Health.OK())
}

func TestController_Bootstrap(t *testing.T) {
	b := newBench(t)
	b.connect(t)

	require.NotNil(t, b.c.snapshot.Version)
	assert.Equal(t, "1.b.3 (2026-10-01)", b.c.snapshot.Version.String())
	assert.True(t, machine.Flags(b.board.Holding(machine.RegFlags)).Has(machine.FlagInitialized))
	assert.Equal(t, uint16(120), b.board.Holding(machine.RegParameters+3))

	b.poll()
	assert.True(t, b.c.runner.Synced())
	assert.Equal(t, machine.Stopped, b.c.snapshot.Runner.State)
}

func TestController_RunProgram(t *testing.T) {
	b := newBench(t)
	b.connect(t)
	b.poll()

	require.NoError(t, b.c.handle(intent{name: intentStart}))
	b.pump()
	assert.Equal(t, machine.RunState(machine.Running), machine.RunState(b.board.Holding(machine.RegState)))
	assert.Equal(t, uint16(40*60), b.board.Holding(machine.RegRemaining))

	b.poll()
	status := b.c.snapshot.Runner
	assert.Equal(t, machine.Running, status.State)
	assert.False(t, status.Pending)

	b.clock.Add(40 * time.Minute)
	b.poll() // Active, the cooling step is loaded
	assert.Equal(t, uint16(1), b.board.Holding(machine.RegPositionStep))
	assert.Equal(t, machine.RunState(machine.Running), machine.RunState(b.board.Holding(machine.RegState)))

	b.poll()
	assert.Equal(t, 1, b.c.snapshot.Runner.Step)
	assert.Equal(t, machine.Running, b.c.snapshot.Runner.State)

	b.clock.Add(5 * time.Minute)
	b.poll() // Active without next step, stopped
	assert.Equal(t, machine.RunState(machine.Stopped), machine.RunState(b.board.Holding(machine.RegState)))

	b.poll()
	assert.Equal(t, machine.Stopped, b.c.snapshot.Runner.State)

	require.NoError(t, b.c.handle(intent{name: intentStatistics}))
	b.pump()
	require.NotNil(t, b.c.snapshot.Statistics)
	assert.Equal(t, uint32(1), b.c.snapshot.Statistics.Cycles)
	assert.Equal(t, uint32(2), b.c.snapshot.Statistics.PartialCycles)
}

func TestController_Autostop(t *testing.T) {
	b := newBench(t)
	b.c.cfg.Autostop.Duration = time.Minute
	b.c.runner.autostop = time.Minute
	b.connect(t)
	b.poll()

	require.NoError(t, b.c.handle(intent{name: intentStart}))
	b.pump()
	b.poll()

	b.board.SetAlarms(machine.Alarms(machine.AlarmDoorOpen))
	b.poll()
	assert.Equal(t, machine.Paused, b.c.snapshot.Runner.State)
	assert.Equal(t, machine.AlarmDoorOpen, b.c.snapshot.Runner.Alarm)

	b.clock.Add(time.Minute)
	b.poll()
	assert.Equal(t, machine.RunState(machine.Stopped), machine.RunState(b.board.Holding(machine.RegState)))
}

func TestController_CommunicationLoss(t *testing.T) {
	b := newBench(t)
	b.connect(t)
	b.poll()

	b.board.Unplug(true)
	b.poll()
	assert.Equal(t, machine.Health{Enabled: true, Error: true}, b.c.snapshot.Health)
	assert.NotEmpty(t, b.c.snapshot.LastError)
	assert.False(t, b.c.runner.Synced())

	assert.ErrorIs(t, b.c.handle(intent{name: intentStart}), ErrUnavailable)
	b.c.pollState()
	assert.Zero(t, b.requests.Len(), "no polling while unhealthy")

	require.NoError(t, b.c.handle(intent{name: intentRestart}))
	b.pump()
	assert.Equal(t, machine.Health{Error: true}, b.c.snapshot.Health, "port not found")

	b.board.Unplug(false)
	require.NoError(t, b.c.handle(intent{name: intentRestart}))
	b.pump()
	assert.True(t, b.c.snapshot.Health.OK())
	assert.Empty(t, b.c.snapshot.LastError)

	b.poll()
	assert.True(t, b.c.runner.Synced())
}

func TestController_Reinitialize(t *testing.T) {
	b := newBench(t)
	b.connect(t)
	b.poll()

	b.board.holding[machine.RegFlags] = 0 // Board reset

	b.clock.Add(time.Second)
	b.poll()
	assert.False(t, machine.Flags(b.board.Holding(machine.RegFlags)).Has(machine.FlagInitialized), "throttled")
	assert.False(t, b.c.runner.Synced())

	b.clock.Add(2 * time.Second)
	b.poll()
	assert.True(t, machine.Flags(b.board.Holding(machine.RegFlags)).Has(machine.FlagInitialized))

	b.poll()
	assert.True(t, b.c.runner.Synced())
}

func TestController_TestMode(t *testing.T) {
	b := newBench(t)
	b.connect(t)
	b.poll()

	b.board.SetInput(3, true)
	require.NoError(t, b.c.handle(intent{name: intentOutput, channel: 2, value: 1}))
	b.pump()
	assert.True(t, b.c.snapshot.TestMode)

	b.poll()
	assert.True(t, b.c.snapshot.Inputs.Input(3))

	require.NoError(t, b.c.handle(intent{name: intentPWM, channel: 0, value: 80}))
	b.pump()
	assert.Equal(t, uint16(80), b.board.Holding(machine.RegPWM))

	require.NoError(t, b.c.handle(intent{name: intentStart}))
	assert.False(t, b.c.testMode)
	b.pump()
	b.poll()
	assert.ErrorIs(t, b.c.handle(intent{name: intentOutput, channel: 2}), ErrBusy)
}

func TestController_SelectProgram(t *testing.T) {
	b := newBench(t)
	b.connect(t)

	require.NoError(t, b.c.handle(intent{name: intentProgram, value: 1}))
	assert.Equal(t, "wool", b.c.runner.Status().ProgramName)
	assert.ErrorIs(t, b.c.handle(intent{name: intentProgram, value: 5}), ErrNoProgram)
}

//
// HTTP API
//

// serveIntents processes n intents like the control loop does.
func serveIntents(c *Controller, n int) {
	go func() {
		for range n {
			in := <-c.intents
			in.reply <- c.handle(in)
		}
	}()
}

func TestController_HTTP(t *testing.T) {
	b := newBench(t)
	srv := httptest.NewServer(b.c.Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/status")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)

	resp, err = http.Post(srv.URL+"/pwm?channel=0&speed=abc", "", nil)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	serveIntents(b.c, 1)
	resp, err = http.Post(srv.URL+"/start", "", nil)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)

	b.connect(t)

	serveIntents(b.c, 1)
	resp, err = http.Post(srv.URL+"/program?index=1", "", nil)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)

	serveIntents(b.c, 1)
	resp, err = http.Post(srv.URL+"/program?index=9", "", nil)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp, err = http.Get(srv.URL + "/start")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)

	resp, err = http.Get(srv.URL + "/status")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var status map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&status))
	assert.Equal(t, map[string]any{"enabled": true, "error": false}, status["health"])
	assert.Equal(t, "wool", status["runner"].(map[string]any)["program_name"])
}

func TestController_Monitor(t *testing.T) {
	b := newBench(t)
	b.connect(t)

	srv := httptest.NewServer(b.c.Handler())
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL+"/monitor", nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	events := NewSSEReader(resp.Body)

	payload, err := events.Next()
	require.NoError(t, err)
	var snapshot map[string]any
	require.NoError(t, json.Unmarshal(payload, &snapshot))
	assert.Equal(t, "stopped", snapshot["runner"].(map[string]any)["state"])

	// Wait for the monitor registration before publishing.
	require.Eventually(t, func() bool {
		return b.c.watchers.Size() == 1
	}, time.Second, 10*time.Millisecond)

	b.c.testMode = true
	b.c.publish()

	payload, err = events.Next()
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(payload, &snapshot))
	assert.Equal(t, true, snapshot["test_mode"])

	cancel()
	_, err = io.ReadAll(resp.Body)
	assert.Error(t, err)
	require.Eventually(t, func() bool {
		return b.c.watchers.Size() == 0
	}, time.Second, 10*time.Millisecond)
}

func TestSnapshot_JSON(t *testing.T) {
	b := newBench(t)
	b.connect(t)
	b.poll()

	payload, err := json.Marshal(b.c.snapshot)
	require.NoError(t, err)

	var snapshot Snapshot
	require.NoError(t, json.Unmarshal(payload, &snapshot))
	assert.Equal(t, b.c.snapshot.Runner, snapshot.Runner)
	assert.Equal(t, b.c.snapshot.Version, snapshot.Version)
	assert.Equal(t, b.c.snapshot.Sensors, snapshot.Sensors)
	assert.True(t, snapshot.Health.OK())
}
