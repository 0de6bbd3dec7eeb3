package dryerd

import (
	"testing"
	"time"

	"github.com/mdouchement/dryerd/machine"
	"github.com/mdouchement/dryerd/modbus"
	"github.com/mdouchement/dryerd/program"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestBoard(t *testing.T) (*DummyMachine, *modbus.Client, *clock) {
	t.Helper()

	c := &clock{t: time.Date(2026, 10, 18, 8, 0, 0, 0, time.UTC)}
	board := NewDummyMachine(1)
	board.now = c.Now
	board.last = c.Now()

	link, err := board.Open()
	require.NoError(t, err)

	return board, modbus.New(link, modbus.Config{Backoff: time.Millisecond}), c
}

func TestDummyMachine_Exceptions(t *testing.T) {
	board, client, _ := newTestBoard(t)

	var called bool
	require.NoError(t, client.ReadHoldingRegisters(180, 2, func(uint16, uint16) { called = true }))
	assert.False(t, called, "illegal data address")

	require.NoError(t, client.WriteRegister(machine.RegState, uint16(machine.Running)))
	assert.Equal(t, uint16(machine.Stopped), board.Holding(machine.RegState), "read-only")

	require.NoError(t, client.WriteRegister(machine.RegCommand, uint16(machine.CodeRun)))
	assert.Equal(t, uint16(machine.Stopped), board.Holding(machine.RegState), "not initialized")

	assert.Equal(t, uint64(3), client.Metrics.Exceptions.Load())
	assert.Zero(t, client.Metrics.Retries.Load())
}

func TestDummyMachine_Cycle(t *testing.T) {
	_, client, c := newTestBoard(t)
	d := machine.NewDispatcher(client)

	_, err := d.Dispatch(machine.SendParameters{})
	require.NoError(t, err)

	_, err = d.Dispatch(machine.SendStep{Step: program.Drying{Duration: 2, Temperature: 60}, Program: 0, Index: 0, Start: true})
	require.NoError(t, err)

	resp, err := d.Dispatch(machine.GetState{})
	require.NoError(t, err)
	s := resp.(machine.State)
	assert.Equal(t, machine.Running, s.State)
	assert.Equal(t, uint16(120), s.Remaining)
	assert.True(t, s.Flags.Has(machine.FlagHeating|machine.FlagRotating))

	c.Add(time.Minute)
	resp, err = d.Dispatch(machine.GetSensors{})
	require.NoError(t, err)
	assert.Equal(t, uint16(60), resp.(machine.Sensors).Temperature)

	c.Add(time.Minute)
	resp, err = d.Dispatch(machine.GetExtendedState{})
	require.NoError(t, err)
	assert.Equal(t, machine.ExtendedState{
		State:    machine.State{State: machine.Active, Flags: machine.FlagInitialized},
		Program:  0,
		Step:     0,
		StepType: program.TypeDrying,
	}, resp)

	_, err = d.Dispatch(machine.Stop{})
	require.NoError(t, err)

	resp, err = d.Dispatch(machine.ReadStatistics{})
	require.NoError(t, err)
	assert.Equal(t, machine.Statistics{Cycles: 1, PartialCycles: 1, WorkTime: 120, VentilationTime: 120}, resp)
}

func TestDummyMachine_Unplug(t *testing.T) {
	board, client, _ := newTestBoard(t)

	board.Unplug(true)
	_, err := board.Open()
	assert.ErrorIs(t, err, ErrUnplugged)

	err = client.WriteRegister(machine.RegCommand, uint16(machine.CodeInitialize))
	assert.ErrorIs(t, err, modbus.ErrCommunication)
	assert.ErrorIs(t, err, ErrUnplugged)
}
