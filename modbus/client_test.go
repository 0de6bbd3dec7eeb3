package modbus

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSlave struct {
	registers map[uint16]uint16
	coils     map[uint16]bool
	corrupt   int // number of exchanges answered with a corrupted CRC
	silent    bool
	exception byte

	writes  [][]byte
	flushes int
	pending []byte
}

func newFakeSlave() *fakeSlave {
	return &fakeSlave{
		registers: map[uint16]uint16{},
		coils:     map[uint16]bool{},
	}
}

func (f *fakeSlave) Flush() error {
	f.flushes++
	f.pending = nil
	return nil
}

func (f *fakeSlave) Write(p []byte) error {
	f.writes = append(f.writes, append([]byte(nil), p...))

	req, err := ParseRequest(p)
	if err != nil {
		return err
	}

	switch {
	case f.silent:
		return nil
	case f.exception != 0:
		f.pending = req.Exception(f.exception)
	default:
		f.pending = f.reply(req)
	}

	if f.corrupt > 0 {
		f.corrupt--
		f.pending[len(f.pending)-1] ^= 0xFF
	}
	return nil
}

func (f *fakeSlave) ReadUntil(p []byte, _ time.Duration) (int, error) {
	n := copy(p, f.pending)
	f.pending = nil
	return n, nil
}

func (f *fakeSlave) reply(req Request) []byte {
	switch req.Function {
	case FuncReadCoils, FuncReadDiscreteInputs:
		bits := make([]bool, req.Quantity)
		for i := range bits {
			bits[i] = f.coils[req.Index+uint16(i)]
		}
		return req.ReplyBits(bits)
	case FuncReadHoldingRegisters, FuncReadInputRegisters:
		values := make([]uint16, req.Quantity)
		for i := range values {
			values[i] = f.registers[req.Index+uint16(i)]
		}
		return req.ReplyRegisters(values)
	case FuncWriteSingleRegister, FuncWriteMultipleRegisters:
		for i, v := range req.Values {
			f.registers[req.Index+uint16(i)] = v
		}
		return req.ReplyWrite()
	case FuncWriteMultipleCoils:
		for i, v := range req.Bits {
			f.coils[req.Index+uint16(i)] = v
		}
		return req.ReplyWrite()
	default:
		return req.Exception(ExceptionIllegalFunction)
	}
}

func newTestClient(slave *fakeSlave) (*Client, *[]time.Duration) {
	var slept []time.Duration
	c := New(slave, Config{})
	c.sleep = func(d time.Duration) {
		slept = append(slept, d)
	}
	return c, &slept
}

func TestClient_ReadHoldingRegisters(t *testing.T) {
	slave := newFakeSlave()
	slave.registers[100] = 3
	slave.registers[101] = 0x21
	slave.registers[102] = 7
	slave.registers[103] = 120

	c, _ := newTestClient(slave)

	got := map[uint16]uint16{}
	err := c.ReadHoldingRegisters(100, 4, func(index, value uint16) {
		got[index] = value
	})
	require.NoError(t, err)

	assert.Equal(t, map[uint16]uint16{100: 3, 101: 0x21, 102: 7, 103: 120}, got)
	assert.Equal(t, uint64(1), c.Metrics.Attempts.Load())
	assert.Equal(t, 1, slave.flushes)
}

func TestClient_ReadCoils(t *testing.T) {
	slave := newFakeSlave()
	slave.coils[1] = true
	slave.coils[8] = true

	c, _ := newTestClient(slave)

	var got []bool
	var indexes []uint16
	err := c.ReadCoils(0, 9, func(index uint16, value bool) {
		indexes = append(indexes, index)
		got = append(got, value)
	})
	require.NoError(t, err)

	assert.Equal(t, []uint16{0, 1, 2, 3, 4, 5, 6, 7, 8}, indexes)
	assert.Equal(t, []bool{false, true, false, false, false, false, false, false, true}, got)
}

func TestClient_SucceedsOnLastAttempt(t *testing.T) {
	slave := newFakeSlave()
	slave.registers[0] = 42
	slave.corrupt = 4

	c, slept := newTestClient(slave)

	var value uint16
	err := c.ReadHoldingRegisters(0, 1, func(_, v uint16) {
		value = v
	})
	require.NoError(t, err)

	assert.Equal(t, uint16(42), value)
	assert.Len(t, slave.writes, 5)
	assert.Equal(t, uint64(5), c.Metrics.Attempts.Load())
	assert.Equal(t, uint64(4), c.Metrics.Retries.Load())
	assert.Equal(t, []time.Duration{DefaultBackoff, DefaultBackoff, DefaultBackoff, DefaultBackoff}, *slept)
}

func TestClient_RetryBudgetExhausted(t *testing.T) {
	slave := newFakeSlave()
	slave.corrupt = 100

	c, slept := newTestClient(slave)

	called := false
	err := c.ReadHoldingRegisters(0, 1, func(_, _ uint16) {
		called = true
	})
	require.ErrorIs(t, err, ErrCommunication)
	assert.ErrorIs(t, err, ErrFrame)

	assert.False(t, called)
	assert.Len(t, slave.writes, DefaultAttempts)
	assert.Len(t, *slept, DefaultAttempts-1)
	assert.Equal(t, uint64(1), c.Metrics.Failures.Load())
}

func TestClient_Timeout(t *testing.T) {
	slave := newFakeSlave()
	slave.silent = true

	c, _ := newTestClient(slave)

	err := c.WriteRegister(3, 2)
	require.ErrorIs(t, err, ErrCommunication)
	assert.ErrorIs(t, err, ErrTimeout)
	assert.Equal(t, DefaultAttempts, slave.flushes)
}

func TestClient_ExceptionIsNotRetried(t *testing.T) {
	slave := newFakeSlave()
	slave.exception = ExceptionIllegalDataAddress

	c, _ := newTestClient(slave)

	called := false
	err := c.ReadInputRegisters(0, 13, func(_, _ uint16) {
		called = true
	})
	require.NoError(t, err)

	assert.False(t, called)
	assert.Len(t, slave.writes, 1)
	assert.Equal(t, uint64(1), c.Metrics.Exceptions.Load())
}

func TestClient_WriteRegisters(t *testing.T) {
	slave := newFakeSlave()
	c, _ := newTestClient(slave)

	err := c.WriteRegisters(10, []uint16{1, 2, 3})
	require.NoError(t, err)

	assert.Equal(t, map[uint16]uint16{10: 1, 11: 2, 12: 3}, slave.registers)
	require.Len(t, slave.writes, 1)
	assert.Equal(t, FuncWriteMultipleRegisters, slave.writes[0][1])
}

func TestClient_WriteCoils(t *testing.T) {
	slave := newFakeSlave()
	c, _ := newTestClient(slave)

	err := c.WriteCoils(0, []bool{false, true, true})
	require.NoError(t, err)

	assert.Equal(t, map[uint16]bool{0: false, 1: true, 2: true}, slave.coils)
}

func TestClient_InvalidQuantity(t *testing.T) {
	slave := newFakeSlave()
	c, _ := newTestClient(slave)

	err := c.ReadHoldingRegisters(0, 0, func(_, _ uint16) {})
	assert.ErrorIs(t, err, ErrQuantity)

	err = c.WriteRegisters(0, make([]uint16, MaxWriteRegisters+1))
	assert.ErrorIs(t, err, ErrQuantity)

	assert.Empty(t, slave.writes)
}
