package modbus

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseRequest_WriteMultipleRegisters(t *testing.T) {
	frame := request{
		address:  1,
		function: FuncWriteMultipleRegisters,
		index:    10,
		quantity: 3,
		data:     packRegisters([]uint16{7, 8, 9}),
	}.frame()

	r, err := ParseRequest(frame)
	require.NoError(t, err)
	assert.Equal(t, byte(1), r.Address)
	assert.Equal(t, uint16(10), r.Index)
	assert.Equal(t, uint16(3), r.Quantity)
	assert.Equal(t, []uint16{7, 8, 9}, r.Values)
}

func TestParseRequest_WriteMultipleCoils(t *testing.T) {
	bits := []bool{true, false, false, true, false, false, false, false, true}
	frame := request{
		address:  1,
		function: FuncWriteMultipleCoils,
		quantity: uint16(len(bits)),
		data:     packBits(bits),
	}.frame()

	r, err := ParseRequest(frame)
	require.NoError(t, err)
	assert.Equal(t, bits, r.Bits)
}

func TestParseRequest_Invalid(t *testing.T) {
	frame := request{address: 1, function: FuncReadInputRegisters, quantity: 13}.frame()

	_, err := ParseRequest(frame[:5])
	assert.ErrorIs(t, err, ErrFrame)

	frame[4] ^= 0xFF
	_, err = ParseRequest(frame)
	assert.ErrorIs(t, err, ErrFrame)
}
