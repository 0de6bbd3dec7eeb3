package modbus

import (
	"encoding/binary"
	"fmt"
)

// request is one master request. data holds the already packed values of write functions.
type request struct {
	address  byte
	function byte
	index    uint16
	quantity uint16
	data     []byte
}

func (r request) String() string {
	return fmt.Sprintf("fc=0x%02X index=%d quantity=%d", r.function, r.index, r.quantity)
}

// frame builds the RTU ADU: address, function, index, quantity/value, [byte count, data], CRC.
func (r request) frame() []byte {
	frame := make([]byte, 0, 9+len(r.data))
	frame = append(frame, r.address, r.function)
	frame = binary.BigEndian.AppendUint16(frame, r.index)

	switch r.function {
	case FuncWriteSingleRegister:
		frame = append(frame, r.data...)
	case FuncWriteMultipleCoils, FuncWriteMultipleRegisters:
		frame = binary.BigEndian.AppendUint16(frame, r.quantity)
		frame = append(frame, byte(len(r.data)))
		frame = append(frame, r.data...)
	default:
		frame = binary.BigEndian.AppendUint16(frame, r.quantity)
	}

	return appendCRC(frame)
}

// responseLength is the size of a successful response to r.
func (r request) responseLength() int {
	switch r.function {
	case FuncReadCoils, FuncReadDiscreteInputs:
		return 5 + bitBytes(int(r.quantity))
	case FuncReadHoldingRegisters, FuncReadInputRegisters:
		return 5 + 2*int(r.quantity)
	default:
		return writeReplySize
	}
}

// parse validates a response against r and returns its data part
// (packed bits or registers for reads, nil for writes).
func (r request) parse(resp []byte) ([]byte, error) {
	if len(resp) == 0 {
		return nil, ErrTimeout
	}

	if len(resp) >= exceptionSize && resp[1] == r.function|exceptionFlag {
		resp = resp[:exceptionSize]
		if resp[0] != r.address || !checkCRC(resp) {
			return nil, fmt.Errorf("%w: corrupted exception response", ErrFrame)
		}

		return nil, &ExceptionError{Function: r.function, Code: resp[2]}
	}

	if want := r.responseLength(); len(resp) != want {
		return nil, fmt.Errorf("%w: got %d bytes, want %d", ErrFrame, len(resp), want)
	}
	if !checkCRC(resp) {
		return nil, fmt.Errorf("%w: crc mismatch", ErrFrame)
	}
	if resp[0] != r.address {
		return nil, fmt.Errorf("%w: unexpected slave address %d", ErrFrame, resp[0])
	}
	if resp[1] != r.function {
		return nil, fmt.Errorf("%w: unexpected function 0x%02X", ErrFrame, resp[1])
	}

	switch r.function {
	case FuncReadCoils, FuncReadDiscreteInputs, FuncReadHoldingRegisters, FuncReadInputRegisters:
		count := int(resp[2])
		if count != len(resp)-5 {
			return nil, fmt.Errorf("%w: byte count %d", ErrFrame, count)
		}

		return resp[3 : 3+count], nil
	case FuncWriteSingleRegister:
		if binary.BigEndian.Uint16(resp[2:]) != r.index || resp[4] != r.data[0] || resp[5] != r.data[1] {
			return nil, fmt.Errorf("%w: write echo mismatch", ErrFrame)
		}
	default:
		if binary.BigEndian.Uint16(resp[2:]) != r.index || binary.BigEndian.Uint16(resp[4:]) != r.quantity {
			return nil, fmt.Errorf("%w: write echo mismatch", ErrFrame)
		}
	}

	return nil, nil
}

func bitBytes(n int) int {
	return (n + 7) / 8
}

func packBits(values []bool) []byte {
	data := make([]byte, bitBytes(len(values)))
	for i, v := range values {
		if v {
			data[i/8] |= 1 << (i % 8)
		}
	}

	return data
}

func packRegisters(values []uint16) []byte {
	data := make([]byte, 0, 2*len(values))
	for _, v := range values {
		data = binary.BigEndian.AppendUint16(data, v)
	}

	return data
}
