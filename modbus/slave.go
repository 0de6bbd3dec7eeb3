package modbus

import (
	"encoding/binary"
	"fmt"
)

// A Request is a master request decoded on the slave side.
type Request struct {
	Address  byte
	Function byte
	Index    uint16
	Quantity uint16
	Values   []uint16 // FC 6 and 16
	Bits     []bool   // FC 15
}

// ParseRequest decodes a complete RTU request frame.
func ParseRequest(frame []byte) (Request, error) {
	var r Request
	if len(frame) < 8 {
		return r, fmt.Errorf("%w: request too short (%d bytes)", ErrFrame, len(frame))
	}
	if !checkCRC(frame) {
		return r, fmt.Errorf("%w: crc mismatch", ErrFrame)
	}

	r.Address = frame[0]
	r.Function = frame[1]
	r.Index = binary.BigEndian.Uint16(frame[2:])

	switch r.Function {
	case FuncReadCoils, FuncReadDiscreteInputs, FuncReadHoldingRegisters, FuncReadInputRegisters:
		if len(frame) != 8 {
			return r, fmt.Errorf("%w: read request of %d bytes", ErrFrame, len(frame))
		}
		r.Quantity = binary.BigEndian.Uint16(frame[4:])
	case FuncWriteSingleRegister:
		if len(frame) != 8 {
			return r, fmt.Errorf("%w: write request of %d bytes", ErrFrame, len(frame))
		}
		r.Quantity = 1
		r.Values = []uint16{binary.BigEndian.Uint16(frame[4:])}
	case FuncWriteMultipleCoils, FuncWriteMultipleRegisters:
		if len(frame) < 9 {
			return r, fmt.Errorf("%w: write request of %d bytes", ErrFrame, len(frame))
		}
		r.Quantity = binary.BigEndian.Uint16(frame[4:])
		count := int(frame[6])
		if len(frame) != 9+count {
			return r, fmt.Errorf("%w: byte count %d", ErrFrame, count)
		}

		data := frame[7 : 7+count]
		if r.Function == FuncWriteMultipleRegisters {
			if count != 2*int(r.Quantity) {
				return r, fmt.Errorf("%w: byte count %d for %d registers", ErrFrame, count, r.Quantity)
			}
			r.Values = make([]uint16, r.Quantity)
			for i := range r.Values {
				r.Values[i] = binary.BigEndian.Uint16(data[2*i:])
			}
		} else {
			if count != bitBytes(int(r.Quantity)) {
				return r, fmt.Errorf("%w: byte count %d for %d coils", ErrFrame, count, r.Quantity)
			}
			r.Bits = make([]bool, r.Quantity)
			for i := range r.Bits {
				r.Bits[i] = data[i/8]&(1<<(i%8)) != 0
			}
		}
	default:
		// Unknown functions are answered with an exception by the caller.
	}

	return r, nil
}

// ReplyBits builds the response to a coil or discrete input read.
func (r Request) ReplyBits(values []bool) []byte {
	data := packBits(values)
	frame := append([]byte{r.Address, r.Function, byte(len(data))}, data...)
	return appendCRC(frame)
}

// ReplyRegisters builds the response to a holding or input register read.
func (r Request) ReplyRegisters(values []uint16) []byte {
	data := packRegisters(values)
	frame := append([]byte{r.Address, r.Function, byte(len(data))}, data...)
	return appendCRC(frame)
}

// ReplyWrite builds the echo sent back after a write.
func (r Request) ReplyWrite() []byte {
	frame := []byte{r.Address, r.Function}
	frame = binary.BigEndian.AppendUint16(frame, r.Index)
	if r.Function == FuncWriteSingleRegister {
		frame = binary.BigEndian.AppendUint16(frame, r.Values[0])
	} else {
		frame = binary.BigEndian.AppendUint16(frame, r.Quantity)
	}

	return appendCRC(frame)
}

// Exception builds an exception response.
func (r Request) Exception(code byte) []byte {
	return appendCRC([]byte{r.Address, r.Function | exceptionFlag, code})
}
