package modbus

import (
	"errors"
	"fmt"
)

var (
	// ErrTimeout is returned when no byte came back before the per-attempt deadline.
	ErrTimeout = errors.New("modbus: response timeout")
	// ErrFrame is returned when a response does not match its request (length, CRC, echo).
	ErrFrame = errors.New("modbus: invalid frame")
	// ErrCommunication is returned when the retry budget is exhausted.
	ErrCommunication = errors.New("modbus: communication error")
	// ErrQuantity is returned before any I/O when a request asks for too many or zero values.
	ErrQuantity = errors.New("modbus: invalid quantity")
)

// An ExceptionError is an exception response sent back by the slave.
type ExceptionError struct {
	Function byte
	Code     byte
}

func (e *ExceptionError) Error() string {
	return fmt.Sprintf("modbus: exception %s (0x%02X) on function 0x%02X", exceptionName(e.Code), e.Code, e.Function)
}

func exceptionName(code byte) string {
	switch code {
	case ExceptionIllegalFunction:
		return "illegal function"
	case ExceptionIllegalDataAddress:
		return "illegal data address"
	case ExceptionIllegalDataValue:
		return "illegal data value"
	case ExceptionSlaveDeviceFailure:
		return "slave device failure"
	case ExceptionAcknowledge:
		return "acknowledge"
	case ExceptionSlaveDeviceBusy:
		return "slave device busy"
	default:
		return "unknown"
	}
}
