package modbus

import "time"

// Function codes
const (
	FuncReadCoils              byte = 0x01
	FuncReadDiscreteInputs     byte = 0x02
	FuncReadHoldingRegisters   byte = 0x03
	FuncReadInputRegisters     byte = 0x04
	FuncWriteSingleRegister    byte = 0x06
	FuncWriteMultipleCoils     byte = 0x0F
	FuncWriteMultipleRegisters byte = 0x10
)

// Exception codes
const (
	ExceptionIllegalFunction    byte = 0x01
	ExceptionIllegalDataAddress byte = 0x02
	ExceptionIllegalDataValue   byte = 0x03
	ExceptionSlaveDeviceFailure byte = 0x04
	ExceptionAcknowledge        byte = 0x05
	ExceptionSlaveDeviceBusy    byte = 0x06
)

const (
	MaxReadBits       = 2000
	MaxReadRegisters  = 125
	MaxWriteCoils     = 1968
	MaxWriteRegisters = 123

	exceptionFlag  = 0x80
	exceptionSize  = 5
	writeReplySize = 8
	maxFrameSize   = 256
)

const (
	DefaultAddress  = 1
	DefaultTimeout  = 100 * time.Millisecond
	DefaultBackoff  = 30 * time.Millisecond
	DefaultAttempts = 5
)
