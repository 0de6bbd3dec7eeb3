package modbus

import (
	"encoding/binary"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/mdouchement/logger"
)

// A Transport moves raw bytes to and from the slave.
type Transport interface {
	// Flush drops any stale input.
	Flush() error
	// Write writes the whole frame or fails.
	Write(p []byte) error
	// ReadUntil fills p until it is full or timeout elapses and returns the number of bytes read.
	ReadUntil(p []byte, timeout time.Duration) (int, error)
}

type (
	// RegisterFunc is called once per decoded register.
	RegisterFunc func(index, value uint16)
	// BitFunc is called once per decoded coil or discrete input.
	BitFunc func(index uint16, value bool)
)

// Config holds the protocol settings of a Client.
type Config struct {
	Address  byte
	Timeout  time.Duration
	Backoff  time.Duration
	Attempts int
}

// Metrics are counters updated by the Client.
type Metrics struct {
	Attempts   atomic.Uint64
	Retries    atomic.Uint64
	Failures   atomic.Uint64
	Exceptions atomic.Uint64
}

// A Client is a Modbus RTU master. It is not safe for concurrent use,
// it must be owned by a single goroutine.
type Client struct {
	Metrics Metrics

	transport Transport
	cfg       Config
	log       logger.Logger
	rbuf      []byte
	sleep     func(time.Duration)
}

func New(t Transport, cfg Config) *Client {
	if cfg.Address == 0 {
		cfg.Address = DefaultAddress
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.Backoff <= 0 {
		cfg.Backoff = DefaultBackoff
	}
	if cfg.Attempts <= 0 {
		cfg.Attempts = DefaultAttempts
	}

	return &Client{
		transport: t,
		cfg:       cfg,
		rbuf:      make([]byte, maxFrameSize),
		sleep:     time.Sleep,
	}
}

func (c *Client) SetLogger(l logger.Logger) {
	c.log = l
}

// Reset binds the client to a new transport.
func (c *Client) Reset(t Transport) {
	c.transport = t
}

func (c *Client) ReadCoils(index, quantity uint16, fn BitFunc) error {
	return c.readBits(FuncReadCoils, index, quantity, fn)
}

func (c *Client) ReadDiscreteInputs(index, quantity uint16, fn BitFunc) error {
	return c.readBits(FuncReadDiscreteInputs, index, quantity, fn)
}

func (c *Client) ReadHoldingRegisters(index, quantity uint16, fn RegisterFunc) error {
	return c.readRegisters(FuncReadHoldingRegisters, index, quantity, fn)
}

func (c *Client) ReadInputRegisters(index, quantity uint16, fn RegisterFunc) error {
	return c.readRegisters(FuncReadInputRegisters, index, quantity, fn)
}

func (c *Client) WriteRegister(index, value uint16) error {
	_, err := c.do(request{
		function: FuncWriteSingleRegister,
		index:    index,
		quantity: 1,
		data:     packRegisters([]uint16{value}),
	})
	return err
}

func (c *Client) WriteRegisters(index uint16, values []uint16) error {
	if len(values) == 0 || len(values) > MaxWriteRegisters {
		return fmt.Errorf("%w: %d registers", ErrQuantity, len(values))
	}

	_, err := c.do(request{
		function: FuncWriteMultipleRegisters,
		index:    index,
		quantity: uint16(len(values)),
		data:     packRegisters(values),
	})
	return err
}

func (c *Client) WriteCoils(index uint16, values []bool) error {
	if len(values) == 0 || len(values) > MaxWriteCoils {
		return fmt.Errorf("%w: %d coils", ErrQuantity, len(values))
	}

	_, err := c.do(request{
		function: FuncWriteMultipleCoils,
		index:    index,
		quantity: uint16(len(values)),
		data:     packBits(values),
	})
	return err
}

func (c *Client) readBits(function byte, index, quantity uint16, fn BitFunc) error {
	if quantity == 0 || quantity > MaxReadBits {
		return fmt.Errorf("%w: %d bits", ErrQuantity, quantity)
	}

	data, err := c.do(request{function: function, index: index, quantity: quantity})
	if err != nil || data == nil {
		return err
	}

	for i := range quantity {
		fn(index+i, data[i/8]&(1<<(i%8)) != 0)
	}
	return nil
}

func (c *Client) readRegisters(function byte, index, quantity uint16, fn RegisterFunc) error {
	if quantity == 0 || quantity > MaxReadRegisters {
		return fmt.Errorf("%w: %d registers", ErrQuantity, quantity)
	}

	data, err := c.do(request{function: function, index: index, quantity: quantity})
	if err != nil || data == nil {
		return err
	}

	for i := range quantity {
		fn(index+i, binary.BigEndian.Uint16(data[2*i:]))
	}
	return nil
}

// do runs the request until a valid response is received or the attempts are exhausted.
// A nil data with a nil error means the slave answered with an exception.
func (c *Client) do(r request) ([]byte, error) {
	r.address = c.cfg.Address
	frame := r.frame()

	var err error
	for attempt := 1; attempt <= c.cfg.Attempts; attempt++ {
		if attempt > 1 {
			c.Metrics.Retries.Add(1)
			c.sleep(c.cfg.Backoff)
		}
		c.Metrics.Attempts.Add(1)

		var data []byte
		data, err = c.exchange(r, frame)
		if err == nil {
			return data, nil
		}

		var exception *ExceptionError
		if errors.As(err, &exception) {
			// Some exceptions are advisory on this board, they are not retried.
			c.Metrics.Exceptions.Add(1)
			if c.log != nil {
				c.log.WithError(err).Warnf("Slave exception on %s", r)
			}
			return nil, nil
		}

		if c.log != nil {
			c.log.WithError(err).Debugf("Attempt %d/%d failed on %s", attempt, c.cfg.Attempts, r)
		}
	}

	c.Metrics.Failures.Add(1)
	return nil, fmt.Errorf("%w: %s after %d attempts: %w", ErrCommunication, r, c.cfg.Attempts, err)
}

func (c *Client) exchange(r request, frame []byte) ([]byte, error) {
	if err := c.transport.Flush(); err != nil {
		return nil, fmt.Errorf("flush: %w", err)
	}

	if err := c.transport.Write(frame); err != nil {
		return nil, fmt.Errorf("write: %w", err)
	}

	n, err := c.transport.ReadUntil(c.rbuf[:r.responseLength()], c.cfg.Timeout)
	if err != nil {
		return nil, fmt.Errorf("read: %w", err)
	}

	return r.parse(c.rbuf[:n])
}
