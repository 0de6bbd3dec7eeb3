package port

import (
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/mdouchement/logger"
	"go.bug.st/serial"
	"go.bug.st/serial/enumerator"
)

const DefaultBaudRate = 19200

var ErrPortNotFound = errors.New("serial port not found/plugged")

var (
	openSerial = serial.Open
	listPorts  = enumerator.GetDetailedPortsList
)

// Config describes where to look for the machine board.
// When Candidates is empty, all the ports listed by the system are tried,
// optionally filtered by USB VID/PID.
type Config struct {
	Candidates []string
	BaudRate   int
	VID        string
	PID        string
}

// A Port is an opened serial device. It is not safe for concurrent use.
type Port struct {
	pname  string
	serial serial.Port
	log    logger.Logger
}

// Discover returns the first candidate that opens successfully.
func Discover(cfg Config, log logger.Logger) (*Port, error) {
	candidates := cfg.Candidates
	if len(candidates) == 0 {
		ports, err := List(cfg.VID, cfg.PID)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrPortNotFound, err)
		}

		for _, p := range ports {
			candidates = append(candidates, p.Name)
		}
	}

	for _, name := range candidates {
		p, err := Open(name, cfg.BaudRate)
		if err != nil {
			if log != nil {
				log.WithError(err).Debugf("Could not open %s", name)
			}
			continue
		}

		p.SetLogger(log)
		if log != nil {
			log.Infof("Found machine board on %s", name)
		}
		return p, nil
	}

	return nil, fmt.Errorf("%w: tried [%s]", ErrPortNotFound, strings.Join(candidates, ", "))
}

// List returns the ports known by the system. Empty vid and pid match any port.
func List(vid, pid string) ([]*enumerator.PortDetails, error) {
	ports, err := listPorts()
	if err != nil {
		return nil, err
	}

	var matches []*enumerator.PortDetails
	for _, p := range ports {
		if vid != "" && !strings.EqualFold(p.VID, vid) {
			continue
		}
		if pid != "" && !strings.EqualFold(p.PID, pid) {
			continue
		}

		matches = append(matches, p)
	}

	return matches, nil
}

func Open(name string, baudrate int) (*Port, error) {
	if baudrate <= 0 {
		baudrate = DefaultBaudRate
	}

	p := &Port{
		pname: name,
	}

	var err error
	p.serial, err = openSerial(name, &serial.Mode{
		BaudRate: baudrate,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	})
	if err != nil {
		return nil, err
	}

	if err = p.serial.ResetInputBuffer(); err != nil {
		p.serial.Close()
		return nil, err
	}

	if err = p.serial.ResetOutputBuffer(); err != nil {
		p.serial.Close()
		return nil, err
	}

	return p, nil
}

func (p *Port) SetLogger(l logger.Logger) {
	p.log = l
}

func (p *Port) Name() string {
	return p.pname
}

func (p *Port) Close() error {
	if err := p.serial.ResetInputBuffer(); err != nil && p.log != nil {
		p.log.WithError(err).Debug("Could not reset input buffer on close")
	}

	return p.serial.Close()
}

// Flush drops any stale input.
func (p *Port) Flush() error {
	return p.serial.ResetInputBuffer()
}

// Write writes the whole frame or fails.
func (p *Port) Write(b []byte) error {
	n, err := p.serial.Write(b)
	if err != nil {
		return err
	}
	if n != len(b) {
		return fmt.Errorf("%w: %d of %d", io.ErrShortWrite, n, len(b))
	}

	return nil
}

// ReadUntil accumulates bytes into b until it is full or the timeout elapses.
// A short count is not an error, the caller decides whether the frame is complete.
func (p *Port) ReadUntil(b []byte, timeout time.Duration) (int, error) {
	deadline := time.Now().Add(timeout)

	var n int
	for n < len(b) {
		remaining := time.Until(deadline)
		if remaining <= 0 {
			break
		}

		if err := p.serial.SetReadTimeout(remaining); err != nil {
			return n, err
		}

		m, err := p.serial.Read(b[n:])
		if err != nil {
			return n, err
		}
		if m == 0 {
			break // Read timeout
		}

		n += m
	}

	return n, nil
}
