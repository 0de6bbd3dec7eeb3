package channel

import (
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// A Codec maps values to fixed-size records.
type Codec[T any] interface {
	Size() int
	Encode(v T, buf []byte) error
	Decode(buf []byte) (T, error)
}

// A Listener is the receiving end of a datagram channel, bound to a well-known path.
type Listener[T any] struct {
	path  string
	conn  *net.UnixConn
	codec Codec[T]
	buf   []byte
}

func Listen[T any](path string, codec Codec[T]) (*Listener[T], error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("listen: %w", err)
	}

	if _, err := os.Stat(path); err == nil {
		// Left over by a previous process.
		os.Remove(path)
	}

	conn, err := net.ListenUnixgram("unixgram", &net.UnixAddr{Name: path, Net: "unixgram"})
	if err != nil {
		return nil, fmt.Errorf("listen: %w", err)
	}

	return &Listener[T]{
		path:  path,
		conn:  conn,
		codec: codec,
		buf:   make([]byte, codec.Size()+1), // One more byte to detect oversized records
	}, nil
}

func (l *Listener[T]) Path() string {
	return l.path
}

func (l *Listener[T]) Receive() (T, error) {
	if err := l.conn.SetReadDeadline(time.Time{}); err != nil {
		var zero T
		return zero, mapClosed(err)
	}

	v, _, err := l.read()
	return v, err
}

func (l *Listener[T]) ReceiveTimeout(d time.Duration) (T, bool, error) {
	// An already expired deadline fails without reading pending records.
	d = max(d, time.Millisecond)

	if err := l.conn.SetReadDeadline(time.Now().Add(d)); err != nil {
		var zero T
		return zero, false, mapClosed(err)
	}

	return l.read()
}

func (l *Listener[T]) Close() error {
	err := l.conn.Close()
	if rerr := os.Remove(l.path); rerr != nil && !errors.Is(rerr, os.ErrNotExist) && err == nil {
		err = rerr
	}

	return err
}

func (l *Listener[T]) read() (T, bool, error) {
	var zero T

	n, err := l.conn.Read(l.buf)
	switch {
	case errors.Is(err, os.ErrDeadlineExceeded):
		return zero, false, nil
	case errors.Is(err, net.ErrClosed):
		return zero, false, ErrClosed
	case err != nil:
		return zero, false, err
	}

	if n != l.codec.Size() {
		return zero, false, fmt.Errorf("%w: got %d bytes, want %d", ErrRecordSize, n, l.codec.Size())
	}

	v, err := l.codec.Decode(l.buf[:n])
	if err != nil {
		return zero, false, err
	}

	return v, true, nil
}

// A Dialer is the sending end of a datagram channel. The socket is connected lazily
// so the peer may start after the dialer.
type Dialer[T any] struct {
	sync    sync.Mutex
	path    string
	codec   Codec[T]
	timeout time.Duration
	conn    *net.UnixConn
	buf     []byte
	closed  bool
}

func Dial[T any](path string, codec Codec[T], timeout time.Duration) *Dialer[T] {
	return &Dialer[T]{
		path:    path,
		codec:   codec,
		timeout: timeout,
		buf:     make([]byte, codec.Size()),
	}
}

func (d *Dialer[T]) Send(v T) error {
	d.sync.Lock()
	defer d.sync.Unlock()

	if d.closed {
		return ErrClosed
	}

	clear(d.buf)
	if err := d.codec.Encode(v, d.buf); err != nil {
		return err
	}

	if d.conn == nil {
		conn, err := net.DialUnix("unixgram", nil, &net.UnixAddr{Name: d.path, Net: "unixgram"})
		if err != nil {
			return fmt.Errorf("dial %s: %w", d.path, err)
		}
		d.conn = conn
	}

	deadline := time.Time{}
	if d.timeout > 0 {
		deadline = time.Now().Add(d.timeout)
	}
	if err := d.conn.SetWriteDeadline(deadline); err != nil {
		return err
	}

	_, err := d.conn.Write(d.buf)
	switch {
	case errors.Is(err, os.ErrDeadlineExceeded):
		return ErrFull
	case err != nil:
		// The peer may have been restarted, reconnect on next send.
		d.conn.Close()
		d.conn = nil
		return fmt.Errorf("send %s: %w", d.path, err)
	}

	return nil
}

func (d *Dialer[T]) Close() error {
	d.sync.Lock()
	defer d.sync.Unlock()

	d.closed = true
	if d.conn == nil {
		return nil
	}

	err := d.conn.Close()
	d.conn = nil
	return err
}

// mapClosed maps the errors of a closed socket to ErrClosed.
func mapClosed(err error) error {
	if errors.Is(err, net.ErrClosed) {
		return ErrClosed
	}
	return err
}
