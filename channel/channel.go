// Package channel provides the bounded FIFO queues used between the control
// goroutine and the machine worker, either in-process or over a pair of unix
// datagram sockets carrying fixed-size records.
package channel

import (
	"errors"
	"sync"
	"time"
)

var (
	ErrFull       = errors.New("channel: queue is full")
	ErrClosed     = errors.New("channel: closed")
	ErrRecordSize = errors.New("channel: record size mismatch")
)

type Sender[T any] interface {
	// Send enqueues v. It never blocks longer than the configured send timeout
	// and returns ErrFull instead of dropping v.
	Send(v T) error
}

type Receiver[T any] interface {
	// Receive blocks until a value is available or the channel is closed.
	Receive() (T, error)
	// ReceiveTimeout waits at most d for a value. The boolean is false on timeout.
	// A zero d polls without blocking.
	ReceiveTimeout(d time.Duration) (T, bool, error)
}

// A Queue is an in-process bounded FIFO.
type Queue[T any] struct {
	items       chan T
	done        chan struct{}
	once        sync.Once
	sendTimeout time.Duration
}

func NewQueue[T any](depth int, sendTimeout time.Duration) *Queue[T] {
	return &Queue[T]{
		items:       make(chan T, max(depth, 1)),
		done:        make(chan struct{}),
		sendTimeout: sendTimeout,
	}
}

func (q *Queue[T]) Send(v T) error {
	select {
	case <-q.done:
		return ErrClosed
	default:
	}

	if q.sendTimeout <= 0 {
		select {
		case q.items <- v:
			return nil
		default:
			return ErrFull
		}
	}

	timer := time.NewTimer(q.sendTimeout)
	defer timer.Stop()

	select {
	case q.items <- v:
		return nil
	case <-q.done:
		return ErrClosed
	case <-timer.C:
		return ErrFull
	}
}

func (q *Queue[T]) Receive() (T, error) {
	if v, ok := q.poll(); ok {
		return v, nil
	}

	select {
	case v := <-q.items:
		return v, nil
	case <-q.done:
		var zero T
		return zero, ErrClosed
	}
}

func (q *Queue[T]) ReceiveTimeout(d time.Duration) (T, bool, error) {
	var zero T

	if v, ok := q.poll(); ok {
		return v, true, nil
	}

	select {
	case <-q.done:
		return zero, false, ErrClosed
	default:
	}

	if d <= 0 {
		return zero, false, nil
	}

	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case v := <-q.items:
		return v, true, nil
	case <-q.done:
		return zero, false, ErrClosed
	case <-timer.C:
		return zero, false, nil
	}
}

// Len returns the number of queued values.
func (q *Queue[T]) Len() int {
	return len(q.items)
}

// Close wakes up blocked receivers with ErrClosed. Values still queued are dropped.
func (q *Queue[T]) Close() error {
	q.once.Do(func() {
		close(q.done)
	})
	return nil
}

func (q *Queue[T]) poll() (T, bool) {
	select {
	case <-q.done:
		var zero T
		return zero, false
	default:
	}

	select {
	case v := <-q.items:
		return v, true
	default:
		var zero T
		return zero, false
	}
}
