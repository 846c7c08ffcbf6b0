package queue

import (
	"context"
	"errors"
	"sync"

	"github.com/gammazero/deque"
)

// ErrClosed is returned when sending to a closed mailbox, or receiving from a
// closed mailbox that has been fully drained.
var ErrClosed = errors.New("mailbox closed")

// Mailbox is an unbounded FIFO queue. Send never blocks. Any number of
// goroutines may send or receive.
type Mailbox[T any] struct {
	mu     sync.Mutex
	buf    deque.Deque[T]
	ready  chan struct{}
	closed bool
}

// New returns an empty open mailbox.
func New[T any]() *Mailbox[T] {
	return &Mailbox[T]{ready: make(chan struct{}, 1)}
}

// Send appends v to the queue.
func (m *Mailbox[T]) Send(v T) error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return ErrClosed
	}
	m.buf.PushBack(v)
	m.mu.Unlock()

	m.signal()
	return nil
}

// Receive blocks until a value is available, the mailbox is closed and empty,
// or ctx is done. Values queued before Close are still delivered.
func (m *Mailbox[T]) Receive(ctx context.Context) (T, error) {
	var zero T
	for {
		m.mu.Lock()
		if m.buf.Len() > 0 {
			v := m.buf.PopFront()
			more := m.buf.Len() > 0
			m.mu.Unlock()
			if more {
				m.signal()
			}
			return v, nil
		}
		if m.closed {
			m.mu.Unlock()
			// wake the next waiting receiver
			m.signal()
			return zero, ErrClosed
		}
		m.mu.Unlock()

		select {
		case <-m.ready:
		case <-ctx.Done():
			return zero, ctx.Err()
		}
	}
}

// Close stops accepting new values. It is safe to call more than once.
func (m *Mailbox[T]) Close() {
	m.mu.Lock()
	m.closed = true
	m.mu.Unlock()

	m.signal()
}

// Closed reports whether Close has been called.
func (m *Mailbox[T]) Closed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closed
}

// Len returns the number of queued values.
func (m *Mailbox[T]) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.buf.Len()
}

func (m *Mailbox[T]) signal() {
	select {
	case m.ready <- struct{}{}:
	default:
	}
}
