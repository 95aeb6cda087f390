package registry

import (
	"errors"
	"sync"
)

var (
	ErrOutboxClosed = errors.New("outbox closed")
	ErrOutboxFull   = errors.New("outbox full")
)

// Outbox is the sending end of one connection's write loop. Buffers are
// delivered in the order they were sent.
//
// The channel itself is never closed: Close only signals done, so a Send
// racing with Close returns ErrOutboxClosed instead of panicking.
type Outbox struct {
	ch        chan []byte
	done      chan struct{}
	closeOnce sync.Once
}

func NewOutbox(size int) *Outbox {
	return &Outbox{
		ch:   make(chan []byte, size),
		done: make(chan struct{}),
	}
}

// Send enqueues buf without blocking. Receivers must treat buf as read-only,
// the same buffer is handed to every peer.
func (o *Outbox) Send(buf []byte) error {
	select {
	case <-o.done:
		return ErrOutboxClosed
	default:
	}

	select {
	case o.ch <- buf:
		return nil
	case <-o.done:
		return ErrOutboxClosed
	default:
		return ErrOutboxFull
	}
}

// C is drained by the connection's write loop.
func (o *Outbox) C() <-chan []byte {
	return o.ch
}

// Done is closed once the outbox is closed.
func (o *Outbox) Done() <-chan struct{} {
	return o.done
}

func (o *Outbox) Close() {
	o.closeOnce.Do(func() {
		close(o.done)
	})
}

func (o *Outbox) Closed() bool {
	select {
	case <-o.done:
		return true
	default:
		return false
	}
}

// Len returns the number of buffers waiting to be written.
func (o *Outbox) Len() int {
	return len(o.ch)
}
