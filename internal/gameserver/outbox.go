package gameserver

import (
	"errors"
	"fmt"
	"sync"
)

// ErrOutboxClosed is returned by Push after Close.
var ErrOutboxClosed = errors.New("outbox closed")

// ErrOutboxFull is returned by Push when the client is not draining its queue.
var ErrOutboxFull = errors.New("outbox full")

// outbox is a bounded queue of encoded messages for one websocket client.
// Push never blocks, so it is safe to call while a town lock is held.
type outbox struct {
	playerID string
	messages chan []byte
	mu       sync.Mutex
	closed   bool
}

// newOutbox creates an outbox for the given player.
//
// Precondition: playerID must be non-empty.
// Postcondition: Returns an outbox with an open message channel.
func newOutbox(playerID string, size int) *outbox {
	if size <= 0 {
		size = 64
	}
	return &outbox{
		playerID: playerID,
		messages: make(chan []byte, size),
	}
}

// Push enqueues data without blocking.
//
// Postcondition: data is enqueued, or ErrOutboxClosed / ErrOutboxFull is returned.
func (o *outbox) Push(data []byte) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.closed {
		return fmt.Errorf("player %s: %w", o.playerID, ErrOutboxClosed)
	}
	select {
	case o.messages <- data:
		return nil
	default:
		return fmt.Errorf("player %s: %w", o.playerID, ErrOutboxFull)
	}
}

// Messages returns the channel drained by the write pump.
// It is closed by Close after any queued messages.
func (o *outbox) Messages() <-chan []byte {
	return o.messages
}

// Close stops further pushes; already-queued messages remain readable.
func (o *outbox) Close() {
	o.mu.Lock()
	defer o.mu.Unlock()

	if !o.closed {
		o.closed = true
		close(o.messages)
	}
}

// IsClosed reports whether the outbox has been closed.
func (o *outbox) IsClosed() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.closed
}
