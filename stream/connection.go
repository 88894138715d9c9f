package stream

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/SK-Rookies-Final-Project/Backend/errors"
	"github.com/SK-Rookies-Final-Project/Backend/types"
)

// Connection is one client's open push channel for one category. The
// registry owns creation and removal; a transport handler drains Events
// until Done fires.
type Connection struct {
	ID       string
	Username string
	Category types.Category

	events    chan []byte
	done      chan struct{}
	closed    atomic.Bool
	closeOnce sync.Once
}

func newConnection(username string, category types.Category, bufferSize int) *Connection {
	if bufferSize < 1 {
		bufferSize = 1
	}
	return &Connection{
		ID:       uuid.NewString(),
		Username: username,
		Category: category,
		events:   make(chan []byte, bufferSize),
		done:     make(chan struct{}),
	}
}

// Events returns the ordered push channel drained by the transport handler
func (c *Connection) Events() <-chan []byte {
	return c.events
}

// Done fires when the connection is closed, from either side
func (c *Connection) Done() <-chan struct{} {
	return c.done
}

// Close marks the connection dead and releases any blocked pusher.
// Idempotent; safe from any goroutine.
func (c *Connection) Close() {
	c.closeOnce.Do(func() {
		c.closed.Store(true)
		close(c.done)
	})
}

// Closed reports whether the connection has been closed
func (c *Connection) Closed() bool {
	return c.closed.Load()
}

// push enqueues one message with a bounded wait. A full buffer past the
// deadline or a closed connection reports the connection dead; the caller
// removes it.
func (c *Connection) push(msg []byte, timeout time.Duration) error {
	if c.closed.Load() {
		return errors.ErrConnectionClosed
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case c.events <- msg:
		return nil
	case <-c.done:
		return errors.ErrConnectionClosed
	case <-timer.C:
		return errors.ErrConnectionTimeout
	}
}
