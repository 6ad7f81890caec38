package handler

import (
	"errors"
	"sync"
)

var (
	ErrSendQueueFull = errors.New("send queue full")
	ErrConnClosed    = errors.New("connection closed")
)

// wsConn is the hub's handle on a websocket. Send only enqueues; the write
// pump owns the socket. Closing the queue makes the write pump flush what is
// left, send a close frame and hang up.
type wsConn struct {
	mu     sync.Mutex
	closed bool
	send   chan []byte
}

func newWSConn(queueSize int) *wsConn {
	return &wsConn{send: make(chan []byte, queueSize)}
}

// Send enqueues one frame without blocking
func (c *wsConn) Send(data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return ErrConnClosed
	}
	select {
	case c.send <- data:
		return nil
	default:
		return ErrSendQueueFull
	}
}

// Close stops accepting frames. It is safe to call more than once.
func (c *wsConn) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return
	}
	c.closed = true
	close(c.send)
}
