package ws

import (
	"sync"

	"github.com/gorilla/websocket"
)

const sendBufferSize = 16

// Conn is one live push-channel connection. The hub never writes to
// the socket directly; frames are queued on send and drained by the
// gateway's write loop, so delivery order per connection follows
// enqueue order.
type Conn struct {
	sock *websocket.Conn
	send chan []byte

	closeOnce sync.Once
	closed    chan struct{}
}

func newConn(sock *websocket.Conn) *Conn {
	return &Conn{
		sock:   sock,
		send:   make(chan []byte, sendBufferSize),
		closed: make(chan struct{}),
	}
}

// enqueue queues a frame for delivery. A closed connection is
// skipped; a connection with a full buffer drops the frame (clients
// treat events as invalidation hints, so a drop costs a re-fetch at
// worst). Reports whether the frame was accepted.
func (c *Conn) enqueue(frame []byte) bool {
	select {
	case <-c.closed:
		return false
	default:
	}

	select {
	case c.send <- frame:
		return true
	default:
		return false
	}
}

// Close marks the connection closed and closes the underlying socket,
// which unblocks the gateway's read loop. Safe to call more than once
// and from any goroutine.
func (c *Conn) Close() {
	c.closeOnce.Do(func() {
		close(c.closed)
		if c.sock != nil {
			_ = c.sock.Close()
		}
	})
}
