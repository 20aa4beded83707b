// Package ws implements the duplex connection protocol: the gorilla/websocket
// connection wrapper with a single-writer pump, the per-connection inbound
// rate limiter, and the HTTP handler that runs each connection's lifecycle.
package ws

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

const (
	// writeTimeout bounds both queueing into the write channel and the
	// underlying network write.
	writeTimeout = 5 * time.Second
	// closeGrace is how long a close frame write may take before the
	// transport is torn down regardless.
	closeGrace = time.Second
)

// Connection wraps a WebSocket connection with a serialized writer.
// All writes go through a single goroutine so concurrent broadcast fanout
// and snapshot sends can never interleave partial frames.
type Connection struct {
	id        string
	conn      *websocket.Conn
	writeCh   chan []byte
	ctx       context.Context
	cancel    context.CancelFunc
	closeOnce sync.Once
}

// NewConnection wraps an upgraded WebSocket connection and starts its
// writer goroutine. bufferSize is the number of frames that may queue per
// connection before senders start timing out.
func NewConnection(conn *websocket.Conn, bufferSize int) *Connection {
	if bufferSize <= 0 {
		bufferSize = 100
	}
	ctx, cancel := context.WithCancel(context.Background())
	c := &Connection{
		id:      uuid.New().String(),
		conn:    conn,
		writeCh: make(chan []byte, bufferSize),
		ctx:     ctx,
		cancel:  cancel,
	}

	go c.writeLoop()

	return c
}

// ID returns the unique handle for this connection instance.
func (c *Connection) ID() string {
	return c.id
}

// writeLoop is the single writer goroutine. It exits on the first failed
// write, cancelling the connection context so pending and future Send
// calls fail immediately instead of queueing into a dead transport.
func (c *Connection) writeLoop() {
	defer c.cancel()
	for {
		select {
		case data := <-c.writeCh:
			if err := c.conn.SetWriteDeadline(time.Now().Add(writeTimeout)); err != nil {
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}
		case <-c.ctx.Done():
			return
		}
	}
}

// Send queues a pre-serialized frame for delivery. Thread-safe.
func (c *Connection) Send(data []byte) error {
	select {
	case <-c.ctx.Done():
		return ErrConnectionClosed
	default:
	}

	select {
	case c.writeCh <- data:
		return nil
	case <-time.After(writeTimeout):
		return ErrWriteTimeout
	case <-c.ctx.Done():
		return ErrConnectionClosed
	}
}

// WriteJSON marshals v and sends it as one frame. Thread-safe.
func (c *Connection) WriteJSON(v interface{}) error {
	data, err := json.Marshal(v)
	if err != nil {
		return ErrInvalidJSON
	}
	return c.Send(data)
}

// CloseWithReason sends a close frame with an application close code and
// reason, then tears the connection down. Used by the supersede policy so
// the replaced client can distinguish replacement from a network drop.
func (c *Connection) CloseWithReason(code int, reason string) error {
	msg := websocket.FormatCloseMessage(code, reason)
	// Best effort: the peer may already be gone.
	_ = c.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(closeGrace))
	return c.Close()
}

// Close cancels the writer and closes the transport. Idempotent.
func (c *Connection) Close() error {
	var err error
	c.closeOnce.Do(func() {
		c.cancel()
		err = c.conn.Close()
	})
	return err
}
