// ABOUTME: Conn wraps one agent WebSocket with a buffered send channel and write pump.
// ABOUTME: Sends are non-blocking; a full buffer drops the envelope rather than stalling the router.

package hub

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"

	"github.com/2389/forge-hub/internal/protocol"
)

// ErrSendBufferFull indicates the connection's outbound buffer was full and
// the envelope was dropped.
var ErrSendBufferFull = errors.New("send buffer full")

const (
	sendBufferSize = 64
	writeTimeout   = 10 * time.Second
)

// Sender is the outbound half of an agent connection. Tests substitute a
// recording fake.
type Sender interface {
	Send(env *protocol.Envelope) error
}

// Conn is a live agent connection. A single write pump goroutine owns all
// writes to the underlying socket.
type Conn struct {
	ws     *websocket.Conn
	send   chan *protocol.Envelope
	done   chan struct{}
	logger *slog.Logger

	mu   sync.Mutex
	name string

	closeOnce sync.Once
}

func newConn(ws *websocket.Conn, logger *slog.Logger) *Conn {
	c := &Conn{
		ws:     ws,
		send:   make(chan *protocol.Envelope, sendBufferSize),
		done:   make(chan struct{}),
		logger: logger,
	}
	go c.writePump()
	return c
}

// Send queues env for delivery. Forwarding never waits on the destination:
// a full buffer returns ErrSendBufferFull and the envelope is dropped.
func (c *Conn) Send(env *protocol.Envelope) error {
	select {
	case <-c.done:
		return errors.New("connection closed")
	case c.send <- env:
		return nil
	default:
		return ErrSendBufferFull
	}
}

func (c *Conn) writePump() {
	for {
		select {
		case <-c.done:
			return
		case env := <-c.send:
			ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
			err := wsjson.Write(ctx, c.ws, env)
			cancel()
			if err != nil {
				c.logger.Debug("write failed", "agent", c.agentName(), "error", err)
				c.close()
				return
			}
		}
	}
}

func (c *Conn) close() {
	c.closeOnce.Do(func() {
		close(c.done)
		_ = c.ws.Close(websocket.StatusNormalClosure, "")
	})
}

func (c *Conn) setAgentName(name string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.name = name
}

func (c *Conn) agentName() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.name
}
