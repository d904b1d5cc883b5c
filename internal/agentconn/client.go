// ABOUTME: Reconnecting WebSocket client: dial, register, pump envelopes to the handler.
// ABOUTME: Exponential backoff doubles up to a cap; a successful registration resets it.

package agentconn

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"

	"github.com/2389/forge-hub/internal/protocol"
)

const (
	defaultMinBackoff = time.Second
	defaultMaxBackoff = 30 * time.Second
	writeTimeout      = 10 * time.Second
	maxEnvelopeBytes  = 10 << 20
)

// Handler receives each inbound envelope. It runs on the read loop; slow
// work should move to its own goroutine.
type Handler func(ctx context.Context, client *Client, env *protocol.Envelope)

// Config describes how an agent connects to the hub.
type Config struct {
	URL         string // e.g. ws://localhost:8080/ws
	Name        string
	Role        string
	MinBackoff  time.Duration
	MaxBackoff  time.Duration
	MaxAttempts int // consecutive failed attempts before giving up; 0 means retry forever
	Logger      *slog.Logger
}

// Client maintains one registered connection to the hub.
type Client struct {
	cfg     Config
	handler Handler
	logger  *slog.Logger

	mu         sync.Mutex
	ws         *websocket.Conn
	registered bool
}

// New creates a Client. Run must be called to connect.
func New(cfg Config, handler Handler) *Client {
	if cfg.MinBackoff <= 0 {
		cfg.MinBackoff = defaultMinBackoff
	}
	if cfg.MaxBackoff <= 0 {
		cfg.MaxBackoff = defaultMaxBackoff
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		cfg:     cfg,
		handler: handler,
		logger:  logger.With("component", "agentconn", "agent", cfg.Name),
	}
}

// Run connects and keeps reconnecting until ctx is canceled or the attempt
// cap is exhausted.
func (c *Client) Run(ctx context.Context) error {
	backoff := c.cfg.MinBackoff
	failures := 0

	for {
		err := c.session(ctx)
		if ctx.Err() != nil {
			return nil
		}

		// A session that got as far as registering counts as recovery.
		if c.tookRegistration() {
			backoff = c.cfg.MinBackoff
			failures = 0
		}

		failures++
		if c.cfg.MaxAttempts > 0 && failures >= c.cfg.MaxAttempts {
			return fmt.Errorf("giving up after %d failed connection attempts: %w", failures, err)
		}

		c.logger.Warn("connection lost, reconnecting", "error", err, "backoff", backoff)
		select {
		case <-ctx.Done():
			return nil
		case <-time.After(backoff):
		}
		backoff = nextBackoff(backoff, c.cfg.MaxBackoff)
	}
}

// session runs one dial-register-read cycle and returns its terminal error.
func (c *Client) session(ctx context.Context) error {
	dialCtx, cancel := context.WithTimeout(ctx, 15*time.Second)
	ws, _, err := websocket.Dial(dialCtx, c.cfg.URL, nil)
	cancel()
	if err != nil {
		return fmt.Errorf("dialing hub: %w", err)
	}
	ws.SetReadLimit(maxEnvelopeBytes)

	c.mu.Lock()
	c.ws = ws
	c.mu.Unlock()
	defer func() {
		c.mu.Lock()
		c.ws = nil
		c.mu.Unlock()
		_ = ws.Close(websocket.StatusNormalClosure, "")
	}()

	if err := c.Send(ctx, protocol.Register(c.cfg.Name, c.cfg.Role)); err != nil {
		return fmt.Errorf("registering: %w", err)
	}
	c.mu.Lock()
	c.registered = true
	c.mu.Unlock()
	c.logger.Info("registered with hub", "role", c.cfg.Role)

	for {
		_, data, err := ws.Read(ctx)
		if err != nil {
			return fmt.Errorf("reading: %w", err)
		}
		var env protocol.Envelope
		if err := json.Unmarshal(data, &env); err != nil {
			c.logger.Warn("malformed envelope from hub", "error", err)
			continue
		}
		c.handler(ctx, c, &env)
	}
}

// Send writes an envelope on the current connection.
func (c *Client) Send(ctx context.Context, env *protocol.Envelope) error {
	c.mu.Lock()
	ws := c.ws
	c.mu.Unlock()
	if ws == nil {
		return fmt.Errorf("not connected")
	}

	writeCtx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()
	return wsjson.Write(writeCtx, ws, env)
}

// tookRegistration reports and clears whether the last session registered.
func (c *Client) tookRegistration() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	r := c.registered
	c.registered = false
	return r
}

// nextBackoff doubles cur up to max.
func nextBackoff(cur, max time.Duration) time.Duration {
	next := cur * 2
	if next > max {
		return max
	}
	return next
}
