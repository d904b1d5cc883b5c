// ABOUTME: Tests for reconnection backoff growth and client configuration defaults.
// ABOUTME: Transport behavior is covered end to end by the hub's handler tests.

package agentconn

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/2389/forge-hub/internal/protocol"
)

func TestNextBackoffDoubles(t *testing.T) {
	max := 30 * time.Second

	assert.Equal(t, 2*time.Second, nextBackoff(time.Second, max))
	assert.Equal(t, 8*time.Second, nextBackoff(4*time.Second, max))
	assert.Equal(t, 30*time.Second, nextBackoff(16*time.Second, max), "growth is capped at max")
	assert.Equal(t, 30*time.Second, nextBackoff(30*time.Second, max), "stays at max once reached")
}

func TestNewAppliesDefaults(t *testing.T) {
	c := New(Config{URL: "ws://localhost:8080/ws", Name: "builder"}, nil)

	assert.Equal(t, defaultMinBackoff, c.cfg.MinBackoff)
	assert.Equal(t, defaultMaxBackoff, c.cfg.MaxBackoff)
	assert.NotNil(t, c.logger)
}

func TestSendWhileDisconnected(t *testing.T) {
	c := New(Config{URL: "ws://localhost:8080/ws", Name: "builder"}, nil)

	err := c.Send(context.Background(), nil)
	assert.Error(t, err)
}

func TestRunGivesUpAfterMaxAttempts(t *testing.T) {
	// Port 1 refuses connections immediately
	c := New(Config{
		URL:         "ws://127.0.0.1:1/ws",
		Name:        "builder",
		MinBackoff:  time.Millisecond,
		MaxBackoff:  2 * time.Millisecond,
		MaxAttempts: 3,
	}, func(context.Context, *Client, *protocol.Envelope) {})

	err := c.Run(context.Background())
	assert.ErrorContains(t, err, "giving up after 3")
}
