// ABOUTME: Router forwards directed envelopes to the named agent and broadcasts untargeted ones.
// ABOUTME: At-most-once: unknown targets and full buffers drop the envelope with a log line.

package hub

import (
	"errors"
	"log/slog"

	"github.com/2389/forge-hub/internal/protocol"
)

// ErrTargetNotFound indicates a directed envelope named an unregistered
// agent. The envelope is dropped; nothing is queued or retried.
var ErrTargetNotFound = errors.New("target agent not registered")

// Router forwards envelopes between registered agents.
type Router struct {
	registry *Registry
	logger   *slog.Logger
}

// NewRouter creates a router over the given registry.
func NewRouter(registry *Registry, logger *slog.Logger) *Router {
	return &Router{
		registry: registry,
		logger:   logger.With("component", "router"),
	}
}

// RouteDirected forwards env unmodified to the agent bound under target.
// Returns ErrTargetNotFound if no binding exists.
func (r *Router) RouteDirected(target string, env *protocol.Envelope) error {
	conn, ok := r.registry.Lookup(target)
	if !ok {
		r.logger.Warn("directed message to unknown target", "target", target, "type", env.Type)
		return ErrTargetNotFound
	}
	if err := conn.Send(env); err != nil {
		r.logger.Warn("dropping envelope", "target", target, "type", env.Type, "error", err)
		return err
	}
	return nil
}

// Broadcast forwards env to every currently bound connection. Slow
// consumers drop; the router never waits for acknowledgment.
func (r *Router) Broadcast(env *protocol.Envelope) {
	for _, conn := range r.registry.connections() {
		if err := conn.Send(env); err != nil {
			r.logger.Debug("broadcast drop", "type", env.Type, "error", err)
		}
	}
}
