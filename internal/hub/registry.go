// ABOUTME: Registry maps agent names to live connections; the sole owner and mutator of bindings.
// ABOUTME: Registration is last-writer-wins; removal by connection is idempotent.

package hub

import (
	"log/slog"
	"sync"
)

type binding struct {
	name string
	role string
	conn Sender
}

// Registry holds the name-to-connection bindings. Any connection claiming a
// name is trusted; re-registration replaces the previous binding without
// warning the prior holder.
type Registry struct {
	mu     sync.RWMutex
	agents map[string]*binding
	logger *slog.Logger
}

// NewRegistry creates an empty registry.
func NewRegistry(logger *slog.Logger) *Registry {
	return &Registry{
		agents: make(map[string]*binding),
		logger: logger.With("component", "registry"),
	}
}

// Register binds name to conn, overwriting any prior binding for that name.
func (r *Registry) Register(name, role string, conn Sender) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if prev, ok := r.agents[name]; ok && prev.conn != conn {
		r.logger.Info("agent re-registered, replacing binding", "name", name)
	}
	r.agents[name] = &binding{name: name, role: role, conn: conn}
	r.logger.Info("agent registered", "name", name, "role", role, "total_agents", len(r.agents))
}

// Lookup returns the connection bound to name.
func (r *Registry) Lookup(name string) (Sender, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	b, ok := r.agents[name]
	if !ok {
		return nil, false
	}
	return b.conn, true
}

// Remove deletes every binding held by conn and returns the removed names.
// Removing an unknown connection is a no-op.
func (r *Registry) Remove(conn Sender) []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	var removed []string
	for name, b := range r.agents {
		if b.conn == conn {
			delete(r.agents, name)
			removed = append(removed, name)
		}
	}
	if len(removed) > 0 {
		r.logger.Info("agent disconnected", "names", removed, "total_agents", len(r.agents))
	}
	return removed
}

// Names returns the currently bound agent names.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.agents))
	for name := range r.agents {
		names = append(names, name)
	}
	return names
}

// Count returns the number of bound agents.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.agents)
}

// connections returns a snapshot of all bound connections for broadcasting.
func (r *Registry) connections() []Sender {
	r.mu.RLock()
	defer r.mu.RUnlock()

	conns := make([]Sender, 0, len(r.agents))
	for _, b := range r.agents {
		conns = append(conns, b.conn)
	}
	return conns
}
