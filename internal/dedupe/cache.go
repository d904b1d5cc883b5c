// ABOUTME: TTL-based, size-capped cache of seen envelope IDs with background sweeping.
// ABOUTME: Seen atomically checks-and-records to avoid double-processing races.

package dedupe

import (
	"sync"
	"time"
)

// Cache remembers envelope IDs for a bounded time.
type Cache struct {
	mu      sync.Mutex
	entries map[string]time.Time
	ttl     time.Duration
	maxSize int
	done    chan struct{}
	closed  bool
}

// New creates a cache holding at most maxSize IDs for ttl each. A background
// goroutine sweeps expired entries once a minute.
func New(ttl time.Duration, maxSize int) *Cache {
	c := &Cache{
		entries: make(map[string]time.Time),
		ttl:     ttl,
		maxSize: maxSize,
		done:    make(chan struct{}),
	}
	go c.sweep()
	return c
}

// Seen records id and reports whether it was already present and unexpired.
// The check and the record are one atomic step.
func (c *Cache) Seen(id string) bool {
	if id == "" {
		return false
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	now := time.Now()
	if at, ok := c.entries[id]; ok && now.Sub(at) < c.ttl {
		return true
	}
	if len(c.entries) >= c.maxSize {
		c.evictOldest()
	}
	c.entries[id] = now
	return false
}

// evictOldest drops the stalest entry. Must be called with mu held.
func (c *Cache) evictOldest() {
	var oldestID string
	var oldestAt time.Time
	for id, at := range c.entries {
		if oldestID == "" || at.Before(oldestAt) {
			oldestID, oldestAt = id, at
		}
	}
	if oldestID != "" {
		delete(c.entries, oldestID)
	}
}

func (c *Cache) sweep() {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			c.mu.Lock()
			now := time.Now()
			for id, at := range c.entries {
				if now.Sub(at) >= c.ttl {
					delete(c.entries, id)
				}
			}
			c.mu.Unlock()
		case <-c.done:
			return
		}
	}
}

// Close stops the sweeper. Safe to call more than once.
func (c *Cache) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.closed {
		close(c.done)
		c.closed = true
	}
}
