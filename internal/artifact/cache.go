// ABOUTME: Single mutable slot for the most recently completed build artifact.
// ABOUTME: Overwritten on every completion; Last reports ok=false when nothing is held.

package artifact

import "sync"

// Artifact is the output of a completed build or edit.
type Artifact struct {
	Content  string // base64 payload
	FileName string
	Type     string
	TaskName string
}

// Cache is a single-slot, last-writer-wins memory of the newest artifact.
type Cache struct {
	mu   sync.RWMutex
	last *Artifact
}

// NewCache returns an empty cache.
func NewCache() *Cache {
	return &Cache{}
}

// SetLast overwrites the slot with a.
func (c *Cache) SetLast(a *Artifact) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.last = a
}

// Last returns the held artifact, or ok=false when nothing has been built.
func (c *Cache) Last() (*Artifact, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.last == nil {
		return nil, false
	}
	return c.last, true
}
