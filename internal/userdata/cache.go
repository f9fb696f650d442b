// Package userdata holds the last-known-good server snapshot of the player.
// Boot, the session orchestrator, purchases and achievements all read through
// this cache instead of refetching; every accepted update is broadcast so UI
// and reconciliation observers converge on the same state.
package userdata

import (
	"sync"

	"github.com/skyrush-games/client/internal/backend"
	"github.com/skyrush-games/client/internal/bus"
)

// Cache is the single holder of the current UserData snapshot.
type Cache struct {
	mu      sync.RWMutex
	current backend.UserData
	loaded  bool

	updates *bus.Topic[backend.UserData]
}

// NewCache creates an empty cache.
func NewCache() *Cache {
	return &Cache{updates: bus.NewTopic[backend.UserData]()}
}

// Updates is the topic on which every accepted snapshot is published.
func (c *Cache) Updates() *bus.Topic[backend.UserData] {
	return c.updates
}

// Get returns the current snapshot and whether one has been loaded yet.
func (c *Cache) Get() (backend.UserData, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.current, c.loaded
}

// Set replaces the snapshot with a fresh authoritative one and broadcasts it.
func (c *Cache) Set(data backend.UserData) {
	c.mu.Lock()
	c.current = data
	c.loaded = true
	c.mu.Unlock()

	c.updates.Publish(data)
}

// Mutate applies an optimistic local edit to the cached snapshot and
// broadcasts the result. The edit lives only until the next Set: authoritative
// snapshots always win, with the reconcile overlay carrying anything still
// unconfirmed.
func (c *Cache) Mutate(edit func(*backend.UserData)) {
	c.mu.Lock()
	edit(&c.current)
	data := c.current
	c.mu.Unlock()

	c.updates.Publish(data)
}
