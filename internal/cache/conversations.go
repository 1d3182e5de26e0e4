// Package cache holds the short-TTL cache of rendered conversation lists.
package cache

import (
	"sync"
	"time"

	"dmchat/internal/domain"
)

type entry struct {
	previews  []*domain.ConversationPreview
	expiresAt time.Time
}

// ConversationLists caches the rendered conversation list per user. Reads are
// read-through: Get reports a miss and the caller recomputes and Sets.
// Concurrent misses for the same key may each recompute; the last writer
// wins, which is acceptable because every mutation that could change the list
// invalidates the entry before the mutating call returns.
type ConversationLists struct {
	mu      sync.RWMutex
	entries map[int64]entry
	ttl     time.Duration

	stop     chan struct{}
	stopOnce sync.Once
}

// NewConversationLists creates the cache and starts a janitor that sweeps
// expired entries. Close stops the janitor.
func NewConversationLists(ttl time.Duration) *ConversationLists {
	c := &ConversationLists{
		entries: make(map[int64]entry),
		ttl:     ttl,
		stop:    make(chan struct{}),
	}
	go c.janitor()
	return c
}

// Get returns the cached list for the user, or ok=false on a miss or an
// expired entry.
func (c *ConversationLists) Get(userID int64) ([]*domain.ConversationPreview, bool) {
	c.mu.RLock()
	e, ok := c.entries[userID]
	c.mu.RUnlock()
	if !ok || time.Now().After(e.expiresAt) {
		return nil, false
	}
	return e.previews, true
}

// Set stores the list for the user with the configured TTL.
func (c *ConversationLists) Set(userID int64, previews []*domain.ConversationPreview) {
	c.mu.Lock()
	c.entries[userID] = entry{
		previews:  previews,
		expiresAt: time.Now().Add(c.ttl),
	}
	c.mu.Unlock()
}

// Invalidate evicts the user's entry. Mutations that change a user's visible
// list (new message, delete, status change) must call this before returning.
func (c *ConversationLists) Invalidate(userID int64) {
	c.mu.Lock()
	delete(c.entries, userID)
	c.mu.Unlock()
}

// Close stops the janitor goroutine.
func (c *ConversationLists) Close() {
	c.stopOnce.Do(func() { close(c.stop) })
}

func (c *ConversationLists) janitor() {
	interval := c.ttl
	if interval < time.Second {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-c.stop:
			return
		case now := <-ticker.C:
			c.mu.Lock()
			for k, e := range c.entries {
				if now.After(e.expiresAt) {
					delete(c.entries, k)
				}
			}
			c.mu.Unlock()
		}
	}
}
