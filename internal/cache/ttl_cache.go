package cache

import (
	"sync"
	"time"
)

// CacheEntry is a payload stamped with the time it was stored.
type CacheEntry[V any] struct {
	StoredAt time.Time
	Payload  V
}

// TTLCache is an in-process key/value cache whose entries are valid while
// now - StoredAt < ttl. Entries are never evicted; a stale entry stays until
// it is overwritten by a fresh Put.
type TTLCache[V any] struct {
	mu      sync.RWMutex
	ttl     time.Duration
	entries map[string]CacheEntry[V]
	now     func() time.Time
}

// NewTTLCache creates a cache with the given time-to-live.
func NewTTLCache[V any](ttl time.Duration) *TTLCache[V] {
	return &TTLCache[V]{
		ttl:     ttl,
		entries: make(map[string]CacheEntry[V]),
		now:     time.Now,
	}
}

// WithClock replaces the clock used for freshness checks.
func (c *TTLCache[V]) WithClock(now func() time.Time) *TTLCache[V] {
	c.mu.Lock()
	c.now = now
	c.mu.Unlock()
	return c
}

// TTL returns the configured time-to-live.
func (c *TTLCache[V]) TTL() time.Duration {
	return c.ttl
}

// Get returns the payload for key when a fresh entry exists.
func (c *TTLCache[V]) Get(key string) (V, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	entry, ok := c.entries[key]
	if !ok || !c.fresh(entry) {
		var zero V
		return zero, false
	}
	return entry.Payload, true
}

// Put stores payload under key, replacing any previous entry.
func (c *TTLCache[V]) Put(key string, payload V) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries[key] = CacheEntry[V]{StoredAt: c.now(), Payload: payload}
}

// HasFresh reports whether at least one entry is still within its TTL.
func (c *TTLCache[V]) HasFresh() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()

	for _, entry := range c.entries {
		if c.fresh(entry) {
			return true
		}
	}
	return false
}

// Len returns the number of stored entries, stale ones included.
func (c *TTLCache[V]) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// caller holds the lock
func (c *TTLCache[V]) fresh(entry CacheEntry[V]) bool {
	return c.now().Sub(entry.StoredAt) < c.ttl
}
