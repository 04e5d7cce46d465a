// Package ttlcache provides a small in-process expiring key-value store.
// Eviction is lazy: an expired entry is removed by the read that observes
// it, so no background sweeper goroutine is needed.
package ttlcache

import (
	"sync"
	"time"
)

type entry[V any] struct {
	value     V
	expiresAt time.Time
}

// Cache maps string keys to values of a single concrete type. It is safe
// for concurrent use.
type Cache[V any] struct {
	mu         sync.Mutex
	entries    map[string]entry[V]
	defaultTTL time.Duration
	now        func() time.Time
}

// New returns a Cache whose Set applies defaultTTL unless SetTTL is used.
func New[V any](defaultTTL time.Duration) *Cache[V] {
	return NewWithClock[V](defaultTTL, time.Now)
}

// NewWithClock is New with an injectable clock, for callers that need
// deterministic expiry in tests.
func NewWithClock[V any](defaultTTL time.Duration, now func() time.Time) *Cache[V] {
	if now == nil {
		now = time.Now
	}
	return &Cache[V]{
		entries:    make(map[string]entry[V]),
		defaultTTL: defaultTTL,
		now:        now,
	}
}

// Get returns the value for key and whether it was present. An entry whose
// TTL has elapsed behaves exactly like a miss and is deleted in place.
func (c *Cache[V]) Get(key string) (V, bool) {
	var zero V
	if c == nil {
		return zero, false
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[key]
	if !ok {
		return zero, false
	}
	if !c.now().Before(e.expiresAt) {
		delete(c.entries, key)
		return zero, false
	}
	return e.value, true
}

// Set stores value under key with the cache's default TTL.
func (c *Cache[V]) Set(key string, value V) {
	c.SetTTL(key, value, c.defaultTTL)
}

// SetTTL stores value under key, expiring ttl from now. A non-positive ttl
// stores an entry that is already expired.
func (c *Cache[V]) SetTTL(key string, value V, ttl time.Duration) {
	if c == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = entry[V]{value: value, expiresAt: c.now().Add(ttl)}
}

// Delete removes key if present.
func (c *Cache[V]) Delete(key string) {
	if c == nil {
		return
	}
	c.mu.Lock()
	delete(c.entries, key)
	c.mu.Unlock()
}

// Len reports the number of stored entries, expired or not.
func (c *Cache[V]) Len() int {
	if c == nil {
		return 0
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}
