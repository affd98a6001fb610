// Package cache holds the server's result cache. Instances are built by
// the caller and passed down explicitly; there is no package-level state.
package cache

import (
	"sync"
	"time"
)

// Stats is a point-in-time view of a cache.
type Stats struct {
	Hits      int64   `json:"hits"`
	Misses    int64   `json:"misses"`
	Evictions int64   `json:"evictions"`
	Size      int     `json:"size"`
	HitRate   float64 `json:"hitRate"`
}

type entry[V any] struct {
	value   V
	expires time.Time
}

// TTL is a bounded map whose entries expire after a fixed lifetime. When
// full, the entry closest to expiry is evicted first.
type TTL[V any] struct {
	mu         sync.Mutex
	data       map[string]entry[V]
	ttl        time.Duration
	maxEntries int
	now        func() time.Time
	stats      Stats
}

// New creates a cache. maxEntries <= 0 means unbounded.
func New[V any](ttl time.Duration, maxEntries int) *TTL[V] {
	return &TTL[V]{
		data:       make(map[string]entry[V]),
		ttl:        ttl,
		maxEntries: maxEntries,
		now:        time.Now,
	}
}

// Get returns the live value for key.
func (c *TTL[V]) Get(key string) (V, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.data[key]
	if ok && !c.now().Before(e.expires) {
		delete(c.data, key)
		ok = false
	}
	if !ok {
		c.stats.Misses++
		var zero V
		return zero, false
	}
	c.stats.Hits++
	return e.value, true
}

// Set stores value under key, replacing any previous entry.
func (c *TTL[V]) Set(key string, value V) {
	if key == "" {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, exists := c.data[key]; !exists && c.maxEntries > 0 && len(c.data) >= c.maxEntries {
		c.purgeLocked()
		if len(c.data) >= c.maxEntries {
			c.evictLocked()
		}
	}
	c.data[key] = entry[V]{value: value, expires: c.now().Add(c.ttl)}
}

// Delete drops key.
func (c *TTL[V]) Delete(key string) {
	c.mu.Lock()
	delete(c.data, key)
	c.mu.Unlock()
}

// Purge removes every expired entry and returns how many were dropped.
func (c *TTL[V]) Purge() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.purgeLocked()
}

// Len returns the number of stored entries, expired or not.
func (c *TTL[V]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.data)
}

// Stats returns hit, miss and eviction counters.
func (c *TTL[V]) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()

	s := c.stats
	s.Size = len(c.data)
	if total := s.Hits + s.Misses; total > 0 {
		s.HitRate = float64(s.Hits) / float64(total)
	}
	return s
}

func (c *TTL[V]) purgeLocked() int {
	now := c.now()
	n := 0
	for k, e := range c.data {
		if !now.Before(e.expires) {
			delete(c.data, k)
			n++
		}
	}
	return n
}

// evictLocked drops the entry that would expire soonest.
func (c *TTL[V]) evictLocked() {
	var (
		oldest    string
		oldestExp time.Time
	)
	for k, e := range c.data {
		if oldest == "" || e.expires.Before(oldestExp) {
			oldest, oldestExp = k, e.expires
		}
	}
	if oldest != "" {
		delete(c.data, oldest)
		c.stats.Evictions++
	}
}
