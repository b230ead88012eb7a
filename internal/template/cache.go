package template

import (
	"sync"
	"time"
)

type cacheEntry struct {
	value  string
	expiry time.Time
}

// Cache is a TTL-bounded key/value store for parsed template content.
// Entries are created on first read and evicted on expiry or explicit
// invalidation.
type Cache struct {
	mu      sync.Mutex
	ttl     time.Duration
	entries map[string]cacheEntry
	now     func() time.Time

	hits   uint64
	misses uint64
}

// NewCache builds a cache whose entries live for ttl (default 1h).
func NewCache(ttl time.Duration) *Cache {
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &Cache{
		ttl:     ttl,
		entries: make(map[string]cacheEntry),
		now:     time.Now,
	}
}

// Get returns the cached value, treating expired entries as absent.
func (c *Cache) Get(key string) (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[key]
	if !ok || c.now().After(e.expiry) {
		if ok {
			delete(c.entries, key)
		}
		c.misses++
		return "", false
	}
	c.hits++
	return e.value, true
}

// Set stores value under key for the cache TTL.
func (c *Cache) Set(key, value string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = cacheEntry{value: value, expiry: c.now().Add(c.ttl)}
}

// Invalidate drops a single key.
func (c *Cache) Invalidate(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, key)
}

// Clear drops every entry.
func (c *Cache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[string]cacheEntry)
}

// SweepExpired removes expired entries and reports how many were dropped.
func (c *Cache) SweepExpired() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	now := c.now()
	dropped := 0
	for k, e := range c.entries {
		if now.After(e.expiry) {
			delete(c.entries, k)
			dropped++
		}
	}
	return dropped
}

// StartJanitor sweeps expired entries every ttl/5 until the returned
// stop function is called.
func (c *Cache) StartJanitor() (stop func()) {
	done := make(chan struct{})
	ticker := time.NewTicker(c.ttl / 5)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ticker.C:
				c.SweepExpired()
			}
		}
	}()
	var once sync.Once
	return func() { once.Do(func() { close(done) }) }
}

// Stats reports cache hit/miss counters and the live key count.
type Stats struct {
	Hits   uint64
	Misses uint64
	Keys   int
}

func (c *Cache) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return Stats{Hits: c.hits, Misses: c.misses, Keys: len(c.entries)}
}
