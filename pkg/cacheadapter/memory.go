package cacheadapter

import (
	"context"
	"sync"
	"sync/atomic"
	"time"
)

// DefaultSweepInterval is the spec-mandated background eviction period for
// MemoryCache ("a background sweep every 5 minutes evicts expired entries").
const DefaultSweepInterval = 5 * time.Minute

type memEntry struct {
	value     []byte
	expiresAt time.Time
}

func (e memEntry) expired(now time.Time) bool {
	return !e.expiresAt.IsZero() && now.After(e.expiresAt)
}

// MemoryCache is the in-process CacheAdapter variant: a concurrent map of
// key to {bytes, expires_at}, swept periodically by a background goroutine.
// Safe for concurrent readers/writers; process-local.
//
// Grounded on the ticker-driven background worker idiom in
// joeycumines-go-utilpkg's catrate.Limiter (lazily-started cleanup
// goroutine guarded by a mutex against the hot path) — the sweep here runs
// unconditionally on a fixed interval instead of lazily starting/stopping,
// since the spec calls for an always-on 5-minute sweep rather than an
// idle-triggered one.
type MemoryCache struct {
	mu      sync.RWMutex
	entries map[string]memEntry

	hits   atomic.Int64
	misses atomic.Int64

	stop    chan struct{}
	stopped atomic.Bool
}

// NewMemoryCache creates a MemoryCache and starts its sweep goroutine.
// Callers must call Close to stop the goroutine when the cache is no
// longer needed.
func NewMemoryCache(sweepInterval time.Duration) *MemoryCache {
	if sweepInterval <= 0 {
		sweepInterval = DefaultSweepInterval
	}

	c := &MemoryCache{
		entries: make(map[string]memEntry),
		stop:    make(chan struct{}),
	}

	go c.sweepLoop(sweepInterval)

	return c
}

func (c *MemoryCache) sweepLoop(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-c.stop:
			return
		case now := <-ticker.C:
			c.sweep(now)
		}
	}
}

func (c *MemoryCache) sweep(now time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()

	for key, e := range c.entries {
		if e.expired(now) {
			delete(c.entries, key)
		}
	}
}

// Close stops the background sweep goroutine. Safe to call more than once.
func (c *MemoryCache) Close() error {
	if c.stopped.CompareAndSwap(false, true) {
		close(c.stop)
	}

	return nil
}

// Get implements Cache.
func (c *MemoryCache) Get(_ context.Context, key string) ([]byte, error) {
	c.mu.RLock()
	e, ok := c.entries[key]
	c.mu.RUnlock()

	if !ok || e.expired(time.Now()) {
		c.misses.Add(1)

		return nil, ErrNotFound
	}

	c.hits.Add(1)

	out := make([]byte, len(e.value))
	copy(out, e.value)

	return out, nil
}

// Set implements Cache.
func (c *MemoryCache) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	stored := make([]byte, len(value))
	copy(stored, value)

	var expiresAt time.Time
	if ttl > 0 {
		expiresAt = time.Now().Add(ttl)
	}

	c.mu.Lock()
	c.entries[key] = memEntry{value: stored, expiresAt: expiresAt}
	c.mu.Unlock()

	return nil
}

// Del implements Cache.
func (c *MemoryCache) Del(_ context.Context, key string) error {
	c.mu.Lock()
	delete(c.entries, key)
	c.mu.Unlock()

	return nil
}

// CacheHits implements observability.CacheStatsProvider.
func (c *MemoryCache) CacheHits() int64 { return c.hits.Load() }

// CacheMisses implements observability.CacheStatsProvider.
func (c *MemoryCache) CacheMisses() int64 { return c.misses.Load() }

// Len reports the current entry count, including not-yet-swept expired
// entries. Used by the GET /moderation read endpoint's cache.size field.
func (c *MemoryCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return len(c.entries)
}
