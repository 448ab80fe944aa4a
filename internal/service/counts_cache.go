package service

import (
	"context"
	"sync"
	"time"
)

// CodeCounts is the public availability summary.
type CodeCounts struct {
	Available int `json:"available"`
	Total     int `json:"total"`
}

// CountsCache is process-wide derived state for the public counts endpoint.
// It is bounded by a TTL and invalidated on every write to the pool, and it
// is never consulted for claim decisions: the allocator always reads
// authoritative storage.
type CountsCache struct {
	ttl time.Duration

	mu        sync.Mutex
	counts    CodeCounts
	fetchedAt time.Time
	valid     bool
}

// NewCountsCache constructs a cache with the given TTL.
func NewCountsCache(ttl time.Duration) *CountsCache {
	return &CountsCache{ttl: ttl}
}

// Get returns the cached counts when fresh, otherwise re-derives them via
// fetch. Fetch errors are returned without poisoning the cache.
func (c *CountsCache) Get(ctx context.Context, fetch func(ctx context.Context) (CodeCounts, error)) (CodeCounts, error) {
	c.mu.Lock()
	if c.valid && time.Since(c.fetchedAt) < c.ttl {
		counts := c.counts
		c.mu.Unlock()
		return counts, nil
	}
	c.mu.Unlock()

	counts, err := fetch(ctx)
	if err != nil {
		return CodeCounts{}, err
	}

	c.mu.Lock()
	c.counts = counts
	c.fetchedAt = time.Now()
	c.valid = true
	c.mu.Unlock()

	return counts, nil
}

// Invalidate drops the cached value. Called on claims and ingest writes.
func (c *CountsCache) Invalidate() {
	c.mu.Lock()
	c.valid = false
	c.mu.Unlock()
}
