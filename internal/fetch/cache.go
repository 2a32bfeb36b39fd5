package fetch

import (
	"sync"
	"time"

	"deriv-connect/internal/model"
)

// key identifies one cached series.
type key struct {
	symbol   string
	interval int
}

// cacheEntry holds the last successful fetch for one key. Each entry has its
// own lock so keys never contend with each other or with the dispatcher.
type cacheEntry struct {
	mu     sync.Mutex
	series *model.Series
}

// seriesCache is the per-key store for fetched series.
type seriesCache struct {
	mu      sync.Mutex
	entries map[key]*cacheEntry
}

func newSeriesCache() *seriesCache {
	return &seriesCache{
		entries: make(map[key]*cacheEntry),
	}
}

func (c *seriesCache) entry(k key) *cacheEntry {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[k]
	if !ok {
		e = &cacheEntry{}
		c.entries[k] = e
	}
	return e
}

// get returns a copy of the cached series if one exists no older than maxAge.
func (c *seriesCache) get(k key, maxAge time.Duration) (*model.Series, bool) {
	e := c.entry(k)
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.series == nil || time.Since(e.series.FetchedAt) > maxAge {
		return nil, false
	}
	return e.series.Clone(), true
}

// getAny returns a copy of the cached series regardless of age.
func (c *seriesCache) getAny(k key) (*model.Series, bool) {
	e := c.entry(k)
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.series == nil {
		return nil, false
	}
	return e.series.Clone(), true
}

// put overwrites the cache entry for k.
func (c *seriesCache) put(k key, s *model.Series) {
	e := c.entry(k)
	e.mu.Lock()
	e.series = s
	e.mu.Unlock()
}

// prune evicts entries older than ttl and returns how many were removed.
func (c *seriesCache) prune(ttl time.Duration) int {
	c.mu.Lock()
	defer c.mu.Unlock()

	removed := 0
	for k, e := range c.entries {
		e.mu.Lock()
		stale := e.series == nil || time.Since(e.series.FetchedAt) > ttl
		e.mu.Unlock()
		if stale {
			delete(c.entries, k)
			removed++
		}
	}
	return removed
}

// rlEntry tracks the last fetch instant for one symbol. Its lock is held for
// the whole fetch, serializing same-symbol callers so a cooldown can never
// be raced past.
type rlEntry struct {
	mu          sync.Mutex
	lastFetchAt time.Time
}

// rateLimiter enforces minimum inter-request spacing per symbol.
type rateLimiter struct {
	mu        sync.Mutex
	perSymbol map[string]*rlEntry
}

func newRateLimiter() *rateLimiter {
	return &rateLimiter{
		perSymbol: make(map[string]*rlEntry),
	}
}

func (r *rateLimiter) entry(symbol string) *rlEntry {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.perSymbol[symbol]
	if !ok {
		e = &rlEntry{}
		r.perSymbol[symbol] = e
	}
	return e
}
