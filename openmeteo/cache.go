package openmeteo

import (
	"sync"
	"time"
)

// responseCache caches decoded responses by request URL with expiration.
type responseCache struct {
	mu      sync.RWMutex
	entries map[string]cacheEntry
}

type cacheEntry struct {
	resp      *HourlyResponse
	fetchedAt time.Time
	ttl       time.Duration
}

func newResponseCache() *responseCache {
	return &responseCache{entries: make(map[string]cacheEntry)}
}

func (c *responseCache) Get(url string) (*HourlyResponse, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	entry, ok := c.entries[url]
	if !ok {
		return nil, false
	}
	if entry.ttl > 0 && time.Since(entry.fetchedAt) > entry.ttl {
		return nil, false
	}
	return entry.resp, true
}

func (c *responseCache) Set(url string, resp *HourlyResponse, ttl time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries[url] = cacheEntry{resp: resp, fetchedAt: time.Now(), ttl: ttl}
}
