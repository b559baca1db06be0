package research

import (
	"crypto/md5"
	"encoding/hex"
	"sync"
	"time"
)

type cacheEntry struct {
	result *Result
	stored time.Time
}

// cache holds per-query results. Expiry is checked on read; cleanup evicts
// expired entries explicitly.
type cache struct {
	mu      sync.Mutex
	entries map[string]cacheEntry
	ttl     time.Duration
	now     func() time.Time
}

func newCache(ttl time.Duration, now func() time.Time) *cache {
	return &cache{entries: make(map[string]cacheEntry), ttl: ttl, now: now}
}

// cacheKey is the first 16 hex characters of md5(query).
func cacheKey(query string) string {
	sum := md5.Sum([]byte(query))
	return hex.EncodeToString(sum[:])[:16]
}

func (c *cache) get(key string) (*Result, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	entry, ok := c.entries[key]
	if !ok || c.now().Sub(entry.stored) >= c.ttl {
		return nil, false
	}
	return entry.result, true
}

func (c *cache) put(key string, r *Result) {
	c.mu.Lock()
	c.entries[key] = cacheEntry{result: r, stored: c.now()}
	c.mu.Unlock()
}

func (c *cache) cleanup() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	now := c.now()
	removed := 0
	for key, entry := range c.entries {
		if now.Sub(entry.stored) > c.ttl {
			delete(c.entries, key)
			removed++
		}
	}
	return removed
}

func (c *cache) size() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}
