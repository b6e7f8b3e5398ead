package orchestrator

import (
	"sync"
	"time"

	"github.com/opencorpdata/corpmap/pkg/company"
)

// resultCache is a TTL cache over whole query results, keyed by the
// normalized query cache key. Repeated identical queries inside the TTL
// window are served without touching any source.
type resultCache struct {
	mu      sync.RWMutex
	ttl     time.Duration
	entries map[string]cacheEntry
}

type cacheEntry struct {
	result  *company.Result
	expires time.Time
}

func newResultCache(ttl time.Duration) *resultCache {
	return &resultCache{
		ttl:     ttl,
		entries: make(map[string]cacheEntry),
	}
}

// get returns the cached result for key, flagged as a cache hit, or false
// if the entry is absent or expired. Expired entries are evicted lazily.
func (c *resultCache) get(key string) (*company.Result, bool) {
	if c.ttl <= 0 {
		return nil, false
	}

	c.mu.RLock()
	entry, ok := c.entries[key]
	c.mu.RUnlock()
	if !ok {
		return nil, false
	}
	if time.Now().After(entry.expires) {
		c.mu.Lock()
		delete(c.entries, key)
		c.mu.Unlock()
		return nil, false
	}

	// Shallow copy so the stored result keeps CacheHit=false for its own
	// meta while every served copy is flagged.
	hit := *entry.result
	hit.Meta.CacheHit = true
	return &hit, true
}

// put stores a result under key with a fresh TTL.
func (c *resultCache) put(key string, result *company.Result) {
	if c.ttl <= 0 {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = cacheEntry{result: result, expires: time.Now().Add(c.ttl)}
}

// invalidate removes a single cached query, used when fresher data for one
// of its entities has been persisted.
func (c *resultCache) invalidate(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, key)
}
