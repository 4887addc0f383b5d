package resolver

import (
	"sync"
	"time"
)

const (
	DefaultCacheTTL      = 60 * time.Second
	defaultCacheCapacity = 1000
)

type queryKey struct {
	aggregator string
	query      string
}

type cacheEntry struct {
	value    []string
	expires  time.Time
	inserted time.Time
}

// queryCache memoizes successful inventory queries for a short time. Failed
// queries are never stored.
type queryCache struct {
	mu       sync.RWMutex
	ttl      time.Duration
	capacity int
	now      func() time.Time
	data     map[queryKey]cacheEntry
}

func newQueryCache(ttl time.Duration, capacity int) *queryCache {
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}
	if capacity <= 0 {
		capacity = defaultCacheCapacity
	}
	return &queryCache{
		ttl:      ttl,
		capacity: capacity,
		now:      time.Now,
		data:     make(map[queryKey]cacheEntry),
	}
}

func (c *queryCache) get(key queryKey) ([]string, bool) {
	c.mu.RLock()
	entry, ok := c.data[key]
	c.mu.RUnlock()
	if !ok {
		return nil, false
	}
	if c.now().After(entry.expires) {
		c.mu.Lock()
		delete(c.data, key)
		c.mu.Unlock()
		return nil, false
	}
	return entry.value, true
}

func (c *queryCache) set(key queryKey, value []string) {
	now := c.now()
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, exists := c.data[key]; !exists && len(c.data) >= c.capacity {
		var oldestKey queryKey
		var oldestTime time.Time
		first := true
		for k, v := range c.data {
			if first || v.inserted.Before(oldestTime) {
				oldestKey = k
				oldestTime = v.inserted
				first = false
			}
		}
		delete(c.data, oldestKey)
	}
	c.data[key] = cacheEntry{
		value:    value,
		expires:  now.Add(c.ttl),
		inserted: now,
	}
}
