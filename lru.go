package blackboard

import (
	"sync"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
)

// cacheKey is the composite identifier addressing a bounded-cache entry.
type cacheKey struct {
	section string
	key     string
}

// boundedCache is the tier used when a durable backend is configured:
// least-recently-used eviction at a fixed item capacity plus per-item TTL.
//
// TTL is fixed expiration measured from last write: a set resets the clock,
// a get refreshes recency but not expiry. Eviction and expiry are silent; a
// later get miss falls through to the backend.
//
// A per-section key index keeps deleteSection and dump proportional to the
// section size. The index is maintained by the LRU's eviction callback and
// may briefly hold keys the LRU has already dropped, so readers always
// verify against the LRU itself.
type boundedCache struct {
	// mu serializes the public operations so dump sees a frozen view.
	// Concurrent background expiry can only remove entries, never add.
	mu sync.Mutex

	// indexMu guards index separately: the eviction callback runs from
	// inside LRU calls made while mu is held.
	indexMu sync.Mutex
	index   map[string]map[string]struct{}

	lru *expirable.LRU[cacheKey, any]
}

func newBoundedCache(capacity int, ttl time.Duration) *boundedCache {
	c := &boundedCache{index: make(map[string]map[string]struct{})}
	c.lru = expirable.NewLRU[cacheKey, any](capacity, c.onEvict, ttl)
	return c
}

func (c *boundedCache) onEvict(k cacheKey, _ any) {
	c.indexMu.Lock()
	defer c.indexMu.Unlock()
	sec, ok := c.index[k.section]
	if !ok {
		return
	}
	delete(sec, k.key)
	if len(sec) == 0 {
		delete(c.index, k.section)
	}
}

func (c *boundedCache) get(section, key string) (any, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lru.Get(cacheKey{section, key})
}

func (c *boundedCache) set(section, key string, value any) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.lru.Add(cacheKey{section, key}, value)

	c.indexMu.Lock()
	sec, ok := c.index[section]
	if !ok {
		sec = make(map[string]struct{})
		c.index[section] = sec
	}
	sec[key] = struct{}{}
	c.indexMu.Unlock()
}

func (c *boundedCache) delete(section, key string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.lru.Remove(cacheKey{section, key}) {
		// Not in the LRU (evicted or expired); drop any stale index entry.
		c.onEvict(cacheKey{section, key}, nil)
	}
}

func (c *boundedCache) deleteSection(section string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	for _, key := range c.sectionKeys(section) {
		c.lru.Remove(cacheKey{section, key})
	}

	c.indexMu.Lock()
	delete(c.index, section)
	c.indexMu.Unlock()
}

func (c *boundedCache) forEach(section string, fn func(key string, value any)) {
	c.mu.Lock()
	defer c.mu.Unlock()

	for _, key := range c.sectionKeys(section) {
		if v, ok := c.lru.Peek(cacheKey{section, key}); ok {
			fn(key, v)
		}
	}
}

func (c *boundedCache) dump() map[string]map[string]any {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.indexMu.Lock()
	sections := make(map[string][]string, len(c.index))
	for name, keys := range c.index {
		ks := make([]string, 0, len(keys))
		for k := range keys {
			ks = append(ks, k)
		}
		sections[name] = ks
	}
	c.indexMu.Unlock()

	out := make(map[string]map[string]any, len(sections))
	for name, keys := range sections {
		for _, key := range keys {
			v, ok := c.lru.Peek(cacheKey{name, key})
			if !ok {
				continue
			}
			sec, ok := out[name]
			if !ok {
				sec = make(map[string]any)
				out[name] = sec
			}
			sec[key] = v
		}
	}
	return out
}

func (c *boundedCache) len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lru.Len()
}

// sectionKeys copies a section's keys out of the index.
func (c *boundedCache) sectionKeys(section string) []string {
	c.indexMu.Lock()
	defer c.indexMu.Unlock()
	keys := make([]string, 0, len(c.index[section]))
	for k := range c.index[section] {
		keys = append(keys, k)
	}
	return keys
}
