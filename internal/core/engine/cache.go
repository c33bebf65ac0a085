package engine

import (
	"encoding/json"
	"sync"
	"time"

	gocache "github.com/patrickmn/go-cache"
)

// DefaultCacheMaxEntries caps the response cache before eviction kicks in.
const DefaultCacheMaxEntries = 100

type cacheEntry struct {
	Payload  json.RawMessage
	StoredAt time.Time
	TTL      time.Duration
}

// ResponseCache holds successful response payloads keyed by caller cache key.
type ResponseCache struct {
	mu         sync.Mutex
	items      *gocache.Cache
	maxEntries int
}

// NewResponseCache returns a cache bounded to maxEntries. Expired entries are
// purged lazily; no janitor goroutine is started.
func NewResponseCache(maxEntries int) *ResponseCache {
	if maxEntries <= 0 {
		maxEntries = DefaultCacheMaxEntries
	}
	return &ResponseCache{
		items:      gocache.New(DefaultCacheTTL, 0),
		maxEntries: maxEntries,
	}
}

// Get returns a fresh payload, deleting the entry if it has expired.
func (c *ResponseCache) Get(key string) (json.RawMessage, bool) {
	if c == nil || key == "" {
		return nil, false
	}
	value, ok := c.items.Get(key)
	if !ok {
		c.items.Delete(key)
		return nil, false
	}
	entry, ok := value.(cacheEntry)
	if !ok {
		return nil, false
	}
	return entry.Payload, true
}

// Set stores payload under key for ttl and enforces the size ceiling.
func (c *ResponseCache) Set(key string, payload json.RawMessage, ttl time.Duration) {
	if c == nil || key == "" || ttl <= 0 {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	c.items.Set(key, cacheEntry{Payload: payload, StoredAt: time.Now(), TTL: ttl}, ttl)
	if c.items.ItemCount() <= c.maxEntries {
		return
	}

	c.items.DeleteExpired()
	overflow := c.items.ItemCount() - c.maxEntries
	if overflow <= 0 {
		return
	}

	type aged struct {
		key      string
		storedAt time.Time
	}
	candidates := make([]aged, 0, c.items.ItemCount())
	for k, item := range c.items.Items() {
		entry, ok := item.Object.(cacheEntry)
		if !ok {
			continue
		}
		candidates = append(candidates, aged{key: k, storedAt: entry.StoredAt})
	}
	for ; overflow > 0 && len(candidates) > 0; overflow-- {
		oldest := 0
		for i := range candidates {
			if candidates[i].storedAt.Before(candidates[oldest].storedAt) {
				oldest = i
			}
		}
		c.items.Delete(candidates[oldest].key)
		candidates = append(candidates[:oldest], candidates[oldest+1:]...)
	}
}

// Len reports the number of held entries, including expired ones not yet purged.
func (c *ResponseCache) Len() int {
	if c == nil {
		return 0
	}
	return c.items.ItemCount()
}

// Clear drops every entry.
func (c *ResponseCache) Clear() {
	if c == nil {
		return
	}
	c.items.Flush()
}
