package resources

import (
	"sync"
	"time"

	"github.com/a5c-ai/runner/pkg/logger"
)

var cacheLog = logger.New("resources:cache")

type cacheEntry struct {
	data      []byte
	expiresAt time.Time
}

// Cache is a thread-safe TTL cache of fetched resource bytes keyed by URI.
// Entries are evicted on expiry only; absence (404) is never cached.
type Cache struct {
	mu      sync.Mutex
	entries map[string]cacheEntry
	ttl     time.Duration
	now     func() time.Time
}

// NewCache creates a cache with the given TTL. A non-positive TTL disables
// caching entirely.
func NewCache(ttl time.Duration) *Cache {
	return &Cache{
		entries: make(map[string]cacheEntry),
		ttl:     ttl,
		now:     time.Now,
	}
}

// Get returns the cached bytes for uri if present and unexpired.
func (c *Cache) Get(uri string) ([]byte, bool) {
	if c == nil || c.ttl <= 0 {
		return nil, false
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	entry, ok := c.entries[uri]
	if !ok {
		return nil, false
	}
	if c.now().After(entry.expiresAt) {
		delete(c.entries, uri)
		cacheLog.Printf("Cache entry expired: %s", uri)
		return nil, false
	}
	return entry.data, true
}

// Set stores bytes for uri, expiring at insertion time + TTL.
func (c *Cache) Set(uri string, data []byte) {
	if c == nil || c.ttl <= 0 {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[uri] = cacheEntry{data: data, expiresAt: c.now().Add(c.ttl)}
	cacheLog.Printf("Cached resource: uri=%s, size=%d bytes", uri, len(data))
}

// Len reports the number of live entries, expired or not.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}
