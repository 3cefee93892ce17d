package feed

import (
	"sync"
	"time"

	"opsconsole/internal/schema"
)

// Cache holds the last successful fetch per source with a per-source TTL.
// Live-operational sources (EDR, uptime) carry short TTLs; slow-changing
// sources (backup summaries) carry long ones. A mitigation dispatch
// invalidates its source explicitly so the next read reflects the new
// vendor-side status.
type Cache struct {
	mu         sync.Mutex
	ttls       map[schema.Source]time.Duration
	defaultTTL time.Duration
	entries    map[schema.Source]cacheEntry

	now func() time.Time
}

type cacheEntry struct {
	alerts    []schema.Alert
	fetchedAt time.Time
}

// NewCache creates a cache with per-source TTL overrides.
func NewCache(defaultTTL time.Duration, ttls map[schema.Source]time.Duration) *Cache {
	return &Cache{
		ttls:       ttls,
		defaultTTL: defaultTTL,
		entries:    make(map[schema.Source]cacheEntry),
		now:        time.Now,
	}
}

func (c *Cache) ttl(source schema.Source) time.Duration {
	if ttl, ok := c.ttls[source]; ok && ttl > 0 {
		return ttl
	}
	return c.defaultTTL
}

// Get returns the cached alerts for a source if the entry is still fresh.
func (c *Cache) Get(source schema.Source) ([]schema.Alert, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.entries[source]
	if !ok {
		return nil, false
	}
	if c.now().Sub(entry.fetchedAt) > c.ttl(source) {
		delete(c.entries, source)
		return nil, false
	}
	return entry.alerts, true
}

// Put stores a successful fetch result.
func (c *Cache) Put(source schema.Source, alerts []schema.Alert) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[source] = cacheEntry{alerts: alerts, fetchedAt: c.now()}
}

// Invalidate drops the cached entry for one source.
func (c *Cache) Invalidate(source schema.Source) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, source)
}

// InvalidateAll drops every cached entry.
func (c *Cache) InvalidateAll() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[schema.Source]cacheEntry)
}
