package memory

import (
	"sync"
	"time"

	"github.com/cespare/xxhash/v2"

	"github.com/celestine-app/celestine/internal/domain/content"
)

// cacheShards is the number of lock shards for the content cache.
const cacheShards = 32

type cacheShard struct {
	mu      sync.RWMutex
	entries map[string]*content.CacheEntry
}

// ContentCache holds generated artifacts keyed by their cache slot.
// Thread-safe for concurrent access; each slot holds at most one entry
// and a put replaces it wholesale by pointer swap, so readers never
// observe a half-written entry.
//
// A stale entry (wrong period for the requested key) is reported as a
// miss by Get but kept resident: it remains available through GetStale
// as a fallback when regeneration fails.
type ContentCache struct {
	shards [cacheShards]cacheShard
}

// NewContentCache creates an empty content cache.
func NewContentCache() *ContentCache {
	c := &ContentCache{}
	for i := range c.shards {
		c.shards[i].entries = make(map[string]*content.CacheEntry)
	}
	return c
}

func (c *ContentCache) shardFor(slot string) *cacheShard {
	return &c.shards[xxhash.Sum64String(slot)%cacheShards]
}

// Get returns the cached entry for the key if one exists and is fresh.
// A resident but stale entry is reported as a miss and left in place.
func (c *ContentCache) Get(key content.CacheKey) (*content.CacheEntry, bool) {
	shard := c.shardFor(key.Slot())
	shard.mu.RLock()
	entry, ok := shard.entries[key.Slot()]
	shard.mu.RUnlock()

	if !ok || !entry.Fresh(key) {
		return nil, false
	}
	return entry, true
}

// GetStale returns whatever entry occupies the key's slot, fresh or not.
// Used for the stale-while-revalidate fallback after a failed generation.
func (c *ContentCache) GetStale(key content.CacheKey) (*content.CacheEntry, bool) {
	shard := c.shardFor(key.Slot())
	shard.mu.RLock()
	entry, ok := shard.entries[key.Slot()]
	shard.mu.RUnlock()
	return entry, ok
}

// Put stores a new immutable entry for the key, replacing any previous
// entry in the slot, and returns the stored entry.
func (c *ContentCache) Put(key content.CacheKey, payload string, generatedAt time.Time) *content.CacheEntry {
	entry := &content.CacheEntry{
		Key:         key,
		Payload:     payload,
		GeneratedAt: generatedAt,
	}
	shard := c.shardFor(key.Slot())
	shard.mu.Lock()
	shard.entries[key.Slot()] = entry
	shard.mu.Unlock()
	return entry
}

// Invalidate removes the entry occupying the key's slot, if any.
func (c *ContentCache) Invalidate(key content.CacheKey) {
	shard := c.shardFor(key.Slot())
	shard.mu.Lock()
	delete(shard.entries, key.Slot())
	shard.mu.Unlock()
}

// Size returns the number of resident entries.
// Useful for tests and the cache-entries gauge.
func (c *ContentCache) Size() int {
	total := 0
	for i := range c.shards {
		c.shards[i].mu.RLock()
		total += len(c.shards[i].entries)
		c.shards[i].mu.RUnlock()
	}
	return total
}
