package embedder

import (
	"slices"
	"sync/atomic"

	lru "github.com/hashicorp/golang-lru/v2"
)

// DefaultCacheSize is used when NewCache is given a non-positive size
const DefaultCacheSize = 10000

type cacheKey struct {
	model string
	hash  string
}

// Cache is an LRU of vectors keyed by model and text hash, so switching
// models never serves a stale vector. Vectors are copied in and out.
type Cache struct {
	entries *lru.Cache[cacheKey, []float32]
	hits    atomic.Int64
	misses  atomic.Int64
}

// NewCache creates a cache holding at most size vectors
func NewCache(size int) *Cache {
	if size <= 0 {
		size = DefaultCacheSize
	}
	// lru.New only fails for a non-positive size.
	entries, _ := lru.New[cacheKey, []float32](size)
	return &Cache{entries: entries}
}

// Get returns a copy of the vector cached for model and hash
func (c *Cache) Get(model, hash string) ([]float32, bool) {
	vec, ok := c.entries.Get(cacheKey{model: model, hash: hash})
	if !ok {
		c.misses.Add(1)
		return nil, false
	}
	c.hits.Add(1)
	return slices.Clone(vec), true
}

// Set caches a copy of vec, evicting the least recently used entry when full
func (c *Cache) Set(model, hash string, vec []float32) {
	c.entries.Add(cacheKey{model: model, hash: hash}, slices.Clone(vec))
}

// Size is the number of cached vectors
func (c *Cache) Size() int {
	return c.entries.Len()
}

// Stats reports lookups served and missed since creation
func (c *Cache) Stats() (hits, misses int64) {
	return c.hits.Load(), c.misses.Load()
}

// Clear drops every entry but keeps the counters
func (c *Cache) Clear() {
	c.entries.Purge()
}
