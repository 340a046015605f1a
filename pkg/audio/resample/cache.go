package resample

import (
	"sync/atomic"

	lru "github.com/hashicorp/golang-lru/v2"
)

// DefaultCacheSize bounds the number of distinct kernels kept in memory.
const DefaultCacheSize = 64

// filterKey identifies a kernel. Kernels depend on the strategy kind, the
// rate pair, and the quality tier.
type filterKey struct {
	kind    string
	from    int
	to      int
	quality Quality
}

// FilterCache keeps precomputed kernels across calls so that a stream of
// equally-shaped chunks pays for kernel design once. It is safe for
// concurrent use; two goroutines missing on the same key may both build the
// kernel, and the last one stored wins.
type FilterCache struct {
	cache  *lru.Cache[filterKey, any]
	hits   atomic.Uint64
	misses atomic.Uint64
}

// NewFilterCache creates a cache holding at most size kernels.
func NewFilterCache(size int) (*FilterCache, error) {
	if size <= 0 {
		size = DefaultCacheSize
	}
	c, err := lru.New[filterKey, any](size)
	if err != nil {
		return nil, err
	}
	return &FilterCache{cache: c}, nil
}

// Len returns the number of cached kernels.
func (c *FilterCache) Len() int { return c.cache.Len() }

// Hits returns the number of lookups served from the cache.
func (c *FilterCache) Hits() uint64 { return c.hits.Load() }

// Misses returns the number of lookups that had to build a kernel.
func (c *FilterCache) Misses() uint64 { return c.misses.Load() }

// Purge drops every cached kernel.
func (c *FilterCache) Purge() { c.cache.Purge() }

func cached[V any](c *FilterCache, key filterKey, build func() (V, error)) (V, error) {
	if c != nil {
		if v, ok := c.cache.Get(key); ok {
			if typed, ok := v.(V); ok {
				c.hits.Add(1)
				return typed, nil
			}
		}
	}
	v, err := build()
	if err != nil {
		return v, err
	}
	if c != nil {
		c.misses.Add(1)
		c.cache.Add(key, v)
	}
	return v, nil
}
