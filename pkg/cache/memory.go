package cache

import (
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/ShoshinNikita/rgrid/pkg/metrics"
	"github.com/ShoshinNikita/rgrid/rgrid"
)

// MemoryCache keeps decoded images in memory. It is bounded by the number of entries
// and their age, least recently used entries are evicted first. It is safe for
// concurrent use.
type MemoryCache struct {
	lru *expirable.LRU[rgrid.CacheKey, *rgrid.Image]
}

var _ rgrid.MemoryCache = (*MemoryCache)(nil)

// NewMemoryCache creates a new cache. size <= 0 means no limit on the number of entries,
// ttl <= 0 means entries don't expire.
func NewMemoryCache(size int, ttl time.Duration) *MemoryCache {
	onEvict := func(rgrid.CacheKey, *rgrid.Image) {
		metrics.CacheEvictions.WithLabelValues(metrics.TierMemory).Inc()
	}
	return &MemoryCache{
		lru: expirable.NewLRU[rgrid.CacheKey, *rgrid.Image](size, onEvict, ttl),
	}
}

func (c *MemoryCache) Get(key rgrid.CacheKey) (*rgrid.Image, bool) {
	img, ok := c.lru.Get(key)
	if !ok {
		metrics.CacheMisses.WithLabelValues(metrics.TierMemory).Inc()
		return nil, false
	}

	metrics.CacheHits.WithLabelValues(metrics.TierMemory).Inc()
	return img, true
}

func (c *MemoryCache) Put(key rgrid.CacheKey, img *rgrid.Image) {
	if img == nil {
		return
	}
	c.lru.Add(key, img)
}

// Len returns the number of cached entries, expired ones included.
func (c *MemoryCache) Len() int {
	return c.lru.Len()
}
