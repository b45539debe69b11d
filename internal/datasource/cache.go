package datasource

import (
	"sync"
	"time"

	"github.com/golang/groupcache/lru"

	"signal-backtest/internal/types"
)

// seriesCache is a bounded LRU of fetched series with an optional TTL.
// lru.Cache is not goroutine safe, hence the mutex.
type seriesCache struct {
	mu  sync.Mutex
	lru *lru.Cache
	ttl time.Duration
	now func() time.Time
}

type cacheEntry struct {
	series    *types.CandleSeries
	expiresAt time.Time
}

// newSeriesCache: maxEntries <= 0 means unbounded, ttl <= 0 means entries
// never expire.
func newSeriesCache(maxEntries int, ttl time.Duration, now func() time.Time) *seriesCache {
	if maxEntries < 0 {
		maxEntries = 0
	}
	return &seriesCache{lru: lru.New(maxEntries), ttl: ttl, now: now}
}

func (c *seriesCache) Get(key string) (*types.CandleSeries, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	v, ok := c.lru.Get(key)
	if !ok {
		return nil, false
	}
	entry := v.(cacheEntry)
	if !entry.expiresAt.IsZero() && !c.now().Before(entry.expiresAt) {
		c.lru.Remove(key)
		return nil, false
	}
	return entry.series, true
}

func (c *seriesCache) Set(key string, series *types.CandleSeries) {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry := cacheEntry{series: series}
	if c.ttl > 0 {
		entry.expiresAt = c.now().Add(c.ttl)
	}
	c.lru.Add(key, entry)
}

func (c *seriesCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lru.Len()
}
