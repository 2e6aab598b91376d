package adapters

import (
	"sync"
	"time"

	"github.com/Rajchodisetti/price-alerts/internal/observ"
)

// ResultCache holds the last fetched series per symbol. Entries expire after
// the freshness window of the symbol's class and are evicted lazily on the
// next lookup.
type ResultCache struct {
	mu        sync.Mutex
	entries   map[string]cacheEntry
	freshness map[AssetClass]time.Duration
	clock     Clock
	metrics   CacheMetrics
}

type cacheEntry struct {
	series    *TimeSeries
	fetchedAt time.Time
}

// CacheMetrics tracks cache performance
type CacheMetrics struct {
	Hits      int64 `json:"hits"`
	Misses    int64 `json:"misses"`
	Evictions int64 `json:"evictions"`
	Size      int   `json:"size"`
}

// NewResultCache creates a cache with per-class freshness windows
func NewResultCache(equityTTL, cryptoTTL time.Duration, clock Clock) *ResultCache {
	if clock == nil {
		clock = SystemClock
	}
	return &ResultCache{
		entries: make(map[string]cacheEntry),
		freshness: map[AssetClass]time.Duration{
			ClassEquity: equityTTL,
			ClassCrypto: cryptoTTL,
		},
		clock: clock,
	}
}

// Freshness returns the window for a class
func (c *ResultCache) Freshness(class AssetClass) time.Duration {
	return c.freshness[class]
}

// Lookup returns the cached series while it is fresh
func (c *ResultCache) Lookup(symbol string) (*TimeSeries, bool) {
	class := Classify(symbol)

	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.entries[symbol]
	if !ok {
		c.metrics.Misses++
		observ.RecordCacheEvent(class.String(), "miss")
		return nil, false
	}

	age := c.clock.Now().Sub(entry.fetchedAt)
	if age >= c.freshness[class] {
		delete(c.entries, symbol)
		c.metrics.Misses++
		c.metrics.Evictions++
		observ.RecordCacheEvent(class.String(), "evict")
		observ.SetCacheSize(len(c.entries))
		observ.Debug("quote_cache_expired", map[string]any{
			"symbol": symbol,
			"age_ms": age.Milliseconds(),
		})
		return nil, false
	}

	c.metrics.Hits++
	observ.RecordCacheEvent(class.String(), "hit")
	return entry.series, true
}

// Store overwrites any entry for symbol, stamped with the current time
func (c *ResultCache) Store(symbol string, series *TimeSeries) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries[symbol] = cacheEntry{series: series, fetchedAt: c.clock.Now()}
	observ.RecordCacheEvent(Classify(symbol).String(), "store")
	observ.SetCacheSize(len(c.entries))
}

// FetchedAt reports when symbol was last stored, expired or not
func (c *ResultCache) FetchedAt(symbol string) (time.Time, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	entry, ok := c.entries[symbol]
	return entry.fetchedAt, ok
}

// Metrics returns a snapshot of hit/miss counters
func (c *ResultCache) Metrics() CacheMetrics {
	c.mu.Lock()
	defer c.mu.Unlock()
	m := c.metrics
	m.Size = len(c.entries)
	return m
}
