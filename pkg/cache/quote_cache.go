package cache

import (
	"hash/fnv"
	"sync"
	"time"
)

const numShards = 16

// Quote is a cached price snapshot.
type Quote struct {
	Price     float64
	Change24h float64
	MarketCap float64
	Volume24h float64
	FetchedAt time.Time
}

// ShardedQuoteCache is a high-performance quote cache with sharding.
type ShardedQuoteCache struct {
	shards [numShards]*quoteShard
}

type quoteShard struct {
	mu    sync.RWMutex
	items map[string]Quote
}

// NewShardedQuoteCache creates a new sharded cache.
func NewShardedQuoteCache() *ShardedQuoteCache {
	c := &ShardedQuoteCache{}
	for i := 0; i < numShards; i++ {
		c.shards[i] = &quoteShard{
			items: make(map[string]Quote),
		}
	}
	return c
}

// getShard returns the shard for the given key.
func (c *ShardedQuoteCache) getShard(key string) *quoteShard {
	h := fnv.New32a()
	h.Write([]byte(key))
	return c.shards[h.Sum32()%numShards]
}

// Set stores a quote for a symbol, stamping it with the current time.
func (c *ShardedQuoteCache) Set(symbol string, q Quote) {
	shard := c.getShard(symbol)
	shard.mu.Lock()
	q.FetchedAt = time.Now()
	shard.items[symbol] = q
	shard.mu.Unlock()
}

// Get retrieves a quote for a symbol.
func (c *ShardedQuoteCache) Get(symbol string) (Quote, bool) {
	shard := c.getShard(symbol)
	shard.mu.RLock()
	q, ok := shard.items[symbol]
	shard.mu.RUnlock()
	return q, ok
}

// GetWithAge retrieves a quote and its age.
func (c *ShardedQuoteCache) GetWithAge(symbol string) (Quote, time.Duration, bool) {
	shard := c.getShard(symbol)
	shard.mu.RLock()
	q, ok := shard.items[symbol]
	shard.mu.RUnlock()
	if !ok {
		return Quote{}, 0, false
	}
	return q, time.Since(q.FetchedAt), true
}

// Delete removes a symbol from the cache.
func (c *ShardedQuoteCache) Delete(symbol string) {
	shard := c.getShard(symbol)
	shard.mu.Lock()
	delete(shard.items, symbol)
	shard.mu.Unlock()
}

// Len returns total items across all shards.
func (c *ShardedQuoteCache) Len() int {
	total := 0
	for _, shard := range c.shards {
		shard.mu.RLock()
		total += len(shard.items)
		shard.mu.RUnlock()
	}
	return total
}

// Cleanup removes entries older than maxAge.
func (c *ShardedQuoteCache) Cleanup(maxAge time.Duration) int {
	removed := 0
	cutoff := time.Now().Add(-maxAge)

	for _, shard := range c.shards {
		shard.mu.Lock()
		for sym, q := range shard.items {
			if q.FetchedAt.Before(cutoff) {
				delete(shard.items, sym)
				removed++
			}
		}
		shard.mu.Unlock()
	}
	return removed
}

// GetAll returns all cached quotes (for debugging/admin).
func (c *ShardedQuoteCache) GetAll() map[string]Quote {
	result := make(map[string]Quote)
	for _, shard := range c.shards {
		shard.mu.RLock()
		for sym, q := range shard.items {
			result[sym] = q
		}
		shard.mu.RUnlock()
	}
	return result
}

// CacheStats provides cache statistics.
type CacheStats struct {
	TotalItems  int            `json:"total_items"`
	ShardCounts [numShards]int `json:"shard_counts"`
	OldestAge   time.Duration  `json:"oldest_age"`
}

// Stats returns cache statistics.
func (c *ShardedQuoteCache) Stats() CacheStats {
	stats := CacheStats{}
	var oldest time.Time

	for i, shard := range c.shards {
		shard.mu.RLock()
		stats.ShardCounts[i] = len(shard.items)
		stats.TotalItems += len(shard.items)
		for _, q := range shard.items {
			if oldest.IsZero() || q.FetchedAt.Before(oldest) {
				oldest = q.FetchedAt
			}
		}
		shard.mu.RUnlock()
	}

	if !oldest.IsZero() {
		stats.OldestAge = time.Since(oldest)
	}
	return stats
}
