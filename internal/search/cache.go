// Package search implements hybrid BM25+vector result fusion
// (spec.md §4.4): parallel lexical/vector fan-out via errgroup,
// weighted normalized-score fusion, and the LRU caching layer ported
// from original_source/src/search/cache.rs's CacheLayer.
package search

import (
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
)

// Default cache sizes, ported verbatim from cache.rs's
// DEFAULT_QUERY_CACHE_SIZE / DEFAULT_EMBEDDING_CACHE_SIZE.
const (
	DefaultQueryCacheSize     = 128
	DefaultEmbeddingCacheSize = 1024
)

// CachedQueryResult is a query cache entry with bookkeeping for hits,
// mirroring cache.rs's CachedQueryResult.
type CachedQueryResult struct {
	Results  []HybridResult
	CachedAt time.Time
	HitCount uint64
}

// CachedEmbedding is an embedding cache entry, invalidated by content
// hash mismatch rather than TTL, mirroring cache.rs's CachedEmbedding.
type CachedEmbedding struct {
	Embedding   []float32
	ContentHash string
}

// CacheStats tracks hit/miss counters per cache, mirroring cache.rs's
// CacheStats.
type CacheStats struct {
	QueryHits       uint64
	QueryMisses     uint64
	EmbeddingHits   uint64
	EmbeddingMisses uint64
}

// QueryHitRate returns the query cache's hit rate, 0 if no accesses
// have occurred yet.
func (s CacheStats) QueryHitRate() float64 {
	return hitRate(s.QueryHits, s.QueryMisses)
}

// EmbeddingHitRate returns the embedding cache's hit rate, 0 if no
// accesses have occurred yet.
func (s CacheStats) EmbeddingHitRate() float64 {
	return hitRate(s.EmbeddingHits, s.EmbeddingMisses)
}

func hitRate(hits, misses uint64) float64 {
	total := hits + misses
	if total == 0 {
		return 0
	}
	return float64(hits) / float64(total)
}

// queryKey is the (query, limit) cache key, hashed the same way
// cache.rs's query_hash combines both fields.
type queryKey struct {
	query string
	limit int
}

// CacheLayer is the thread-safe, non-blocking LRU caching layer used
// by Engine.Search: every cache access is a try-lock, and a contended
// lock is treated as a miss (spec.md §4.4, cache.rs's own doc comment
// "All cache operations are non-blocking").
type CacheLayer struct {
	mu         sync.Mutex
	queryCache *lru.Cache[queryKey, *CachedQueryResult]

	embeddingMu    sync.Mutex
	embeddingCache *lru.Cache[string, CachedEmbedding]

	statsMu sync.Mutex
	stats   CacheStats
}

// NewCacheLayer builds a cache layer with the default sizes.
func NewCacheLayer() *CacheLayer {
	layer, err := NewCacheLayerWithSizes(DefaultQueryCacheSize, DefaultEmbeddingCacheSize)
	if err != nil {
		// Only reachable with a non-positive size, which the defaults
		// above never produce.
		panic(err)
	}
	return layer
}

// NewCacheLayerWithSizes builds a cache layer with custom sizes,
// mirroring cache.rs's with_sizes.
func NewCacheLayerWithSizes(querySize, embeddingSize int) (*CacheLayer, error) {
	qc, err := lru.New[queryKey, *CachedQueryResult](querySize)
	if err != nil {
		return nil, err
	}
	ec, err := lru.New[string, CachedEmbedding](embeddingSize)
	if err != nil {
		return nil, err
	}
	return &CacheLayer{queryCache: qc, embeddingCache: ec}, nil
}

// GetQuery returns cached results for (query, limit), or nil if
// uncached or the cache lock is contended.
func (c *CacheLayer) GetQuery(query string, limit int) ([]HybridResult, bool) {
	if !c.mu.TryLock() {
		return nil, false
	}
	defer c.mu.Unlock()

	key := queryKey{query: query, limit: limit}
	entry, ok := c.queryCache.Get(key)
	if !ok {
		c.recordQueryMiss()
		return nil, false
	}
	entry.HitCount++
	c.recordQueryHit()
	out := make([]HybridResult, len(entry.Results))
	copy(out, entry.Results)
	return out, true
}

// PutQuery caches results for (query, limit). Silently does nothing if
// the cache lock is contended.
func (c *CacheLayer) PutQuery(query string, limit int, results []HybridResult) {
	if !c.mu.TryLock() {
		return
	}
	defer c.mu.Unlock()

	cp := make([]HybridResult, len(results))
	copy(cp, results)
	c.queryCache.Add(queryKey{query: query, limit: limit}, &CachedQueryResult{
		Results:  cp,
		CachedAt: time.Now(),
	})
}

// GetEmbedding returns the cached embedding for skillID if its stored
// content hash matches contentHash, or nil on miss, hash mismatch, or
// lock contention.
func (c *CacheLayer) GetEmbedding(skillID, contentHash string) ([]float32, bool) {
	if !c.embeddingMu.TryLock() {
		return nil, false
	}
	defer c.embeddingMu.Unlock()

	entry, ok := c.embeddingCache.Get(skillID)
	if !ok || entry.ContentHash != contentHash {
		c.recordEmbeddingMiss()
		return nil, false
	}
	c.recordEmbeddingHit()
	out := make([]float32, len(entry.Embedding))
	copy(out, entry.Embedding)
	return out, true
}

// PutEmbedding caches skillID's embedding under contentHash. Silently
// does nothing if the cache lock is contended.
func (c *CacheLayer) PutEmbedding(skillID, contentHash string, embedding []float32) {
	if !c.embeddingMu.TryLock() {
		return
	}
	defer c.embeddingMu.Unlock()

	cp := make([]float32, len(embedding))
	copy(cp, embedding)
	c.embeddingCache.Add(skillID, CachedEmbedding{Embedding: cp, ContentHash: contentHash})
}

// Stats returns a snapshot of the cache's hit/miss counters.
func (c *CacheLayer) Stats() CacheStats {
	c.statsMu.Lock()
	defer c.statsMu.Unlock()
	return c.stats
}

// Clear empties every cache and resets stats.
func (c *CacheLayer) Clear() {
	c.mu.Lock()
	c.queryCache.Purge()
	c.mu.Unlock()

	c.embeddingMu.Lock()
	c.embeddingCache.Purge()
	c.embeddingMu.Unlock()

	c.statsMu.Lock()
	c.stats = CacheStats{}
	c.statsMu.Unlock()
}

// Sizes returns the current (query, embedding) entry counts.
func (c *CacheLayer) Sizes() (query, embedding int) {
	return c.queryCache.Len(), c.embeddingCache.Len()
}

func (c *CacheLayer) recordQueryHit() {
	c.statsMu.Lock()
	c.stats.QueryHits++
	c.statsMu.Unlock()
}

func (c *CacheLayer) recordQueryMiss() {
	c.statsMu.Lock()
	c.stats.QueryMisses++
	c.statsMu.Unlock()
}

func (c *CacheLayer) recordEmbeddingHit() {
	c.statsMu.Lock()
	c.stats.EmbeddingHits++
	c.statsMu.Unlock()
}

func (c *CacheLayer) recordEmbeddingMiss() {
	c.statsMu.Lock()
	c.stats.EmbeddingMisses++
	c.statsMu.Unlock()
}
