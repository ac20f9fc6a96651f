package context

import (
	"container/list"
	"crypto/sha256"
	"encoding/hex"
	"sync"
)

// Cache holds LRU caches of embeddings and summaries keyed by a SHA-256
// hash of their source text, mirroring the original implementation's
// CompressionCache. Safe for concurrent use.
type Cache struct {
	mu sync.Mutex

	maxEmbeddings int
	embeddings    map[string]*list.Element
	embeddingLRU  *list.List

	maxSummaries int
	summaries    map[string]*list.Element
	summaryLRU   *list.List
}

type embeddingEntry struct {
	key   string
	value []float32
}

type summaryEntry struct {
	key   string
	value string
}

// NewCache creates a Cache with the given per-kind capacities.
func NewCache(maxEmbeddings, maxSummaries int) *Cache {
	return &Cache{
		maxEmbeddings: maxEmbeddings,
		embeddings:    make(map[string]*list.Element),
		embeddingLRU:  list.New(),
		maxSummaries:  maxSummaries,
		summaries:     make(map[string]*list.Element),
		summaryLRU:    list.New(),
	}
}

// cacheKey hashes text content into a stable cache key.
func cacheKey(text string) string {
	sum := sha256.Sum256([]byte(text))
	return hex.EncodeToString(sum[:])
}

// GetEmbedding returns a cached embedding for text, if present, marking it
// as most-recently-used.
func (c *Cache) GetEmbedding(text string) ([]float32, bool) {
	key := cacheKey(text)
	c.mu.Lock()
	defer c.mu.Unlock()
	el, ok := c.embeddings[key]
	if !ok {
		return nil, false
	}
	c.embeddingLRU.MoveToFront(el)
	return el.Value.(*embeddingEntry).value, true
}

// PutEmbedding stores an embedding for text, evicting the least-recently-used
// entry if at capacity.
func (c *Cache) PutEmbedding(text string, embedding []float32) {
	key := cacheKey(text)
	c.mu.Lock()
	defer c.mu.Unlock()

	if el, ok := c.embeddings[key]; ok {
		el.Value.(*embeddingEntry).value = embedding
		c.embeddingLRU.MoveToFront(el)
		return
	}

	if c.maxEmbeddings > 0 && c.embeddingLRU.Len() >= c.maxEmbeddings {
		oldest := c.embeddingLRU.Back()
		if oldest != nil {
			c.embeddingLRU.Remove(oldest)
			delete(c.embeddings, oldest.Value.(*embeddingEntry).key)
		}
	}

	el := c.embeddingLRU.PushFront(&embeddingEntry{key: key, value: embedding})
	c.embeddings[key] = el
}

// GetSummary returns a cached summary for text, if present, marking it as
// most-recently-used.
func (c *Cache) GetSummary(text string) (string, bool) {
	key := cacheKey(text)
	c.mu.Lock()
	defer c.mu.Unlock()
	el, ok := c.summaries[key]
	if !ok {
		return "", false
	}
	c.summaryLRU.MoveToFront(el)
	return el.Value.(*summaryEntry).value, true
}

// PutSummary stores a summary for text, evicting the least-recently-used
// entry if at capacity.
func (c *Cache) PutSummary(text, summary string) {
	key := cacheKey(text)
	c.mu.Lock()
	defer c.mu.Unlock()

	if el, ok := c.summaries[key]; ok {
		el.Value.(*summaryEntry).value = summary
		c.summaryLRU.MoveToFront(el)
		return
	}

	if c.maxSummaries > 0 && c.summaryLRU.Len() >= c.maxSummaries {
		oldest := c.summaryLRU.Back()
		if oldest != nil {
			c.summaryLRU.Remove(oldest)
			delete(c.summaries, oldest.Value.(*summaryEntry).key)
		}
	}

	el := c.summaryLRU.PushFront(&summaryEntry{key: key, value: summary})
	c.summaries[key] = el
}

// Clear empties both caches.
func (c *Cache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.embeddings = make(map[string]*list.Element)
	c.embeddingLRU = list.New()
	c.summaries = make(map[string]*list.Element)
	c.summaryLRU = list.New()
}

// CacheStats reports current cache occupancy.
type CacheStats struct {
	EmbeddingEntries    int
	SummaryEntries      int
	MaxEmbeddingEntries int
	MaxSummaryEntries   int
}

func (c *Cache) Stats() CacheStats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return CacheStats{
		EmbeddingEntries:    len(c.embeddings),
		SummaryEntries:      len(c.summaries),
		MaxEmbeddingEntries: c.maxEmbeddings,
		MaxSummaryEntries:   c.maxSummaries,
	}
}
