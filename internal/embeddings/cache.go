package embeddings

import (
	"crypto/sha256"
	"encoding/hex"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
)

// cacheKey hashes text content so arbitrarily long inputs key a fixed-size
// entry.
func cacheKey(text string) string {
	sum := sha256.Sum256([]byte(text))
	return hex.EncodeToString(sum[:])
}

// vectorCache is a bounded LRU with TTL expiry over embedding vectors.
// Vectors are immutable once produced, so entries never need invalidation,
// only capacity and age based eviction.
type vectorCache struct {
	lru *expirable.LRU[string, []float32]
}

func newVectorCache(size int, ttl time.Duration) *vectorCache {
	return &vectorCache{
		lru: expirable.NewLRU[string, []float32](size, nil, ttl),
	}
}

func (c *vectorCache) get(text string) ([]float32, bool) {
	return c.lru.Get(cacheKey(text))
}

func (c *vectorCache) put(text string, vector []float32) {
	c.lru.Add(cacheKey(text), vector)
}

func (c *vectorCache) len() int {
	return c.lru.Len()
}
