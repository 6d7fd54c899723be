package embedder

import (
	"context"
	"crypto/sha256"
	"encoding/hex"

	lru "github.com/hashicorp/golang-lru/v2"
)

const DefaultCacheSize = 1024

// CachedEmbedder keeps recent embeddings in an LRU so repeated search queries
// skip the inference round trip
type CachedEmbedder struct {
	inner Embedder
	cache *lru.Cache[string, []float32]
}

func NewCachedEmbedder(inner Embedder, size int) *CachedEmbedder {
	if size <= 0 {
		size = DefaultCacheSize
	}

	cache, _ := lru.New[string, []float32](size)

	return &CachedEmbedder{inner: inner, cache: cache}
}

func cacheKey(text string) string {
	sum := sha256.Sum256([]byte(text))
	return hex.EncodeToString(sum[:])
}

func (c *CachedEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	key := cacheKey(text)

	if vec, ok := c.cache.Get(key); ok {
		return vec, nil
	}

	vec, err := c.inner.Embed(ctx, text)
	if err != nil {
		return nil, err
	}

	c.cache.Add(key, vec)
	return vec, nil
}

func (c *CachedEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	inputs := filterEmpty(texts)
	if len(inputs) == 0 {
		return nil, ErrEmptyBatch
	}

	results := make([][]float32, len(inputs))
	missingIdx := make([]int, 0, len(inputs))
	missing := make([]string, 0, len(inputs))

	for i, text := range inputs {
		if vec, ok := c.cache.Get(cacheKey(text)); ok {
			results[i] = vec
			continue
		}

		missingIdx = append(missingIdx, i)
		missing = append(missing, text)
	}

	if len(missing) == 0 {
		return results, nil
	}

	vectors, err := c.inner.EmbedBatch(ctx, missing)
	if err != nil {
		return nil, err
	}

	for j, idx := range missingIdx {
		results[idx] = vectors[j]
		c.cache.Add(cacheKey(inputs[idx]), vectors[j])
	}

	return results, nil
}

func (c *CachedEmbedder) Dimensions() int {
	return c.inner.Dimensions()
}

func (c *CachedEmbedder) Health(ctx context.Context) error {
	return c.inner.Health(ctx)
}

func (c *CachedEmbedder) Len() int {
	return c.cache.Len()
}
