package embedding

import (
	"context"

	"github.com/dgraph-io/ristretto"
	"github.com/m-mizutani/goerr/v2"
	"github.com/secmon-lab/mnemosyne/pkg/domain/interfaces"
)

// Cached memoizes embeddings by exact text. A retrieval embeds its query once
// and repeated CLI/agent queries often reuse the same text.
type Cached struct {
	inner interfaces.Embedder
	cache *ristretto.Cache
}

var _ interfaces.Embedder = &Cached{}

// NewCached wraps inner with a cache holding up to capacity vectors
func NewCached(inner interfaces.Embedder, capacity int64) (*Cached, error) {
	if capacity <= 0 {
		return nil, goerr.New("cache capacity must be positive", goerr.V("capacity", capacity))
	}

	cache, err := ristretto.NewCache(&ristretto.Config{
		NumCounters: capacity * 10,
		MaxCost:     capacity,
		BufferItems: 64,
	})
	if err != nil {
		return nil, goerr.Wrap(err, "failed to create embedding cache")
	}

	return &Cached{inner: inner, cache: cache}, nil
}

func (c *Cached) Dimension() int {
	return c.inner.Dimension()
}

func (c *Cached) lookup(text string) ([]float32, bool) {
	v, ok := c.cache.Get(text)
	if !ok {
		return nil, false
	}
	vec, ok := v.([]float32)
	if !ok {
		return nil, false
	}
	return append([]float32(nil), vec...), true
}

func (c *Cached) store(text string, vec []float32) {
	c.cache.Set(text, append([]float32(nil), vec...), 1)
}

func (c *Cached) Embed(ctx context.Context, text string) ([]float32, error) {
	if vec, ok := c.lookup(text); ok {
		return vec, nil
	}

	vec, err := c.inner.Embed(ctx, text)
	if err != nil {
		return nil, err
	}
	c.store(text, vec)
	return vec, nil
}

func (c *Cached) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	result := make([][]float32, len(texts))
	var missing []string
	var missingIdx []int

	for i, text := range texts {
		if vec, ok := c.lookup(text); ok {
			result[i] = vec
			continue
		}
		missing = append(missing, text)
		missingIdx = append(missingIdx, i)
	}

	if len(missing) == 0 {
		return result, nil
	}

	vectors, err := c.inner.EmbedBatch(ctx, missing)
	if err != nil {
		return nil, err
	}
	for i, vec := range vectors {
		result[missingIdx[i]] = vec
		c.store(missing[i], vec)
	}
	return result, nil
}

// Close stops the cache's background goroutines
func (c *Cached) Close() {
	c.cache.Close()
}
