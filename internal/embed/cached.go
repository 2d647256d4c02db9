package embed

import (
	"context"
	"crypto/sha256"
	"encoding/hex"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/Aman-CERP/amanidx/internal/telemetry"
)

// DefaultCacheSize is the number of vectors a CachedEmbedder keeps.
const DefaultCacheSize = 1000

// CachedEmbedder memoises an Embedder by (model, text). Re-indexing an
// unchanged document and repeating a semantic query both hit it.
type CachedEmbedder struct {
	inner   Embedder
	cache   *lru.Cache[string, []float32]
	metrics *telemetry.Metrics
}

// NewCachedEmbedder uses DefaultCacheSize when size <= 0. metrics may be nil.
func NewCachedEmbedder(inner Embedder, size int, metrics *telemetry.Metrics) *CachedEmbedder {
	if size <= 0 {
		size = DefaultCacheSize
	}
	cache, _ := lru.New[string, []float32](size)
	return &CachedEmbedder{inner: inner, cache: cache, metrics: metrics}
}

func (c *CachedEmbedder) key(text string) string {
	sum := sha256.Sum256([]byte(c.inner.ModelName() + "\x00" + text))
	return hex.EncodeToString(sum[:])
}

func (c *CachedEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	k := c.key(text)
	if v, ok := c.cache.Get(k); ok {
		c.metrics.EmbeddingCache(true)
		return v, nil
	}
	c.metrics.EmbeddingCache(false)
	v, err := c.inner.Embed(ctx, text)
	if err != nil {
		return nil, err
	}
	c.cache.Add(k, v)
	return v, nil
}

// EmbedBatch only forwards the texts that missed.
func (c *CachedEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	keys := make([]string, len(texts))
	var missIdx []int
	var missTexts []string

	for i, t := range texts {
		keys[i] = c.key(t)
		if v, ok := c.cache.Get(keys[i]); ok {
			out[i] = v
			c.metrics.EmbeddingCache(true)
			continue
		}
		c.metrics.EmbeddingCache(false)
		missIdx = append(missIdx, i)
		missTexts = append(missTexts, t)
	}
	if len(missTexts) == 0 {
		return out, nil
	}

	vecs, err := c.inner.EmbedBatch(ctx, missTexts)
	if err != nil {
		return nil, err
	}
	for j, i := range missIdx {
		out[i] = vecs[j]
		c.cache.Add(keys[i], vecs[j])
	}
	return out, nil
}

// Len is the number of cached vectors.
func (c *CachedEmbedder) Len() int { return c.cache.Len() }

// Purge empties the cache.
func (c *CachedEmbedder) Purge() { c.cache.Purge() }

func (c *CachedEmbedder) Inner() Embedder                    { return c.inner }
func (c *CachedEmbedder) Dimensions() int                    { return c.inner.Dimensions() }
func (c *CachedEmbedder) ModelName() string                  { return c.inner.ModelName() }
func (c *CachedEmbedder) Available(ctx context.Context) bool { return c.inner.Available(ctx) }
func (c *CachedEmbedder) Close() error                       { return c.inner.Close() }
