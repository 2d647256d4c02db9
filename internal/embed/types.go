// Package embed turns document text into dense vectors. Providers implement
// Embedder; Augmenter feeds a corpus through one in fixed batches and never
// fails the keyword pipeline.
package embed

import (
	"context"
	"hash/fnv"
	"math"
	"math/rand"
)

const (
	// DefaultBatchSize is the number of texts per provider call.
	DefaultBatchSize = 32
	MaxBatchSize     = 256

	// StaticDimensions is the width of the offline hash embedder.
	StaticDimensions = 256

	// MaxEmbedChars bounds how much of a document is sent to a provider.
	MaxEmbedChars = 8000
)

// Embedder generates vector embeddings for text.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	// EmbedBatch returns one vector per input, in order.
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
	Dimensions() int
	ModelName() string
	Available(ctx context.Context) bool
	Close() error
}

// normalizeVector returns v scaled to unit length; a zero vector is
// returned unchanged.
func normalizeVector(v []float32) []float32 {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	if sum == 0 {
		return v
	}
	mag := math.Sqrt(sum)
	out := make([]float32, len(v))
	for i, x := range v {
		out[i] = float32(float64(x) / mag)
	}
	return out
}

// FallbackVector is a deterministic unit vector seeded from an FNV hash of
// text. It stands in for a real embedding when a provider batch fails, so
// the vector store always receives vectors of the expected width.
func FallbackVector(text string, dims int) []float32 {
	if dims <= 0 {
		return nil
	}
	h := fnv.New64a()
	_, _ = h.Write([]byte(text))
	rng := rand.New(rand.NewSource(int64(h.Sum64())))

	v := make([]float32, dims)
	for i := range v {
		v[i] = float32(rng.NormFloat64())
	}
	return normalizeVector(v)
}

func truncate(text string) string {
	if len(text) <= MaxEmbedChars {
		return text
	}
	// Back off to a rune boundary.
	cut := MaxEmbedChars
	for cut > 0 && text[cut]&0xC0 == 0x80 {
		cut--
	}
	return text[:cut]
}
