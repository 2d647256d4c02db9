package embed

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	amerrors "github.com/Aman-CERP/amanidx/internal/errors"
	"github.com/Aman-CERP/amanidx/internal/store"
	"github.com/Aman-CERP/amanidx/internal/telemetry"
)

const snippetLen = 200

// Item is one document to embed.
type Item struct {
	ID       string
	Content  string
	Category string
	Language string
}

// AugmentStats reports how a run went.
type AugmentStats struct {
	Batches       int
	FailedBatches int
	Fallbacks     int
}

// AugmenterConfig tunes an Augmenter. Zero values are usable.
type AugmenterConfig struct {
	// BatchSize defaults to DefaultBatchSize and is capped at MaxBatchSize.
	BatchSize int
	Breaker   *amerrors.CircuitBreaker
	Metrics   *telemetry.Metrics
	Logger    *slog.Logger
	// Progress is called after each batch.
	Progress func(done, total int)
}

// Augmenter embeds documents batch by batch. A failing batch is replaced
// with FallbackVector output so every item still gets a vector of the
// provider's width; only context cancellation stops a run.
type Augmenter struct {
	embedder Embedder
	cfg      AugmenterConfig
}

func NewAugmenter(e Embedder, cfg AugmenterConfig) *Augmenter {
	switch {
	case cfg.BatchSize <= 0:
		cfg.BatchSize = DefaultBatchSize
	case cfg.BatchSize > MaxBatchSize:
		cfg.BatchSize = MaxBatchSize
	}
	if cfg.Breaker == nil {
		cfg.Breaker = amerrors.NewCircuitBreaker("embed:" + e.ModelName())
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Augmenter{embedder: e, cfg: cfg}
}

func (a *Augmenter) Dimensions() int { return a.embedder.Dimensions() }
func (a *Augmenter) ModelName() string { return a.embedder.ModelName() }

// Embed returns one VectorDocument per item, in order.
func (a *Augmenter) Embed(ctx context.Context, items []Item) ([]store.VectorDocument, AugmentStats, error) {
	var stats AugmentStats
	docs := make([]store.VectorDocument, 0, len(items))
	dims := a.embedder.Dimensions()
	model := a.embedder.ModelName()

	for start := 0; start < len(items); start += a.cfg.BatchSize {
		if err := ctx.Err(); err != nil {
			return nil, stats, err
		}
		end := min(start+a.cfg.BatchSize, len(items))
		batch := items[start:end]
		texts := make([]string, len(batch))
		for i, it := range batch {
			texts[i] = it.Content
		}

		vecs, err := a.embedBatch(ctx, texts, dims)
		stats.Batches++
		if err != nil {
			if ctx.Err() != nil {
				return nil, stats, ctx.Err()
			}
			stats.FailedBatches++
			stats.Fallbacks += len(batch)
			a.cfg.Metrics.AddEmbeddingFallbacks(model, len(batch))
			attrs := append([]slog.Attr{
				slog.String("model", model),
				slog.Int("batch_start", start),
				slog.Int("batch_size", len(batch)),
			}, amerrors.LogAttrs(amerrors.EmbeddingError(err))...)
			a.cfg.Logger.LogAttrs(ctx, slog.LevelWarn, "embedding batch failed, using fallback vectors", attrs...)

			vecs = make([][]float32, len(batch))
			for i, t := range texts {
				vecs[i] = FallbackVector(t, dims)
			}
		}

		for i, it := range batch {
			docs = append(docs, store.VectorDocument{
				ID:        it.ID,
				Embedding: vecs[i],
				Metadata: store.VectorMetadata{
					Snippet:  snippet(it.Content),
					Category: it.Category,
					Language: it.Language,
				},
			})
		}
		if a.cfg.Progress != nil {
			a.cfg.Progress(end, len(items))
		}
	}
	return docs, stats, nil
}

func (a *Augmenter) embedBatch(ctx context.Context, texts []string, dims int) ([][]float32, error) {
	var vecs [][]float32
	start := time.Now()
	err := a.cfg.Breaker.Execute(func() error {
		var err error
		vecs, err = a.embedder.EmbedBatch(ctx, texts)
		if err != nil {
			return err
		}
		if len(vecs) != len(texts) {
			return fmt.Errorf("provider returned %d vectors for %d texts", len(vecs), len(texts))
		}
		for _, v := range vecs {
			if len(v) != dims {
				return fmt.Errorf("provider returned width %d, want %d", len(v), dims)
			}
		}
		return nil
	})
	if !errors.Is(err, amerrors.ErrCircuitOpen) {
		a.cfg.Metrics.ObserveEmbedding(a.embedder.ModelName(), err, time.Since(start))
	}
	return vecs, err
}

// EmbedQuery embeds a single query without fallback: a semantic search
// with a made-up vector would return noise.
func (a *Augmenter) EmbedQuery(ctx context.Context, query string) ([]float32, error) {
	var v []float32
	err := a.cfg.Breaker.Execute(func() error {
		var err error
		v, err = a.embedder.Embed(ctx, query)
		return err
	})
	if err != nil {
		return nil, amerrors.EmbeddingError(err)
	}
	return v, nil
}

func snippet(content string) string {
	s := strings.TrimSpace(content)
	if len(s) <= snippetLen {
		return s
	}
	r := []rune(s)
	if len(r) <= snippetLen {
		return s
	}
	return string(r[:snippetLen])
}
