package embed

import (
	"context"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Aman-CERP/amanidx/internal/telemetry"
)

func TestCachedEmbedder_EmbedHitsCache(t *testing.T) {
	// Given: a cached fake
	inner := newFake(4)
	m := telemetry.NewMetrics(prometheus.NewRegistry())
	c := NewCachedEmbedder(inner, 10, m)
	ctx := context.Background()

	// When: embedding the same text twice
	a, err := c.Embed(ctx, "hello")
	require.NoError(t, err)
	b, err := c.Embed(ctx, "hello")
	require.NoError(t, err)

	// Then: the provider was called once
	assert.Equal(t, a, b)
	assert.Equal(t, 1, inner.callCount())
	assert.Equal(t, 1, c.Len())
	assert.Equal(t, 1.0, testutil.ToFloat64(m.EmbeddingCacheTotal.WithLabelValues("hit")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.EmbeddingCacheTotal.WithLabelValues("miss")))
}

func TestCachedEmbedder_BatchForwardsOnlyMisses(t *testing.T) {
	inner := newFake(4)
	c := NewCachedEmbedder(inner, 10, nil)
	ctx := context.Background()
	_, err := c.Embed(ctx, "b")
	require.NoError(t, err)

	vecs, err := c.EmbedBatch(ctx, []string{"a", "b", "c"})

	require.NoError(t, err)
	require.Len(t, vecs, 3)
	for _, v := range vecs {
		assert.Len(t, v, 4)
	}
	assert.Equal(t, []string{"a", "c"}, inner.batches[1])

	_, err = c.EmbedBatch(ctx, []string{"a", "c"})
	require.NoError(t, err)
	assert.Equal(t, 2, inner.callCount())
}

func TestCachedEmbedder_ErrorsAreNotCached(t *testing.T) {
	inner := newFake(4)
	inner.failAll = true
	c := NewCachedEmbedder(inner, 0, nil)

	_, err := c.Embed(context.Background(), "x")

	assert.ErrorIs(t, err, errFake)
	assert.Equal(t, 0, c.Len())
}

func TestCachedEmbedder_Passthrough(t *testing.T) {
	inner := newFake(8)
	c := NewCachedEmbedder(inner, 5, nil)

	assert.Equal(t, 8, c.Dimensions())
	assert.Equal(t, "fake", c.ModelName())
	assert.Same(t, inner, c.Inner())
	assert.True(t, c.Available(context.Background()))

	_, _ = c.Embed(context.Background(), "x")
	c.Purge()
	assert.Equal(t, 0, c.Len())
	assert.NoError(t, c.Close())
}
