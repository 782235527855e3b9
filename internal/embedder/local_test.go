package embedder

import (
	"context"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func cosine(a, b []float32) float64 {
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}

func TestLocalProvider(t *testing.T) {
	ctx := context.Background()
	provider, err := NewLocalProvider(0, NewCache(10))
	require.NoError(t, err)
	defer provider.Close()

	t.Run("provider metadata", func(t *testing.T) {
		assert.Equal(t, ProviderLocal, provider.Provider())
		assert.Equal(t, LocalDimension, provider.Dimension())
		assert.NotEmpty(t, provider.Model())
	})

	t.Run("custom dimension", func(t *testing.T) {
		small, err := NewLocalProvider(16, nil)
		require.NoError(t, err)
		emb, err := small.GenerateEmbedding(ctx, EmbeddingRequest{Text: "lattice gauge theory"})
		require.NoError(t, err)
		assert.Len(t, emb.Vector, 16)
	})

	t.Run("unit length", func(t *testing.T) {
		emb, err := provider.GenerateEmbedding(ctx, EmbeddingRequest{Text: "the stochastic gradient method"})
		require.NoError(t, err)
		require.Len(t, emb.Vector, LocalDimension)

		var sum float64
		for _, v := range emb.Vector {
			sum += float64(v) * float64(v)
		}
		assert.InDelta(t, 1.0, sum, 1e-5)
	})

	t.Run("deterministic", func(t *testing.T) {
		fresh, err := NewLocalProvider(0, nil)
		require.NoError(t, err)
		a, err := fresh.GenerateEmbedding(ctx, EmbeddingRequest{Text: "Spectral methods"})
		require.NoError(t, err)
		b, err := fresh.GenerateEmbedding(ctx, EmbeddingRequest{Text: "Spectral methods"})
		require.NoError(t, err)
		assert.Equal(t, a.Vector, b.Vector)
	})

	t.Run("shared vocabulary ranks higher", func(t *testing.T) {
		query, err := provider.GenerateEmbedding(ctx, EmbeddingRequest{Text: QueryPrefix + "convergence of the gradient method"})
		require.NoError(t, err)
		near, err := provider.GenerateEmbedding(ctx, EmbeddingRequest{Text: PassagePrefix + "We prove convergence of the gradient method for convex losses."})
		require.NoError(t, err)
		far, err := provider.GenerateEmbedding(ctx, EmbeddingRequest{Text: PassagePrefix + "Bird migration patterns in northern Europe."})
		require.NoError(t, err)

		assert.Greater(t, cosine(query.Vector, near.Vector), cosine(query.Vector, far.Vector))
	})

	t.Run("prefix does not change tokens", func(t *testing.T) {
		plain, err := provider.GenerateEmbedding(ctx, EmbeddingRequest{Text: "heat equation"})
		require.NoError(t, err)
		prefixed, err := provider.GenerateEmbedding(ctx, EmbeddingRequest{Text: PassagePrefix + "heat equation"})
		require.NoError(t, err)
		assert.Equal(t, plain.Vector, prefixed.Vector)
	})

	t.Run("batch preserves order", func(t *testing.T) {
		texts := []string{"alpha", "beta", "gamma"}
		resp, err := provider.GenerateBatch(ctx, BatchEmbeddingRequest{Texts: texts})
		require.NoError(t, err)
		require.Len(t, resp.Embeddings, 3)

		for i, text := range texts {
			single, err := provider.GenerateEmbedding(ctx, EmbeddingRequest{Text: text})
			require.NoError(t, err)
			assert.Equal(t, single.Vector, resp.Embeddings[i].Vector, "text %d", i)
			assert.Equal(t, ComputeHash(text), resp.Embeddings[i].Hash)
		}
	})

	t.Run("validation errors", func(t *testing.T) {
		_, err := provider.GenerateEmbedding(ctx, EmbeddingRequest{Text: ""})
		assert.ErrorIs(t, err, ErrEmptyText)

		_, err = provider.GenerateBatch(ctx, BatchEmbeddingRequest{Texts: []string{}})
		assert.ErrorIs(t, err, ErrInvalidInput)
	})

	t.Run("context cancellation", func(t *testing.T) {
		cancelled, cancel := context.WithCancel(ctx)
		cancel()

		_, err := provider.GenerateEmbedding(cancelled, EmbeddingRequest{Text: "uncached text"})
		assert.ErrorIs(t, err, context.Canceled)
	})
}
