// Package storetest provides a behavioural test suite shared by every
// vectorstore.Store implementation.
package storetest

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dshills/texsearch/internal/vectorstore"
	"github.com/dshills/texsearch/pkg/types"
)

// Dimension used by the suite's vectors.
const Dimension = 4

// Chunk builds a test chunk. Vectors point along axis so cosine scores are predictable.
func Chunk(id uint64, source, title string, ancestors []string, vector []float32) types.Chunk {
	return types.Chunk{
		ID:     id,
		Vector: vector,
		Payload: types.Payload{
			Title:          title,
			Level:          len(ancestors),
			Content:        title + " content",
			SourcePath:     source,
			SourceTextPath: source + ".txt",
			AncestorTitles: ancestors,
			Depth:          len(ancestors),
		},
	}
}

func seed(t *testing.T, store vectorstore.Store) {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, store.EnsureCollection(ctx, Dimension))
	require.NoError(t, store.Upsert(ctx, []types.Chunk{
		Chunk(1, "a.json", "Intro", []string{"Intro"}, []float32{1, 0, 0, 0}),
		Chunk(2, "a.json", "Method", []string{"Intro"}, []float32{0.9, 0.1, 0, 0}),
		Chunk(3, "b.json", "Results", []string{"Results"}, []float32{0, 1, 0, 0}),
		// Above the int64 range.
		Chunk(13836368054659399541, "b.json", "Details", []string{"Results", "Tables"}, []float32{0, 0, 1, 0}),
	}))
}

// Run executes the suite. newStore must return an empty store.
func Run(t *testing.T, newStore func(t *testing.T) vectorstore.Store) {
	t.Run("ensure collection is idempotent", func(t *testing.T) {
		store := newStore(t)
		ctx := context.Background()
		require.NoError(t, store.EnsureCollection(ctx, Dimension))
		require.NoError(t, store.EnsureCollection(ctx, Dimension))

		count, err := store.Count(ctx)
		require.NoError(t, err)
		assert.Equal(t, 0, count)

		names, err := store.Collections(ctx)
		require.NoError(t, err)
		assert.Len(t, names, 1)
	})

	t.Run("ensure collection rejects different dimension", func(t *testing.T) {
		store := newStore(t)
		ctx := context.Background()
		require.NoError(t, store.EnsureCollection(ctx, Dimension))
		err := store.EnsureCollection(ctx, Dimension+1)
		assert.ErrorIs(t, err, vectorstore.ErrDimensionMismatch)
	})

	t.Run("upsert overwrites by id", func(t *testing.T) {
		store := newStore(t)
		seed(t, store)
		ctx := context.Background()

		require.NoError(t, store.Upsert(ctx, []types.Chunk{
			Chunk(1, "a.json", "Intro v2", []string{"Intro"}, []float32{1, 0, 0, 0}),
		}))

		count, err := store.Count(ctx)
		require.NoError(t, err)
		assert.Equal(t, 4, count)

		results, err := store.Search(ctx, vectorstore.SearchRequest{Vector: []float32{1, 0, 0, 0}, Limit: 1})
		require.NoError(t, err)
		require.Len(t, results, 1)
		assert.Equal(t, uint64(1), results[0].ID)
		assert.Equal(t, "Intro v2", results[0].Payload.Title)
	})

	t.Run("upsert rejects wrong dimension", func(t *testing.T) {
		store := newStore(t)
		seed(t, store)
		err := store.Upsert(context.Background(), []types.Chunk{
			Chunk(9, "c.json", "Bad", []string{"Bad"}, []float32{1, 0}),
		})
		assert.ErrorIs(t, err, vectorstore.ErrDimensionMismatch)
	})

	t.Run("delete by source removes only that source", func(t *testing.T) {
		store := newStore(t)
		seed(t, store)
		ctx := context.Background()

		require.NoError(t, store.DeleteBySource(ctx, "a.json"))
		count, err := store.Count(ctx)
		require.NoError(t, err)
		assert.Equal(t, 2, count)

		require.NoError(t, store.DeleteBySource(ctx, "missing.json"))
		count, err = store.Count(ctx)
		require.NoError(t, err)
		assert.Equal(t, 2, count)
	})

	t.Run("search orders by descending score", func(t *testing.T) {
		store := newStore(t)
		seed(t, store)

		results, err := store.Search(context.Background(), vectorstore.SearchRequest{
			Vector: []float32{1, 0, 0, 0},
			Limit:  10,
		})
		require.NoError(t, err)
		require.Len(t, results, 4)
		assert.Equal(t, uint64(1), results[0].ID)
		assert.Equal(t, uint64(2), results[1].ID)
		for i := 1; i < len(results); i++ {
			assert.GreaterOrEqual(t, results[i-1].Score, results[i].Score)
		}
		assert.InDelta(t, 1.0, results[0].Score, 1e-6)
		assert.Equal(t, []string{"Intro"}, results[0].Payload.AncestorTitles)
		assert.Equal(t, "a.json", results[0].Payload.SourcePath)
	})

	t.Run("search applies limit and score threshold", func(t *testing.T) {
		store := newStore(t)
		seed(t, store)
		ctx := context.Background()

		results, err := store.Search(ctx, vectorstore.SearchRequest{Vector: []float32{1, 0, 0, 0}, Limit: 1})
		require.NoError(t, err)
		assert.Len(t, results, 1)

		threshold := 0.5
		results, err = store.Search(ctx, vectorstore.SearchRequest{
			Vector:         []float32{1, 0, 0, 0},
			Limit:          10,
			ScoreThreshold: &threshold,
		})
		require.NoError(t, err)
		require.Len(t, results, 2)
		for _, r := range results {
			assert.GreaterOrEqual(t, r.Score, threshold)
		}
	})

	t.Run("search filters by ancestor title and source", func(t *testing.T) {
		store := newStore(t)
		seed(t, store)
		ctx := context.Background()

		results, err := store.Search(ctx, vectorstore.SearchRequest{
			Vector: []float32{0, 0, 1, 0},
			Limit:  10,
			Filter: vectorstore.Filter{AncestorTitle: "Tables"},
		})
		require.NoError(t, err)
		require.Len(t, results, 1)
		assert.Equal(t, uint64(13836368054659399541), results[0].ID)

		results, err = store.Search(ctx, vectorstore.SearchRequest{
			Vector: []float32{1, 0, 0, 0},
			Limit:  10,
			Filter: vectorstore.Filter{SourcePath: "b.json", AncestorTitle: "Results"},
		})
		require.NoError(t, err)
		assert.Len(t, results, 2)

		results, err = store.Search(ctx, vectorstore.SearchRequest{
			Vector: []float32{1, 0, 0, 0},
			Limit:  10,
			Filter: vectorstore.Filter{SourcePath: "a.json", AncestorTitle: "Results"},
		})
		require.NoError(t, err)
		assert.Empty(t, results)
	})

	t.Run("scroll visits every record once", func(t *testing.T) {
		store := newStore(t)
		seed(t, store)

		seen := map[uint64]int{}
		err := vectorstore.ScrollAll(context.Background(), store, 3, func(r vectorstore.Record) error {
			seen[r.ID]++
			assert.NotEmpty(t, r.Payload.SourcePath)
			return nil
		})
		require.NoError(t, err)
		assert.Len(t, seen, 4)
		for id, n := range seen {
			assert.Equal(t, 1, n, "id %d", id)
		}
	})

	t.Run("scroll pages", func(t *testing.T) {
		store := newStore(t)
		seed(t, store)
		ctx := context.Background()

		page, err := store.Scroll(ctx, vectorstore.ScrollRequest{Limit: 2})
		require.NoError(t, err)
		assert.Len(t, page.Records, 2)
		require.NotNil(t, page.NextOffset)

		page, err = store.Scroll(ctx, vectorstore.ScrollRequest{Limit: 2, Offset: page.NextOffset})
		require.NoError(t, err)
		assert.Len(t, page.Records, 2)
		assert.Nil(t, page.NextOffset)
	})
}
