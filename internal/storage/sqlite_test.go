package storage

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dshills/texsearch/internal/fingerprint"
	"github.com/dshills/texsearch/internal/vectorstore"
	"github.com/dshills/texsearch/internal/vectorstore/storetest"
	"github.com/dshills/texsearch/pkg/types"
)

// setupTestStorage creates an in-memory SQLite database for testing
func setupTestStorage(t testing.TB) *SQLiteStorage {
	t.Helper()

	store, err := NewSQLiteStorage(":memory:", "research_papers")
	require.NoError(t, err, "Failed to create test storage")
	t.Cleanup(func() { _ = store.Close() })

	return store
}

func TestSQLiteStorageConformance(t *testing.T) {
	storetest.Run(t, func(t *testing.T) vectorstore.Store {
		return setupTestStorage(t)
	})
}

func TestNewSQLiteStorageRequiresCollection(t *testing.T) {
	_, err := NewSQLiteStorage(":memory:", "")
	assert.Error(t, err)
}

func TestOperationsBeforeEnsureCollection(t *testing.T) {
	store := setupTestStorage(t)
	ctx := context.Background()

	_, err := store.Count(ctx)
	assert.ErrorIs(t, err, vectorstore.ErrCollectionNotFound)

	err = store.Upsert(ctx, []types.Chunk{storetest.Chunk(1, "a.json", "A", []string{"A"}, []float32{1, 0, 0, 0})})
	assert.ErrorIs(t, err, vectorstore.ErrCollectionNotFound)

	names, err := store.Collections(ctx)
	require.NoError(t, err)
	assert.Empty(t, names)
}

func TestPersistenceAcrossReopen(t *testing.T) {
	ctx := context.Background()
	dbPath := filepath.Join(t.TempDir(), "texsearch.db")

	store, err := NewSQLiteStorage(dbPath, "research_papers")
	require.NoError(t, err)
	require.NoError(t, store.EnsureCollection(ctx, storetest.Dimension))
	require.NoError(t, store.Upsert(ctx, []types.Chunk{
		storetest.Chunk(13836368054659399541, "a.json", "Big", []string{"Big"}, []float32{0, 1, 0, 0}),
	}))
	require.NoError(t, store.Close())

	reopened, err := NewSQLiteStorage(dbPath, "research_papers")
	require.NoError(t, err)
	defer reopened.Close()

	results, err := reopened.Search(ctx, vectorstore.SearchRequest{Vector: []float32{0, 1, 0, 0}, Limit: 1})
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, uint64(13836368054659399541), results[0].ID)
	assert.Equal(t, "Big", results[0].Payload.Title)
}

func TestUpsertIsAtomic(t *testing.T) {
	store := setupTestStorage(t)
	ctx := context.Background()
	require.NoError(t, store.EnsureCollection(ctx, storetest.Dimension))

	err := store.Upsert(ctx, []types.Chunk{
		storetest.Chunk(1, "a.json", "A", []string{"A"}, []float32{1, 0, 0, 0}),
		storetest.Chunk(2, "a.json", "B", []string{"A"}, []float32{1, 0}),
	})
	require.ErrorIs(t, err, vectorstore.ErrDimensionMismatch)

	n, err := store.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, n, "a failed batch must not leave partial rows")
}

func TestFingerprintTable(t *testing.T) {
	store := setupTestStorage(t)
	ctx := context.Background()
	table := store.Fingerprints()

	records, err := table.Load(ctx)
	require.NoError(t, err)
	assert.Empty(t, records)

	want := map[string]types.Fingerprint{
		"corpus/a.json": {ModTime: 1700000000.5, Size: 12, Hash: "aa"},
		"corpus/b.json": {ModTime: 1700000001.25, Size: 34, Hash: "bb"},
	}
	require.NoError(t, table.Save(ctx, want))

	got, err := table.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, want, got)

	// Save replaces the full mapping
	require.NoError(t, table.Save(ctx, map[string]types.Fingerprint{"corpus/b.json": want["corpus/b.json"]}))
	got, err = table.Load(ctx)
	require.NoError(t, err)
	assert.Len(t, got, 1)
	assert.Contains(t, got, "corpus/b.json")
}

func TestFingerprintTableAsStateBackend(t *testing.T) {
	store := setupTestStorage(t)
	ctx := context.Background()

	state := fingerprint.New(store.Fingerprints(), nil)
	state.Load(ctx)
	require.NoError(t, state.Commit(ctx, "corpus/a.json", types.Fingerprint{ModTime: 1, Size: 2, Hash: "cc"}))

	reloaded := fingerprint.New(store.Fingerprints(), nil)
	assert.Equal(t, 1, reloaded.Load(ctx))
	fp, ok := reloaded.Get("corpus/a.json")
	require.True(t, ok)
	assert.Equal(t, "cc", fp.Hash)
}

func TestGetStatus(t *testing.T) {
	store := setupTestStorage(t)
	ctx := context.Background()

	status, err := store.GetStatus(ctx)
	require.NoError(t, err)
	assert.Equal(t, "research_papers", status.Collection)
	assert.Equal(t, 0, status.Dimension)
	assert.Equal(t, CurrentSchemaVersion, status.SchemaVersion)
	assert.Equal(t, BuildMode, status.BuildMode)

	require.NoError(t, store.EnsureCollection(ctx, storetest.Dimension))
	require.NoError(t, store.Upsert(ctx, []types.Chunk{
		storetest.Chunk(1, "a.json", "A", []string{"A"}, []float32{1, 0, 0, 0}),
		storetest.Chunk(2, "a.json", "B", []string{"A"}, []float32{0, 1, 0, 0}),
		storetest.Chunk(3, "b.json", "C", []string{"C"}, []float32{0, 0, 1, 0}),
	}))
	require.NoError(t, store.Fingerprints().Save(ctx, map[string]types.Fingerprint{"a.json": {Hash: "x"}}))

	status, err = store.GetStatus(ctx)
	require.NoError(t, err)
	assert.Equal(t, storetest.Dimension, status.Dimension)
	assert.Equal(t, 3, status.ChunksCount)
	assert.Equal(t, 2, status.SourcesCount)
	assert.Equal(t, 1, status.FingerprintsCnt)
	assert.Greater(t, status.SizeMB, 0.0)
}

func TestVectorSerialization(t *testing.T) {
	vector := []float32{0.1, -0.5, 3.25, 0}
	blob := serializeVector(vector)
	assert.Len(t, blob, 16)
	assert.Equal(t, vector, deserializeVector(blob))
}

func TestRowIDConversion(t *testing.T) {
	for _, id := range []uint64{1, 1<<63 - 1, 1 << 63, 13836368054659399541, ^uint64(0)} {
		assert.Equal(t, id, fromRowID(toRowID(id)))
	}
	assert.Less(t, toRowID(1<<63), int64(0))
}
