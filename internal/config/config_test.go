package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dshills/texsearch/internal/embedder"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{EnvStoragePath, EnvVectorStore, EnvQdrantURL, EnvEmbeddingProvider, EnvRedisURL, EnvLogLevel, EnvPort} {
		t.Setenv(key, "")
	}
}

func TestDefaults(t *testing.T) {
	clearEnv(t)

	cfg, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.NoError(t, err)

	assert.Equal(t, "research_papers", cfg.Collection.Name)
	assert.Equal(t, 768, cfg.Collection.Dimension)
	assert.Equal(t, StoreSQLite, cfg.VectorStore.Type)
	assert.Equal(t, "./qdrant_storage2", cfg.VectorStore.StoragePath)
	assert.Equal(t, filepath.Join("./qdrant_storage2", "processing_metadata.json"), cfg.Indexer.StateFile)
	assert.Equal(t, "deepinfra", cfg.Embedder.Provider)
	assert.Equal(t, "BAAI/bge-base-en-v1.5", cfg.Embedder.Model)
	assert.Equal(t, 1, cfg.Embedder.MaxAttempts)
	assert.Equal(t, 32, cfg.Indexer.BatchSize)
	assert.Equal(t, "*.json", cfg.Indexer.Pattern)
	assert.Equal(t, 5, cfg.Search.Limit)
	assert.Equal(t, 0.5, cfg.Search.ScoreThreshold)
	assert.Equal(t, 1000, cfg.Search.FetchLimit)
	assert.Equal(t, 20, cfg.Search.MaxPageSize)
	assert.Equal(t, 15*time.Second, cfg.SearchTimeout())
	assert.Zero(t, cfg.EmbedderTimeout(), "indexing calls are unbounded by default")
	assert.Zero(t, cfg.VectorStore.Qdrant.TimeoutSecs)
	assert.Equal(t, "meta-llama/Llama-2-70b-chat-hf", cfg.LLM.Model)
	assert.Equal(t, 1000, cfg.LLM.MaxTokens)
	assert.Equal(t, 0.7, cfg.LLM.Temperature)
	assert.Equal(t, "0.0.0.0:8000", cfg.HTTP.Addr)
	assert.Equal(t, "research_papers", cfg.Lock.Name)
	assert.Empty(t, cfg.Lock.RedisURL)
	assert.Equal(t, 500*time.Millisecond, cfg.Debounce())

	emptyPath, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, cfg, emptyPath)
	assert.Equal(t, cfg, Default())
}

func TestLoadYAML(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), "texsearch.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
collection:
  name: thesis
vector_store:
  type: qdrant
  storage_path: /data/store
  qdrant:
    url: http://qdrant:6333
embedder:
  provider: local
  dimension: 64
search:
  limit: 12
  score_threshold: 0.3
http:
  addr: 127.0.0.1:9000
`), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "thesis", cfg.Collection.Name)
	assert.Equal(t, StoreQdrant, cfg.VectorStore.Type)
	assert.Equal(t, "http://qdrant:6333", cfg.VectorStore.Qdrant.URL)
	assert.Equal(t, "/data/store/processing_metadata.json", cfg.Indexer.StateFile)
	assert.Equal(t, "local", cfg.Embedder.Provider)
	assert.Empty(t, cfg.Embedder.Model)
	assert.Equal(t, 64, cfg.Embedder.Dimension)
	assert.Equal(t, 12, cfg.Search.Limit)
	assert.Equal(t, 0.3, cfg.Search.ScoreThreshold)
	assert.Equal(t, "127.0.0.1:9000", cfg.HTTP.Addr)
	assert.Equal(t, "thesis", cfg.Lock.Name)
}

func TestLoadTOML(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), "texsearch.toml")
	require.NoError(t, os.WriteFile(path, []byte(`
[indexer]
root = "corpus"
batch_size = 8
state_backend = "sqlite"

[log]
level = "debug"
format = "json"
`), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "corpus", cfg.Indexer.Root)
	assert.Equal(t, 8, cfg.Indexer.BatchSize)
	assert.Equal(t, StateSQLite, cfg.Indexer.StateBackend)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "json", cfg.Log.Format)
}

func TestLoadInvalid(t *testing.T) {
	clearEnv(t)
	dir := t.TempDir()

	bad := filepath.Join(dir, "bad.yaml")
	require.NoError(t, os.WriteFile(bad, []byte("collection: [unclosed"), 0o644))
	_, err := Load(bad)
	assert.Error(t, err)

	tests := map[string]string{
		"store.yaml":     "vector_store:\n  type: pinecone\n",
		"state.yaml":     "indexer:\n  state_backend: redis\n",
		"mixed.yaml":     "vector_store:\n  type: qdrant\nindexer:\n  state_backend: sqlite\n",
		"distance.yaml":  "collection:\n  distance: dot\n",
		"threshold.yaml": "search:\n  score_threshold: 3\n",
		"batch.yaml":     "indexer:\n  batch_size: 101\n",
		"timeout.yaml":   "embedder:\n  timeout_secs: -1\n",
	}
	for name, body := range tests {
		path := filepath.Join(dir, name)
		require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
		_, err := Load(path)
		assert.Error(t, err, name)
	}
}

func TestValidateBatchSizeLimit(t *testing.T) {
	cfg := Default()
	cfg.Indexer.BatchSize = embedder.MaxBatchSize
	assert.NoError(t, cfg.Validate())

	cfg.Indexer.BatchSize = embedder.MaxBatchSize + 1
	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "exceeds the embedder limit of 100")
}

func TestEnvOverrides(t *testing.T) {
	clearEnv(t)
	t.Setenv(EnvStoragePath, "/var/lib/texsearch")
	t.Setenv(EnvEmbeddingProvider, "LOCAL")
	t.Setenv(EnvRedisURL, "redis://localhost:6379/0")
	t.Setenv(EnvLogLevel, "WARN")
	t.Setenv(EnvPort, "8123")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "/var/lib/texsearch", cfg.VectorStore.StoragePath)
	assert.Equal(t, "/var/lib/texsearch/processing_metadata.json", cfg.Indexer.StateFile)
	assert.Equal(t, "local", cfg.Embedder.Provider)
	assert.Equal(t, "redis://localhost:6379/0", cfg.Lock.RedisURL)
	assert.Equal(t, "warn", cfg.Log.Level)
	assert.Equal(t, "0.0.0.0:8123", cfg.HTTP.Addr)
}

func TestQdrantURLSelectsQdrant(t *testing.T) {
	clearEnv(t)
	t.Setenv(EnvQdrantURL, "http://remote:6333")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, StoreQdrant, cfg.VectorStore.Type)
	assert.Equal(t, "http://remote:6333", cfg.VectorStore.Qdrant.URL)

	t.Setenv(EnvVectorStore, "memory")
	cfg, err = Load("")
	require.NoError(t, err)
	assert.Equal(t, StoreMemory, cfg.VectorStore.Type)
}

func TestSaveRoundTrip(t *testing.T) {
	clearEnv(t)
	dir := t.TempDir()

	for _, name := range []string{"out.yaml", "out.toml"} {
		cfg := Default()
		cfg.Collection.Name = "saved"
		path := filepath.Join(dir, "nested", name)
		require.NoError(t, Save(path, cfg))

		loaded, err := Load(path)
		require.NoError(t, err)
		assert.Equal(t, cfg, loaded, name)
	}
}

func TestLoadDotEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, ".env")
	require.NoError(t, os.WriteFile(path, []byte("TEXSEARCH_TEST_FROM_DOTENV=yes\nTEXSEARCH_TEST_PRESET=file\n"), 0o644))

	t.Setenv("TEXSEARCH_TEST_PRESET", "process")
	t.Setenv("TEXSEARCH_TEST_FROM_DOTENV", "")
	require.NoError(t, os.Unsetenv("TEXSEARCH_TEST_FROM_DOTENV"))

	require.NoError(t, LoadDotEnv(path, filepath.Join(dir, "missing.env")))
	assert.Equal(t, "yes", os.Getenv("TEXSEARCH_TEST_FROM_DOTENV"))
	assert.Equal(t, "process", os.Getenv("TEXSEARCH_TEST_PRESET"))
}

func TestSecret(t *testing.T) {
	t.Setenv("TEXSEARCH_TEST_SECRET", "s3cret")
	assert.Equal(t, "s3cret", Secret("TEXSEARCH_TEST_SECRET"))
	assert.Empty(t, Secret(""))
}
