// Package config loads application settings from a YAML or TOML file, a
// .env file and environment overrides.
package config

import (
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"

	"github.com/dshills/texsearch/internal/embedder"
)

// Environment overrides
const (
	EnvStoragePath       = "QDRANT_STORAGE_PATH"
	EnvVectorStore       = "TEXSEARCH_VECTOR_STORE"
	EnvQdrantURL         = "TEXSEARCH_QDRANT_URL"
	EnvEmbeddingProvider = "TEXSEARCH_EMBEDDING_PROVIDER"
	EnvRedisURL          = "TEXSEARCH_REDIS_URL"
	EnvLogLevel          = "TEXSEARCH_LOG_LEVEL"
	EnvPort              = "PORT"
)

// Vector store types
const (
	StoreSQLite = "sqlite"
	StoreQdrant = "qdrant"
	StoreMemory = "memory"
)

// Fingerprint backends
const (
	StateJSON   = "json"
	StateSQLite = "sqlite"
)

// CollectionConfig names the vector collection
type CollectionConfig struct {
	Name      string `yaml:"name" toml:"name"`
	Dimension int    `yaml:"dimension" toml:"dimension"`
	Distance  string `yaml:"distance" toml:"distance"`
}

// QdrantConfig contains connection details for a Qdrant server
type QdrantConfig struct {
	URL         string `yaml:"url" toml:"url"`
	APIKeyEnv   string `yaml:"api_key_env" toml:"api_key_env"`
	TimeoutSecs int    `yaml:"timeout_secs" toml:"timeout_secs"` // 0 leaves requests unbounded
}

// VectorStoreConfig selects and configures the vector store
type VectorStoreConfig struct {
	Type        string       `yaml:"type" toml:"type"`
	StoragePath string       `yaml:"storage_path" toml:"storage_path"`
	Qdrant      QdrantConfig `yaml:"qdrant" toml:"qdrant"`
}

// EmbedderConfig selects and configures the embedding provider
type EmbedderConfig struct {
	Provider          string  `yaml:"provider" toml:"provider"`
	BaseURL           string  `yaml:"base_url" toml:"base_url"`
	Model             string  `yaml:"model" toml:"model"`
	Dimension         int     `yaml:"dimension" toml:"dimension"` // 0 uses the provider's native size
	APIKeyEnv         string  `yaml:"api_key_env" toml:"api_key_env"`
	TimeoutSecs       int     `yaml:"timeout_secs" toml:"timeout_secs"` // 0 leaves requests unbounded
	MaxAttempts       int     `yaml:"max_attempts" toml:"max_attempts"`
	RequestsPerSecond float64 `yaml:"requests_per_second" toml:"requests_per_second"`
	CacheSize         int     `yaml:"cache_size" toml:"cache_size"`
}

// IndexerConfig configures discovery and bookkeeping
type IndexerConfig struct {
	Root         string `yaml:"root" toml:"root"`
	BatchSize    int    `yaml:"batch_size" toml:"batch_size"`
	Pattern      string `yaml:"pattern" toml:"pattern"`
	StateBackend string `yaml:"state_backend" toml:"state_backend"`
	StateFile    string `yaml:"state_file" toml:"state_file"`
}

// SearchConfig holds query-side defaults
type SearchConfig struct {
	Limit          int     `yaml:"limit" toml:"limit"`
	ScoreThreshold float64 `yaml:"score_threshold" toml:"score_threshold"`
	FetchLimit     int     `yaml:"fetch_limit" toml:"fetch_limit"`
	MaxPageSize    int     `yaml:"max_page_size" toml:"max_page_size"`
	TimeoutSecs    int     `yaml:"timeout_secs" toml:"timeout_secs"`
	CacheSize      int     `yaml:"cache_size" toml:"cache_size"`
	CacheTTLSecs   int     `yaml:"cache_ttl_secs" toml:"cache_ttl_secs"`
}

// LLMConfig configures the rewrite model
type LLMConfig struct {
	BaseURL     string  `yaml:"base_url" toml:"base_url"`
	APIKeyEnv   string  `yaml:"api_key_env" toml:"api_key_env"`
	Model       string  `yaml:"model" toml:"model"`
	MaxTokens   int     `yaml:"max_tokens" toml:"max_tokens"`
	Temperature float64 `yaml:"temperature" toml:"temperature"`
	TimeoutSecs int     `yaml:"timeout_secs" toml:"timeout_secs"`
}

// HTTPConfig configures the API server
type HTTPConfig struct {
	Addr string `yaml:"addr" toml:"addr"`
}

// LockConfig enables the cross-process index lock when RedisURL is set
type LockConfig struct {
	RedisURL string `yaml:"redis_url" toml:"redis_url"`
	Name     string `yaml:"name" toml:"name"`
	TTLSecs  int    `yaml:"ttl_secs" toml:"ttl_secs"`
}

// LogConfig configures the slog handler
type LogConfig struct {
	Level  string `yaml:"level" toml:"level"`
	Format string `yaml:"format" toml:"format"`
}

// WatchConfig configures watch mode
type WatchConfig struct {
	DebounceMillis int `yaml:"debounce_millis" toml:"debounce_millis"`
}

// AppConfig is the root application configuration structure
type AppConfig struct {
	Collection  CollectionConfig  `yaml:"collection" toml:"collection"`
	VectorStore VectorStoreConfig `yaml:"vector_store" toml:"vector_store"`
	Embedder    EmbedderConfig    `yaml:"embedder" toml:"embedder"`
	Indexer     IndexerConfig     `yaml:"indexer" toml:"indexer"`
	Search      SearchConfig      `yaml:"search" toml:"search"`
	LLM         LLMConfig         `yaml:"llm" toml:"llm"`
	HTTP        HTTPConfig        `yaml:"http" toml:"http"`
	Lock        LockConfig        `yaml:"lock" toml:"lock"`
	Log         LogConfig         `yaml:"log" toml:"log"`
	Watch       WatchConfig       `yaml:"watch" toml:"watch"`
}

// Default returns a configuration with every default applied
func Default() *AppConfig {
	cfg := &AppConfig{}
	applyDefaults(cfg)
	return cfg
}

// LoadDotEnv loads .env files into the process environment without
// overriding variables that are already set. Missing files are ignored.
func LoadDotEnv(paths ...string) error {
	if len(paths) == 0 {
		paths = []string{".env"}
	}
	for _, p := range paths {
		if _, err := os.Stat(p); errors.Is(err, os.ErrNotExist) {
			continue
		}
		if err := godotenv.Load(p); err != nil {
			return fmt.Errorf("load %s: %w", p, err)
		}
	}
	return nil
}

// Load reads the config at path. The format follows the extension: .toml
// is TOML, anything else YAML. An empty path or missing file yields the
// defaults. Environment overrides are applied last.
func Load(path string) (*AppConfig, error) {
	cfg := &AppConfig{}

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case errors.Is(err, os.ErrNotExist):
		case err != nil:
			return nil, err
		default:
			if err := decode(path, data, cfg); err != nil {
				return nil, fmt.Errorf("parse config %s: %w", path, err)
			}
		}
	}

	applyEnv(cfg)
	applyDefaults(cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func decode(path string, data []byte, cfg *AppConfig) error {
	if strings.EqualFold(filepath.Ext(path), ".toml") {
		return toml.Unmarshal(data, cfg)
	}
	return yaml.Unmarshal(data, cfg)
}

// Save writes cfg in the format implied by path's extension
func Save(path string, cfg *AppConfig) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}

	var (
		data []byte
		err  error
	)
	if strings.EqualFold(filepath.Ext(path), ".toml") {
		data, err = toml.Marshal(cfg)
	} else {
		data, err = yaml.Marshal(cfg)
	}
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

func applyEnv(cfg *AppConfig) {
	if v := os.Getenv(EnvStoragePath); v != "" {
		cfg.VectorStore.StoragePath = v
	}
	if v := os.Getenv(EnvVectorStore); v != "" {
		cfg.VectorStore.Type = strings.ToLower(v)
	}
	if v := os.Getenv(EnvQdrantURL); v != "" {
		cfg.VectorStore.Qdrant.URL = v
		if os.Getenv(EnvVectorStore) == "" {
			cfg.VectorStore.Type = StoreQdrant
		}
	}
	if v := os.Getenv(EnvEmbeddingProvider); v != "" {
		cfg.Embedder.Provider = strings.ToLower(v)
	}
	if v := os.Getenv(EnvRedisURL); v != "" {
		cfg.Lock.RedisURL = v
	}
	if v := os.Getenv(EnvLogLevel); v != "" {
		cfg.Log.Level = strings.ToLower(v)
	}
	if v := os.Getenv(EnvPort); v != "" {
		if _, err := strconv.Atoi(v); err == nil {
			host := "0.0.0.0"
			if h, _, err := net.SplitHostPort(cfg.HTTP.Addr); err == nil {
				host = h
			}
			cfg.HTTP.Addr = net.JoinHostPort(host, v)
		}
	}
}

func applyDefaults(cfg *AppConfig) {
	if cfg.Collection.Name == "" {
		cfg.Collection.Name = "research_papers"
	}
	if cfg.Collection.Dimension == 0 {
		cfg.Collection.Dimension = 768
	}
	if cfg.Collection.Distance == "" {
		cfg.Collection.Distance = "cosine"
	}

	if cfg.VectorStore.Type == "" {
		cfg.VectorStore.Type = StoreSQLite
	}
	if cfg.VectorStore.StoragePath == "" {
		cfg.VectorStore.StoragePath = "./qdrant_storage2"
	}
	if cfg.VectorStore.Qdrant.URL == "" {
		cfg.VectorStore.Qdrant.URL = "http://localhost:6333"
	}
	if cfg.VectorStore.Qdrant.APIKeyEnv == "" {
		cfg.VectorStore.Qdrant.APIKeyEnv = "QDRANT_API_KEY"
	}

	if cfg.Embedder.Provider == "" {
		cfg.Embedder.Provider = "deepinfra"
	}
	if cfg.Embedder.Model == "" && cfg.Embedder.Provider == "deepinfra" {
		cfg.Embedder.Model = "BAAI/bge-base-en-v1.5"
	}
	if cfg.Embedder.MaxAttempts == 0 {
		cfg.Embedder.MaxAttempts = 1
	}
	if cfg.Embedder.CacheSize == 0 {
		cfg.Embedder.CacheSize = 10000
	}

	if cfg.Indexer.BatchSize == 0 {
		cfg.Indexer.BatchSize = 32
	}
	if cfg.Indexer.Pattern == "" {
		cfg.Indexer.Pattern = "*.json"
	}
	if cfg.Indexer.StateBackend == "" {
		cfg.Indexer.StateBackend = StateJSON
	}
	if cfg.Indexer.StateFile == "" {
		cfg.Indexer.StateFile = filepath.Join(cfg.VectorStore.StoragePath, "processing_metadata.json")
	}
	if cfg.Indexer.Root == "" {
		cfg.Indexer.Root = "."
	}

	if cfg.Search.Limit == 0 {
		cfg.Search.Limit = 5
	}
	if cfg.Search.ScoreThreshold == 0 {
		cfg.Search.ScoreThreshold = 0.5
	}
	if cfg.Search.FetchLimit == 0 {
		cfg.Search.FetchLimit = 1000
	}
	if cfg.Search.MaxPageSize == 0 {
		cfg.Search.MaxPageSize = 20
	}
	if cfg.Search.TimeoutSecs == 0 {
		cfg.Search.TimeoutSecs = 15
	}
	if cfg.Search.CacheSize == 0 {
		cfg.Search.CacheSize = 1000
	}
	if cfg.Search.CacheTTLSecs == 0 {
		cfg.Search.CacheTTLSecs = 300
	}

	if cfg.LLM.BaseURL == "" {
		cfg.LLM.BaseURL = "https://api.deepinfra.com/v1/openai"
	}
	if cfg.LLM.APIKeyEnv == "" {
		cfg.LLM.APIKeyEnv = "DEEPINFRA_API_KEY"
	}
	if cfg.LLM.Model == "" {
		cfg.LLM.Model = "meta-llama/Llama-2-70b-chat-hf"
	}
	if cfg.LLM.MaxTokens == 0 {
		cfg.LLM.MaxTokens = 1000
	}
	if cfg.LLM.Temperature == 0 {
		cfg.LLM.Temperature = 0.7
	}
	if cfg.LLM.TimeoutSecs == 0 {
		cfg.LLM.TimeoutSecs = 60
	}

	if cfg.HTTP.Addr == "" {
		cfg.HTTP.Addr = "0.0.0.0:8000"
	}

	if cfg.Lock.Name == "" {
		cfg.Lock.Name = cfg.Collection.Name
	}
	if cfg.Lock.TTLSecs == 0 {
		cfg.Lock.TTLSecs = 120
	}

	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "text"
	}

	if cfg.Watch.DebounceMillis == 0 {
		cfg.Watch.DebounceMillis = 500
	}
}

// Validate rejects settings no component can serve
func (c *AppConfig) Validate() error {
	switch c.VectorStore.Type {
	case StoreSQLite, StoreQdrant, StoreMemory:
	default:
		return fmt.Errorf("unknown vector store type %q", c.VectorStore.Type)
	}
	switch c.Indexer.StateBackend {
	case StateJSON, StateSQLite:
	default:
		return fmt.Errorf("unknown state backend %q", c.Indexer.StateBackend)
	}
	if c.Indexer.StateBackend == StateSQLite && c.VectorStore.Type != StoreSQLite {
		return errors.New("state backend sqlite requires vector store sqlite")
	}
	if !strings.EqualFold(c.Collection.Distance, "cosine") {
		return fmt.Errorf("unsupported distance %q: only cosine is implemented", c.Collection.Distance)
	}
	if c.Collection.Dimension < 0 || c.Embedder.Dimension < 0 {
		return errors.New("dimension must be positive")
	}
	if c.Search.ScoreThreshold < -1 || c.Search.ScoreThreshold > 1 {
		return fmt.Errorf("score threshold %.2f outside [-1, 1]", c.Search.ScoreThreshold)
	}
	if c.Indexer.BatchSize < 0 {
		return errors.New("batch size must be positive")
	}
	if c.VectorStore.Qdrant.TimeoutSecs < 0 || c.Embedder.TimeoutSecs < 0 {
		return errors.New("timeout must not be negative")
	}
	if c.Indexer.BatchSize > embedder.MaxBatchSize {
		return fmt.Errorf("batch size %d exceeds the embedder limit of %d", c.Indexer.BatchSize, embedder.MaxBatchSize)
	}
	return nil
}

// SQLitePath is the embedded database file inside the storage directory
func (c *AppConfig) SQLitePath() string {
	return filepath.Join(c.VectorStore.StoragePath, "texsearch.db")
}

// EmbedderTimeout returns the embedding request timeout
func (c *AppConfig) EmbedderTimeout() time.Duration {
	return time.Duration(c.Embedder.TimeoutSecs) * time.Second
}

// SearchTimeout returns the bound on a single search
func (c *AppConfig) SearchTimeout() time.Duration {
	return time.Duration(c.Search.TimeoutSecs) * time.Second
}

// SearchCacheTTL returns how long search results stay cached
func (c *AppConfig) SearchCacheTTL() time.Duration {
	return time.Duration(c.Search.CacheTTLSecs) * time.Second
}

// LLMTimeout returns the rewrite request timeout
func (c *AppConfig) LLMTimeout() time.Duration {
	return time.Duration(c.LLM.TimeoutSecs) * time.Second
}

// LockTTL returns the distributed lock TTL
func (c *AppConfig) LockTTL() time.Duration {
	return time.Duration(c.Lock.TTLSecs) * time.Second
}

// Debounce returns the watch-mode quiet period
func (c *AppConfig) Debounce() time.Duration {
	return time.Duration(c.Watch.DebounceMillis) * time.Millisecond
}

// Secret reads the environment variable named by envName
func Secret(envName string) string {
	if envName == "" {
		return ""
	}
	return os.Getenv(envName)
}
