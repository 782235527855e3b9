package embedder

import (
	"fmt"
	"os"
	"strings"
	"time"
)

// EnvProvider selects the embedding provider when set
const EnvProvider = "TEXSEARCH_EMBEDDING_PROVIDER"

// Config holds embedder configuration
type Config struct {
	Provider          string
	APIKey            string
	BaseURL           string
	Model             string
	Dimension         int
	CacheSize         int
	Timeout           time.Duration
	MaxAttempts       int
	RequestsPerSecond float64
}

// NewFromEnv creates an embedder based on environment variables
// Priority:
// 1. TEXSEARCH_EMBEDDING_PROVIDER (deepinfra, jina, openai, local)
// 2. Check for API keys: DEEPINFRA_API_KEY, JINA_API_KEY, OPENAI_API_KEY
// 3. Default to local if no API keys found
func NewFromEnv() (Embedder, error) {
	return New(Config{Provider: DetectProvider(), CacheSize: DefaultCacheSize})
}

// New creates an embedder with explicit configuration
func New(cfg Config) (Embedder, error) {
	var cache *Cache
	if cfg.CacheSize > 0 {
		cache = NewCache(cfg.CacheSize)
	}

	provider := strings.ToLower(cfg.Provider)
	switch provider {
	case ProviderDeepInfra, ProviderJina, ProviderOpenAI:
		return NewHTTPProvider(HTTPConfig{
			Provider:          provider,
			BaseURL:           cfg.BaseURL,
			APIKey:            cfg.APIKey,
			Model:             cfg.Model,
			Dimension:         cfg.Dimension,
			Timeout:           cfg.Timeout,
			MaxAttempts:       cfg.MaxAttempts,
			RequestsPerSecond: cfg.RequestsPerSecond,
			Cache:             cache,
		})
	case ProviderLocal:
		return NewLocalProvider(cfg.Dimension, cache)
	default:
		return nil, fmt.Errorf("%w: unknown provider %s", ErrUnsupportedModel, cfg.Provider)
	}
}

// DetectProvider returns the provider that would be used based on current environment
func DetectProvider() string {
	provider := os.Getenv(EnvProvider)
	if provider != "" {
		return strings.ToLower(provider)
	}

	if os.Getenv(EnvDeepInfraAPIKey) != "" {
		return ProviderDeepInfra
	}
	if os.Getenv(EnvJinaAPIKey) != "" {
		return ProviderJina
	}
	if os.Getenv(EnvOpenAIAPIKey) != "" {
		return ProviderOpenAI
	}

	return ProviderLocal
}
