package embedder

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"net/http"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"

	"golang.org/x/time/rate"
)

// Provider configuration
const (
	ProviderDeepInfra = "deepinfra"
	ProviderJina      = "jina"
	ProviderOpenAI    = "openai"
	ProviderLocal     = "local"

	// Default models
	DefaultDeepInfraModel = "BAAI/bge-base-en-v1.5"
	DefaultJinaModel      = "jina-embeddings-v3"
	DefaultOpenAIModel    = "text-embedding-3-small"

	// OpenAI-compatible endpoints
	DeepInfraBaseURL = "https://api.deepinfra.com/v1/openai"
	JinaBaseURL      = "https://api.jina.ai/v1"
	OpenAIBaseURL    = "https://api.openai.com/v1"

	// Dimensions
	DeepInfraDimension = 768
	JinaDimension      = 1024
	OpenAIDimension    = 1536
	LocalDimension     = 768

	// Batch limits
	DefaultBatchSize = 32
	MaxBatchSize     = 100

	// Backoff between attempts when MaxAttempts > 1
	DefaultRetryBaseDelay  = 100 * time.Millisecond
	DefaultRetryMaxDelay   = 5 * time.Second
	DefaultRetryMultiplier = 2.0

	// API key environment variables
	EnvDeepInfraAPIKey = "DEEPINFRA_API_KEY"
	EnvJinaAPIKey      = "JINA_API_KEY"
	EnvOpenAIAPIKey    = "OPENAI_API_KEY"
)

type preset struct {
	baseURL   string
	model     string
	dimension int
	envKey    string
}

var presets = map[string]preset{
	ProviderDeepInfra: {DeepInfraBaseURL, DefaultDeepInfraModel, DeepInfraDimension, EnvDeepInfraAPIKey},
	ProviderJina:      {JinaBaseURL, DefaultJinaModel, JinaDimension, EnvJinaAPIKey},
	ProviderOpenAI:    {OpenAIBaseURL, DefaultOpenAIModel, OpenAIDimension, EnvOpenAIAPIKey},
}

// HTTPConfig configures an HTTPProvider. Zero values fall back to the
// provider preset.
type HTTPConfig struct {
	Provider          string
	BaseURL           string
	APIKey            string
	Model             string
	Dimension         int
	Timeout           time.Duration
	MaxAttempts       int     // 1 means no retry
	RequestsPerSecond float64 // 0 disables rate limiting
	Cache             *Cache
}

// HTTPProvider implements Embedder against an OpenAI-compatible
// /embeddings endpoint (DeepInfra, Jina AI, OpenAI).
type HTTPProvider struct {
	name       string
	baseURL    string
	apiKey     string
	model      string
	dimension  int
	httpClient *http.Client
	cache      *Cache
	retry      RetryPolicy
	limiter    *rate.Limiter
}

// NewHTTPProvider creates an embedder for one of the hosted providers
func NewHTTPProvider(cfg HTTPConfig) (*HTTPProvider, error) {
	name := strings.ToLower(cfg.Provider)
	p, ok := presets[name]
	if !ok {
		return nil, fmt.Errorf("%w: unknown provider %s", ErrUnsupportedModel, cfg.Provider)
	}

	apiKey := cfg.APIKey
	if apiKey == "" {
		apiKey = os.Getenv(p.envKey)
	}
	if apiKey == "" {
		return nil, fmt.Errorf("%w: %s not set", ErrNoProviderEnabled, p.envKey)
	}

	baseURL := p.baseURL
	if cfg.BaseURL != "" {
		baseURL = cfg.BaseURL
	}
	model := p.model
	if cfg.Model != "" {
		model = cfg.Model
	}
	dimension := p.dimension
	if cfg.Dimension > 0 {
		dimension = cfg.Dimension
	}
	// Indexing calls block until the service answers unless a timeout is set.
	timeout := max(cfg.Timeout, 0)

	retry := DefaultRetryPolicy()
	retry.Attempts = max(cfg.MaxAttempts, 1)

	var limiter *rate.Limiter
	if cfg.RequestsPerSecond > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), 1)
	}

	return &HTTPProvider{
		name:       name,
		baseURL:    strings.TrimRight(baseURL, "/"),
		apiKey:     apiKey,
		model:      model,
		dimension:  dimension,
		httpClient: &http.Client{Timeout: timeout},
		cache:      cfg.Cache,
		retry:      retry,
		limiter:    limiter,
	}, nil
}

func (h *HTTPProvider) GenerateEmbedding(ctx context.Context, req EmbeddingRequest) (*Embedding, error) {
	if err := ValidateRequest(req); err != nil {
		return nil, err
	}

	resp, err := h.GenerateBatch(ctx, BatchEmbeddingRequest{
		Texts: []string{req.Text},
		Model: req.Model,
	})
	if err != nil {
		return nil, err
	}

	if len(resp.Embeddings) == 0 {
		return nil, fmt.Errorf("%w: no embeddings returned", ErrProviderFailed)
	}

	return resp.Embeddings[0], nil
}

// GenerateBatch embeds req.Texts in one API call. Cached texts are served
// locally and only the misses are sent.
func (h *HTTPProvider) GenerateBatch(ctx context.Context, req BatchEmbeddingRequest) (*BatchEmbeddingResponse, error) {
	if err := ValidateBatchRequest(req); err != nil {
		return nil, err
	}

	if len(req.Texts) > MaxBatchSize {
		return nil, fmt.Errorf("%w: max %d texts allowed", ErrBatchTooLarge, MaxBatchSize)
	}

	model := req.Model
	if model == "" {
		model = h.model
	}

	embeddings := make([]*Embedding, len(req.Texts))
	var missing []int
	for i, text := range req.Texts {
		hash := ComputeHash(text)
		if h.cache != nil {
			if vec, ok := h.cache.Get(model, hash); ok {
				embeddings[i] = &Embedding{
					Vector:    vec,
					Dimension: len(vec),
					Provider:  h.name,
					Model:     model,
					Hash:      hash,
				}
				continue
			}
		}
		missing = append(missing, i)
	}

	if len(missing) > 0 {
		texts := make([]string, len(missing))
		for j, i := range missing {
			texts[j] = req.Texts[i]
		}

		fetched, calls, err := withRetry(ctx, h.retry, func() ([]*Embedding, error) {
			return h.callAPI(ctx, texts, model)
		})
		if err != nil {
			if ctx.Err() != nil {
				return nil, err
			}
			return nil, fmt.Errorf("%w after %d attempts: %v", ErrProviderFailed, calls, err)
		}

		for j, i := range missing {
			emb := fetched[j]
			emb.Hash = ComputeHash(req.Texts[i])
			if h.cache != nil {
				// Keyed by the requested model so lookups above hit even
				// when the API reports a longer model name.
				h.cache.Set(model, emb.Hash, emb.Vector)
			}
			embeddings[i] = emb
		}
	}

	return &BatchEmbeddingResponse{
		Embeddings: embeddings,
		Provider:   h.name,
		Model:      model,
	}, nil
}

// apiStatusError is a non-200 response from the embeddings endpoint
type apiStatusError struct {
	Code       int
	Body       string
	RetryAfter time.Duration
}

func (e *apiStatusError) Error() string {
	return fmt.Sprintf("api error %d: %s", e.Code, e.Body)
}

func (h *HTTPProvider) callAPI(ctx context.Context, texts []string, model string) ([]*Embedding, error) {
	if h.limiter != nil {
		if err := h.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("rate limit: %w", err)
		}
	}

	reqBody := map[string]interface{}{
		"input":           texts,
		"model":           model,
		"encoding_format": "float",
	}

	body, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, h.baseURL+"/embeddings", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+h.apiKey)

	resp, err := h.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("api call: %w", err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode != http.StatusOK {
		bodyBytes, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, &apiStatusError{
			Code:       resp.StatusCode,
			Body:       strings.TrimSpace(string(bodyBytes)),
			RetryAfter: parseRetryAfter(resp.Header.Get("Retry-After")),
		}
	}

	var apiResp struct {
		Data []struct {
			Embedding []float32 `json:"embedding"`
			Index     int       `json:"index"`
		} `json:"data"`
		Model string `json:"model"`
	}

	if err := json.NewDecoder(resp.Body).Decode(&apiResp); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}

	if len(apiResp.Data) != len(texts) {
		return nil, fmt.Errorf("expected %d embeddings, got %d", len(texts), len(apiResp.Data))
	}

	sort.SliceStable(apiResp.Data, func(a, b int) bool {
		return apiResp.Data[a].Index < apiResp.Data[b].Index
	})

	respModel := apiResp.Model
	if respModel == "" {
		respModel = model
	}

	embeddings := make([]*Embedding, len(apiResp.Data))
	for i, data := range apiResp.Data {
		if len(data.Embedding) != h.dimension {
			return nil, fmt.Errorf("%w: got %d, want %d", ErrDimensionMismatch, len(data.Embedding), h.dimension)
		}
		embeddings[i] = &Embedding{
			Vector:    data.Embedding,
			Dimension: len(data.Embedding),
			Provider:  h.name,
			Model:     respModel,
		}
	}

	return embeddings, nil
}

func parseRetryAfter(v string) time.Duration {
	if v == "" {
		return 0
	}
	if secs, err := strconv.Atoi(v); err == nil && secs > 0 {
		return time.Duration(secs) * time.Second
	}
	if t, err := http.ParseTime(v); err == nil {
		if d := time.Until(t); d > 0 {
			return d
		}
	}
	return 0
}

// retryAfter extracts a server-requested delay from err, if any
func retryAfter(err error) time.Duration {
	var statusErr *apiStatusError
	if errors.As(err, &statusErr) {
		return statusErr.RetryAfter
	}
	return 0
}

func (h *HTTPProvider) Dimension() int {
	return h.dimension
}

func (h *HTTPProvider) Provider() string {
	return h.name
}

func (h *HTTPProvider) Model() string {
	return h.model
}

func (h *HTTPProvider) Close() error {
	h.httpClient.CloseIdleConnections()
	return nil
}

// NormalizeVector normalizes a vector to unit length (for cosine similarity)
func NormalizeVector(v []float32) []float32 {
	var sum float64
	for _, val := range v {
		sum += float64(val * val)
	}

	if sum == 0 {
		return v
	}

	norm := float32(math.Sqrt(sum))
	result := make([]float32, len(v))
	for i, val := range v {
		result[i] = val / norm
	}

	return result
}
