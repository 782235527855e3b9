package searcher

import (
	"context"
	"crypto/sha256"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/dshills/texsearch/internal/embedder"
	"github.com/dshills/texsearch/internal/vectorstore"
	"github.com/dshills/texsearch/pkg/types"
)

const (
	DefaultLimit          = 5
	DefaultScoreThreshold = 0.5
	DefaultTimeout        = 15 * time.Second
	DefaultCacheSize      = 1000
	DefaultCacheTTL       = 5 * time.Minute

	// MaxLimit bounds a single similarity search
	MaxLimit = 1000
)

var (
	ErrEmptyQuery = errors.New("query cannot be empty")
	ErrTimeout    = errors.New("search timed out")
)

// Config contains the collaborators and settings for a Searcher
type Config struct {
	Store     vectorstore.Store
	Embedder  embedder.Embedder
	Timeout   time.Duration // bound on embedding + search, default DefaultTimeout
	CacheSize int           // default DefaultCacheSize
	CacheTTL  time.Duration // default DefaultCacheTTL
	Logger    *slog.Logger
}

// SearchRequest contains parameters for a search operation
type SearchRequest struct {
	Query          string
	Limit          int      // default DefaultLimit
	ScoreThreshold *float64 // nil means DefaultScoreThreshold
	ChapterFilter  string   // matches any ancestor title
	SourceFilter   string   // exact source_path
	UseCache       bool
}

// SearchResponse contains search results and metadata
type SearchResponse struct {
	Results      []types.SearchResult
	TotalResults int
	Duration     time.Duration
	CacheHit     bool
}

// cacheEntry represents a cached search response with expiration time
type cacheEntry struct {
	response  *SearchResponse
	expiresAt time.Time
}

// Searcher answers free-text queries against the indexed collection
type Searcher struct {
	store    vectorstore.Store
	embedder embedder.Embedder
	timeout  time.Duration
	cacheTTL time.Duration
	logger   *slog.Logger
	cache    *lru.Cache[[32]byte, *cacheEntry]
	cacheMu  sync.RWMutex
}

// New creates a new Searcher instance
func New(cfg Config) (*Searcher, error) {
	if cfg.Store == nil {
		return nil, errors.New("searcher: store is required")
	}
	if cfg.Embedder == nil {
		return nil, errors.New("searcher: embedder is required")
	}

	size := cfg.CacheSize
	if size <= 0 {
		size = DefaultCacheSize
	}
	cache, err := lru.New[[32]byte, *cacheEntry](size)
	if err != nil {
		return nil, fmt.Errorf("failed to create LRU cache: %w", err)
	}

	s := &Searcher{
		store:    cfg.Store,
		embedder: cfg.Embedder,
		timeout:  cfg.Timeout,
		cacheTTL: cfg.CacheTTL,
		logger:   cfg.Logger,
		cache:    cache,
	}
	if s.timeout <= 0 {
		s.timeout = DefaultTimeout
	}
	if s.cacheTTL <= 0 {
		s.cacheTTL = DefaultCacheTTL
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	return s, nil
}

// Search embeds the query with the query prefix and returns matching chunks
// by descending score. The whole call is bounded by the configured timeout.
func (s *Searcher) Search(ctx context.Context, req SearchRequest) (*SearchResponse, error) {
	startTime := time.Now()

	if err := validateRequest(&req); err != nil {
		return nil, fmt.Errorf("invalid search request: %w", err)
	}

	if req.UseCache {
		if cached, ok := s.checkCache(req); ok {
			cached.CacheHit = true
			cached.Duration = time.Since(startTime)
			return cached, nil
		}
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	results, err := s.vectorSearch(ctx, req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, fmt.Errorf("%w after %s: %v", ErrTimeout, s.timeout, err)
		}
		return nil, err
	}

	response := &SearchResponse{
		Results:      results,
		TotalResults: len(results),
		Duration:     time.Since(startTime),
	}

	s.logger.Debug("search",
		"query", req.Query,
		"results", len(results),
		"duration", response.Duration)

	if req.UseCache && len(results) > 0 {
		s.storeInCache(req, response)
	}

	return response, nil
}

func (s *Searcher) vectorSearch(ctx context.Context, req SearchRequest) ([]types.SearchResult, error) {
	embedding, err := s.embedder.GenerateEmbedding(ctx, embedder.EmbeddingRequest{
		Text: embedder.QueryPrefix + req.Query,
	})
	if err != nil {
		return nil, &types.RemoteError{Service: "embedder", Op: "embed query", Err: err}
	}

	results, err := s.store.Search(ctx, vectorstore.SearchRequest{
		Vector:         embedding.Vector,
		Limit:          req.Limit,
		ScoreThreshold: req.ScoreThreshold,
		Filter: vectorstore.Filter{
			AncestorTitle: req.ChapterFilter,
			SourcePath:    req.SourceFilter,
		},
	})
	if err != nil {
		return nil, &types.RemoteError{Service: "vectorstore", Op: "search", Err: err}
	}
	return results, nil
}

// validateRequest applies defaults and rejects unusable requests
func validateRequest(req *SearchRequest) error {
	req.Query = strings.TrimSpace(req.Query)
	if req.Query == "" {
		return ErrEmptyQuery
	}

	if req.Limit <= 0 {
		req.Limit = DefaultLimit
	}
	if req.Limit > MaxLimit {
		req.Limit = MaxLimit
	}

	if req.ScoreThreshold == nil {
		threshold := DefaultScoreThreshold
		req.ScoreThreshold = &threshold
	} else if *req.ScoreThreshold < -1 || *req.ScoreThreshold > 1 {
		return fmt.Errorf("score threshold %.2f outside [-1, 1]", *req.ScoreThreshold)
	}

	return nil
}

// checkCache looks up cached search results
func (s *Searcher) checkCache(req SearchRequest) (*SearchResponse, bool) {
	hash := computeQueryHash(req)
	now := time.Now()

	s.cacheMu.RLock()
	entry, found := s.cache.Get(hash)
	if !found {
		s.cacheMu.RUnlock()
		return nil, false
	}

	if now.After(entry.expiresAt) {
		s.cacheMu.RUnlock()

		s.cacheMu.Lock()
		s.cache.Remove(hash)
		s.cacheMu.Unlock()
		return nil, false
	}

	response := copySearchResponse(entry.response)
	s.cacheMu.RUnlock()

	return response, true
}

// storeInCache saves search results to cache
func (s *Searcher) storeInCache(req SearchRequest, response *SearchResponse) {
	entry := &cacheEntry{
		response:  copySearchResponse(response),
		expiresAt: time.Now().Add(s.cacheTTL),
	}

	s.cacheMu.Lock()
	s.cache.Add(computeQueryHash(req), entry)
	s.cacheMu.Unlock()
}

// InvalidateCache drops every cached response. Call it after a reindex.
func (s *Searcher) InvalidateCache() {
	s.cacheMu.Lock()
	s.cache.Purge()
	s.cacheMu.Unlock()
}

// copySearchResponse creates a deep copy of a SearchResponse
func copySearchResponse(src *SearchResponse) *SearchResponse {
	if src == nil {
		return nil
	}

	dst := &SearchResponse{
		TotalResults: src.TotalResults,
		Duration:     src.Duration,
		CacheHit:     src.CacheHit,
		Results:      make([]types.SearchResult, len(src.Results)),
	}

	for i, result := range src.Results {
		dst.Results[i] = result
		dst.Results[i].Payload.AncestorTitles = append([]string(nil), result.Payload.AncestorTitles...)
	}

	return dst
}

// computeQueryHash computes a unique hash for a search request
func computeQueryHash(req SearchRequest) [32]byte {
	var data strings.Builder
	data.WriteString(req.Query)
	data.WriteString("|")
	data.WriteString(fmt.Sprintf("%d", req.Limit))
	data.WriteString("|")
	if req.ScoreThreshold != nil {
		data.WriteString(fmt.Sprintf("%.4f", *req.ScoreThreshold))
	}
	data.WriteString("|chapter:")
	data.WriteString(req.ChapterFilter)
	data.WriteString("|source:")
	data.WriteString(req.SourceFilter)

	return sha256.Sum256([]byte(data.String()))
}
