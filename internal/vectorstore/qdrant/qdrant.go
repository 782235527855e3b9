// Package qdrant is a minimal REST client for a Qdrant collection.
package qdrant

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/dshills/texsearch/internal/vectorstore"
	"github.com/dshills/texsearch/pkg/types"
)

// Storage talks to one Qdrant collection over HTTP.
// The collection uses cosine distance.
type Storage struct {
	url        string
	apiKey     string
	collection string
	client     *http.Client
}

// Config configures the client.
type Config struct {
	URL        string
	APIKey     string
	Collection string
	Timeout    time.Duration
}

// NewStorage creates a client. A zero Timeout leaves requests unbounded.
func NewStorage(cfg Config) *Storage {
	timeout := max(cfg.Timeout, 0)
	return &Storage{
		url:        strings.TrimRight(cfg.URL, "/"),
		apiKey:     cfg.APIKey,
		collection: cfg.Collection,
		client:     &http.Client{Timeout: timeout},
	}
}

// StatusError is a non-2xx response from Qdrant.
type StatusError struct {
	Method string
	Path   string
	Code   int
	Body   string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("qdrant %s %s failed: %d %s", e.Method, e.Path, e.Code, e.Body)
}

// Unwrap maps well-known Qdrant failures onto vectorstore errors.
func (e *StatusError) Unwrap() error {
	switch {
	case e.Code == http.StatusNotFound:
		return vectorstore.ErrCollectionNotFound
	case e.Code == http.StatusBadRequest && strings.Contains(strings.ToLower(e.Body), "dimension"):
		return vectorstore.ErrDimensionMismatch
	}
	return nil
}

type filterCondition struct {
	Key   string `json:"key"`
	Match struct {
		Value string `json:"value"`
	} `json:"match"`
}

type filter struct {
	Must []filterCondition `json:"must"`
}

func buildFilter(f vectorstore.Filter) *filter {
	if f.IsEmpty() {
		return nil
	}
	out := &filter{}
	add := func(key, value string) {
		c := filterCondition{Key: key}
		c.Match.Value = value
		out.Must = append(out.Must, c)
	}
	if f.SourcePath != "" {
		add("source_path", f.SourcePath)
	}
	if f.AncestorTitle != "" {
		add("ancestor_titles", f.AncestorTitle)
	}
	return out
}

func (s *Storage) collectionPath(suffix string) string {
	return "/collections/" + url.PathEscape(s.collection) + suffix
}

func (s *Storage) EnsureCollection(ctx context.Context, dimension int) error {
	if dimension <= 0 {
		return errors.New("invalid dimension")
	}

	var info struct {
		Result struct {
			Config struct {
				Params struct {
					Vectors struct {
						Size int `json:"size"`
					} `json:"vectors"`
				} `json:"params"`
			} `json:"config"`
		} `json:"result"`
	}
	err := s.do(ctx, http.MethodGet, s.collectionPath(""), nil, &info)
	if err == nil {
		if size := info.Result.Config.Params.Vectors.Size; size != dimension {
			return fmt.Errorf("%w: collection %s has %d, requested %d", vectorstore.ErrDimensionMismatch, s.collection, size, dimension)
		}
		return nil
	}

	var statusErr *StatusError
	if !errors.As(err, &statusErr) || statusErr.Code != http.StatusNotFound {
		return err
	}

	body := map[string]any{
		"vectors": map[string]any{
			"size":     dimension,
			"distance": "Cosine",
		},
	}
	return s.do(ctx, http.MethodPut, s.collectionPath(""), body, nil)
}

func (s *Storage) DeleteBySource(ctx context.Context, sourcePath string) error {
	body := map[string]any{
		"filter": buildFilter(vectorstore.Filter{SourcePath: sourcePath}),
	}
	return s.do(ctx, http.MethodPost, s.collectionPath("/points/delete?wait=true"), body, nil)
}

func (s *Storage) Upsert(ctx context.Context, chunks []types.Chunk) error {
	if len(chunks) == 0 {
		return nil
	}
	points := make([]map[string]any, len(chunks))
	for i := range chunks {
		points[i] = map[string]any{
			"id":      chunks[i].ID,
			"vector":  chunks[i].Vector,
			"payload": chunks[i].Payload,
		}
	}
	body := map[string]any{"points": points}
	return s.do(ctx, http.MethodPut, s.collectionPath("/points?wait=true"), body, nil)
}

func (s *Storage) Search(ctx context.Context, req vectorstore.SearchRequest) ([]types.SearchResult, error) {
	limit := req.Limit
	if limit <= 0 {
		limit = 5
	}
	body := map[string]any{
		"vector":       req.Vector,
		"limit":        limit,
		"with_payload": true,
	}
	if req.ScoreThreshold != nil {
		body["score_threshold"] = *req.ScoreThreshold
	}
	if f := buildFilter(req.Filter); f != nil {
		body["filter"] = f
	}

	var resp struct {
		Result []struct {
			ID      uint64        `json:"id"`
			Score   float64       `json:"score"`
			Payload types.Payload `json:"payload"`
		} `json:"result"`
	}
	if err := s.do(ctx, http.MethodPost, s.collectionPath("/points/search"), body, &resp); err != nil {
		return nil, err
	}

	results := make([]types.SearchResult, 0, len(resp.Result))
	for _, r := range resp.Result {
		results = append(results, types.SearchResult{ID: r.ID, Score: r.Score, Payload: r.Payload})
	}
	return results, nil
}

func (s *Storage) Scroll(ctx context.Context, req vectorstore.ScrollRequest) (*vectorstore.ScrollPage, error) {
	limit := req.Limit
	if limit <= 0 {
		limit = vectorstore.DefaultScrollLimit
	}
	body := map[string]any{
		"limit":        limit,
		"with_payload": true,
		"with_vector":  false,
	}
	if req.Offset != nil {
		body["offset"] = *req.Offset
	}

	var resp struct {
		Result struct {
			Points []struct {
				ID      uint64        `json:"id"`
				Payload types.Payload `json:"payload"`
			} `json:"points"`
			NextPageOffset *uint64 `json:"next_page_offset"`
		} `json:"result"`
	}
	if err := s.do(ctx, http.MethodPost, s.collectionPath("/points/scroll"), body, &resp); err != nil {
		return nil, err
	}

	page := &vectorstore.ScrollPage{NextOffset: resp.Result.NextPageOffset}
	for _, p := range resp.Result.Points {
		page.Records = append(page.Records, vectorstore.Record{ID: p.ID, Payload: p.Payload})
	}
	return page, nil
}

func (s *Storage) Count(ctx context.Context) (int, error) {
	var resp struct {
		Result struct {
			Count int `json:"count"`
		} `json:"result"`
	}
	if err := s.do(ctx, http.MethodPost, s.collectionPath("/points/count"), map[string]any{"exact": true}, &resp); err != nil {
		return 0, err
	}
	return resp.Result.Count, nil
}

func (s *Storage) Collections(ctx context.Context) ([]string, error) {
	var resp struct {
		Result struct {
			Collections []struct {
				Name string `json:"name"`
			} `json:"collections"`
		} `json:"result"`
	}
	if err := s.do(ctx, http.MethodGet, "/collections", nil, &resp); err != nil {
		return nil, err
	}
	names := make([]string, 0, len(resp.Result.Collections))
	for _, c := range resp.Result.Collections {
		names = append(names, c.Name)
	}
	return names, nil
}

func (s *Storage) Close() error {
	s.client.CloseIdleConnections()
	return nil
}

func (s *Storage) do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, s.url+path, reader)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if s.apiKey != "" {
		req.Header.Set("api-key", s.apiKey)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("qdrant %s %s: %w", method, path, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return &StatusError{Method: method, Path: path, Code: resp.StatusCode, Body: strings.TrimSpace(string(msg))}
	}
	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("decode response: %w", err)
		}
	}
	return nil
}

var _ vectorstore.Store = (*Storage)(nil)
