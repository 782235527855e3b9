package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dshills/texsearch/internal/logging"
	"github.com/dshills/texsearch/internal/rewrite"
	"github.com/dshills/texsearch/internal/searcher"
	"github.com/dshills/texsearch/pkg/types"
)

type fakeSearcher struct {
	mu      sync.Mutex
	results []types.SearchResult
	catalog *searcher.Catalog
	err     error
	last    searcher.SearchRequest
}

func (f *fakeSearcher) Search(ctx context.Context, req searcher.SearchRequest) (*searcher.SearchResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.last = req
	if f.err != nil {
		return nil, f.err
	}
	if req.Query == "" {
		return nil, searcher.ErrEmptyQuery
	}
	return &searcher.SearchResponse{Results: f.results, TotalResults: len(f.results)}, nil
}

func (f *fakeSearcher) Catalog(ctx context.Context) (*searcher.Catalog, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.catalog, nil
}

type fakeRewriter struct{}

func (fakeRewriter) Rewrite(ctx context.Context, req rewrite.Request) string {
	if !req.ShouldRewrite {
		return req.SelectedText
	}
	return fmt.Sprintf("%s (%s)", req.SelectedText, req.UserInput)
}

type fakeStore struct {
	collections []string
	err         error
}

func (f fakeStore) Collections(ctx context.Context) ([]string, error) {
	return f.collections, f.err
}

func results(n int) []types.SearchResult {
	out := make([]types.SearchResult, n)
	for i := range out {
		out[i] = types.SearchResult{
			ID:    uint64(i + 1),
			Score: 1 - float64(i)/100,
			Payload: types.Payload{
				Title:          fmt.Sprintf("Section %d", i+1),
				Level:          2,
				Content:        "Some  \\textbf{bold}\n text {#sec:anchor}",
				SourcePath:     "out/3-Methods.json",
				AncestorTitles: []string{"Methods"},
			},
		}
	}
	return out
}

func newTestServer(t *testing.T, s *fakeSearcher, store fakeStore) *Server {
	t.Helper()
	srv, err := New(Config{
		Searcher: s,
		Rewriter: fakeRewriter{},
		Store:    store,
		Logger:   logging.Discard(),
	})
	require.NoError(t, err)
	return srv
}

func do(t *testing.T, srv *Server, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v))
	return v
}

func TestNew(t *testing.T) {
	_, err := New(Config{Rewriter: fakeRewriter{}, Store: fakeStore{}})
	assert.Error(t, err)
	_, err = New(Config{Searcher: &fakeSearcher{}, Store: fakeStore{}})
	assert.Error(t, err)
	_, err = New(Config{Searcher: &fakeSearcher{}, Rewriter: fakeRewriter{}})
	assert.Error(t, err)

	srv, err := New(Config{Searcher: &fakeSearcher{}, Rewriter: fakeRewriter{}, Store: fakeStore{}})
	require.NoError(t, err)
	assert.Equal(t, DefaultAddr, srv.Addr())
	assert.Equal(t, DefaultFetchLimit, srv.fetchLimit)
	assert.Equal(t, searcher.MaxPageSize, srv.maxPageSize)
}

func TestRoot(t *testing.T) {
	t.Run("lists collections", func(t *testing.T) {
		srv := newTestServer(t, &fakeSearcher{}, fakeStore{collections: []string{"thesis_sections"}})
		rec := do(t, srv, http.MethodGet, "/", nil)
		require.Equal(t, http.StatusOK, rec.Code)

		resp := decode[healthResponse](t, rec)
		assert.Equal(t, "Welcome to Research Papers API", resp.Message)
		assert.Equal(t, "operational", resp.Status)
		assert.True(t, resp.ImportSuccess)
		assert.Equal(t, []string{"thesis_sections"}, resp.QdrantCollections)
	})

	t.Run("store failure degrades status", func(t *testing.T) {
		srv := newTestServer(t, &fakeSearcher{}, fakeStore{err: errors.New("connection refused")})
		rec := do(t, srv, http.MethodGet, "/", nil)
		require.Equal(t, http.StatusOK, rec.Code)

		resp := decode[healthResponse](t, rec)
		assert.Equal(t, "limited functionality", resp.Status)
		require.Len(t, resp.QdrantCollections, 1)
		assert.Contains(t, resp.QdrantCollections[0], "connection refused")
	})

	t.Run("unknown path", func(t *testing.T) {
		srv := newTestServer(t, &fakeSearcher{}, fakeStore{})
		rec := do(t, srv, http.MethodGet, "/nope", nil)
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})
}

func TestChaptersAndStats(t *testing.T) {
	fs := &fakeSearcher{catalog: &searcher.Catalog{
		Chapters: []string{"Background", "Intro"},
		Stats:    searcher.Stats{DocumentCount: 2, ChapterCount: 2, SectionCount: 7},
	}}
	srv := newTestServer(t, fs, fakeStore{})

	rec := do(t, srv, http.MethodGet, "/chapters", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	ch := decode[chaptersResponse](t, rec)
	assert.Equal(t, []string{"Background", "Intro"}, ch.Chapters)
	assert.NotNil(t, ch.Sources, "empty lists encode as []")
	assert.Contains(t, rec.Body.String(), `"sources":[]`)

	rec = do(t, srv, http.MethodGet, "/stats", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"documentCount":2,"chapterCount":2,"sectionCount":7}`, rec.Body.String())

	fs.err = errors.New("scroll failed")
	rec = do(t, srv, http.MethodGet, "/stats", nil)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Contains(t, rec.Body.String(), "scroll failed")
}

func TestSearch(t *testing.T) {
	t.Run("formats and paginates", func(t *testing.T) {
		fs := &fakeSearcher{results: results(25)}
		srv := newTestServer(t, fs, fakeStore{})

		rec := do(t, srv, http.MethodPost, "/search", map[string]any{
			"query":          "heat transfer",
			"chapter_filter": "Methods",
			"page":           2,
			"page_size":      10,
		})
		require.Equal(t, http.StatusOK, rec.Code)

		resp := decode[searchResponse](t, rec)
		assert.Equal(t, 25, resp.TotalResults)
		assert.Equal(t, 2, resp.CurrentPage)
		assert.Equal(t, 3, resp.TotalPages)
		assert.True(t, resp.HasMore)
		require.Len(t, resp.Results, 10)

		first := resp.Results[0]
		assert.Equal(t, "11", first.ID)
		assert.Equal(t, "Section 11", first.Title)
		assert.Equal(t, "Some bold text", first.Content)
		assert.Equal(t, resultMetadata{
			Title:        "Section 11",
			Source:       "methods.tex",
			ParentTitles: []string{"Methods"},
			Level:        2,
		}, first.Metadata)

		assert.Equal(t, DefaultFetchLimit, fs.last.Limit)
		assert.Equal(t, "Methods", fs.last.ChapterFilter)
		require.NotNil(t, fs.last.ScoreThreshold)
		assert.Equal(t, searcher.DefaultScoreThreshold, *fs.last.ScoreThreshold)
		assert.True(t, fs.last.UseCache)
	})

	t.Run("page size is capped", func(t *testing.T) {
		srv := newTestServer(t, &fakeSearcher{results: results(25)}, fakeStore{})
		rec := do(t, srv, http.MethodPost, "/search", map[string]any{"query": "q", "page_size": 100})
		require.Equal(t, http.StatusOK, rec.Code)

		resp := decode[searchResponse](t, rec)
		assert.Len(t, resp.Results, searcher.MaxPageSize)
		assert.Equal(t, 1, resp.CurrentPage)
		assert.Equal(t, 2, resp.TotalPages)
	})

	t.Run("explicit zero threshold", func(t *testing.T) {
		fs := &fakeSearcher{}
		srv := newTestServer(t, fs, fakeStore{})
		rec := do(t, srv, http.MethodPost, "/search", map[string]any{"query": "q", "score_threshold": 0})
		require.Equal(t, http.StatusOK, rec.Code)
		require.NotNil(t, fs.last.ScoreThreshold)
		assert.Zero(t, *fs.last.ScoreThreshold)

		resp := decode[searchResponse](t, rec)
		assert.NotNil(t, resp.Results)
		assert.Equal(t, 0, resp.TotalPages)
		assert.False(t, resp.HasMore)
	})

	t.Run("errors", func(t *testing.T) {
		tests := []struct {
			name   string
			err    error
			body   string
			status int
		}{
			{"malformed body", nil, `{"query":`, http.StatusBadRequest},
			{"empty query", nil, `{"query":""}`, http.StatusBadRequest},
			{"timeout", searcher.ErrTimeout, `{"query":"q"}`, http.StatusGatewayTimeout},
			{"remote failure", &types.RemoteError{Service: "embedder", Op: "embed", Err: errors.New("503")}, `{"query":"q"}`, http.StatusInternalServerError},
		}
		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				srv := newTestServer(t, &fakeSearcher{err: tt.err}, fakeStore{})
				req := httptest.NewRequest(http.MethodPost, "/search", bytes.NewBufferString(tt.body))
				rec := httptest.NewRecorder()
				srv.Handler().ServeHTTP(rec, req)

				assert.Equal(t, tt.status, rec.Code)
				body := decode[map[string]string](t, rec)
				assert.NotEmpty(t, body["detail"])
			})
		}
	})
}

func TestRewrite(t *testing.T) {
	srv := newTestServer(t, &fakeSearcher{}, fakeStore{})

	rec := do(t, srv, http.MethodPost, "/rewrite-text", rewrite.Request{
		SelectedText:  "The flow is laminar.",
		UserInput:     "more formal",
		ShouldRewrite: true,
	})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"rewrittenText":"The flow is laminar. (more formal)"}`, rec.Body.String())

	rec = do(t, srv, http.MethodPost, "/rewrite-text", rewrite.Request{SelectedText: "unchanged"})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"rewrittenText":"unchanged"}`, rec.Body.String())
}

func TestMiddleware(t *testing.T) {
	srv := newTestServer(t, &fakeSearcher{}, fakeStore{})

	t.Run("request id is assigned", func(t *testing.T) {
		rec := do(t, srv, http.MethodGet, "/", nil)
		assert.Len(t, rec.Header().Get(RequestIDHeader), 36)
	})

	t.Run("request id is propagated", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set(RequestIDHeader, "abc-123")
		rec := httptest.NewRecorder()
		srv.Handler().ServeHTTP(rec, req)
		assert.Equal(t, "abc-123", rec.Header().Get(RequestIDHeader))
	})

	t.Run("preflight", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodOptions, "/search", nil)
		req.Header.Set("Origin", "http://localhost:3000")
		rec := httptest.NewRecorder()
		srv.Handler().ServeHTTP(rec, req)

		assert.Equal(t, http.StatusNoContent, rec.Code)
		assert.Equal(t, "http://localhost:3000", rec.Header().Get("Access-Control-Allow-Origin"))
		assert.Contains(t, rec.Header().Get("Access-Control-Allow-Methods"), "POST")
	})

	t.Run("wildcard origin", func(t *testing.T) {
		rec := do(t, srv, http.MethodGet, "/", nil)
		assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
	})

	t.Run("panics are recovered", func(t *testing.T) {
		h := recoverPanics(logging.Discard(), http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			panic("boom")
		}))
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
		assert.Equal(t, http.StatusInternalServerError, rec.Code)
	})
}

func TestServe(t *testing.T) {
	srv := newTestServer(t, &fakeSearcher{}, fakeStore{collections: []string{"c"}})
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- srv.Serve(ctx, ln) }()

	resp, err := http.Get("http://" + ln.Addr().String() + "/")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not shut down")
	}
}
