package httpapi

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/dshills/texsearch/internal/rewrite"
	"github.com/dshills/texsearch/internal/searcher"
)

const maxBodyBytes = 1 << 20

type healthResponse struct {
	Message           string   `json:"message"`
	Status            string   `json:"status"`
	ImportSuccess     bool     `json:"import_success"`
	QdrantCollections []string `json:"qdrant_collections"`
}

type chaptersResponse struct {
	Chapters []string `json:"chapters"`
	Sources  []string `json:"sources"`
}

type searchQuery struct {
	Query          string   `json:"query"`
	Limit          int      `json:"limit"`
	ScoreThreshold *float64 `json:"score_threshold"`
	ChapterFilter  string   `json:"chapter_filter"`
	SourceFilter   string   `json:"source_filter"`
	Page           int      `json:"page"`
	PageSize       int      `json:"page_size"`
}

type resultMetadata struct {
	Title        string   `json:"title"`
	Source       string   `json:"source"`
	ParentTitles []string `json:"parent_titles"`
	Level        int      `json:"level"`
}

type searchResult struct {
	ID       string         `json:"id"`
	Score    float64        `json:"score"`
	Title    string         `json:"title"`
	Content  string         `json:"content"`
	Metadata resultMetadata `json:"metadata"`
}

type searchResponse struct {
	Results      []searchResult `json:"results"`
	TotalResults int            `json:"total_results"`
	CurrentPage  int            `json:"current_page"`
	TotalPages   int            `json:"total_pages"`
	HasMore      bool           `json:"has_more"`
}

type rewriteResponse struct {
	RewrittenText string `json:"rewrittenText"`
}

func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	resp := healthResponse{
		Message:       "Welcome to Research Papers API",
		Status:        "operational",
		ImportSuccess: true,
	}

	collections, err := s.store.Collections(r.Context())
	if err != nil {
		resp.Status = "limited functionality"
		resp.QdrantCollections = []string{fmt.Sprintf("Error listing collections: %v", err)}
	} else {
		resp.QdrantCollections = nonNil(collections)
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleChapters(w http.ResponseWriter, r *http.Request) {
	cat, err := s.searcher.Catalog(r.Context())
	if err != nil {
		s.serverError(w, r, "list chapters", err)
		return
	}
	writeJSON(w, http.StatusOK, chaptersResponse{
		Chapters: nonNil(cat.Chapters),
		Sources:  nonNil(cat.Sources),
	})
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	cat, err := s.searcher.Catalog(r.Context())
	if err != nil {
		s.serverError(w, r, "stats", err)
		return
	}
	writeJSON(w, http.StatusOK, cat.Stats)
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	var q searchQuery
	if err := decodeJSON(w, r, &q); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if q.ScoreThreshold == nil {
		threshold := s.scoreThreshold
		q.ScoreThreshold = &threshold
	}
	if q.Page == 0 {
		q.Page = 1
	}

	resp, err := s.searcher.Search(r.Context(), searcher.SearchRequest{
		Query:          q.Query,
		Limit:          s.fetchLimit,
		ScoreThreshold: q.ScoreThreshold,
		ChapterFilter:  q.ChapterFilter,
		SourceFilter:   q.SourceFilter,
		UseCache:       true,
	})
	switch {
	case errors.Is(err, searcher.ErrEmptyQuery):
		writeError(w, http.StatusBadRequest, err.Error())
		return
	case errors.Is(err, searcher.ErrTimeout):
		writeError(w, http.StatusGatewayTimeout, err.Error())
		return
	case err != nil:
		s.serverError(w, r, "search", err)
		return
	}

	page := searcher.Paginate(resp.Results, q.Page, q.PageSize, s.maxPageSize)

	out := searchResponse{
		Results:      make([]searchResult, 0, len(page.Results)),
		TotalResults: page.TotalResults,
		CurrentPage:  page.CurrentPage,
		TotalPages:   page.TotalPages,
		HasMore:      page.HasMore,
	}
	for _, res := range page.Results {
		p := res.Payload
		out.Results = append(out.Results, searchResult{
			ID:      strconv.FormatUint(res.ID, 10),
			Score:   res.Score,
			Title:   p.Title,
			Content: searcher.CleanContent(p.Content),
			Metadata: resultMetadata{
				Title:        p.Title,
				Source:       searcher.SourceName(p.SourcePath),
				ParentTitles: nonNil(p.AncestorTitles),
				Level:        p.Level,
			},
		})
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleRewrite(w http.ResponseWriter, r *http.Request) {
	var req rewrite.Request
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, rewriteResponse{RewrittenText: s.rewriter.Rewrite(r.Context(), req)})
}

func (s *Server) serverError(w http.ResponseWriter, r *http.Request, op string, err error) {
	s.logger.Error(op+" failed", "error", err, "request_id", RequestID(r.Context()))
	writeError(w, http.StatusInternalServerError, err.Error())
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return fmt.Errorf("invalid request body: %w", err)
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"detail": message})
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
