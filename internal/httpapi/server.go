package httpapi

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/dshills/texsearch/internal/rewrite"
	"github.com/dshills/texsearch/internal/searcher"
)

const (
	DefaultAddr       = "0.0.0.0:8000"
	DefaultFetchLimit = 1000

	shutdownTimeout = 30 * time.Second
)

// Searcher answers queries and describes the corpus
type Searcher interface {
	Search(ctx context.Context, req searcher.SearchRequest) (*searcher.SearchResponse, error)
	Catalog(ctx context.Context) (*searcher.Catalog, error)
}

// Rewriter rewrites highlighted text, falling back to the selection
type Rewriter interface {
	Rewrite(ctx context.Context, req rewrite.Request) string
}

// CollectionLister reports the collections of the vector store
type CollectionLister interface {
	Collections(ctx context.Context) ([]string, error)
}

// Config holds server configuration
type Config struct {
	Addr           string
	FetchLimit     int // results fetched before paging
	MaxPageSize    int
	ScoreThreshold float64 // used when a request omits score_threshold
	Searcher       Searcher
	Rewriter       Rewriter
	Store          CollectionLister
	Logger         *slog.Logger
}

// Server represents the HTTP server
type Server struct {
	httpServer     *http.Server
	router         *http.ServeMux
	searcher       Searcher
	rewriter       Rewriter
	store          CollectionLister
	fetchLimit     int
	maxPageSize    int
	scoreThreshold float64
	logger         *slog.Logger
}

// New creates a new HTTP server
func New(cfg Config) (*Server, error) {
	if cfg.Searcher == nil {
		return nil, errors.New("httpapi: searcher is required")
	}
	if cfg.Rewriter == nil {
		return nil, errors.New("httpapi: rewriter is required")
	}
	if cfg.Store == nil {
		return nil, errors.New("httpapi: store is required")
	}
	if cfg.Addr == "" {
		cfg.Addr = DefaultAddr
	}
	if cfg.FetchLimit <= 0 {
		cfg.FetchLimit = DefaultFetchLimit
	}
	if cfg.MaxPageSize <= 0 {
		cfg.MaxPageSize = searcher.MaxPageSize
	}
	if cfg.ScoreThreshold == 0 {
		cfg.ScoreThreshold = searcher.DefaultScoreThreshold
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	s := &Server{
		router:         http.NewServeMux(),
		searcher:       cfg.Searcher,
		rewriter:       cfg.Rewriter,
		store:          cfg.Store,
		fetchLimit:     cfg.FetchLimit,
		maxPageSize:    cfg.MaxPageSize,
		scoreThreshold: cfg.ScoreThreshold,
		logger:         cfg.Logger,
	}
	s.setupRoutes()

	s.httpServer = &http.Server{
		Addr:         cfg.Addr,
		Handler:      s.Handler(),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	return s, nil
}

func (s *Server) setupRoutes() {
	s.router.HandleFunc("GET /{$}", s.handleRoot)
	s.router.HandleFunc("GET /chapters", s.handleChapters)
	s.router.HandleFunc("GET /stats", s.handleStats)
	s.router.HandleFunc("POST /search", s.handleSearch)
	s.router.HandleFunc("POST /rewrite-text", s.handleRewrite)
}

// Handler returns the router wrapped in the middleware chain
func (s *Server) Handler() http.Handler {
	var h http.Handler = s.router
	h = recoverPanics(s.logger, h)
	h = accessLog(s.logger, h)
	h = cors(h)
	h = requestID(h)
	return h
}

// Addr returns the configured listen address
func (s *Server) Addr() string {
	return s.httpServer.Addr
}

// ListenAndServe serves until ctx is done, then shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.httpServer.Addr)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", s.httpServer.Addr, err)
	}
	return s.Serve(ctx, ln)
}

// Serve accepts connections on ln until ctx is done
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("http server listening", "addr", ln.Addr().String())
		errCh <- s.httpServer.Serve(ln)
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	s.logger.Info("shutting down http server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
