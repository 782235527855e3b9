// Package runtime builds every long-lived service from an AppConfig and
// tears them down again. Commands call Open, use the Services, then Close.
package runtime

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/dshills/texsearch/internal/config"
	"github.com/dshills/texsearch/internal/embedder"
	"github.com/dshills/texsearch/internal/fingerprint"
	"github.com/dshills/texsearch/internal/indexer"
	"github.com/dshills/texsearch/internal/lock"
	"github.com/dshills/texsearch/internal/rewrite"
	"github.com/dshills/texsearch/internal/searcher"
	"github.com/dshills/texsearch/internal/storage"
	"github.com/dshills/texsearch/internal/vectorstore"
	"github.com/dshills/texsearch/internal/vectorstore/memory"
	"github.com/dshills/texsearch/internal/vectorstore/qdrant"
)

// Services holds the constructed collaborators
type Services struct {
	Config   *config.AppConfig
	Logger   *slog.Logger
	Store    vectorstore.Store
	Embedder embedder.Embedder
	State    *fingerprint.State
	Indexer  *indexer.Indexer
	Searcher *searcher.Searcher
	Rewriter *rewrite.Client
	Lock     *lock.RedisLock // nil unless a Redis URL is configured

	closers []func() error
}

// Open constructs all services. On error everything opened so far is closed.
func Open(ctx context.Context, cfg *config.AppConfig, logger *slog.Logger) (_ *Services, err error) {
	if cfg == nil {
		cfg = config.Default()
	}
	if logger == nil {
		logger = slog.Default()
	}

	s := &Services{Config: cfg, Logger: logger}
	defer func() {
		if err != nil {
			_ = s.Close()
		}
	}()

	if err := s.openStore(); err != nil {
		return nil, err
	}
	if err := s.openEmbedder(); err != nil {
		return nil, err
	}
	if err := s.openState(); err != nil {
		return nil, err
	}
	if err := s.openLock(ctx); err != nil {
		return nil, err
	}

	var locker indexer.Locker
	if s.Lock != nil {
		locker = s.Lock
	}
	s.Indexer, err = indexer.New(indexer.Config{
		Store:     s.Store,
		Embedder:  s.Embedder,
		State:     s.State,
		Logger:    logger.With("component", "indexer"),
		BatchSize: cfg.Indexer.BatchSize,
		Pattern:   cfg.Indexer.Pattern,
		Exclude:   []string{filepath.Base(cfg.Indexer.StateFile)},
		Locker:    locker,
	})
	if err != nil {
		return nil, err
	}

	s.Searcher, err = searcher.New(searcher.Config{
		Store:     s.Store,
		Embedder:  s.Embedder,
		Timeout:   cfg.SearchTimeout(),
		CacheSize: cfg.Search.CacheSize,
		CacheTTL:  cfg.SearchCacheTTL(),
		Logger:    logger.With("component", "searcher"),
	})
	if err != nil {
		return nil, err
	}

	s.Rewriter = rewrite.New(rewrite.Config{
		BaseURL:     cfg.LLM.BaseURL,
		APIKey:      config.Secret(cfg.LLM.APIKeyEnv),
		Model:       cfg.LLM.Model,
		MaxTokens:   cfg.LLM.MaxTokens,
		Temperature: cfg.LLM.Temperature,
		Timeout:     cfg.LLMTimeout(),
		Logger:      logger.With("component", "rewrite"),
	})

	logger.Debug("services ready",
		"store", cfg.VectorStore.Type,
		"collection", cfg.Collection.Name,
		"provider", s.Embedder.Provider(),
		"model", s.Embedder.Model(),
		"dimension", s.Embedder.Dimension())
	return s, nil
}

func (s *Services) openStore() error {
	cfg := s.Config
	switch cfg.VectorStore.Type {
	case config.StoreMemory:
		s.Store = memory.NewStorage(cfg.Collection.Name)
	case config.StoreQdrant:
		s.Store = qdrant.NewStorage(qdrant.Config{
			URL:        cfg.VectorStore.Qdrant.URL,
			APIKey:     config.Secret(cfg.VectorStore.Qdrant.APIKeyEnv),
			Collection: cfg.Collection.Name,
			Timeout:    time.Duration(cfg.VectorStore.Qdrant.TimeoutSecs) * time.Second,
		})
	case config.StoreSQLite:
		if err := os.MkdirAll(cfg.VectorStore.StoragePath, 0o755); err != nil {
			return fmt.Errorf("create storage directory: %w", err)
		}
		db, err := storage.NewSQLiteStorage(cfg.SQLitePath(), cfg.Collection.Name)
		if err != nil {
			return fmt.Errorf("open sqlite store: %w", err)
		}
		s.Store = db
	default:
		return fmt.Errorf("unknown vector store type %q", cfg.VectorStore.Type)
	}
	s.closers = append(s.closers, s.Store.Close)
	return nil
}

func (s *Services) openEmbedder() error {
	cfg := s.Config
	dimension := cfg.Embedder.Dimension
	if dimension == 0 && cfg.Embedder.Provider == embedder.ProviderLocal {
		dimension = cfg.Collection.Dimension
	}

	emb, err := embedder.New(embedder.Config{
		Provider:          cfg.Embedder.Provider,
		APIKey:            config.Secret(cfg.Embedder.APIKeyEnv),
		BaseURL:           cfg.Embedder.BaseURL,
		Model:             cfg.Embedder.Model,
		Dimension:         dimension,
		CacheSize:         cfg.Embedder.CacheSize,
		Timeout:           cfg.EmbedderTimeout(),
		MaxAttempts:       cfg.Embedder.MaxAttempts,
		RequestsPerSecond: cfg.Embedder.RequestsPerSecond,
	})
	if err != nil {
		return fmt.Errorf("create embedder: %w", err)
	}
	s.Embedder = emb
	s.closers = append(s.closers, emb.Close)

	if emb.Dimension() != cfg.Collection.Dimension {
		s.Logger.Warn("embedding dimension differs from configured collection dimension",
			"embedder", emb.Dimension(), "collection", cfg.Collection.Dimension)
	}
	return nil
}

func (s *Services) openState() error {
	cfg := s.Config
	var backend fingerprint.Backend

	switch cfg.Indexer.StateBackend {
	case config.StateSQLite:
		db, ok := s.Store.(storage.Storage)
		if !ok {
			return errors.New("state backend sqlite requires the sqlite vector store")
		}
		backend = db.Fingerprints()
	default:
		if err := os.MkdirAll(filepath.Dir(cfg.Indexer.StateFile), 0o755); err != nil {
			return fmt.Errorf("create state directory: %w", err)
		}
		backend = fingerprint.NewFileBackend(cfg.Indexer.StateFile)
	}

	s.State = fingerprint.New(backend, s.Logger.With("component", "fingerprint"))
	return nil
}

func (s *Services) openLock(ctx context.Context) error {
	cfg := s.Config
	if cfg.Lock.RedisURL == "" {
		return nil
	}

	l, client, err := lock.Dial(ctx, cfg.Lock.RedisURL, lock.Options{
		Name:   cfg.Lock.Name,
		TTL:    cfg.LockTTL(),
		Logger: s.Logger.With("component", "lock"),
	})
	if err != nil {
		return err
	}
	s.Lock = l
	s.closers = append(s.closers, client.Close)
	return nil
}

// Reindex runs the indexer over root and drops cached search results
// when anything changed.
func (s *Services) Reindex(ctx context.Context, root string, opts indexer.Options) (*indexer.Statistics, error) {
	if root == "" {
		root = s.Config.Indexer.Root
	}
	stats, err := s.Indexer.Run(ctx, root, opts)
	if stats != nil && (stats.FilesIndexed > 0 || stats.FilesFailed > 0) {
		s.Searcher.InvalidateCache()
	}
	return stats, err
}

// Close releases services in reverse order of construction
func (s *Services) Close() error {
	var errs []error
	for i := len(s.closers) - 1; i >= 0; i-- {
		if err := s.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	s.closers = nil
	return errors.Join(errs...)
}
