package indexer

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/dshills/texsearch/internal/embedder"
	"github.com/dshills/texsearch/internal/fingerprint"
	"github.com/dshills/texsearch/internal/identity"
	"github.com/dshills/texsearch/internal/sections"
	"github.com/dshills/texsearch/internal/vectorstore"
	"github.com/dshills/texsearch/internal/walker"
	"github.com/dshills/texsearch/pkg/types"
)

const (
	// DefaultBatchSize is the maximum number of chunks embedded and upserted together
	DefaultBatchSize = 32

	// DefaultPattern selects structured section files during discovery
	DefaultPattern = "*.json"
)

// ErrIndexingInProgress is returned when a run is already active in this process
var ErrIndexingInProgress = errors.New("indexing already in progress")

// Locker excludes concurrent runs across processes. Lock fails if another
// holder owns the lock.
type Locker interface {
	Lock(ctx context.Context) error
	Unlock(ctx context.Context) error
}

// Config contains the collaborators and settings for an Indexer
type Config struct {
	Store     vectorstore.Store
	Embedder  embedder.Embedder
	State     *fingerprint.State
	Logger    *slog.Logger
	BatchSize int      // default: DefaultBatchSize
	Pattern   string   // base-name glob, default: DefaultPattern
	Exclude   []string // base names never indexed, e.g. the bookkeeping file
	Locker    Locker   // optional
}

// Options controls a single run
type Options struct {
	Force bool // treat every file as changed
}

// Statistics contains statistics about the indexing operation
type Statistics struct {
	FilesDiscovered int
	FilesIndexed    int
	FilesSkipped    int
	FilesFailed     int
	ChunksUpserted  int
	BatchesFlushed  int
	Pruned          []string
	Duration        time.Duration
	ErrorMessages   []string
}

// Indexer keeps a vector collection in sync with a directory of section files.
// Files are processed one at a time in lexical order.
type Indexer struct {
	store     vectorstore.Store
	embedder  embedder.Embedder
	state     *fingerprint.State
	logger    *slog.Logger
	batchSize int
	pattern   string
	exclude   map[string]struct{}
	locker    Locker
	lock      IndexLock
}

// New creates a new Indexer instance
func New(cfg Config) (*Indexer, error) {
	if cfg.Store == nil {
		return nil, errors.New("indexer: store is required")
	}
	if cfg.Embedder == nil {
		return nil, errors.New("indexer: embedder is required")
	}
	if cfg.State == nil {
		return nil, errors.New("indexer: fingerprint state is required")
	}
	if _, err := filepath.Match(cfg.Pattern, ""); err != nil {
		return nil, fmt.Errorf("indexer: invalid pattern %q: %w", cfg.Pattern, err)
	}

	idx := &Indexer{
		store:     cfg.Store,
		embedder:  cfg.Embedder,
		state:     cfg.State,
		logger:    cfg.Logger,
		batchSize: cfg.BatchSize,
		pattern:   cfg.Pattern,
		exclude:   make(map[string]struct{}, len(cfg.Exclude)),
		locker:    cfg.Locker,
	}
	if idx.logger == nil {
		idx.logger = slog.Default()
	}
	if idx.batchSize <= 0 {
		idx.batchSize = DefaultBatchSize
	}
	if idx.pattern == "" {
		idx.pattern = DefaultPattern
	}
	for _, name := range cfg.Exclude {
		idx.exclude[name] = struct{}{}
	}

	return idx, nil
}

// Running reports whether a run is active in this process
func (idx *Indexer) Running() bool {
	return idx.lock.Held()
}

// Run indexes every section file under root. Per-file failures are recorded
// in the statistics and leave that file's fingerprint untouched so it is
// retried next run. A bookkeeping write failure aborts the run.
func (idx *Indexer) Run(ctx context.Context, root string, opts Options) (*Statistics, error) {
	if !idx.lock.TryAcquire() {
		return nil, ErrIndexingInProgress
	}
	defer idx.lock.Release()

	if idx.locker != nil {
		if err := idx.locker.Lock(ctx); err != nil {
			return nil, fmt.Errorf("acquire index lock: %w", err)
		}
		defer func() {
			if err := idx.locker.Unlock(context.WithoutCancel(ctx)); err != nil {
				idx.logger.Warn("release index lock", "error", err)
			}
		}()
	}

	startTime := time.Now()
	stats := &Statistics{
		ErrorMessages: make([]string, 0),
	}

	if err := idx.store.EnsureCollection(ctx, idx.embedder.Dimension()); err != nil {
		return nil, &types.RemoteError{Service: "vectorstore", Op: "ensure collection", Err: err}
	}

	loaded := idx.state.Load(ctx)
	idx.logger.Debug("loaded fingerprints", "count", loaded)

	files, err := idx.Discover(root)
	if err != nil {
		return nil, fmt.Errorf("failed to discover files: %w", err)
	}
	stats.FilesDiscovered = len(files)

	live := make(map[string]struct{}, len(files))
	for _, path := range files {
		live[path] = struct{}{}

		if err := ctx.Err(); err != nil {
			stats.Duration = time.Since(startTime)
			return stats, err
		}

		res, err := idx.indexFile(ctx, path, opts.Force)
		stats.ChunksUpserted += res.chunks
		stats.BatchesFlushed += res.batches

		switch {
		case errors.Is(err, types.ErrBookkeeping):
			stats.Duration = time.Since(startTime)
			return stats, err
		case err != nil:
			stats.FilesFailed++
			stats.ErrorMessages = append(stats.ErrorMessages, errorMessage(path, err))
			idx.logger.Error("indexing failed", "path", path, "error", err)
		case res.skipped:
			stats.FilesSkipped++
			idx.logger.Debug("unchanged", "path", path)
		default:
			stats.FilesIndexed++
			idx.logger.Info("indexed", "path", path, "chunks", res.chunks, "batches", res.batches)
		}
	}

	pruned, err := idx.state.Prune(ctx, live)
	if err != nil {
		stats.Duration = time.Since(startTime)
		return stats, err
	}
	stats.Pruned = pruned
	for _, path := range pruned {
		// Chunks of removed files stay in the store until a full rebuild.
		idx.logger.Info("pruned fingerprint", "path", path)
	}

	stats.Duration = time.Since(startTime)
	return stats, nil
}

// Discover returns the section files under root in lexical order. Hidden
// directories and excluded base names are skipped.
func (idx *Indexer) Discover(root string) ([]string, error) {
	var files []string

	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}

		if d.IsDir() {
			if path != root && strings.HasPrefix(d.Name(), ".") {
				return filepath.SkipDir
			}
			return nil
		}

		if _, skip := idx.exclude[d.Name()]; skip {
			return nil
		}
		if ok, _ := filepath.Match(idx.pattern, d.Name()); !ok {
			return nil
		}

		files = append(files, path)
		return nil
	})
	if err != nil {
		return nil, err
	}

	sort.Strings(files)
	return files, nil
}

// errorMessage names the failed file once. File errors already carry the path.
func errorMessage(path string, err error) string {
	var fileErr *types.FileError
	if errors.As(err, &fileErr) && fileErr.Path == path {
		return err.Error()
	}
	return fmt.Sprintf("%s: %v", path, err)
}

type fileResult struct {
	skipped bool
	chunks  int
	batches int
}

// indexFile runs the per-file protocol: compare fingerprints, delete the
// file's chunks, re-embed and upsert in batches, then commit.
func (idx *Indexer) indexFile(ctx context.Context, path string, force bool) (fileResult, error) {
	var res fileResult

	changed, fp, err := idx.state.Changed(path)
	if err != nil {
		return res, err
	}
	if !changed && !force {
		res.skipped = true
		return res, nil
	}

	if err := idx.store.DeleteBySource(ctx, path); err != nil {
		return res, &types.RemoteError{Service: "vectorstore", Op: "delete", Err: err}
	}

	doc, err := sections.ReadJSON(path)
	if err != nil {
		return res, types.NewFileError(path, "parse", err)
	}

	b := &batcher{
		idx:      idx,
		path:     path,
		stem:     identity.Stem(path),
		textPath: sections.TextPath(path),
		pending:  make([]walker.Entry, 0, idx.batchSize),
	}

	err = walker.Walk(doc, func(e walker.Entry) error {
		b.pending = append(b.pending, e)
		if len(b.pending) >= idx.batchSize {
			return b.flush(ctx)
		}
		return nil
	})
	if err == nil {
		err = b.flush(ctx)
	}
	res.chunks, res.batches = b.chunks, b.batches
	if err != nil {
		return res, err
	}

	if err := idx.state.Commit(ctx, path, fp); err != nil {
		return res, err
	}
	return res, nil
}

// batcher accumulates walked sections and materializes them as chunks
type batcher struct {
	idx      *Indexer
	path     string
	stem     string
	textPath string
	pending  []walker.Entry
	chunks   int
	batches  int
}

func (b *batcher) flush(ctx context.Context) error {
	if len(b.pending) == 0 {
		return nil
	}

	texts := make([]string, len(b.pending))
	for i, e := range b.pending {
		texts[i] = embedder.PassagePrefix + e.Section.Content
	}

	resp, err := b.idx.embedder.GenerateBatch(ctx, embedder.BatchEmbeddingRequest{Texts: texts})
	if err != nil {
		return &types.RemoteError{Service: "embedder", Op: "embed", Err: err}
	}
	if len(resp.Embeddings) != len(texts) {
		return &types.RemoteError{
			Service: "embedder",
			Op:      "embed",
			Err:     fmt.Errorf("expected %d embeddings, got %d", len(texts), len(resp.Embeddings)),
		}
	}

	chunks := make([]types.Chunk, len(b.pending))
	for i, e := range b.pending {
		chunks[i] = types.Chunk{
			ID:     identity.DeriveID(b.stem, e.Ancestors, e.Section.Title),
			Vector: resp.Embeddings[i].Vector,
			Payload: types.Payload{
				Title:          e.Section.Title,
				Level:          e.Section.Level,
				Content:        e.Section.Content,
				SourcePath:     b.path,
				SourceTextPath: b.textPath,
				AncestorTitles: e.Ancestors,
				Depth:          e.Depth(),
			},
		}
	}

	for i := range chunks {
		if err := chunks[i].Validate(); err != nil {
			return types.NewFileError(b.path, "build chunk", fmt.Errorf("%q: %w", chunks[i].Payload.Title, err))
		}
	}

	if err := b.idx.store.Upsert(ctx, chunks); err != nil {
		return &types.RemoteError{Service: "vectorstore", Op: "upsert", Err: err}
	}

	b.chunks += len(chunks)
	b.batches++
	b.pending = b.pending[:0]
	return nil
}
