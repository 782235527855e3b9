// Package watch re-runs the indexer when section files under the corpus root
// change. Events are debounced and runs are strictly sequential.
package watch

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/dshills/texsearch/internal/indexer"
)

// DefaultDebounce is the quiet period after the last event before a run starts
const DefaultDebounce = 500 * time.Millisecond

// Reindexer runs one indexing pass over root
type Reindexer interface {
	Reindex(ctx context.Context, root string, opts indexer.Options) (*indexer.Statistics, error)
}

// Config controls a Watcher
type Config struct {
	Root       string
	Pattern    string        // base-name glob, default indexer.DefaultPattern
	Exclude    []string      // base names that never trigger a run
	Debounce   time.Duration // default DefaultDebounce
	InitialRun bool          // index once before waiting for events
	Logger     *slog.Logger

	// OnRun is called after every pass, from the watch goroutine
	OnRun func(*indexer.Statistics, error)
}

// Watcher watches a corpus tree and triggers reindexing
type Watcher struct {
	cfg     Config
	target  Reindexer
	logger  *slog.Logger
	exclude map[string]struct{}
}

// New creates a Watcher. The root must be an existing directory.
func New(cfg Config, target Reindexer) (*Watcher, error) {
	if target == nil {
		return nil, errors.New("watch: reindexer is required")
	}
	info, err := os.Stat(cfg.Root)
	if err != nil {
		return nil, fmt.Errorf("watch root: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("watch root %s is not a directory", cfg.Root)
	}
	if cfg.Pattern == "" {
		cfg.Pattern = indexer.DefaultPattern
	}
	if _, err := filepath.Match(cfg.Pattern, ""); err != nil {
		return nil, fmt.Errorf("watch: invalid pattern %q: %w", cfg.Pattern, err)
	}
	if cfg.Debounce <= 0 {
		cfg.Debounce = DefaultDebounce
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	w := &Watcher{
		cfg:     cfg,
		target:  target,
		logger:  cfg.Logger,
		exclude: make(map[string]struct{}, len(cfg.Exclude)),
	}
	for _, name := range cfg.Exclude {
		w.exclude[name] = struct{}{}
	}
	return w, nil
}

// Run blocks until ctx is done. A pass interrupted by cancellation is not
// retried.
func (w *Watcher) Run(ctx context.Context) error {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	defer func() { _ = fw.Close() }()

	if err := w.addTree(fw, w.cfg.Root); err != nil {
		return err
	}

	if w.cfg.InitialRun {
		w.reindex(ctx)
	}

	timer := time.NewTimer(w.cfg.Debounce)
	timer.Stop()
	defer timer.Stop()

	w.logger.Info("watching for changes", "root", w.cfg.Root, "debounce", w.cfg.Debounce)

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-fw.Events:
			if !ok {
				return nil
			}
			if !w.handleEvent(fw, event) {
				continue
			}
			w.logger.Debug("change detected", "path", event.Name, "op", event.Op.String())
			timer.Reset(w.cfg.Debounce)

		case err, ok := <-fw.Errors:
			if !ok {
				return nil
			}
			w.logger.Warn("watch error", "error", err)

		case <-timer.C:
			// Events that arrive during the pass queue up and schedule the next one.
			w.reindex(ctx)
		}
	}
}

func (w *Watcher) reindex(ctx context.Context) {
	stats, err := w.target.Reindex(ctx, w.cfg.Root, indexer.Options{})
	switch {
	case err != nil && ctx.Err() == nil:
		w.logger.Error("reindex failed", "error", err)
	case stats != nil:
		w.logger.Info("reindex complete",
			"indexed", stats.FilesIndexed,
			"skipped", stats.FilesSkipped,
			"failed", stats.FilesFailed,
			"duration", stats.Duration)
	}
	if w.cfg.OnRun != nil {
		w.cfg.OnRun(stats, err)
	}
}

// handleEvent reports whether event should schedule a run. New directories
// are added to the watch set and always schedule one, since files may have
// been moved in with them.
func (w *Watcher) handleEvent(fw *fsnotify.Watcher, event fsnotify.Event) bool {
	name := filepath.Base(event.Name)
	if strings.HasPrefix(name, ".") {
		return false
	}

	if event.Has(fsnotify.Create) {
		if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
			if err := w.addTree(fw, event.Name); err != nil {
				w.logger.Warn("watch new directory", "path", event.Name, "error", err)
			}
			return true
		}
	}

	return w.relevant(event)
}

// relevant reports whether event touches a section file
func (w *Watcher) relevant(event fsnotify.Event) bool {
	if !event.Has(fsnotify.Create) && !event.Has(fsnotify.Write) &&
		!event.Has(fsnotify.Remove) && !event.Has(fsnotify.Rename) {
		return false
	}

	name := filepath.Base(event.Name)
	if strings.HasPrefix(name, ".") {
		return false
	}
	if _, skip := w.exclude[name]; skip {
		return false
	}
	ok, _ := filepath.Match(w.cfg.Pattern, name)
	return ok
}

// addTree watches dir and every non-hidden directory below it
func (w *Watcher) addTree(fw *fsnotify.Watcher, dir string) error {
	return filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			return nil
		}
		if path != dir && strings.HasPrefix(d.Name(), ".") {
			return filepath.SkipDir
		}
		if err := fw.Add(path); err != nil {
			return fmt.Errorf("watch %s: %w", path, err)
		}
		return nil
	})
}
