// Package fingerprint tracks per-file fingerprints across indexing runs.
//
// A State is loaded once at the start of a run, consulted for every
// discovered file, updated with Commit after a file is fully indexed, and
// pruned at the end of the run. Every Commit and Prune rewrites the whole
// mapping through the Backend.
package fingerprint

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sort"
	"sync"

	"github.com/dshills/texsearch/pkg/types"
)

// State is the in-memory view of the bookkeeping mapping.
type State struct {
	backend Backend
	logger  *slog.Logger

	mu      sync.Mutex
	records map[string]types.Fingerprint
}

// New creates an empty State persisted through backend.
func New(backend Backend, logger *slog.Logger) *State {
	if logger == nil {
		logger = slog.Default()
	}
	return &State{
		backend: backend,
		logger:  logger,
		records: map[string]types.Fingerprint{},
	}
}

// Load replaces the in-memory mapping with the persisted one and returns the
// number of records. An unreadable or corrupt mapping is logged and treated as
// empty, so every file is considered changed.
func (s *State) Load(ctx context.Context) int {
	records, err := s.backend.Load(ctx)
	if err != nil {
		s.logger.Warn("bookkeeping unreadable, treating all files as changed", "error", err)
		records = map[string]types.Fingerprint{}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.records = records
	return len(records)
}

// Stored returns the number of records currently persisted by the backend.
// The in-memory mapping is left untouched.
func (s *State) Stored(ctx context.Context) (int, error) {
	records, err := s.backend.Load(ctx)
	if err != nil {
		return 0, err
	}
	return len(records), nil
}

// Get returns the recorded fingerprint for path.
func (s *State) Get(path string) (types.Fingerprint, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fp, ok := s.records[path]
	return fp, ok
}

// Len returns the number of recorded paths.
func (s *State) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.records)
}

// Paths returns the recorded paths in lexical order.
func (s *State) Paths() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	paths := make([]string, 0, len(s.records))
	for p := range s.records {
		paths = append(paths, p)
	}
	sort.Strings(paths)
	return paths
}

// Changed computes the current fingerprint of path and reports whether it
// differs from the recorded one. A path with no record is changed. The fresh
// fingerprint is returned so the caller can commit exactly what it compared.
func (s *State) Changed(path string) (bool, types.Fingerprint, error) {
	fp, err := Compute(path)
	if err != nil {
		return false, types.Fingerprint{}, err
	}

	old, ok := s.Get(path)
	if !ok {
		return true, fp, nil
	}
	return !old.Equal(fp), fp, nil
}

// Commit records fp for path and persists the full mapping. On failure the
// in-memory record is restored and the returned error wraps types.ErrBookkeeping.
func (s *State) Commit(ctx context.Context, path string, fp types.Fingerprint) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	prev, hadPrev := s.records[path]
	s.records[path] = fp

	if err := s.backend.Save(ctx, s.records); err != nil {
		if hadPrev {
			s.records[path] = prev
		} else {
			delete(s.records, path)
		}
		return fmt.Errorf("%w: commit %s: %v", types.ErrBookkeeping, path, err)
	}
	return nil
}

// Prune drops every recorded path not in live, persists the mapping and
// returns the removed paths in lexical order.
func (s *State) Prune(ctx context.Context, live map[string]struct{}) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	removed := make(map[string]types.Fingerprint)
	for path, fp := range s.records {
		if _, ok := live[path]; !ok {
			removed[path] = fp
			delete(s.records, path)
		}
	}

	if err := s.backend.Save(ctx, s.records); err != nil {
		for path, fp := range removed {
			s.records[path] = fp
		}
		return nil, fmt.Errorf("%w: prune: %v", types.ErrBookkeeping, err)
	}

	paths := make([]string, 0, len(removed))
	for p := range removed {
		paths = append(paths, p)
	}
	sort.Strings(paths)
	return paths, nil
}

// Compute returns the fingerprint of the file at path: modification time,
// size and SHA-256 of its contents. Errors are *types.FileError.
func Compute(path string) (types.Fingerprint, error) {
	file, err := os.Open(path)
	if err != nil {
		return types.Fingerprint{}, types.NewFileError(path, "open", err)
	}
	defer func() { _ = file.Close() }()

	info, err := file.Stat()
	if err != nil {
		return types.Fingerprint{}, types.NewFileError(path, "stat", err)
	}

	hash := sha256.New()
	if _, err := io.Copy(hash, file); err != nil {
		return types.Fingerprint{}, types.NewFileError(path, "hash", err)
	}

	return types.Fingerprint{
		ModTime: float64(info.ModTime().UnixNano()) / 1e9,
		Size:    info.Size(),
		Hash:    hex.EncodeToString(hash.Sum(nil)),
	}, nil
}
