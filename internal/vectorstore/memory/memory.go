// Package memory is an in-process vector store using brute-force cosine similarity.
package memory

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/dshills/texsearch/internal/vectorstore"
	"github.com/dshills/texsearch/pkg/types"
)

type point struct {
	vector  []float32
	payload types.Payload
}

// Storage keeps one collection in memory.
type Storage struct {
	mu         sync.RWMutex
	collection string
	dimension  int
	points     map[uint64]point
	created    bool
}

// NewStorage creates an empty store for the named collection.
func NewStorage(collection string) *Storage {
	return &Storage{collection: collection, points: make(map[uint64]point)}
}

func (s *Storage) EnsureCollection(ctx context.Context, dimension int) error {
	if dimension <= 0 {
		return errors.New("invalid dimension")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.created {
		if s.dimension != dimension {
			return fmt.Errorf("%w: collection has %d, requested %d", vectorstore.ErrDimensionMismatch, s.dimension, dimension)
		}
		return nil
	}
	s.dimension = dimension
	s.created = true
	return nil
}

func (s *Storage) DeleteBySource(ctx context.Context, sourcePath string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.created {
		return vectorstore.ErrCollectionNotFound
	}
	for id, p := range s.points {
		if p.payload.SourcePath == sourcePath {
			delete(s.points, id)
		}
	}
	return nil
}

func (s *Storage) Upsert(ctx context.Context, chunks []types.Chunk) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.created {
		return vectorstore.ErrCollectionNotFound
	}
	for i := range chunks {
		if len(chunks[i].Vector) != s.dimension {
			return fmt.Errorf("%w: chunk %d has %d, want %d", vectorstore.ErrDimensionMismatch, chunks[i].ID, len(chunks[i].Vector), s.dimension)
		}
	}
	for _, c := range chunks {
		vec := make([]float32, len(c.Vector))
		copy(vec, c.Vector)
		payload := c.Payload
		payload.AncestorTitles = append([]string(nil), c.Payload.AncestorTitles...)
		s.points[c.ID] = point{vector: vec, payload: payload}
	}
	return nil
}

func (s *Storage) Search(ctx context.Context, req vectorstore.SearchRequest) ([]types.SearchResult, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.created {
		return nil, vectorstore.ErrCollectionNotFound
	}
	if len(req.Vector) != s.dimension {
		return nil, fmt.Errorf("%w: query has %d, want %d", vectorstore.ErrDimensionMismatch, len(req.Vector), s.dimension)
	}

	results := make([]types.SearchResult, 0, len(s.points))
	for id, p := range s.points {
		if !req.Filter.Matches(&p.payload) {
			continue
		}
		results = append(results, types.SearchResult{
			ID:      id,
			Score:   vectorstore.CosineSimilarity(req.Vector, p.vector),
			Payload: p.payload,
		})
	}
	return vectorstore.RankResults(results, req.Limit, req.ScoreThreshold), nil
}

func (s *Storage) Scroll(ctx context.Context, req vectorstore.ScrollRequest) (*vectorstore.ScrollPage, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.created {
		return nil, vectorstore.ErrCollectionNotFound
	}

	limit := req.Limit
	if limit <= 0 {
		limit = vectorstore.DefaultScrollLimit
	}

	ids := make([]uint64, 0, len(s.points))
	for id := range s.points {
		if req.Offset == nil || id >= *req.Offset {
			ids = append(ids, id)
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	page := &vectorstore.ScrollPage{}
	for i, id := range ids {
		if i == limit {
			next := id
			page.NextOffset = &next
			break
		}
		page.Records = append(page.Records, vectorstore.Record{ID: id, Payload: s.points[id].payload})
	}
	return page, nil
}

func (s *Storage) Count(ctx context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.created {
		return 0, vectorstore.ErrCollectionNotFound
	}
	return len(s.points), nil
}

func (s *Storage) Collections(ctx context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.created {
		return []string{}, nil
	}
	return []string{s.collection}, nil
}

func (s *Storage) Close() error { return nil }

var _ vectorstore.Store = (*Storage)(nil)
