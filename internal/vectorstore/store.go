// Package vectorstore defines the contract between the indexer, the query
// side and the vector database holding the indexed chunks.
//
// Implementations live in subpackages (qdrant, memory) and in the storage
// package (embedded SQLite). All of them use cosine similarity.
package vectorstore

import (
	"context"
	"errors"
	"math"
	"sort"

	"github.com/dshills/texsearch/pkg/types"
)

var (
	// ErrCollectionNotFound is returned when the collection has not been created
	ErrCollectionNotFound = errors.New("collection not found")
	// ErrDimensionMismatch is returned when a vector does not match the collection dimension
	ErrDimensionMismatch = errors.New("vector dimension mismatch")
)

// Default page size for Scroll when the request leaves it unset
const DefaultScrollLimit = 256

// Store is a vector collection of chunks keyed by ID.
type Store interface {
	// EnsureCollection creates the collection with the given dimension if it does not exist.
	EnsureCollection(ctx context.Context, dimension int) error

	// DeleteBySource removes every chunk whose payload source_path equals sourcePath,
	// as a single filtered operation.
	DeleteBySource(ctx context.Context, sourcePath string) error

	// Upsert inserts or overwrites chunks by ID.
	Upsert(ctx context.Context, chunks []types.Chunk) error

	// Search returns the most similar chunks ordered by descending score.
	Search(ctx context.Context, req SearchRequest) ([]types.SearchResult, error)

	// Scroll returns one page of an unfiltered scan over all chunks.
	Scroll(ctx context.Context, req ScrollRequest) (*ScrollPage, error)

	// Count returns the number of chunks in the collection.
	Count(ctx context.Context) (int, error)

	// Collections lists the collection names known to the backend.
	Collections(ctx context.Context) ([]string, error)

	// Close releases any resources held by the store.
	Close() error
}

// Filter restricts a search to chunks matching every non-empty field.
type Filter struct {
	AncestorTitle string // matches if any ancestor title equals it
	SourcePath    string // exact match on source_path
}

// IsEmpty reports whether the filter has no conditions.
func (f Filter) IsEmpty() bool {
	return f.AncestorTitle == "" && f.SourcePath == ""
}

// Matches reports whether payload satisfies the filter.
func (f Filter) Matches(p *types.Payload) bool {
	if f.SourcePath != "" && p.SourcePath != f.SourcePath {
		return false
	}
	if f.AncestorTitle != "" && !p.HasAncestor(f.AncestorTitle) {
		return false
	}
	return true
}

// SearchRequest contains parameters for a similarity search.
type SearchRequest struct {
	Vector         []float32
	Limit          int
	ScoreThreshold *float64 // results scoring below are dropped
	Filter         Filter
}

// ScrollRequest pages through the collection in ID order.
type ScrollRequest struct {
	Limit  int
	Offset *uint64 // first ID to return, nil for the beginning
}

// Record is a chunk returned by Scroll, without its vector.
type Record struct {
	ID      uint64
	Payload types.Payload
}

// ScrollPage is one page of a scan. NextOffset is nil on the last page.
type ScrollPage struct {
	Records    []Record
	NextOffset *uint64
}

// ScrollAll pages through the whole collection and calls fn for each record.
func ScrollAll(ctx context.Context, store Store, pageSize int, fn func(Record) error) error {
	req := ScrollRequest{Limit: pageSize}
	for {
		page, err := store.Scroll(ctx, req)
		if err != nil {
			return err
		}
		for _, rec := range page.Records {
			if err := fn(rec); err != nil {
				return err
			}
		}
		if page.NextOffset == nil {
			return nil
		}
		req.Offset = page.NextOffset
	}
}

// CosineSimilarity computes the cosine similarity between two vectors
func CosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) {
		return 0
	}

	var dotProduct, normA, normB float64
	for i := range a {
		dotProduct += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}

	if normA == 0 || normB == 0 {
		return 0
	}

	return dotProduct / (math.Sqrt(normA) * math.Sqrt(normB))
}

// RankResults sorts results by descending score, breaking ties by ascending
// ID, applies the score threshold and truncates to limit.
func RankResults(results []types.SearchResult, limit int, threshold *float64) []types.SearchResult {
	if threshold != nil {
		kept := results[:0]
		for _, r := range results {
			if r.Score >= *threshold {
				kept = append(kept, r)
			}
		}
		results = kept
	}

	sort.Slice(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		return results[i].ID < results[j].ID
	})

	if limit > 0 && len(results) > limit {
		results = results[:limit]
	}
	return results
}
