package storage

import (
	"context"

	"github.com/dshills/texsearch/internal/vectorstore"
	"github.com/dshills/texsearch/pkg/types"
)

// Storage is the full set of operations offered by the embedded database:
// a vector collection plus the fingerprint table and status reporting.
type Storage interface {
	vectorstore.Store

	// Fingerprints returns the bookkeeping table.
	Fingerprints() *FingerprintTable

	// GetStatus reports counts and database health.
	GetStatus(ctx context.Context) (*Status, error)
}

// Status contains database statistics
type Status struct {
	Collection      string
	Dimension       int // 0 when the collection does not exist yet
	ChunksCount     int
	SourcesCount    int
	FingerprintsCnt int
	SchemaVersion   string
	SizeMB          float64
	BuildMode       string
	VectorExtension bool
}

// point is the row shape of the points table
type point struct {
	id         uint64
	sourcePath string
	vector     []float32
	payload    types.Payload
}

// toRowID reinterprets a chunk ID as the signed value SQLite stores.
func toRowID(id uint64) int64 {
	return int64(id)
}

// fromRowID reverses toRowID.
func fromRowID(v int64) uint64 {
	return uint64(v)
}
