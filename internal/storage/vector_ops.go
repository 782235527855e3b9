package storage

import (
	"context"
	"database/sql"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"math"

	"github.com/dshills/texsearch/internal/vectorstore"
	"github.com/dshills/texsearch/pkg/types"
)

// searchVector performs vector similarity search using cosine similarity
func searchVector(ctx context.Context, db *sql.DB, collection string, queryVector []float32, limit int, threshold *float64, filter vectorstore.Filter) ([]types.SearchResult, error) {
	// Use optimized SQL-based search when sqlite-vec is available
	if VectorExtensionAvailable {
		return searchVectorOptimized(ctx, db, collection, queryVector, limit, threshold, filter)
	}
	// Fall back to Go-based computation for purego builds
	return searchVectorFallback(ctx, db, collection, queryVector, limit, threshold, filter)
}

// searchVectorOptimized uses sqlite-vec extension for SQL-based vector similarity search
func searchVectorOptimized(ctx context.Context, db *sql.DB, collection string, queryVector []float32, limit int, threshold *float64, filter vectorstore.Filter) ([]types.SearchResult, error) {
	queryVectorBlob := serializeVector(queryVector)

	// vec_distance_cosine returns distance (lower is better); convert to similarity
	query := `
		SELECT
			p.id,
			p.payload,
			1.0 - vec_distance_cosine(p.vector, ?) as similarity
		FROM points p
		WHERE p.collection = ?
	`
	args := []interface{}{queryVectorBlob, collection}

	query, args = applyPayloadFilters(query, args, filter)

	if threshold != nil {
		query += " AND (1.0 - vec_distance_cosine(p.vector, ?)) >= ?"
		args = append(args, queryVectorBlob, *threshold)
	}

	query += " ORDER BY similarity DESC, p.id LIMIT ?"
	args = append(args, limit)

	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to execute vector search: %w", err)
	}
	defer func() { _ = rows.Close() }()

	results := make([]types.SearchResult, 0, limit)
	for rows.Next() {
		var rowID int64
		var payload string
		var result types.SearchResult
		if err := rows.Scan(&rowID, &payload, &result.Score); err != nil {
			return nil, fmt.Errorf("failed to scan result: %w", err)
		}
		result.ID = fromRowID(rowID)
		if err := json.Unmarshal([]byte(payload), &result.Payload); err != nil {
			return nil, fmt.Errorf("failed to decode payload of point %d: %w", result.ID, err)
		}
		results = append(results, result)
	}

	return results, rows.Err()
}

// searchVectorFallback performs vector search using Go-based cosine similarity computation
// This is used when sqlite-vec extension is not available (purego builds)
func searchVectorFallback(ctx context.Context, db *sql.DB, collection string, queryVector []float32, limit int, threshold *float64, filter vectorstore.Filter) ([]types.SearchResult, error) {
	query := `
		SELECT p.id, p.source_path, p.vector, p.payload
		FROM points p
		WHERE p.collection = ?
	`
	args := []interface{}{collection}

	query, args = applyPayloadFilters(query, args, filter)

	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query points: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var results []types.SearchResult
	for rows.Next() {
		p, err := scanPoint(rows)
		if err != nil {
			return nil, err
		}
		results = append(results, types.SearchResult{
			ID:      p.id,
			Score:   cosineSimilarity(queryVector, p.vector),
			Payload: p.payload,
		})
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return vectorstore.RankResults(results, limit, threshold), nil
}

// scanPoint reads one row of (id, source_path, vector, payload)
func scanPoint(rows *sql.Rows) (*point, error) {
	var rowID int64
	var blob []byte
	var payload string
	p := &point{}
	if err := rows.Scan(&rowID, &p.sourcePath, &blob, &payload); err != nil {
		return nil, fmt.Errorf("failed to scan point: %w", err)
	}
	p.id = fromRowID(rowID)
	p.vector = deserializeVector(blob)
	if err := json.Unmarshal([]byte(payload), &p.payload); err != nil {
		return nil, fmt.Errorf("failed to decode payload of point %d: %w", p.id, err)
	}
	return p, nil
}

// applyPayloadFilters adds WHERE clause filters on source path and ancestor titles
func applyPayloadFilters(query string, args []interface{}, filter vectorstore.Filter) (string, []interface{}) {
	if filter.SourcePath != "" {
		query += " AND p.source_path = ?"
		args = append(args, filter.SourcePath)
	}
	if filter.AncestorTitle != "" {
		query += " AND EXISTS (SELECT 1 FROM json_each(p.payload, '$.ancestor_titles') a WHERE a.value = ?)"
		args = append(args, filter.AncestorTitle)
	}
	return query, args
}

// serializeVector converts a float32 slice to a byte blob (little-endian)
func serializeVector(vector []float32) []byte {
	blob := make([]byte, len(vector)*4)
	for i, v := range vector {
		binary.LittleEndian.PutUint32(blob[i*4:], math.Float32bits(v))
	}
	return blob
}

// deserializeVector converts a byte blob back to a float32 slice
func deserializeVector(blob []byte) []float32 {
	vector := make([]float32, len(blob)/4)
	for i := range vector {
		bits := binary.LittleEndian.Uint32(blob[i*4:])
		vector[i] = math.Float32frombits(bits)
	}
	return vector
}

// cosineSimilarity computes the cosine similarity between two vectors
func cosineSimilarity(a, b []float32) float64 {
	return vectorstore.CosineSimilarity(a, b)
}
