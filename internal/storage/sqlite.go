package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/dshills/texsearch/internal/vectorstore"
	"github.com/dshills/texsearch/pkg/types"
)

// SQLiteStorage implements the Storage interface using SQLite
type SQLiteStorage struct {
	db         *sql.DB
	collection string
}

// busyTimeout is how long a connection waits on a lock held by another
// process, e.g. a second texsearch reading while the indexer writes.
const busyTimeout = 5 * time.Second

func isMemory(path string) bool {
	return path == ":memory:" || strings.HasPrefix(path, "file::memory:")
}

// openDatabase opens a SQLite database with appropriate settings
func openDatabase(dbPath string) (*sql.DB, error) {
	db, err := sql.Open(DriverName, dataSourceName(dbPath))
	if err != nil {
		return nil, err
	}

	// Enable WAL mode for better concurrency
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}

	// Set connection pool settings
	db.SetMaxOpenConns(1) // SQLite benefits from single writer
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	// Enable foreign keys
	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	return db, nil
}

// NewSQLiteStorage opens (or creates) the database at dbPath and applies
// pending migrations. Vector operations target the named collection.
func NewSQLiteStorage(dbPath, collection string) (*SQLiteStorage, error) {
	if collection == "" {
		return nil, errors.New("collection name is required")
	}

	db, err := openDatabase(dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Apply migrations
	if err := ApplyMigrations(context.Background(), db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to apply migrations: %w", err)
	}

	return &SQLiteStorage{db: db, collection: collection}, nil
}

// Close closes the database connection
func (s *SQLiteStorage) Close() error {
	return s.db.Close()
}

// querier is an interface that both *sql.DB and *sql.Tx implement
type querier interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}

// Collection operations

// collectionDimension returns the dimension of the collection or ErrCollectionNotFound
func (s *SQLiteStorage) collectionDimension(ctx context.Context, q querier) (int, error) {
	var dimension int
	err := q.QueryRowContext(ctx, "SELECT dimension FROM collections WHERE name = ?", s.collection).Scan(&dimension)
	if err == sql.ErrNoRows {
		return 0, vectorstore.ErrCollectionNotFound
	}
	if err != nil {
		return 0, fmt.Errorf("failed to read collection: %w", err)
	}
	return dimension, nil
}

func (s *SQLiteStorage) EnsureCollection(ctx context.Context, dimension int) error {
	if dimension <= 0 {
		return errors.New("invalid dimension")
	}

	existing, err := s.collectionDimension(ctx, s.db)
	if err == nil {
		if existing != dimension {
			return fmt.Errorf("%w: collection %s has %d, requested %d", vectorstore.ErrDimensionMismatch, s.collection, existing, dimension)
		}
		return nil
	}
	if !errors.Is(err, vectorstore.ErrCollectionNotFound) {
		return err
	}

	_, err = s.db.ExecContext(ctx,
		"INSERT INTO collections (name, dimension, distance) VALUES (?, ?, 'cosine')",
		s.collection, dimension)
	if err != nil {
		return fmt.Errorf("failed to create collection: %w", err)
	}
	return nil
}

func (s *SQLiteStorage) Collections(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT name FROM collections ORDER BY name")
	if err != nil {
		return nil, fmt.Errorf("failed to list collections: %w", err)
	}
	defer func() { _ = rows.Close() }()

	names := []string{}
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		names = append(names, name)
	}
	return names, rows.Err()
}

// Point operations

func (s *SQLiteStorage) DeleteBySource(ctx context.Context, sourcePath string) error {
	if _, err := s.collectionDimension(ctx, s.db); err != nil {
		return err
	}
	_, err := s.db.ExecContext(ctx,
		"DELETE FROM points WHERE collection = ? AND source_path = ?",
		s.collection, sourcePath)
	if err != nil {
		return fmt.Errorf("failed to delete points for %s: %w", sourcePath, err)
	}
	return nil
}

// upsertWithQuerier writes chunks using the given querier
func (s *SQLiteStorage) upsertWithQuerier(ctx context.Context, q querier, dimension int, chunks []types.Chunk) error {
	query := `
		INSERT INTO points (collection, id, source_path, vector, payload, updated_at)
		VALUES (?, ?, ?, ?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT(collection, id) DO UPDATE SET
			source_path = excluded.source_path,
			vector = excluded.vector,
			payload = excluded.payload,
			updated_at = CURRENT_TIMESTAMP
	`
	for i := range chunks {
		c := &chunks[i]
		if len(c.Vector) != dimension {
			return fmt.Errorf("%w: chunk %d has %d, want %d", vectorstore.ErrDimensionMismatch, c.ID, len(c.Vector), dimension)
		}
		payload, err := json.Marshal(c.Payload)
		if err != nil {
			return fmt.Errorf("failed to marshal payload for chunk %d: %w", c.ID, err)
		}
		if _, err := q.ExecContext(ctx, query,
			s.collection, toRowID(c.ID), c.Payload.SourcePath, serializeVector(c.Vector), string(payload)); err != nil {
			return fmt.Errorf("failed to upsert chunk %d: %w", c.ID, err)
		}
	}
	return nil
}

// Upsert writes all chunks in one transaction
func (s *SQLiteStorage) Upsert(ctx context.Context, chunks []types.Chunk) error {
	if len(chunks) == 0 {
		return nil
	}

	dimension, err := s.collectionDimension(ctx, s.db)
	if err != nil {
		return err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if err := s.upsertWithQuerier(ctx, tx, dimension, chunks); err != nil {
		return err
	}
	return tx.Commit()
}

func (s *SQLiteStorage) Search(ctx context.Context, req vectorstore.SearchRequest) ([]types.SearchResult, error) {
	dimension, err := s.collectionDimension(ctx, s.db)
	if err != nil {
		return nil, err
	}
	if len(req.Vector) != dimension {
		return nil, fmt.Errorf("%w: query has %d, want %d", vectorstore.ErrDimensionMismatch, len(req.Vector), dimension)
	}
	limit := req.Limit
	if limit <= 0 {
		limit = 5
	}
	return searchVector(ctx, s.db, s.collection, req.Vector, limit, req.ScoreThreshold, req.Filter)
}

func (s *SQLiteStorage) Scroll(ctx context.Context, req vectorstore.ScrollRequest) (*vectorstore.ScrollPage, error) {
	if _, err := s.collectionDimension(ctx, s.db); err != nil {
		return nil, err
	}

	limit := req.Limit
	if limit <= 0 {
		limit = vectorstore.DefaultScrollLimit
	}

	query := "SELECT id, payload FROM points WHERE collection = ?"
	args := []interface{}{s.collection}
	if req.Offset != nil {
		query += " AND id >= ?"
		args = append(args, toRowID(*req.Offset))
	}
	// One extra row tells us where the next page starts
	query += " ORDER BY id LIMIT ?"
	args = append(args, limit+1)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to scroll points: %w", err)
	}
	defer func() { _ = rows.Close() }()

	page := &vectorstore.ScrollPage{}
	for rows.Next() {
		var rowID int64
		var payload string
		if err := rows.Scan(&rowID, &payload); err != nil {
			return nil, fmt.Errorf("failed to scan point: %w", err)
		}
		if len(page.Records) == limit {
			next := fromRowID(rowID)
			page.NextOffset = &next
			break
		}
		rec := vectorstore.Record{ID: fromRowID(rowID)}
		if err := json.Unmarshal([]byte(payload), &rec.Payload); err != nil {
			return nil, fmt.Errorf("failed to decode payload of point %d: %w", rec.ID, err)
		}
		page.Records = append(page.Records, rec)
	}
	return page, rows.Err()
}

func (s *SQLiteStorage) Count(ctx context.Context) (int, error) {
	if _, err := s.collectionDimension(ctx, s.db); err != nil {
		return 0, err
	}
	var n int
	err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM points WHERE collection = ?", s.collection).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("failed to count points: %w", err)
	}
	return n, nil
}

// Status operations

// GetStatus retrieves counts and health information for the collection
func (s *SQLiteStorage) GetStatus(ctx context.Context) (*Status, error) {
	status := &Status{
		Collection:      s.collection,
		BuildMode:       BuildMode,
		VectorExtension: VectorExtensionAvailable,
	}

	dimension, err := s.collectionDimension(ctx, s.db)
	if err != nil && !errors.Is(err, vectorstore.ErrCollectionNotFound) {
		return nil, err
	}
	status.Dimension = dimension

	queries := []struct {
		query string
		dest  *int
	}{
		{"SELECT COUNT(*) FROM points WHERE collection = ?", &status.ChunksCount},
		{"SELECT COUNT(DISTINCT source_path) FROM points WHERE collection = ?", &status.SourcesCount},
	}
	for _, q := range queries {
		if err := s.db.QueryRowContext(ctx, q.query, s.collection).Scan(q.dest); err != nil {
			return nil, fmt.Errorf("failed to read status: %w", err)
		}
	}
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM fingerprints").Scan(&status.FingerprintsCnt); err != nil {
		return nil, fmt.Errorf("failed to count fingerprints: %w", err)
	}

	version, err := CurrentVersion(ctx, s.db)
	if err != nil {
		return nil, err
	}
	status.SchemaVersion = version

	var pageCount, pageSize int64
	if err := s.db.QueryRowContext(ctx, "PRAGMA page_count").Scan(&pageCount); err == nil {
		if err := s.db.QueryRowContext(ctx, "PRAGMA page_size").Scan(&pageSize); err == nil {
			status.SizeMB = float64(pageCount*pageSize) / (1024 * 1024)
		}
	}

	return status, nil
}

// Fingerprints returns the bookkeeping table stored in the same database
func (s *SQLiteStorage) Fingerprints() *FingerprintTable {
	return &FingerprintTable{db: s.db}
}

// FingerprintTable persists file fingerprints. It satisfies fingerprint.Backend.
type FingerprintTable struct {
	db *sql.DB
}

// Load returns every stored fingerprint keyed by path
func (f *FingerprintTable) Load(ctx context.Context) (map[string]types.Fingerprint, error) {
	rows, err := f.db.QueryContext(ctx, "SELECT path, mtime, size, hash FROM fingerprints")
	if err != nil {
		return nil, fmt.Errorf("failed to load fingerprints: %w", err)
	}
	defer func() { _ = rows.Close() }()

	records := map[string]types.Fingerprint{}
	for rows.Next() {
		var path string
		var fp types.Fingerprint
		if err := rows.Scan(&path, &fp.ModTime, &fp.Size, &fp.Hash); err != nil {
			return nil, fmt.Errorf("failed to scan fingerprint: %w", err)
		}
		records[path] = fp
	}
	return records, rows.Err()
}

// Save replaces the whole table with records in one transaction
func (f *FingerprintTable) Save(ctx context.Context, records map[string]types.Fingerprint) error {
	tx, err := f.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, "DELETE FROM fingerprints"); err != nil {
		return fmt.Errorf("failed to clear fingerprints: %w", err)
	}
	for path, fp := range records {
		if _, err := tx.ExecContext(ctx,
			"INSERT INTO fingerprints (path, mtime, size, hash) VALUES (?, ?, ?, ?)",
			path, fp.ModTime, fp.Size, fp.Hash); err != nil {
			return fmt.Errorf("failed to store fingerprint for %s: %w", path, err)
		}
	}
	return tx.Commit()
}

var _ Storage = (*SQLiteStorage)(nil)
