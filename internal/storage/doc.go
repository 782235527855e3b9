// Package storage provides SQLite-based persistence for indexed chunks and
// file fingerprints.
//
// The storage layer manages:
//   - Vector collections (name, dimension, distance)
//   - Points: chunk IDs, vectors and JSON payloads
//   - File fingerprints used for incremental indexing
//
// SQLiteStorage implements vectorstore.Store, so the indexer and searcher can
// run against a single local database file instead of a Qdrant server.
// Its Fingerprints table implements fingerprint.Backend.
//
// # Database Schema
//
// Tables:
//   - schema_version: Applied migrations (semantic versions)
//   - collections: One row per vector collection
//   - points: Chunks keyed by (collection, id); source_path is indexed
//   - fingerprints: path -> (mtime, size, hash)
//
// Chunk IDs are unsigned 64-bit values. They are stored in the INTEGER
// column by reinterpreting the bits as int64, so scroll order follows the
// signed value.
//
// # Basic Usage
//
//	db, err := storage.NewSQLiteStorage("qdrant_storage2/texsearch.db", "research_papers")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer db.Close()
//
//	if err := db.EnsureCollection(ctx, 768); err != nil {
//	    return err
//	}
//
//	// Replace all chunks of one source file
//	if err := db.DeleteBySource(ctx, "corpus/paper.json"); err != nil {
//	    return err
//	}
//	if err := db.Upsert(ctx, chunks); err != nil {
//	    return err
//	}
//
// # Vector Operations
//
// Vector search uses cosine similarity via sqlite-vec extension (CGO build)
// or pure Go implementation (purego build). Filters on source_path and on
// ancestor titles are applied in SQL; the ancestor filter uses json_each
// over the stored payload.
//
// # Build Tags
//
// Without tags the modernc.org/sqlite driver is used and no C compiler is
// needed; similarity is computed in Go. With -tags sqlite_vec (CGO_ENABLED=1)
// the mattn/go-sqlite3 driver is linked and searches call
// vec_distance_cosine from the sqlite-vec extension. File databases open
// with a 5s busy timeout in either build.
package storage
