// Package indexer keeps a vector collection in sync with a directory of
// section documents.
//
// # Basic Usage
//
//	idx, err := indexer.New(indexer.Config{
//	    Store:    store,
//	    Embedder: emb,
//	    State:    fingerprint.New(backend, logger),
//	    Exclude:  []string{fingerprint.DefaultFileName},
//	})
//
//	stats, err := idx.Run(ctx, "/path/to/output_20240101_120000", indexer.Options{})
//	fmt.Printf("Indexed %d files, skipped %d\n", stats.FilesIndexed, stats.FilesSkipped)
//
// # Per-File Protocol
//
// Each discovered file moves through these steps:
//
//  1. Unchanged: the fingerprint (mtime, size, SHA-256) matches the recorded
//     one and the file is skipped.
//  2. Delete: every chunk whose source_path equals the file path is removed
//     with one filtered delete.
//  3. Embed and insert: the document tree is walked in document order. Each
//     section becomes a chunk keyed by identity.DeriveID and embedded with
//     the "passage: " prefix. Chunks are flushed in batches of BatchSize.
//  4. Commit: the fingerprint computed in step 1 is persisted.
//
// Any error in steps 2-3 is logged and the fingerprint is left untouched, so
// the file is retried from step 2 on the next run. A file that fails after
// its delete has no chunks until then.
//
// # Reconciliation
//
// After every file is visited, fingerprints of files no longer on disk are
// pruned. Their chunks are not removed from the store; running with
// Options.Force against a fresh collection rebuilds it.
//
// # Concurrency
//
// A run is sequential. IndexLock rejects a second run in the same process
// with ErrIndexingInProgress. Config.Locker, when set, is held for the whole
// run to exclude other processes sharing the store and bookkeeping.
package indexer
