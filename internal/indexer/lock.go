package indexer

import "sync/atomic"

// IndexLock rejects overlapping runs within one process without blocking.
// Runs triggered from MCP, HTTP or the watcher share one Indexer and so one lock.
type IndexLock struct {
	held atomic.Bool
}

// TryAcquire takes the lock if it is free and reports whether it did
func (l *IndexLock) TryAcquire() bool {
	return l.held.CompareAndSwap(false, true)
}

// Release frees the lock. Only the caller whose TryAcquire succeeded may call it.
func (l *IndexLock) Release() {
	l.held.Store(false)
}

// Held reports whether a run currently holds the lock
func (l *IndexLock) Held() bool {
	return l.held.Load()
}
