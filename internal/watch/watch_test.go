package watch

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dshills/texsearch/internal/indexer"
	"github.com/dshills/texsearch/internal/logging"
)

// fakeReindexer counts passes and records the highest observed concurrency
type fakeReindexer struct {
	calls   atomic.Int32
	active  atomic.Int32
	maxSeen atomic.Int32
	delay   time.Duration
}

func (f *fakeReindexer) Reindex(ctx context.Context, root string, opts indexer.Options) (*indexer.Statistics, error) {
	n := f.active.Add(1)
	defer f.active.Add(-1)
	for {
		seen := f.maxSeen.Load()
		if n <= seen || f.maxSeen.CompareAndSwap(seen, n) {
			break
		}
	}
	f.calls.Add(1)
	if f.delay > 0 {
		time.Sleep(f.delay)
	}
	return &indexer.Statistics{FilesIndexed: 1}, nil
}

func startWatcher(t *testing.T, cfg Config, target Reindexer) context.CancelFunc {
	t.Helper()
	if cfg.Logger == nil {
		cfg.Logger = logging.Discard()
	}
	w, err := New(cfg, target)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()

	t.Cleanup(func() {
		cancel()
		select {
		case err := <-done:
			assert.NoError(t, err)
		case <-time.After(5 * time.Second):
			t.Error("watcher did not stop")
		}
	})
	return cancel
}

func TestNew(t *testing.T) {
	target := &fakeReindexer{}

	_, err := New(Config{Root: t.TempDir()}, nil)
	assert.Error(t, err)

	_, err = New(Config{Root: filepath.Join(t.TempDir(), "missing")}, target)
	assert.Error(t, err)

	file := filepath.Join(t.TempDir(), "file.json")
	require.NoError(t, os.WriteFile(file, []byte("{}"), 0o644))
	_, err = New(Config{Root: file}, target)
	assert.Error(t, err)

	_, err = New(Config{Root: t.TempDir(), Pattern: "["}, target)
	assert.Error(t, err)

	w, err := New(Config{Root: t.TempDir()}, target)
	require.NoError(t, err)
	assert.Equal(t, DefaultDebounce, w.cfg.Debounce)
	assert.Equal(t, indexer.DefaultPattern, w.cfg.Pattern)
}

func TestRelevant(t *testing.T) {
	w, err := New(Config{Root: t.TempDir(), Exclude: []string{"processing_metadata.json"}}, &fakeReindexer{})
	require.NoError(t, err)

	tests := []struct {
		name     string
		path     string
		op       fsnotify.Op
		expected bool
	}{
		{"create section file", "out/1-Intro.json", fsnotify.Create, true},
		{"write section file", "out/1-Intro.json", fsnotify.Write, true},
		{"remove section file", "out/1-Intro.json", fsnotify.Remove, true},
		{"rename section file", "out/1-Intro.json", fsnotify.Rename, true},
		{"combined write and chmod", "out/1-Intro.json", fsnotify.Write | fsnotify.Chmod, true},
		{"chmod only", "out/1-Intro.json", fsnotify.Chmod, false},
		{"text file", "out/1-Intro.txt", fsnotify.Write, false},
		{"hidden file", "out/.1-Intro.json", fsnotify.Write, false},
		{"bookkeeping file", "out/processing_metadata.json", fsnotify.Write, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, w.relevant(fsnotify.Event{Name: tt.path, Op: tt.op}))
		})
	}
}

func TestRunInitialPass(t *testing.T) {
	target := &fakeReindexer{}
	var mu sync.Mutex
	var seen []*indexer.Statistics

	startWatcher(t, Config{
		Root:       t.TempDir(),
		InitialRun: true,
		OnRun: func(stats *indexer.Statistics, err error) {
			mu.Lock()
			defer mu.Unlock()
			seen = append(seen, stats)
		},
	}, target)

	assert.Eventually(t, func() bool { return target.calls.Load() == 1 }, 2*time.Second, 10*time.Millisecond)
	mu.Lock()
	defer mu.Unlock()
	require.Len(t, seen, 1)
	assert.Equal(t, 1, seen[0].FilesIndexed)
}

func TestRunDebouncesChanges(t *testing.T) {
	root := t.TempDir()
	target := &fakeReindexer{}
	startWatcher(t, Config{Root: root, Debounce: 100 * time.Millisecond}, target)

	// Give the watcher time to register the root.
	time.Sleep(50 * time.Millisecond)
	for i := range 5 {
		name := filepath.Join(root, "doc"+string(rune('a'+i))+".json")
		require.NoError(t, os.WriteFile(name, []byte("{}"), 0o644))
	}

	assert.Eventually(t, func() bool { return target.calls.Load() >= 1 }, 3*time.Second, 10*time.Millisecond)
	time.Sleep(300 * time.Millisecond)
	assert.Equal(t, int32(1), target.calls.Load(), "burst of writes coalesces into one pass")
}

func TestRunIgnoresUnrelatedFiles(t *testing.T) {
	root := t.TempDir()
	target := &fakeReindexer{}
	startWatcher(t, Config{Root: root, Debounce: 20 * time.Millisecond}, target)

	time.Sleep(50 * time.Millisecond)
	require.NoError(t, os.WriteFile(filepath.Join(root, "notes.txt"), []byte("x"), 0o644))
	time.Sleep(200 * time.Millisecond)
	assert.Zero(t, target.calls.Load())
}

func TestRunWatchesNewDirectories(t *testing.T) {
	root := t.TempDir()
	target := &fakeReindexer{}
	startWatcher(t, Config{Root: root, Debounce: 20 * time.Millisecond}, target)

	time.Sleep(50 * time.Millisecond)
	sub := filepath.Join(root, "output_20240101_120000")
	require.NoError(t, os.Mkdir(sub, 0o755))
	assert.Eventually(t, func() bool { return target.calls.Load() >= 1 }, 3*time.Second, 10*time.Millisecond)

	before := target.calls.Load()
	time.Sleep(100 * time.Millisecond)
	require.NoError(t, os.WriteFile(filepath.Join(sub, "1-Intro.json"), []byte("{}"), 0o644))
	assert.Eventually(t, func() bool { return target.calls.Load() > before }, 3*time.Second, 10*time.Millisecond)
}

func TestRunNeverOverlaps(t *testing.T) {
	root := t.TempDir()
	target := &fakeReindexer{delay: 150 * time.Millisecond}
	startWatcher(t, Config{Root: root, Debounce: 10 * time.Millisecond, InitialRun: true}, target)

	for i := range 10 {
		name := filepath.Join(root, "doc"+string(rune('a'+i))+".json")
		require.NoError(t, os.WriteFile(name, []byte("{}"), 0o644))
		time.Sleep(30 * time.Millisecond)
	}

	assert.Eventually(t, func() bool { return target.calls.Load() >= 2 }, 5*time.Second, 10*time.Millisecond)
	assert.Equal(t, int32(1), target.maxSeen.Load())
}
