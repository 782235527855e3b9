package fingerprint

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/dshills/texsearch/pkg/types"
)

// DefaultFileName is the bookkeeping file created inside the storage directory.
const DefaultFileName = "processing_metadata.json"

// Backend persists the full path to fingerprint mapping.
// Save always replaces the whole mapping.
type Backend interface {
	Load(ctx context.Context) (map[string]types.Fingerprint, error)
	Save(ctx context.Context, records map[string]types.Fingerprint) error
}

// FileBackend stores the mapping as a single JSON object on disk.
type FileBackend struct {
	path string
}

// NewFileBackend creates a backend writing to path.
func NewFileBackend(path string) *FileBackend {
	return &FileBackend{path: path}
}

// Path returns the location of the bookkeeping file.
func (b *FileBackend) Path() string {
	return b.path
}

// Load reads the mapping. A missing file yields an empty mapping.
func (b *FileBackend) Load(ctx context.Context) (map[string]types.Fingerprint, error) {
	data, err := os.ReadFile(b.path)
	if errors.Is(err, os.ErrNotExist) {
		return map[string]types.Fingerprint{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", b.path, err)
	}

	records := map[string]types.Fingerprint{}
	if err := json.Unmarshal(data, &records); err != nil {
		return nil, fmt.Errorf("parse %s: %w", b.path, err)
	}
	if records == nil {
		records = map[string]types.Fingerprint{}
	}
	return records, nil
}

// Save writes the mapping to a temporary file and renames it into place,
// so readers see either the previous or the new mapping.
func (b *FileBackend) Save(ctx context.Context, records map[string]types.Fingerprint) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	data, err := json.Marshal(records)
	if err != nil {
		return fmt.Errorf("marshal fingerprints: %w", err)
	}

	dir := filepath.Dir(b.path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("create %s: %w", dir, err)
	}

	tmp, err := os.CreateTemp(dir, filepath.Base(b.path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()
	defer func() { _ = os.Remove(tmpName) }()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("write %s: %w", tmpName, err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("sync %s: %w", tmpName, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close %s: %w", tmpName, err)
	}

	if err := os.Rename(tmpName, b.path); err != nil {
		return fmt.Errorf("rename to %s: %w", b.path, err)
	}
	return nil
}

// MemoryBackend keeps the mapping in memory. Used by tests and dry runs.
type MemoryBackend struct {
	Records map[string]types.Fingerprint
	SaveErr error
	Saves   int
}

func (m *MemoryBackend) Load(ctx context.Context) (map[string]types.Fingerprint, error) {
	out := make(map[string]types.Fingerprint, len(m.Records))
	for k, v := range m.Records {
		out[k] = v
	}
	return out, nil
}

func (m *MemoryBackend) Save(ctx context.Context, records map[string]types.Fingerprint) error {
	if m.SaveErr != nil {
		return m.SaveErr
	}
	m.Saves++
	m.Records = make(map[string]types.Fingerprint, len(records))
	for k, v := range records {
		m.Records[k] = v
	}
	return nil
}
