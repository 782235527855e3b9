package types

import (
	"errors"
	"fmt"
	"io/fs"
)

// Domain errors for type validation
var (
	ErrInvalidChunkID    = errors.New("invalid chunk ID")
	ErrEmptyVector       = errors.New("chunk vector cannot be empty")
	ErrMissingSourcePath = errors.New("source path is required")
	ErrDepthMismatch     = errors.New("chunk depth must equal the number of ancestor titles")
	ErrNegativeLevel     = errors.New("section level must be >= 0")
)

// ErrBookkeeping marks a failure to persist fingerprints. It is fatal for an indexing run.
var ErrBookkeeping = errors.New("bookkeeping write failed")

// FileError is a failure to read, hash or parse a single source file.
// The file is skipped and retried on the next run.
type FileError struct {
	Path string
	Op   string
	Err  error
}

// NewFileError wraps err for path. A *fs.PathError naming the same path is
// unwrapped so the path is reported once.
func NewFileError(path, op string, err error) *FileError {
	var pathErr *fs.PathError
	if errors.As(err, &pathErr) && pathErr.Path == path {
		err = pathErr.Err
	}
	return &FileError{Path: path, Op: op, Err: err}
}

func (e *FileError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Op, e.Path, e.Err)
}

func (e *FileError) Unwrap() error {
	return e.Err
}

// RemoteError is a failure of the embedding service or the vector store.
type RemoteError struct {
	Service string // "embedder" or "vectorstore"
	Op      string
	Err     error
}

func (e *RemoteError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Service, e.Op, e.Err)
}

func (e *RemoteError) Unwrap() error {
	return e.Err
}
