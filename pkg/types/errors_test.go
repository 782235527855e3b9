package types

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewFileErrorReportsPathOnce(t *testing.T) {
	path := filepath.Join(t.TempDir(), "missing.json")
	_, openErr := os.Open(path)
	require.Error(t, openErr)

	err := NewFileError(path, "open", openErr)
	assert.Equal(t, 1, strings.Count(err.Error(), path), err.Error())
	assert.True(t, strings.HasPrefix(err.Error(), "open "+path+": "))
	assert.ErrorIs(t, err, fs.ErrNotExist)
}

func TestNewFileErrorKeepsOtherPaths(t *testing.T) {
	inner := &fs.PathError{Op: "open", Path: "/elsewhere/b.json", Err: fs.ErrPermission}
	err := NewFileError("/corpus/a.json", "parse", inner)

	assert.Contains(t, err.Error(), "/corpus/a.json")
	assert.Contains(t, err.Error(), "/elsewhere/b.json")
	assert.ErrorIs(t, err, fs.ErrPermission)
}

func TestNewFileErrorPlainError(t *testing.T) {
	cause := errors.New("unexpected EOF")
	err := NewFileError("/corpus/a.json", "hash", cause)

	assert.Equal(t, "hash /corpus/a.json: unexpected EOF", err.Error())
	assert.ErrorIs(t, err, cause)
}
