//go:build sqlite_vec

package storage

// Built with CGO_ENABLED=1 -tags sqlite_vec. Uses the mattn driver so the
// sqlite-vec extension can serve vec_distance_cosine in SQL. The extension
// must be loadable by the process (auto-registered or linked in).

import (
	"fmt"

	_ "github.com/mattn/go-sqlite3"
)

const (
	// DriverName is the database/sql driver name
	DriverName = "sqlite3"

	// VectorExtensionAvailable reports whether searches run in SQL
	VectorExtensionAvailable = true

	// BuildMode names the build variant in status output
	BuildMode = "cgo"
)

// dataSourceName adds the busy timeout in mattn's DSN syntax
func dataSourceName(path string) string {
	if isMemory(path) {
		return path
	}
	return fmt.Sprintf("file:%s?_busy_timeout=%d", path, busyTimeout.Milliseconds())
}
