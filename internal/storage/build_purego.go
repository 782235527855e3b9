//go:build !sqlite_vec

package storage

// Default build. modernc.org/sqlite needs no C toolchain; vectors are
// compared in Go after scanning the collection's rows.

import (
	"fmt"

	_ "modernc.org/sqlite"
)

const (
	// DriverName is the database/sql driver name
	DriverName = "sqlite"

	// VectorExtensionAvailable reports whether searches run in SQL
	VectorExtensionAvailable = false

	// BuildMode names the build variant in status output
	BuildMode = "purego"
)

// dataSourceName adds the busy timeout in modernc's _pragma syntax
func dataSourceName(path string) string {
	if isMemory(path) {
		return path
	}
	return fmt.Sprintf("file:%s?_pragma=busy_timeout(%d)", path, busyTimeout.Milliseconds())
}
