// Package identity derives stable chunk identifiers from a section's lineage.
package identity

import (
	"crypto/md5"
	"encoding/binary"
	"path/filepath"
	"strings"
)

// Separator joins the lineage components before hashing.
const Separator = "-"

// DeriveID returns a deterministic 64-bit identifier for the section titled
// title, reached through ancestors, in the file with the given stem.
//
// The key is stem, the joined ancestors and title, separated by "-", and the
// result is the first eight bytes of its MD5 digest read as a big-endian
// integer. Collisions are possible in principle and are not detected.
func DeriveID(stem string, ancestors []string, title string) uint64 {
	key := stem + Separator + strings.Join(ancestors, Separator) + Separator + title
	sum := md5.Sum([]byte(key))
	return binary.BigEndian.Uint64(sum[:8])
}

// Stem returns the file name of path without its directory and final extension.
func Stem(path string) string {
	base := filepath.Base(path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}
