package types

// Fingerprint identifies the on-disk state of a source file.
// ModTime is seconds since the Unix epoch with sub-second precision.
type Fingerprint struct {
	ModTime float64 `json:"mtime"`
	Size    int64   `json:"size"`
	Hash    string  `json:"hash"`
}

// Equal reports whether all three fields match.
func (f Fingerprint) Equal(other Fingerprint) bool {
	return f.ModTime == other.ModTime && f.Size == other.Size && f.Hash == other.Hash
}
