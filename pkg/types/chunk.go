package types

// Payload is the metadata stored alongside each vector.
type Payload struct {
	Title          string   `json:"title"`
	Level          int      `json:"level"`
	Content        string   `json:"content"`
	SourcePath     string   `json:"source_path"`
	SourceTextPath string   `json:"source_text_path"`
	AncestorTitles []string `json:"ancestor_titles"`
	Depth          int      `json:"depth"`
}

// Chunk is one indexed unit: a section of a source document with its embedding.
type Chunk struct {
	ID      uint64
	Vector  []float32
	Payload Payload
}

// Validate checks that a chunk can be written to a vector store
func (c *Chunk) Validate() error {
	if c.ID == 0 {
		return ErrInvalidChunkID
	}
	if len(c.Vector) == 0 {
		return ErrEmptyVector
	}
	if c.Payload.SourcePath == "" {
		return ErrMissingSourcePath
	}
	if c.Payload.Depth != len(c.Payload.AncestorTitles) {
		return ErrDepthMismatch
	}
	return nil
}

// HasAncestor reports whether title appears in the chunk's ancestor path.
func (p *Payload) HasAncestor(title string) bool {
	for _, t := range p.AncestorTitles {
		if t == title {
			return true
		}
	}
	return false
}
