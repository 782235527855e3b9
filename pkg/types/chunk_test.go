package types

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestChunkValidate(t *testing.T) {
	valid := func() Chunk {
		return Chunk{
			ID:     42,
			Vector: []float32{0.1, 0.2},
			Payload: Payload{
				Title:          "Sec1.1",
				SourcePath:     "/corpus/a.json",
				AncestorTitles: []string{"Ch1"},
				Depth:          1,
			},
		}
	}

	tests := []struct {
		name   string
		mutate func(c *Chunk)
		want   error
	}{
		{"valid", func(c *Chunk) {}, nil},
		{"zero id", func(c *Chunk) { c.ID = 0 }, ErrInvalidChunkID},
		{"empty vector", func(c *Chunk) { c.Vector = nil }, ErrEmptyVector},
		{"missing source", func(c *Chunk) { c.Payload.SourcePath = "" }, ErrMissingSourcePath},
		{"depth mismatch", func(c *Chunk) { c.Payload.Depth = 2 }, ErrDepthMismatch},
		{"root chunk", func(c *Chunk) {
			c.Payload.AncestorTitles = []string{}
			c.Payload.Depth = 0
		}, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := valid()
			tt.mutate(&c)
			err := c.Validate()
			if tt.want == nil {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestPayloadHasAncestor(t *testing.T) {
	p := Payload{AncestorTitles: []string{"Thesis", "Part 1"}}
	assert.True(t, p.HasAncestor("Part 1"))
	assert.False(t, p.HasAncestor("Item 1.1"))
}
