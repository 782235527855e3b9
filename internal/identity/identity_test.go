package identity

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDeriveID(t *testing.T) {
	tests := []struct {
		name      string
		stem      string
		ancestors []string
		title     string
		want      uint64
	}{
		{
			name:      "root section",
			stem:      "paper",
			ancestors: []string{"Ch1"},
			title:     "Ch1",
			want:      715691757865162594,
		},
		{
			name:      "child section",
			stem:      "paper",
			ancestors: []string{"Ch1"},
			title:     "Sec1.1",
			want:      1634372640883110824,
		},
		{
			name:      "no ancestors",
			stem:      "01-intro",
			ancestors: nil,
			title:     "Untitled",
			want:      6074076731350365762,
		},
		{
			name:      "value above int64 range",
			stem:      "a",
			ancestors: []string{"b", "c"},
			title:     "d",
			want:      13836368054659399541,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, DeriveID(tt.stem, tt.ancestors, tt.title))
		})
	}
}

func TestDeriveIDDeterministic(t *testing.T) {
	ancestors := []string{"Introduction", "Background"}
	first := DeriveID("thesis", ancestors, "Related Work")
	for i := 0; i < 100; i++ {
		assert.Equal(t, first, DeriveID("thesis", []string{"Introduction", "Background"}, "Related Work"))
	}
}

func TestDeriveIDDistinguishesLineage(t *testing.T) {
	root := DeriveID("paper", []string{"Ch1"}, "Ch1")
	child := DeriveID("paper", []string{"Ch1"}, "Sec1.1")
	otherFile := DeriveID("other", []string{"Ch1"}, "Sec1.1")
	otherParent := DeriveID("paper", []string{"Ch2"}, "Sec1.1")

	assert.NotEqual(t, root, child)
	assert.NotEqual(t, child, otherFile)
	assert.NotEqual(t, child, otherParent)
}

func TestStem(t *testing.T) {
	assert.Equal(t, "paper", Stem("/data/out/paper.json"))
	assert.Equal(t, "01-intro", Stem("01-intro.json"))
	assert.Equal(t, "archive.tar", Stem("archive.tar.gz"))
	assert.Equal(t, "noext", Stem("dir/noext"))
}
