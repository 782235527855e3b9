package walker

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dshills/texsearch/pkg/types"
)

func titles(entries []Entry) []string {
	out := make([]string, len(entries))
	for i, e := range entries {
		out[i] = e.Section.Title
	}
	return out
}

func TestFlattenChapterWithSection(t *testing.T) {
	root := &types.Section{
		Title:   "Ch1",
		Level:   1,
		Content: "intro",
		Sections: []types.Section{
			{Title: "Sec1.1", Level: 2, Content: "body", Sections: []types.Section{}},
		},
	}

	entries := Flatten(root)
	require.Len(t, entries, 2)

	assert.Equal(t, "Ch1", entries[0].Section.Title)
	assert.Equal(t, []string{"Ch1"}, entries[0].Ancestors)
	assert.Equal(t, "Sec1.1", entries[1].Section.Title)
	assert.Equal(t, []string{"Ch1"}, entries[1].Ancestors)
	assert.Equal(t, 1, entries[1].Depth())
}

func TestFlattenNestedPaths(t *testing.T) {
	root := &types.Section{
		Title: "Root",
		Sections: []types.Section{
			{
				Title: "A",
				Level: 1,
				Sections: []types.Section{
					{Title: "A.1", Level: 2, Sections: []types.Section{{Title: "A.1.a", Level: 3}}},
					{Title: "A.2", Level: 2},
				},
			},
			{Title: "B", Level: 1},
		},
	}

	entries := Flatten(root)
	require.Len(t, entries, root.Count())
	assert.Equal(t, []string{"Root", "A", "A.1", "A.1.a", "A.2", "B"}, titles(entries))

	paths := map[string][]string{}
	for _, e := range entries {
		paths[e.Section.Title] = e.Ancestors
	}
	assert.Equal(t, []string{"Root"}, paths["Root"])
	assert.Equal(t, []string{"Root"}, paths["A"])
	assert.Equal(t, []string{"Root", "A"}, paths["A.1"])
	assert.Equal(t, []string{"Root", "A", "A.1"}, paths["A.1.a"])
	assert.Equal(t, []string{"Root", "A"}, paths["A.2"])
	assert.Equal(t, []string{"Root"}, paths["B"])
}

func TestFlattenSiblingPathsIndependent(t *testing.T) {
	root := &types.Section{
		Title: "Root",
		Sections: []types.Section{
			{Title: "A", Sections: []types.Section{{Title: "A.1"}, {Title: "A.2"}}},
		},
	}

	entries := Flatten(root)
	require.Len(t, entries, 4)

	entries[2].Ancestors[0] = "mutated"
	assert.Equal(t, "Root", entries[3].Ancestors[0])
}

func TestFlattenNil(t *testing.T) {
	assert.Empty(t, Flatten(nil))
}

func TestWalkStop(t *testing.T) {
	root := &types.Section{Title: "Root", Sections: []types.Section{{Title: "A"}, {Title: "B"}}}

	var seen []string
	err := Walk(root, func(e Entry) error {
		seen = append(seen, e.Section.Title)
		if e.Section.Title == "A" {
			return ErrStop
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"Root", "A"}, seen)
}

func TestWalkPropagatesError(t *testing.T) {
	root := &types.Section{Title: "Root", Sections: []types.Section{{Title: "A"}}}
	boom := errors.New("boom")

	err := Walk(root, func(e Entry) error {
		if e.Section.Title == "A" {
			return boom
		}
		return nil
	})
	assert.ErrorIs(t, err, boom)
}
