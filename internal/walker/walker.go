// Package walker flattens section trees into (section, ancestor path) pairs.
package walker

import (
	"errors"
	"slices"

	"github.com/dshills/texsearch/pkg/types"
)

// ErrStop can be returned from a VisitFunc to end a walk early without error.
var ErrStop = errors.New("stop walk")

// Entry is one visited section together with its ancestor title path.
type Entry struct {
	Section   *types.Section
	Ancestors []string
}

// Depth is the number of ancestor titles on the entry's path.
func (e Entry) Depth() int {
	return len(e.Ancestors)
}

// VisitFunc is called once per section in the tree.
type VisitFunc func(Entry) error

type frame struct {
	section   *types.Section
	ancestors []string
}

// Walk visits every section reachable from root exactly once, in document
// order, using an explicit stack.
//
// The root's path is its own title. Every other section's path holds the
// titles of its strict ancestors, starting with the root's title.
func Walk(root *types.Section, fn VisitFunc) error {
	if root == nil {
		return nil
	}

	stack := []frame{{section: root, ancestors: []string{root.Title}}}
	isRoot := true

	for len(stack) > 0 {
		top := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		if err := fn(Entry{Section: top.section, Ancestors: top.ancestors}); err != nil {
			if errors.Is(err, ErrStop) {
				return nil
			}
			return err
		}

		childPath := top.ancestors
		if !isRoot {
			childPath = append(slices.Clip(top.ancestors), top.section.Title)
		}
		isRoot = false

		// Push in reverse so the first child is popped first.
		for i := len(top.section.Sections) - 1; i >= 0; i-- {
			stack = append(stack, frame{section: &top.section.Sections[i], ancestors: slices.Clone(childPath)})
		}
	}

	return nil
}

// Flatten returns every section in the tree with its ancestor path.
func Flatten(root *types.Section) []Entry {
	var entries []Entry
	_ = Walk(root, func(e Entry) error {
		entries = append(entries, e)
		return nil
	})
	return entries
}
