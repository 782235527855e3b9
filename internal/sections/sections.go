// Package sections splits converted plain text into a tree of headed
// sections and reads and writes those trees as JSON documents.
package sections

import (
	"regexp"
	"strings"

	"github.com/dshills/texsearch/pkg/types"
)

const (
	// MaxHeadingLevel is the deepest heading recognized (####)
	MaxHeadingLevel = 4

	UntitledTitle = "Untitled"
	RootTitle     = "Root"
)

// headingPattern matches "# Title" through "#### Title" with an optional
// trailing attribute block such as "{#sec:intro}".
var headingPattern = regexp.MustCompile(`^(#{1,4}) (.+?)(\s+\{[^}]*\})?\s*$`)

type heading struct {
	level int
	title string
}

func parseHeading(line string) (heading, bool) {
	m := headingPattern.FindStringSubmatch(line)
	if m == nil {
		return heading{}, false
	}
	title := strings.TrimSpace(m[2])
	if title == "" {
		return heading{}, false
	}
	return heading{level: len(m[1]), title: title}, true
}

// Parse builds a section tree from text.
//
// Without headings the whole text becomes one level-0 "Untitled" section.
// With exactly one top-level heading that section is the root. Otherwise a
// level-0 "Root" section holds the top-level sections. Each section's
// content is the text between its heading and the next heading of any
// level; text before the first heading is dropped.
func Parse(text string) *types.Section {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	lines := strings.Split(text, "\n")

	root := &types.Section{Title: RootTitle, Level: 0, Sections: []types.Section{}}

	// open holds the chain from the root to the section receiving content.
	// Pointers are re-resolved through indices because appending to a
	// parent's Sections may reallocate it.
	type openNode struct {
		level int
		path  []int
	}
	var (
		open    []openNode
		body    []string
		current []int
		found   bool
	)

	resolve := func(path []int) *types.Section {
		s := root
		for _, i := range path {
			s = &s.Sections[i]
		}
		return s
	}
	flush := func() {
		if current != nil {
			resolve(current).Content = strings.TrimSpace(strings.Join(body, "\n"))
		}
		body = body[:0]
	}

	for _, line := range lines {
		h, ok := parseHeading(line)
		if !ok {
			if current != nil {
				body = append(body, line)
			}
			continue
		}
		found = true
		flush()

		for len(open) > 0 && open[len(open)-1].level >= h.level {
			open = open[:len(open)-1]
		}

		var parentPath []int
		if len(open) > 0 {
			parentPath = open[len(open)-1].path
		}
		parent := resolve(parentPath)
		parent.Sections = append(parent.Sections, types.Section{
			Title:    h.title,
			Level:    h.level,
			Sections: []types.Section{},
		})

		path := append(append([]int(nil), parentPath...), len(parent.Sections)-1)
		open = append(open, openNode{level: h.level, path: path})
		current = path
	}
	flush()

	if !found {
		return &types.Section{
			Title:    UntitledTitle,
			Level:    0,
			Content:  strings.TrimSpace(text),
			Sections: []types.Section{},
		}
	}

	if len(root.Sections) == 1 {
		only := root.Sections[0]
		return &only
	}
	return root
}
