package searcher

import (
	"context"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	"github.com/dshills/texsearch/internal/vectorstore"
)

// Stats summarises the indexed corpus
type Stats struct {
	DocumentCount int `json:"documentCount"`
	ChapterCount  int `json:"chapterCount"`
	SectionCount  int `json:"sectionCount"`
}

// Catalog lists what the collection contains
type Catalog struct {
	Chapters []string // sorted
	Sources  []string // sorted display names
	Paths    []string // sorted source_path values
	Stats    Stats
}

var numericPrefix = regexp.MustCompile(`^\d+-`)

// SourceName turns a source path into its display name:
// "out/3-State.json" becomes "state.tex".
func SourceName(path string) string {
	name := filepath.Base(path)
	name = strings.TrimSuffix(name, filepath.Ext(name)) + ".tex"
	name = numericPrefix.ReplaceAllString(name, "")
	return strings.ToLower(name)
}

// BuildCatalog scans the whole collection. A chunk names a chapter when it
// is level 1, or through its first ancestor when it has two or more.
func BuildCatalog(ctx context.Context, store vectorstore.Store, pageSize int) (*Catalog, error) {
	chapters := make(map[string]struct{})
	sources := make(map[string]struct{})
	paths := make(map[string]struct{})
	firstAncestors := make(map[string]struct{})
	ids := make(map[uint64]struct{})

	err := vectorstore.ScrollAll(ctx, store, pageSize, func(r vectorstore.Record) error {
		p := r.Payload
		ids[r.ID] = struct{}{}

		if p.Level == 1 {
			chapters[p.Title] = struct{}{}
		} else if len(p.AncestorTitles) >= 2 {
			chapters[p.AncestorTitles[0]] = struct{}{}
		}

		if len(p.AncestorTitles) > 0 {
			firstAncestors[p.AncestorTitles[0]] = struct{}{}
		}

		if p.SourcePath != "" {
			paths[p.SourcePath] = struct{}{}
			sources[SourceName(p.SourcePath)] = struct{}{}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	return &Catalog{
		Chapters: sortedKeys(chapters),
		Sources:  sortedKeys(sources),
		Paths:    sortedKeys(paths),
		Stats: Stats{
			DocumentCount: len(paths),
			ChapterCount:  len(firstAncestors),
			SectionCount:  len(ids),
		},
	}, nil
}

// Catalog scans the searcher's store
func (s *Searcher) Catalog(ctx context.Context) (*Catalog, error) {
	return BuildCatalog(ctx, s.store, vectorstore.DefaultScrollLimit)
}

func sortedKeys(m map[string]struct{}) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
