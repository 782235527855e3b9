package searcher

import (
	"regexp"
	"strings"

	"github.com/dshills/texsearch/pkg/types"
)

const (
	DefaultPageSize = 10
	MaxPageSize     = 20
)

// Page is one slice of a ranked result list
type Page struct {
	Results      []types.SearchResult
	TotalResults int
	CurrentPage  int
	TotalPages   int
	HasMore      bool
}

// Paginate slices results. pageSize defaults to DefaultPageSize and is capped
// at maxPageSize when that is positive. page is clamped to [1, TotalPages].
func Paginate(results []types.SearchResult, page, pageSize, maxPageSize int) Page {
	if pageSize <= 0 {
		pageSize = DefaultPageSize
	}
	if maxPageSize > 0 && pageSize > maxPageSize {
		pageSize = maxPageSize
	}

	total := len(results)
	totalPages := (total + pageSize - 1) / pageSize

	current := 1
	if totalPages > 0 {
		current = min(max(1, page), totalPages)
	}

	start := min((current-1)*pageSize, total)
	end := min(start+pageSize, total)

	return Page{
		Results:      results[start:end],
		TotalResults: total,
		CurrentPage:  current,
		TotalPages:   totalPages,
		HasMore:      current < totalPages,
	}
}

var (
	anchorPattern     = regexp.MustCompile(`\s*\{#[^}]+\}\s*`)
	whitespacePattern = regexp.MustCompile(`\s+`)
	commandPattern    = regexp.MustCompile(`\\[a-zA-Z]+\{([^}]+)\}`)
)

// CleanContent prepares section text for display: heading anchors are
// removed, whitespace collapsed and simple \cmd{x} markup unwrapped.
func CleanContent(s string) string {
	s = anchorPattern.ReplaceAllString(s, " ")
	s = strings.TrimSpace(whitespacePattern.ReplaceAllString(s, " "))
	return commandPattern.ReplaceAllString(s, "$1")
}
