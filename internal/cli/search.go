package cli

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/dshills/texsearch/internal/searcher"
	"github.com/dshills/texsearch/pkg/types"
)

// snippetLength is where result content is cut unless --full-content is set
const snippetLength = 300

// SearchOptions holds flags for the search command.
type SearchOptions struct {
	*RootOptions
	NumResults   int
	Threshold    float64
	Chapter      string
	Source       string
	FullContent  bool
	ListChapters bool
	JSON         bool
}

// NewSearchCommand creates the search command.
func NewSearchCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &SearchOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "search [query]",
		Short: "Search indexed sections by semantic similarity",
		Long: `Embed the query and print the most similar sections. Without a query
argument the query is read from standard input.

Example:
  texsearch search "boundary layer separation" -n 10 -t 0.4
  texsearch search -c "Methods" "mesh refinement"
  texsearch search --list-chapters`,
		Args: cobra.ArbitraryArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSearch(cmd, opts, strings.Join(args, " "))
		},
	}

	cmd.Flags().IntVarP(&opts.NumResults, "num-results", "n", searcher.DefaultLimit, "number of results to return")
	cmd.Flags().Float64VarP(&opts.Threshold, "threshold", "t", searcher.DefaultScoreThreshold, "minimum similarity score (0-1)")
	cmd.Flags().StringVarP(&opts.Chapter, "chapter", "c", "", "only sections below this chapter or section title")
	cmd.Flags().StringVarP(&opts.Source, "source", "s", "", "only sections from this source file path")
	cmd.Flags().BoolVarP(&opts.FullContent, "full-content", "f", false, "show full content instead of truncating")
	cmd.Flags().BoolVar(&opts.ListChapters, "list-chapters", false, "list available chapters and sources and exit")
	cmd.Flags().BoolVar(&opts.JSON, "json", false, "output results as JSON")

	return cmd
}

func runSearch(cmd *cobra.Command, opts *SearchOptions, query string) error {
	ctx := cmd.Context()

	svc, err := opts.open(ctx)
	if err != nil {
		return err
	}
	defer closeServices(svc)

	out := cmd.OutOrStdout()

	if opts.ListChapters {
		cat, err := svc.Searcher.Catalog(ctx)
		if err != nil {
			return WrapExitError(ExitCommandError, "failed to list chapters", err)
		}
		printCatalog(out, cat)
		return nil
	}

	if strings.TrimSpace(query) == "" {
		fmt.Fprint(out, "Enter your search query: ")
		line, err := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
		if err != nil && err != io.EOF {
			return WrapExitError(ExitCommandError, "failed to read query", err)
		}
		query = strings.TrimSpace(line)
	}

	limit, threshold := opts.NumResults, opts.Threshold
	if !cmd.Flags().Changed("num-results") {
		limit = opts.config.Search.Limit
	}
	if !cmd.Flags().Changed("threshold") {
		threshold = opts.config.Search.ScoreThreshold
	}
	resp, err := svc.Searcher.Search(ctx, searcher.SearchRequest{
		Query:          query,
		Limit:          limit,
		ScoreThreshold: &threshold,
		ChapterFilter:  opts.Chapter,
		SourceFilter:   opts.Source,
	})
	if err != nil {
		return WrapExitError(ExitCommandError, "search failed", err)
	}

	if opts.JSON {
		return outputSearchJSON(out, resp.Results)
	}
	printResults(out, resp.Results, opts.FullContent)
	return nil
}

type jsonResult struct {
	ID           string   `json:"id"`
	Score        float64  `json:"score"`
	Title        string   `json:"title"`
	Level        int      `json:"level"`
	Source       string   `json:"source"`
	ParentTitles []string `json:"parent_titles"`
	Content      string   `json:"content"`
}

func outputSearchJSON(w io.Writer, results []types.SearchResult) error {
	out := make([]jsonResult, 0, len(results))
	for _, r := range results {
		out = append(out, jsonResult{
			ID:           fmt.Sprintf("%d", r.ID),
			Score:        r.Score,
			Title:        r.Payload.Title,
			Level:        r.Payload.Level,
			Source:       r.Payload.SourcePath,
			ParentTitles: r.Payload.AncestorTitles,
			Content:      r.Payload.Content,
		})
	}
	data, err := json.MarshalIndent(out, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal results: %w", err)
	}
	fmt.Fprintln(w, string(data))
	return nil
}

func printResults(w io.Writer, results []types.SearchResult, full bool) {
	if len(results) == 0 {
		fmt.Fprintln(w, "No matching documents found.")
		return
	}

	rule := strings.Repeat("=", 80)
	fmt.Fprintf(w, "\n%s\n\n", rule)
	fmt.Fprintf(w, "Found %d relevant documents:\n\n", len(results))

	for i, r := range results {
		p := r.Payload
		hierarchy := "No hierarchy"
		if len(p.AncestorTitles) > 0 {
			hierarchy = strings.Join(p.AncestorTitles, " → ")
		}

		fmt.Fprintf(w, "%d. %s\n", i+1, p.Title)
		fmt.Fprintf(w, "   Relevance: %.4f\n", r.Score)
		fmt.Fprintf(w, "   Source: %s\n", p.SourcePath)
		fmt.Fprintf(w, "   Hierarchy: %s\n", hierarchy)

		content := p.Content
		if !full {
			content = truncate(content, snippetLength)
		}
		fmt.Fprintf(w, "\n%s\n\n", wrap(content, 80, "   "))
		fmt.Fprintf(w, "%s\n\n", strings.Repeat("-", 80))
	}
}

func printCatalog(w io.Writer, cat *searcher.Catalog) {
	fmt.Fprintln(w, "\nAvailable chapters:")
	for _, c := range cat.Chapters {
		fmt.Fprintf(w, " - %s\n", c)
	}
	fmt.Fprintln(w, "\nAvailable sources:")
	for _, s := range cat.Paths {
		fmt.Fprintf(w, " - %s\n", s)
	}
	fmt.Fprintf(w, "\n%d documents, %d chapters, %d sections\n",
		cat.Stats.DocumentCount, cat.Stats.ChapterCount, cat.Stats.SectionCount)
}

// truncate cuts s to n runes and marks the cut
func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}

// wrap fills words into lines of at most width columns, each prefixed by indent
func wrap(s string, width int, indent string) string {
	words := strings.Fields(s)
	if len(words) == 0 {
		return ""
	}

	var b strings.Builder
	line := indent
	for _, word := range words {
		if line != indent && len([]rune(line))+1+len([]rune(word)) > width {
			b.WriteString(line)
			b.WriteByte('\n')
			line = indent
		}
		if line != indent {
			line += " "
		}
		line += word
	}
	b.WriteString(line)
	return b.String()
}
