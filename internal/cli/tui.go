package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/dshills/texsearch/internal/tui"
)

// TUIOptions holds flags for the tui command.
type TUIOptions struct {
	*RootOptions
	NumResults int
	Threshold  float64
	Chapter    string
	Source     string
}

// NewTUICommand creates the tui command.
func NewTUICommand(rootOpts *RootOptions) *cobra.Command {
	opts := &TUIOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "tui",
		Short: "Interactive terminal search",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			svc, err := opts.open(ctx)
			if err != nil {
				return err
			}
			defer closeServices(svc)

			limit, threshold := opts.NumResults, opts.Threshold
			if !cmd.Flags().Changed("num-results") {
				limit = opts.config.Search.Limit
			}
			if !cmd.Flags().Changed("threshold") {
				threshold = opts.config.Search.ScoreThreshold
			}

			summary := fmt.Sprintf("collection %s · %s/%s", opts.config.Collection.Name,
				svc.Embedder.Provider(), svc.Embedder.Model())
			if n, err := svc.Store.Count(ctx); err == nil {
				summary = fmt.Sprintf("%s · %d sections", summary, n)
			}

			return tui.Run(ctx, svc.Searcher, tui.Options{
				Limit:          limit,
				ScoreThreshold: &threshold,
				ChapterFilter:  opts.Chapter,
				SourceFilter:   opts.Source,
				Summary:        summary,
			})
		},
	}

	cmd.Flags().IntVarP(&opts.NumResults, "num-results", "n", 10, "number of results per query")
	cmd.Flags().Float64VarP(&opts.Threshold, "threshold", "t", 0.5, "minimum similarity score (0-1)")
	cmd.Flags().StringVarP(&opts.Chapter, "chapter", "c", "", "only sections below this chapter or section title")
	cmd.Flags().StringVarP(&opts.Source, "source", "s", "", "only sections from this source file path")

	return cmd
}
