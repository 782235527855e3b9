package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/dshills/texsearch/internal/indexer"
	"github.com/dshills/texsearch/internal/runtime"
	"github.com/dshills/texsearch/internal/watch"
)

// IndexOptions holds flags for the index command.
type IndexOptions struct {
	*RootOptions
	Force bool
	Watch bool
}

// NewIndexCommand creates the index command.
func NewIndexCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &IndexOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "index [dir]",
		Short: "Sync the vector collection with a directory of section files",
		Long: `Embed and upsert every section file under [dir] (default: indexer.root
from the config) whose fingerprint changed since the last run. Fingerprints
of files that no longer exist are pruned; their chunks stay in the
collection until a --force rebuild.

With --watch the command keeps running and re-indexes after changes.

Example:
  texsearch index ./output_20240101_120000
  texsearch index --force
  texsearch index --watch`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			root := ""
			if len(args) == 1 {
				root = args[0]
			}
			return runIndex(cmd, opts, root)
		},
	}

	cmd.Flags().BoolVarP(&opts.Force, "force", "F", false, "re-index every file regardless of fingerprints")
	cmd.Flags().BoolVarP(&opts.Watch, "watch", "w", false, "keep running and re-index on changes")

	return cmd
}

func runIndex(cmd *cobra.Command, opts *IndexOptions, root string) error {
	ctx := cmd.Context()
	if root == "" {
		root = opts.config.Indexer.Root
	}

	svc, err := opts.open(ctx)
	if err != nil {
		return err
	}
	defer closeServices(svc)

	out := cmd.OutOrStdout()

	if !opts.Watch {
		stats, err := svc.Reindex(ctx, root, indexer.Options{Force: opts.Force})
		if stats != nil {
			printStats(out, stats)
		}
		if err != nil {
			return WrapExitError(ExitCommandError, "indexing failed", err)
		}
		if stats.FilesFailed > 0 {
			return NewExitError(ExitFailure, fmt.Sprintf("%d files failed to index", stats.FilesFailed))
		}
		return nil
	}

	return runWatch(ctx, out, opts.RootOptions, svc, root, opts.Force)
}

// runWatch indexes once, forced if asked, then follows changes until the
// context ends.
func runWatch(ctx context.Context, out io.Writer, opts *RootOptions, svc *runtime.Services, root string, force bool) error {
	if force {
		stats, err := svc.Reindex(ctx, root, indexer.Options{Force: true})
		if stats != nil {
			printStats(out, stats)
		}
		if err != nil && !errors.Is(err, ctx.Err()) {
			return WrapExitError(ExitCommandError, "indexing failed", err)
		}
	}

	w, err := watch.New(watch.Config{
		Root:       root,
		Pattern:    opts.config.Indexer.Pattern,
		Exclude:    []string{filepath.Base(opts.config.Indexer.StateFile)},
		Debounce:   opts.config.Debounce(),
		InitialRun: !force,
		Logger:     svc.Logger.With("component", "watch"),
		OnRun: func(stats *indexer.Statistics, err error) {
			if stats != nil {
				printStats(out, stats)
			}
		},
	}, svc)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to start watcher", err)
	}
	return w.Run(ctx)
}

func printStats(w io.Writer, stats *indexer.Statistics) {
	fmt.Fprintf(w, "Indexed %d, skipped %d, failed %d of %d files (%d chunks in %d batches) in %s\n",
		stats.FilesIndexed, stats.FilesSkipped, stats.FilesFailed, stats.FilesDiscovered,
		stats.ChunksUpserted, stats.BatchesFlushed, stats.Duration.Round(time.Millisecond))
	if len(stats.Pruned) > 0 {
		fmt.Fprintf(w, "Pruned %d missing files from bookkeeping\n", len(stats.Pruned))
	}
	for _, msg := range stats.ErrorMessages {
		fmt.Fprintf(w, "  error: %s\n", msg)
	}
}
