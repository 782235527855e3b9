package cli

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/dshills/texsearch/internal/httpapi"
)

// ServeOptions holds flags for the serve command.
type ServeOptions struct {
	*RootOptions
	Addr  string
	Watch bool
}

// NewServeCommand creates the serve command.
func NewServeCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ServeOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the search HTTP API",
		Long: `Serve /, /chapters, /stats, /search and /rewrite-text over HTTP.

With --watch the corpus root is indexed on start and re-indexed after
changes while the server runs.

Example:
  texsearch serve --addr 127.0.0.1:8000
  PORT=9000 texsearch serve --watch`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd, opts)
		},
	}

	cmd.Flags().StringVar(&opts.Addr, "addr", "", "listen address, overrides http.addr")
	cmd.Flags().BoolVarP(&opts.Watch, "watch", "w", false, "index the corpus root and follow changes")

	return cmd
}

func runServe(cmd *cobra.Command, opts *ServeOptions) error {
	svc, err := opts.open(cmd.Context())
	if err != nil {
		return err
	}
	defer closeServices(svc)

	addr := opts.config.HTTP.Addr
	if opts.Addr != "" {
		addr = opts.Addr
	}

	server, err := httpapi.New(httpapi.Config{
		Addr:           addr,
		FetchLimit:     opts.config.Search.FetchLimit,
		MaxPageSize:    opts.config.Search.MaxPageSize,
		ScoreThreshold: opts.config.Search.ScoreThreshold,
		Searcher:       svc.Searcher,
		Rewriter:       svc.Rewriter,
		Store:          svc.Store,
		Logger:         svc.Logger.With("component", "http"),
	})
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to create server", err)
	}

	// Either task failing stops the other.
	g, ctx := errgroup.WithContext(cmd.Context())
	g.Go(func() error {
		return server.ListenAndServe(ctx)
	})
	if opts.Watch {
		g.Go(func() error {
			return runWatch(ctx, cmd.OutOrStdout(), opts.RootOptions, svc, opts.config.Indexer.Root, false)
		})
	}

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return WrapExitError(ExitCommandError, fmt.Sprintf("server on %s failed", addr), err)
	}
	return nil
}
