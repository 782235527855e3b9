package cli

import (
	"github.com/spf13/cobra"

	"github.com/dshills/texsearch/internal/mcp"
	"github.com/dshills/texsearch/internal/storage"
)

// NewMCPCommand creates the mcp command.
func NewMCPCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "mcp",
		Short: "Run the MCP server on stdio",
		Long: `Expose index_corpus, search_sections, get_status and list_chapters as
Model Context Protocol tools over stdin/stdout. Logs go to stderr.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := rootOpts.open(cmd.Context())
			if err != nil {
				return err
			}
			defer closeServices(svc)

			server, err := mcp.NewServer(svc)
			if err != nil {
				return WrapExitError(ExitCommandError, "failed to create MCP server", err)
			}

			svc.Logger.Info("MCP server ready, listening on stdio",
				"version", rootOpts.Build.Version,
				"sqlite_driver", storage.DriverName,
				"build_mode", storage.BuildMode)
			return server.Serve(cmd.Context(), cmd.InOrStdin(), cmd.OutOrStdout())
		},
	}
}
