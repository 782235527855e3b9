// Package cli wires the texsearch commands.
package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/dshills/texsearch/internal/config"
	"github.com/dshills/texsearch/internal/logging"
	"github.com/dshills/texsearch/internal/runtime"
)

// DefaultConfigPath is read when --config is not given. A missing file means defaults.
const DefaultConfigPath = "texsearch.yaml"

// BuildInfo is stamped into the binary at link time
type BuildInfo struct {
	Version   string
	BuildTime string
}

// RootOptions holds global flags for all commands.
type RootOptions struct {
	ConfigPath string
	EnvFile    string
	LogLevel   string
	Verbose    bool
	Build      BuildInfo

	config *config.AppConfig
	logger *slog.Logger
}

// NewRootCommand creates the root command for the texsearch CLI.
func NewRootCommand(build BuildInfo) *cobra.Command {
	opts := &RootOptions{Build: build}

	cmd := &cobra.Command{
		Use:   "texsearch",
		Short: "Semantic search over LaTeX theses",
		Long: `texsearch converts LaTeX sources into section trees, keeps a vector
collection of those sections in sync and serves semantic search over it
from the command line, a terminal UI, an HTTP API or an MCP server.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return opts.setup(cmd)
		},
	}

	cmd.PersistentFlags().StringVar(&opts.ConfigPath, "config", DefaultConfigPath, "config file (.yaml or .toml)")
	cmd.PersistentFlags().StringVar(&opts.EnvFile, "env-file", ".env", "dotenv file loaded before the config")
	cmd.PersistentFlags().StringVar(&opts.LogLevel, "log-level", "", "log level (debug|info|warn|error), overrides config")
	cmd.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", false, "debug logging")

	cmd.AddCommand(NewConvertCommand(opts))
	cmd.AddCommand(NewSplitCommand(opts))
	cmd.AddCommand(NewIndexCommand(opts))
	cmd.AddCommand(NewSearchCommand(opts))
	cmd.AddCommand(NewServeCommand(opts))
	cmd.AddCommand(NewMCPCommand(opts))
	cmd.AddCommand(NewTUICommand(opts))
	cmd.AddCommand(NewVersionCommand(opts))

	return cmd
}

// Execute runs the CLI and returns the process exit code.
func Execute(build BuildInfo) int {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cmd := NewRootCommand(build)
	if err := cmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		return GetExitCode(err)
	}
	return ExitSuccess
}

func (o *RootOptions) setup(cmd *cobra.Command) error {
	if err := config.LoadDotEnv(o.EnvFile); err != nil {
		return WrapExitError(ExitCommandError, "failed to load env file", err)
	}

	cfg, err := config.Load(o.ConfigPath)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to load config", err)
	}

	level := cfg.Log.Level
	if o.LogLevel != "" {
		level = o.LogLevel
	}
	if o.Verbose {
		level = "debug"
	}

	logger, err := logging.New(logging.Options{
		Level:  level,
		Format: cfg.Log.Format,
		Output: cmd.ErrOrStderr(),
	})
	if err != nil {
		return WrapExitError(ExitCommandError, "invalid logging configuration", err)
	}
	slog.SetDefault(logger)

	o.config = cfg
	o.logger = logger
	return nil
}

// open builds the services for a command. The caller closes them.
func (o *RootOptions) open(ctx context.Context) (*runtime.Services, error) {
	svc, err := runtime.Open(ctx, o.config, o.logger)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to open services", err)
	}
	return svc, nil
}

func closeServices(svc *runtime.Services) {
	if err := svc.Close(); err != nil {
		svc.Logger.Warn("close services", "error", err)
	}
}
