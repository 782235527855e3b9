package cli

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/dshills/texsearch/internal/converter"
	"github.com/dshills/texsearch/internal/sections"
)

// ConvertOptions holds flags for the convert command.
type ConvertOptions struct {
	*RootOptions
	Concurrency int
	NoPandoc    bool
}

// NewConvertCommand creates the convert command.
func NewConvertCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ConvertOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "convert <dir> [base]",
		Short: "Convert a tree of .tex files to text and section JSON",
		Long: `Convert every .tex file under <dir> to plain text and split it into a
section tree. Output goes to a new output_YYYYMMDD_HHMMSS directory under
[base] (default: the current directory), mirroring the source layout.

pandoc is used when it is on PATH; otherwise, or when it fails, a regex
based converter strips the markup.

Example:
  texsearch convert ./thesis
  texsearch convert ./thesis ./build`,
		Args: cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			base := ""
			if len(args) > 1 {
				base = args[1]
			}
			return runConvert(cmd, opts, args[0], base)
		},
	}

	cmd.Flags().IntVar(&opts.Concurrency, "concurrency", 0, "files converted in parallel (default: number of CPUs)")
	cmd.Flags().BoolVar(&opts.NoPandoc, "no-pandoc", false, "use only the regex converter")

	return cmd
}

func runConvert(cmd *cobra.Command, opts *ConvertOptions, dir, base string) error {
	chain := converter.DefaultChain()
	if opts.NoPandoc {
		chain = converter.Chain{converter.Regex{}}
	}

	report, err := converter.ConvertTree(cmd.Context(), dir, converter.TreeOptions{
		BaseDir:     base,
		Chain:       chain,
		Concurrency: opts.Concurrency,
		Logger:      opts.logger,
	})
	if err != nil {
		return WrapExitError(ExitCommandError, "conversion failed", err)
	}

	out := cmd.OutOrStdout()
	for _, f := range report.Files {
		rel, relErr := filepath.Rel(dir, f.Source)
		if relErr != nil {
			rel = f.Source
		}
		if f.Err != nil {
			fmt.Fprintf(out, "  FAIL  %s: %v\n", rel, f.Err)
			continue
		}
		fmt.Fprintf(out, "  %-6s %s -> %s\n", f.Strategy, rel, f.JSON)
	}
	fmt.Fprintf(out, "\nConverted %d/%d files (%d structured) into %s\n",
		report.Converted(), len(report.Files), report.Structured(), report.OutputDir)

	if report.Structured() < len(report.Files) {
		return NewExitError(ExitFailure, fmt.Sprintf("%d files failed", len(report.Files)-report.Structured()))
	}
	return nil
}

// NewSplitCommand creates the split command.
func NewSplitCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "split <txt...>",
		Short: "Split converted text files into section JSON",
		Long: `Parse the markdown-style headings of each text file and write the
section tree next to it with a .json extension.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			failed := 0
			for _, path := range args {
				jsonPath, err := sections.SplitFile(path)
				if err != nil {
					failed++
					fmt.Fprintf(out, "  FAIL  %s: %v\n", path, err)
					continue
				}
				fmt.Fprintf(out, "  %s -> %s\n", path, jsonPath)
			}
			if failed > 0 {
				return NewExitError(ExitFailure, fmt.Sprintf("%d of %d files failed", failed, len(args)))
			}
			return nil
		},
	}
}
