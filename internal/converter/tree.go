package converter

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/dshills/texsearch/internal/sections"
)

// OutputDirLayout is the timestamp format of tree output directories
const OutputDirLayout = "20060102_150405"

// TreeOptions configures ConvertTree
type TreeOptions struct {
	BaseDir     string // parent of the output directory, default current directory
	Chain       Chain  // default DefaultChain()
	Concurrency int    // default GOMAXPROCS
	Logger      *slog.Logger
	Now         func() time.Time
}

// FileResult describes one converted source file
type FileResult struct {
	Source   string
	Text     string
	JSON     string
	Strategy string
	Err      error
}

// TreeReport summarises a ConvertTree run
type TreeReport struct {
	OutputDir string
	Files     []FileResult // in source order
}

// Converted counts files that produced text
func (r *TreeReport) Converted() int {
	n := 0
	for _, f := range r.Files {
		if f.Text != "" {
			n++
		}
	}
	return n
}

// Structured counts files that produced section JSON
func (r *TreeReport) Structured() int {
	n := 0
	for _, f := range r.Files {
		if f.JSON != "" {
			n++
		}
	}
	return n
}

// FindTeX returns every .tex file under root in lexical order
func FindTeX(root string) ([]string, error) {
	var files []string
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() && strings.HasSuffix(d.Name(), ".tex") {
			files = append(files, path)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Strings(files)
	return files, nil
}

// ConvertTree converts every .tex file under root into a new timestamped
// output directory and splits each result into section JSON. Per-file
// failures are recorded in the report; only setup errors and cancellation
// are returned.
func ConvertTree(ctx context.Context, root string, opts TreeOptions) (*TreeReport, error) {
	if opts.Chain == nil {
		opts.Chain = DefaultChain()
	}
	if opts.Concurrency <= 0 {
		opts.Concurrency = runtime.GOMAXPROCS(0)
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}

	info, err := os.Stat(root)
	if err != nil {
		return nil, err
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("%s is not a directory", root)
	}

	files, err := FindTeX(root)
	if err != nil {
		return nil, fmt.Errorf("find tex files: %w", err)
	}

	outDir := filepath.Join(opts.BaseDir, "output_"+opts.Now().Format(OutputDirLayout))
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return nil, fmt.Errorf("create output directory: %w", err)
	}
	opts.Logger.Info("converting", "root", root, "files", len(files), "output", outDir, "strategies", opts.Chain.Names())

	report := &TreeReport{OutputDir: outDir, Files: make([]FileResult, len(files))}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(opts.Concurrency)

	for i, src := range files {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			res := convertOne(gctx, opts.Chain, root, outDir, src)
			if res.Err != nil {
				opts.Logger.Error("conversion failed", "path", src, "error", res.Err)
			} else {
				opts.Logger.Debug("converted", "path", src, "strategy", res.Strategy, "json", res.JSON)
			}
			report.Files[i] = res
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return report, err
	}
	if err := ctx.Err(); err != nil {
		return report, err
	}
	return report, nil
}

func convertOne(ctx context.Context, chain Chain, root, outDir, src string) FileResult {
	res := FileResult{Source: src}

	rel, err := filepath.Rel(root, src)
	if err != nil {
		res.Err = err
		return res
	}
	dst := filepath.Join(outDir, strings.TrimSuffix(rel, filepath.Ext(rel))+".txt")

	strategy, err := chain.Convert(ctx, src, dst)
	if err != nil {
		res.Err = err
		return res
	}
	res.Text, res.Strategy = dst, strategy

	jsonPath, err := sections.SplitFile(dst)
	if err != nil {
		res.Err = fmt.Errorf("split %s: %w", dst, err)
		return res
	}
	res.JSON = jsonPath
	return res
}
