package converter

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"strings"
)

// Pandoc shells out to the pandoc binary
type Pandoc struct {
	Binary string
}

// NewPandoc resolves binary (default "pandoc") on PATH.
func NewPandoc(binary string) (*Pandoc, error) {
	if binary == "" {
		binary = "pandoc"
	}
	path, err := exec.LookPath(binary)
	if err != nil {
		return nil, fmt.Errorf("pandoc not found: %w", err)
	}
	return &Pandoc{Binary: path}, nil
}

func (p *Pandoc) Name() string { return "pandoc" }

// Convert runs `pandoc src -o dst --wrap=none`. A zero exit status without
// an output file is a failure.
func (p *Pandoc) Convert(ctx context.Context, src, dst string) error {
	var stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, p.Binary, src, "-o", dst, "--wrap=none")
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if msg := strings.TrimSpace(stderr.String()); msg != "" {
			return fmt.Errorf("%w: %s", err, msg)
		}
		return err
	}
	if _, err := os.Stat(dst); err != nil {
		return fmt.Errorf("no output written: %w", err)
	}
	return nil
}
