package converter

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

// ErrNoStrategy is returned by an empty Chain
var ErrNoStrategy = errors.New("no conversion strategy configured")

// Strategy converts one source file into a text file at dst
type Strategy interface {
	Name() string
	Convert(ctx context.Context, src, dst string) error
}

// Chain tries strategies in order
type Chain []Strategy

// DefaultChain prefers pandoc when it is installed and falls back to Regex.
func DefaultChain() Chain {
	var chain Chain
	if p, err := NewPandoc(""); err == nil {
		chain = append(chain, p)
	}
	return append(chain, Regex{})
}

// Convert runs each strategy until one succeeds and returns its name. When
// every strategy fails the errors are joined.
func (c Chain) Convert(ctx context.Context, src, dst string) (string, error) {
	if len(c) == 0 {
		return "", ErrNoStrategy
	}
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return "", fmt.Errorf("create output directory: %w", err)
	}

	var errs []error
	for _, s := range c {
		if err := ctx.Err(); err != nil {
			return "", err
		}
		err := s.Convert(ctx, src, dst)
		if err == nil {
			return s.Name(), nil
		}
		errs = append(errs, fmt.Errorf("%s: %w", s.Name(), err))
	}
	return "", fmt.Errorf("convert %s: %w", src, errors.Join(errs...))
}

// Names lists the strategies in order
func (c Chain) Names() []string {
	names := make([]string, len(c))
	for i, s := range c {
		names[i] = s.Name()
	}
	return names
}
