package converter

import (
	"context"
	"os"
	"regexp"
	"strings"

	"golang.org/x/text/unicode/norm"
)

var (
	commentPattern     = regexp.MustCompile(`%.*?\n`)
	commandArgsPattern = regexp.MustCompile(`\\[a-zA-Z]+\*?(\{[^{}]*\}|\[[^\[\]]*\])*`)
	commandPattern     = regexp.MustCompile(`\\[a-zA-Z]+\*?`)
	bracePattern       = regexp.MustCompile(`[{}\[\]]`)
	spacePattern       = regexp.MustCompile(`\s+`)
)

// Regex strips LaTeX markup with regular expressions. It never fails on
// readable input, so it belongs at the end of a Chain.
type Regex struct{}

func (Regex) Name() string { return "regex" }

func (Regex) Convert(ctx context.Context, src, dst string) error {
	data, err := os.ReadFile(src)
	if err != nil {
		return err
	}
	return os.WriteFile(dst, []byte(StripTeX(string(data))), 0o644)
}

// StripTeX removes comments, commands with their arguments, stray commands
// and grouping characters, then collapses whitespace. Output is NFC.
func StripTeX(text string) string {
	text = commentPattern.ReplaceAllString(text, "\n")
	text = commandArgsPattern.ReplaceAllString(text, " ")
	text = commandPattern.ReplaceAllString(text, " ")
	text = bracePattern.ReplaceAllString(text, "")
	text = spacePattern.ReplaceAllString(text, " ")
	return norm.NFC.String(strings.TrimSpace(text))
}
