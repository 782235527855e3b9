package converter

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dshills/texsearch/internal/sections"
)

// fakeStrategy copies the source unless told to fail
type fakeStrategy struct {
	name  string
	err   error
	calls atomic.Int32
}

func (f *fakeStrategy) Name() string { return f.name }

func (f *fakeStrategy) Convert(ctx context.Context, src, dst string) error {
	f.calls.Add(1)
	if f.err != nil {
		return f.err
	}
	data, err := os.ReadFile(src)
	if err != nil {
		return err
	}
	return os.WriteFile(dst, data, 0o644)
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func TestChainFallsBack(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "a.tex")
	writeFile(t, src, "hello")

	primary := &fakeStrategy{name: "primary", err: errors.New("exit status 1")}
	fallback := &fakeStrategy{name: "fallback"}
	chain := Chain{primary, fallback}

	dst := filepath.Join(dir, "nested", "out", "a.txt")
	name, err := chain.Convert(context.Background(), src, dst)
	require.NoError(t, err)
	assert.Equal(t, "fallback", name)
	assert.Equal(t, int32(1), primary.calls.Load())
	assert.FileExists(t, dst)
}

func TestChainStopsAtFirstSuccess(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "a.tex")
	writeFile(t, src, "hello")

	first := &fakeStrategy{name: "first"}
	second := &fakeStrategy{name: "second"}
	name, err := Chain{first, second}.Convert(context.Background(), src, filepath.Join(dir, "a.txt"))
	require.NoError(t, err)
	assert.Equal(t, "first", name)
	assert.Equal(t, int32(0), second.calls.Load())
}

func TestChainAllFail(t *testing.T) {
	dir := t.TempDir()
	errA := errors.New("a broke")
	chain := Chain{&fakeStrategy{name: "a", err: errA}, &fakeStrategy{name: "b", err: errors.New("b broke")}}

	_, err := chain.Convert(context.Background(), "x.tex", filepath.Join(dir, "x.txt"))
	require.Error(t, err)
	assert.ErrorIs(t, err, errA)
	assert.Contains(t, err.Error(), "b broke")

	_, err = Chain{}.Convert(context.Background(), "x.tex", filepath.Join(dir, "x.txt"))
	assert.ErrorIs(t, err, ErrNoStrategy)
}

func TestChainCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	s := &fakeStrategy{name: "s"}
	_, err := Chain{s}.Convert(ctx, "x.tex", filepath.Join(t.TempDir(), "x.txt"))
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, int32(0), s.calls.Load())
}

func TestDefaultChainEndsWithRegex(t *testing.T) {
	chain := DefaultChain()
	require.NotEmpty(t, chain)
	assert.Equal(t, "regex", chain[len(chain)-1].Name())
}

func TestNewPandocMissingBinary(t *testing.T) {
	_, err := NewPandoc("definitely-not-a-real-pandoc-binary")
	assert.Error(t, err)
}

func TestStripTeX(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"comments", "keep % drop this\nnext", "keep next"},
		{"command with arguments", `\section{Intro} Text`, "Text"},
		{"optional and required args", `\includegraphics[width=1cm]{fig.png} after`, "after"},
		{"starred command", `\section*{Hidden} shown`, "shown"},
		{"standalone command", `a \par b`, "a b"},
		{"braces and brackets", "{grouped} [opt]", "grouped opt"},
		{"whitespace collapsed", "  a\n\n\tb  ", "a b"},
		{"nfc", "café", "café"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, StripTeX(tt.in))
		})
	}
}

func TestRegexConvert(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "a.tex")
	writeFile(t, src, `\textbf{Bold} words % note`+"\n")

	dst := filepath.Join(dir, "a.txt")
	require.NoError(t, Regex{}.Convert(context.Background(), src, dst))

	data, err := os.ReadFile(dst)
	require.NoError(t, err)
	assert.Equal(t, "words", string(data))

	assert.Error(t, Regex{}.Convert(context.Background(), filepath.Join(dir, "missing.tex"), dst))
}

func TestConvertTree(t *testing.T) {
	root := t.TempDir()
	base := t.TempDir()

	writeFile(t, filepath.Join(root, "1-Intro.tex"), "# Intro\n\nOpening.\n\n## Motivation\n\nWhy.\n")
	writeFile(t, filepath.Join(root, "parts", "2-Method.tex"), "plain text only")
	writeFile(t, filepath.Join(root, "notes.md"), "# ignored")

	now := time.Date(2024, 3, 9, 14, 5, 7, 0, time.UTC)
	report, err := ConvertTree(context.Background(), root, TreeOptions{
		BaseDir:     base,
		Chain:       Chain{&fakeStrategy{name: "copy"}},
		Concurrency: 2,
		Now:         func() time.Time { return now },
	})
	require.NoError(t, err)

	assert.Equal(t, filepath.Join(base, "output_20240309_140507"), report.OutputDir)
	require.Len(t, report.Files, 2)
	assert.Equal(t, 2, report.Converted())
	assert.Equal(t, 2, report.Structured())

	intro := report.Files[0]
	assert.Equal(t, filepath.Join(root, "1-Intro.tex"), intro.Source)
	assert.Equal(t, filepath.Join(report.OutputDir, "1-Intro.txt"), intro.Text)
	assert.Equal(t, "copy", intro.Strategy)
	require.NoError(t, intro.Err)

	doc, err := sections.ReadJSON(intro.JSON)
	require.NoError(t, err)
	assert.Equal(t, "Intro", doc.Title)
	require.Len(t, doc.Sections, 1)
	assert.Equal(t, "Motivation", doc.Sections[0].Title)

	method := report.Files[1]
	assert.Equal(t, filepath.Join(report.OutputDir, "parts", "2-Method.json"), method.JSON)
	doc, err = sections.ReadJSON(method.JSON)
	require.NoError(t, err)
	assert.Equal(t, sections.UntitledTitle, doc.Title)
}

func TestConvertTreeRecordsFailures(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "a.tex"), "x")

	report, err := ConvertTree(context.Background(), root, TreeOptions{
		BaseDir: t.TempDir(),
		Chain:   Chain{&fakeStrategy{name: "broken", err: errors.New("boom")}},
	})
	require.NoError(t, err)
	require.Len(t, report.Files, 1)
	assert.Error(t, report.Files[0].Err)
	assert.Equal(t, 0, report.Converted())
}

func TestConvertTreeRejectsFile(t *testing.T) {
	root := t.TempDir()
	file := filepath.Join(root, "a.tex")
	writeFile(t, file, "x")

	_, err := ConvertTree(context.Background(), file, TreeOptions{BaseDir: t.TempDir()})
	assert.Error(t, err)

	_, err = ConvertTree(context.Background(), filepath.Join(root, "missing"), TreeOptions{BaseDir: t.TempDir()})
	assert.Error(t, err)
}
