package render

import (
	"strings"
	"testing"

	"github.com/lucasb-eyer/go-colorful"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joouha/euporie-sub000/internal/notebook"
)

type noopConverter struct{}

func (noopConverter) Convert(data []byte, from, to string, cols, rows int, fg, bg colorful.Color) ([]byte, error) {
	return data, nil
}
func (noopConverter) FindRoute(from, to string) ([]string, bool) { return nil, false }

func TestImageFallbackProducesPlaceholder(t *testing.T) {
	r := New(noopConverter{}, nil, nil) // no graphics manager wired: forces ANSI fallback
	out := notebook.Output{
		Kind: notebook.OutputDisplayData,
		Data: map[string]any{"image/png": "not a real png"},
	}
	rendered := r.Render(out, 20, 10, func() bool { return true })
	require.GreaterOrEqual(t, len(rendered.Lines), 3)
	joined := strings.Join(rendered.Lines, "\n")
	assert.Contains(t, joined, "Image")
}

func TestHeightRenderAgreement(t *testing.T) {
	r := New(nil, nil, nil)
	out := notebook.Output{
		Kind: notebook.OutputExecuteResult,
		Data: map[string]any{"text/plain": "line one\nline two\nline three"},
	}
	rendered := r.Render(out, 80, 100, func() bool { return false })
	height := r.PreferredHeight(out, 80)
	assert.Equal(t, rendered.Height(), height)
}

func TestRichnessPrefersHTMLOverMarkdown(t *testing.T) {
	keys := sortByRichness(map[string]any{
		"text/markdown": "# hi",
		"text/html":     "<p>hi</p>",
		"text/plain":    "hi",
	})
	require.NotEmpty(t, keys)
	assert.Equal(t, "text/html", keys[0])
}

func TestRichnessPrefersImageOverEverything(t *testing.T) {
	keys := sortByRichness(map[string]any{
		"text/plain": "hi",
		"image/png":  "binary",
	})
	assert.Equal(t, "image/png", keys[0])
}

func TestStreamOutputRendersAsPlainText(t *testing.T) {
	r := New(nil, nil, nil)
	out := notebook.Output{Kind: notebook.OutputStream, StreamName: "stdout", Text: "hello\n"}
	rendered := r.Render(out, 80, 10, nil)
	assert.Equal(t, []string{"hello"}, rendered.Lines)
}

func TestMarkdownRenderIncludesHeadingText(t *testing.T) {
	lines := renderMarkdown("# Title\n\nSome *text*.\n", 40)
	joined := strings.Join(lines, "\n")
	assert.Contains(t, joined, "Title")
}

func TestMaxHeightTruncatesOutput(t *testing.T) {
	r := New(nil, nil, nil)
	r.MaxHeight = 2
	out := notebook.Output{
		Kind: notebook.OutputExecuteResult,
		Data: map[string]any{"text/plain": "one\ntwo\nthree\nfour"},
	}
	rendered := r.Render(out, 80, 100, nil)
	assert.Len(t, rendered.Lines, 2)
}

func TestRenderCacheReturnsSameResultWithoutRecompute(t *testing.T) {
	r := New(nil, nil, nil)
	out := notebook.Output{
		Kind: notebook.OutputExecuteResult,
		Data: map[string]any{"text/plain": "cached"},
	}
	first := r.Render(out, 80, 10, nil)
	second := r.Render(out, 80, 10, nil)
	assert.Equal(t, first.Lines, second.Lines)
}
