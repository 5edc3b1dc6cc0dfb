package render

import (
	"bytes"
	"strings"

	"github.com/alecthomas/chroma/v2"
	"github.com/alecthomas/chroma/v2/formatters"
	"github.com/alecthomas/chroma/v2/lexers"
	"github.com/alecthomas/chroma/v2/styles"
	"github.com/microcosm-cc/bluemonday"
	"github.com/muesli/reflow/wordwrap"
	"github.com/olekukonko/tablewriter"
	"github.com/yuin/goldmark"
	emoji "github.com/yuin/goldmark-emoji"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/extension"
	extast "github.com/yuin/goldmark/extension/ast"
	"github.com/yuin/goldmark/renderer/html"
	"github.com/yuin/goldmark/text"
)

var markdownParser = goldmark.New(
	goldmark.WithExtensions(extension.GFM, emoji.Emoji),
	goldmark.WithRendererOptions(html.WithUnsafe()),
)

var sanitizer = bluemonday.UGCPolicy()

// renderMarkdown converts markdown source to terminal lines wrapped to
// cols, highlighting fenced code blocks with chroma (as ANSI colors) and
// drawing GFM tables with tablewriter. The text extracted from the
// goldmark AST is run through bluemonday before it is wrapped, so raw
// inline HTML never reaches the terminal unescaped.
func renderMarkdown(source string, cols int) []string {
	doc := markdownParser.Parser().Parse(text.NewReader([]byte(source)))
	var out bytes.Buffer
	walkMarkdown(doc, []byte(source), &out, cols)
	rendered := out.String()
	if rendered == "" {
		return []string{""}
	}
	return splitLines(rendered)
}

func walkMarkdown(n ast.Node, src []byte, out *bytes.Buffer, cols int) {
	for c := n.FirstChild(); c != nil; c = c.NextSibling() {
		switch node := c.(type) {
		case *ast.FencedCodeBlock:
			renderCodeBlock(node, src, out, langOf(node, src))
		case *ast.CodeBlock:
			renderCodeBlock(node, src, out, "")
		case *ast.Paragraph:
			renderInline(node, src, out, cols)
			out.WriteString("\n\n")
		case *ast.Heading:
			out.WriteString(strings.Repeat("#", node.Level) + " ")
			renderInline(node, src, out, cols)
			out.WriteString("\n\n")
		case *extast.Table:
			renderGFMTable(node, src, out)
		default:
			if node.Type() == ast.TypeBlock {
				walkMarkdown(node, src, out, cols)
			}
		}
	}
}

func langOf(n *ast.FencedCodeBlock, src []byte) string {
	return string(n.Language(src))
}

func renderCodeBlock(n ast.Node, src []byte, out *bytes.Buffer, lang string) {
	var code bytes.Buffer
	lines := n.Lines()
	for i := 0; i < lines.Len(); i++ {
		seg := lines.At(i)
		code.Write(seg.Value(src))
	}
	highlighted := highlight(code.String(), lang)
	out.WriteString(highlighted)
	if !strings.HasSuffix(highlighted, "\n") {
		out.WriteString("\n")
	}
	out.WriteString("\n")
}

func renderInline(n ast.Node, src []byte, out *bytes.Buffer, cols int) {
	var plain bytes.Buffer
	extractText(n, src, &plain)
	sanitized := sanitizer.Sanitize(plain.String())
	if cols > 0 {
		sanitized = wordwrap.String(sanitized, cols)
	}
	out.WriteString(sanitized)
}

func extractText(n ast.Node, src []byte, out *bytes.Buffer) {
	if tn, ok := n.(*ast.Text); ok {
		out.Write(tn.Segment.Value(src))
		return
	}
	for c := n.FirstChild(); c != nil; c = c.NextSibling() {
		extractText(c, src, out)
	}
}

// highlight runs source through chroma, falling back to the raw text
// if the language is unknown.
func highlight(source, lang string) string {
	lexer := lexers.Get(lang)
	if lexer == nil {
		lexer = lexers.Analyse(source)
	}
	if lexer == nil {
		lexer = lexers.Fallback
	}
	lexer = chroma.Coalesce(lexer)
	style := styles.Get("monokai")
	if style == nil {
		style = styles.Fallback
	}
	formatter := formatters.TTY256
	it, err := lexer.Tokenise(nil, source)
	if err != nil {
		return source
	}
	var buf bytes.Buffer
	if err := formatter.Format(&buf, style, it); err != nil {
		return source
	}
	return buf.String()
}

// renderGFMTable walks a goldmark GFM table node and draws it with
// tablewriter, one cell's rendered text per column.
func renderGFMTable(table *extast.Table, src []byte, out *bytes.Buffer) {
	var header []string
	var rows [][]string
	for row := table.FirstChild(); row != nil; row = row.NextSibling() {
		var cells []string
		for cell := row.FirstChild(); cell != nil; cell = cell.NextSibling() {
			var buf bytes.Buffer
			extractText(cell, src, &buf)
			cells = append(cells, buf.String())
		}
		if _, isHeader := row.(*extast.TableHeader); isHeader {
			header = cells
		} else {
			rows = append(rows, cells)
		}
	}
	var buf bytes.Buffer
	tw := tablewriter.NewWriter(&buf)
	if header != nil {
		tw.SetHeader(header)
	}
	tw.AppendBulk(rows)
	tw.Render()
	out.Write(buf.Bytes())
	out.WriteString("\n")
}

func splitLines(s string) []string {
	s = strings.TrimRight(s, "\n")
	if s == "" {
		return []string{""}
	}
	return strings.Split(s, "\n")
}
