// Package render implements the Output Renderer (spec §4.3): picks the
// best mime representation of a kernel output and renders it to ANSI
// text or a terminal graphic at a requested cell size.
package render

import (
	"hash/fnv"
	"os"
	"strings"

	"github.com/charmbracelet/log"
	"github.com/lucasb-eyer/go-colorful"
	"github.com/muesli/ansi"
	"github.com/muesli/reflow/truncate"

	"github.com/joouha/euporie-sub000/internal/graphics"
	"github.com/joouha/euporie-sub000/internal/notebook"
)

// Rendered is the output of a single render call.
type Rendered struct {
	Lines    []string
	Graphic  *graphics.Graphic
	FromMime string
}

func (r Rendered) Height() int { return len(r.Lines) }

// Renderer turns notebook.Output values into Rendered cells, per spec
// §4.3's algorithm: richness-ordered mime selection, conversion via the
// external registry, image handling via the Graphics Manager or an ANSI
// fallback chain, and a small LRU render cache.
type Renderer struct {
	converter Converter
	graphics  *graphics.Manager
	cache     *lruCache
	log       *log.Logger

	// MaxHeight truncates rendered output past this many lines when > 0
	// (SPEC_FULL §12's output-truncation behavior). 0 means unlimited.
	MaxHeight int

	cellPxW, cellPxH int
	fg, bg           colorful.Color
}

// New creates a Renderer. converter may be nil, in which case only
// already-ANSI/plain-text/image mimes can be handled (no format
// conversion is attempted).
func New(converter Converter, gm *graphics.Manager, logger *log.Logger) *Renderer {
	if logger == nil {
		logger = log.New(os.Stderr)
	}
	return &Renderer{
		converter: converter,
		graphics:  gm,
		cache:     newLRUCache(50),
		log:       logger,
		cellPxW:   8,
		cellPxH:   16,
		fg:        colorful.Color{R: 1, G: 1, B: 1},
		bg:        colorful.Color{R: 0, G: 0, B: 0},
	}
}

// SetCellPixels records the terminal's pixels-per-cell ratio, learned
// from the Terminal Query Layer, used when fitting images to a cell
// grid.
func (r *Renderer) SetCellPixels(w, h int) {
	if w > 0 && h > 0 {
		r.cellPxW, r.cellPxH = w, h
	}
}

// graphicsAvailable reports whether an out-of-band graphics protocol is
// wired up; when false, images always fall through to the ANSI chain.
func (r *Renderer) graphicsAvailable() bool {
	return r.graphics != nil
}

// Render picks the richest representable mime in out and renders it at
// (cols, rows), consulting and populating the render cache.
func (r *Renderer) Render(out notebook.Output, cols, rows int, visible func() bool) Rendered {
	data := r.mimeData(out)
	if len(data) == 0 {
		return Rendered{Lines: []string{""}}
	}

	key := cacheKey{
		hash: contentHash(out, cols, rows),
		cols: cols,
		rows: rows,
		fg:   r.fg.Hex(),
		bg:   r.bg.Hex(),
	}
	if cached, ok := r.cache.get(key); ok {
		return cached
	}

	rendered := r.render(data, cols, rows, visible)
	if r.MaxHeight > 0 && len(rendered.Lines) > r.MaxHeight {
		rendered.Lines = rendered.Lines[:r.MaxHeight]
	}
	r.cache.put(key, rendered)
	return rendered
}

// PreferredHeight reports the line count Render would produce for out
// at the given width, satisfying the height/render-agreement testable
// property: it is computed by the same code path as Render, with a
// visibility filter that is always false, so an image Graphic it
// registers with the Graphics Manager is never drawn (the cache makes
// repeat calls cheap).
func (r *Renderer) PreferredHeight(out notebook.Output, cols int) int {
	rendered := r.Render(out, cols, 1<<20, func() bool { return false })
	return rendered.Height()
}

func (r *Renderer) render(data map[string]any, cols, rows int, visible func() bool) Rendered {
	for _, mime := range sortByRichness(data) {
		raw, ok := mimeBytes(data[mime])
		if !ok {
			continue
		}
		if strings.HasPrefix(mime, "image/") {
			return r.renderImage(mime, raw, cols, rows, visible)
		}
		if mime == "text/html" {
			if text, ok := r.convertOrSkip(raw, mime, "text/ansi", cols, rows); ok {
				return Rendered{Lines: splitLines(text), FromMime: mime}
			}
			continue
		}
		if mime == "text/markdown" {
			return Rendered{Lines: renderMarkdown(string(raw), cols), FromMime: mime}
		}
		// plain text and everything else falls straight through,
		// word-wrapped to the requested width.
		return Rendered{Lines: wrapPlain(string(raw), cols), FromMime: mime}
	}
	return Rendered{Lines: []string{""}}
}

func (r *Renderer) convertOrSkip(data []byte, from, to string, cols, rows int) (string, bool) {
	if r.converter == nil {
		return "", false
	}
	if _, ok := r.converter.FindRoute(from, to); !ok {
		return "", false
	}
	out, err := r.converter.Convert(data, from, to, cols, rows, r.fg, r.bg)
	if err != nil {
		r.log.Warn("conversion failed", "from", from, "to", to, "err", err)
		return "", false
	}
	return string(out), true
}

func (r *Renderer) renderImage(mime string, data []byte, cols, rows int, visible func() bool) Rendered {
	if mime != "image/png" && mime != "image/jpeg" {
		if converted, ok := r.convertOrSkip(data, mime, "image/png", cols, rows); ok {
			data = []byte(converted)
			mime = "image/png"
		} else {
			return Rendered{Lines: imagePlaceholder(cols, rows), FromMime: mime}
		}
	}
	if r.graphicsAvailable() {
		g := registerImageGraphic(r.graphics, data, imageFormat(mime), visible)
		if g != nil {
			img := decodeImage(data)
			w, h := cols, rows
			if img != nil {
				pw, ph := fitCells(img, cols, rows, r.cellPxW, r.cellPxH)
				w = pw / max1(r.cellPxW)
				h = ph / max1(r.cellPxH)
				if w < 1 {
					w = 1
				}
				if h < 1 {
					h = 1
				}
			}
			g.SetPosition(0, 0, w, h)
			lines := make([]string, h)
			return Rendered{Lines: lines, Graphic: g, FromMime: mime}
		}
	}
	img := decodeImage(data)
	if img == nil {
		return Rendered{Lines: imagePlaceholder(cols, rows), FromMime: mime}
	}
	return Rendered{Lines: asciiArt(img, cols, rows), FromMime: mime}
}

func max1(v int) int {
	if v < 1 {
		return 1
	}
	return v
}

// wrapPlain wraps ANSI-laden plain text to cols terminal columns,
// measuring printable width with muesli/ansi so escape
// sequences don't count against the column budget, and truncating each
// physical line with muesli/reflow/truncate so an unbalanced sequence
// never bleeds into the next rendered row.
func wrapPlain(text string, cols int) []string {
	if cols <= 0 {
		return splitLines(text)
	}
	var out []string
	for _, line := range strings.Split(strings.TrimRight(text, "\n"), "\n") {
		for ansi.PrintableRuneWidth(line) > cols {
			cut := truncate.String(line, uint(cols))
			out = append(out, cut)
			line = strings.TrimPrefix(line, cut)
		}
		out = append(out, line)
	}
	if len(out) == 0 {
		out = []string{""}
	}
	return out
}

func (r *Renderer) mimeData(out notebook.Output) map[string]any {
	switch out.Kind {
	case notebook.OutputStream:
		name := "stream/stdout"
		if out.StreamName == "stderr" {
			name = "stream/stderr"
		}
		return map[string]any{name: out.Text}
	case notebook.OutputError:
		tb := strings.Join(out.Traceback, "\n")
		if tb == "" {
			tb = out.EName + ": " + out.EValue
		}
		return map[string]any{"text/x-python-traceback": tb}
	default:
		return out.Data
	}
}

func mimeBytes(v any) ([]byte, bool) {
	switch t := v.(type) {
	case string:
		return []byte(t), true
	case []byte:
		return t, true
	default:
		return nil, false
	}
}

func contentHash(out notebook.Output, cols, rows int) uint64 {
	h := fnv.New64a()
	h.Write([]byte(out.Kind.String()))
	h.Write([]byte(out.Text))
	h.Write([]byte(out.EValue))
	for k, v := range out.Data {
		h.Write([]byte(k))
		if b, ok := mimeBytes(v); ok {
			h.Write(b)
		}
	}
	var dims [8]byte
	dims[0] = byte(cols)
	dims[1] = byte(cols >> 8)
	dims[2] = byte(rows)
	dims[3] = byte(rows >> 8)
	h.Write(dims[:])
	return h.Sum64()
}
