// Package viewport implements the Scrolling Cell Viewport (spec §4.6):
// a virtualised, selectable list of variable-height cells, generalizing
// the teacher's single-offset viewport.Model (viewport/viewport.go) and
// bubbles/list's selection/pagination patterns to heterogeneous cells
// with a lazy measurement and render cache.
package viewport

import (
	"sort"
	"sync"

	"github.com/charmbracelet/log"
	"github.com/mattn/go-runewidth"

	"github.com/joouha/euporie-sub000/internal/corelog"
)

// drawnCell is one entry of the drawing set the arrangement algorithm
// produces: a cell together with its top row relative to the viewport
// (which may be negative or past the bottom edge before cropping).
type drawnCell struct {
	Index    int
	Provider CellProvider
	Top      int
	Height   int
}

// Model holds the viewport's scroll/selection state. It never owns the
// cells themselves; Children is called fresh every frame so structural
// notebook edits are picked up lazily, per spec §4.6's "Inputs" list.
type Model struct {
	mu sync.Mutex

	Children func() []CellProvider

	width, height int

	anchor         int
	anchorPosition int // row offset of the anchor cell's top within the viewport
	selection      Selection
	scrollToCursor bool
	editMode       bool

	measureWidth int
	measureCache map[string]int
	renderCache  map[string]CellRender

	log *log.Logger
}

// New creates a Model sized to width x height. children is the
// cell-factory function described in spec §4.6.
func New(children func() []CellProvider, width, height int, logger *log.Logger) *Model {
	if logger == nil {
		logger = corelog.New("viewport", nil)
	}
	return &Model{
		Children:     children,
		width:        width,
		height:       height,
		selection:    Selection{Start: 0, Stop: 1, Step: 1},
		measureCache: map[string]int{},
		renderCache:  map[string]CellRender{},
		log:          logger,
	}
}

// SetSize resizes the viewport. The measurement and render caches are
// keyed partly by width, so the next arrangement drops them when the
// width has changed.
func (m *Model) SetSize(width, height int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.width, m.height = width, height
}

// Invalidate drops a cell's cached measurement/render, called by the
// owner whenever a cell's source, outputs, selection, focus, or width
// changes (spec §3's RenderedCell invalidation rule).
func (m *Model) Invalidate(cellID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.measureCache, cellID)
	delete(m.renderCache, cellID)
}

// EditMode reports whether key presses are currently routed to the
// selected cell's editor rather than the viewport's own bindings.
func (m *Model) EditMode() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.editMode
}

// SetEditMode toggles that routing.
func (m *Model) SetEditMode(on bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.editMode = on
}

// RequestScrollToCursor sets the flag consumed by the next arrangement
// pass (spec §4.6 arrangement step 4).
func (m *Model) RequestScrollToCursor() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.scrollToCursor = true
}

func (m *Model) ensureCaches(width int) {
	if m.measureWidth != width {
		m.measureWidth = width
		m.measureCache = map[string]int{}
		m.renderCache = map[string]CellRender{}
	}
}

func (m *Model) heightOf(children []CellProvider, idx int) int {
	c := children[idx]
	if h, ok := m.measureCache[c.ID()]; ok {
		return h
	}
	h := c.MeasureHeight(m.width)
	m.measureCache[c.ID()] = h
	return h
}

func (m *Model) renderOf(children []CellProvider, idx int) CellRender {
	c := children[idx]
	if r, ok := m.renderCache[c.ID()]; ok {
		return r
	}
	r := c.Render(m.width)
	m.renderCache[c.ID()] = r
	return r
}

// arrangeOnce runs arrangement steps 1-3 without any of the step 4/5
// adjustments, for callers that need to re-derive the set after nudging
// anchorPosition.
func (m *Model) arrangeOnce(children []CellProvider) []drawnCell {
	n := len(children)
	if n == 0 {
		return nil
	}
	anchor := clampInt(m.anchor, 0, n-1)

	anchorHeight := m.heightOf(children, anchor)
	drawn := []drawnCell{{Index: anchor, Provider: children[anchor], Top: m.anchorPosition, Height: anchorHeight}}

	top := m.anchorPosition + anchorHeight
	for i := anchor + 1; i < n && top < m.height; i++ {
		h := m.heightOf(children, i)
		drawn = append(drawn, drawnCell{Index: i, Provider: children[i], Top: top, Height: h})
		top += h
	}

	top = m.anchorPosition
	for i := anchor - 1; i >= 0 && top > 0; i-- {
		h := m.heightOf(children, i)
		top -= h
		drawn = append(drawn, drawnCell{Index: i, Provider: children[i], Top: top, Height: h})
	}

	sort.Slice(drawn, func(a, b int) bool { return drawn[a].Top < drawn[b].Top })
	return drawn
}

// arrange runs the full per-frame algorithm: arrangement, scroll-to-
// cursor, then the two boundary clamps (spec §4.6 steps 1-5).
func (m *Model) arrange() []drawnCell {
	children := m.Children()
	m.ensureCaches(m.width)
	n := len(children)
	if n == 0 {
		return nil
	}
	m.anchor = clampInt(m.anchor, 0, n-1)

	drawn := m.arrangeOnce(children)

	if m.scrollToCursor {
		m.scrollToCursor = false
		for _, d := range drawn {
			if d.Index != m.anchor {
				continue
			}
			cp, ok := d.Provider.(CursorRower)
			if !ok {
				break
			}
			row := d.Top + cp.CursorRow()
			switch {
			case row < 0:
				m.anchorPosition -= row
			case row >= m.height:
				m.anchorPosition -= row - m.height + 1
			default:
				break
			}
			drawn = m.arrangeOnce(children)
			break
		}
	}

	if len(drawn) > 0 {
		first, last := drawn[0], drawn[len(drawn)-1]
		if first.Index == 0 && first.Top != 0 {
			m.anchorPosition -= first.Top
			drawn = m.arrangeOnce(children)
			first, last = drawn[0], drawn[len(drawn)-1]
		}
		if last.Index == n-1 && first.Index != 0 {
			if gap := m.height - (last.Top + last.Height); gap > 0 {
				m.anchorPosition += gap
				drawn = m.arrangeOnce(children)
			}
		}
	}

	return drawn
}

// DrawingSet is the public view of one frame's arrangement: which
// cells are visible, at what absolute row, and how tall each one is.
type DrawingSet struct {
	CellID string
	Index  int
	Top    int
	Height int
}

// Arrange computes the current frame's drawing set and, for every
// rendered cell holding graphic outputs, positions those graphics via
// the Graphics Manager handles they carry (spec §4.6's graphic
// placement paragraph — the handoff itself is just SetPosition; drawing
// happens in the Graphics Manager's own after_render pass).
func (m *Model) Arrange() []DrawingSet {
	m.mu.Lock()
	defer m.mu.Unlock()

	children := m.Children()
	drawn := m.arrange()

	out := make([]DrawingSet, 0, len(drawn))
	for _, d := range drawn {
		out = append(out, DrawingSet{CellID: d.Provider.ID(), Index: d.Index, Top: d.Top, Height: d.Height})
		render := m.renderOf(children, d.Index)
		for _, g := range render.Graphics {
			g.Graphic.SetPosition(g.OffsetX, d.Top+g.OffsetY, g.WidthCells, g.HeightCells)
		}
	}
	return out
}

// View renders the current frame to a single string, cropping each
// drawn cell's full-height render buffer to the rows that actually
// intersect the viewport.
func (m *Model) View() string {
	m.mu.Lock()
	defer m.mu.Unlock()

	children := m.Children()
	drawn := m.arrange()

	rows := make([]string, m.height)
	for _, d := range drawn {
		render := m.renderOf(children, d.Index)
		for row := 0; row < d.Height; row++ {
			y := d.Top + row
			if y < 0 || y >= m.height {
				continue
			}
			if row < len(render.Lines) {
				rows[y] = render.Lines[row]
			}
		}
	}
	return joinRows(rows)
}

func joinRows(rows []string) string {
	out := make([]byte, 0, 80*len(rows))
	for i, r := range rows {
		if i > 0 {
			out = append(out, '\n')
		}
		out = append(out, r...)
	}
	return string(out)
}

// cellWidth measures a line's on-screen column width, wide/ambiguous
// runes counted per go-runewidth.
func cellWidth(s string) int {
	return runewidth.StringWidth(s)
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
