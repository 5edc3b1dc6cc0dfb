package viewport

import "github.com/joouha/euporie-sub000/internal/graphics"

// CellProvider is the "cell-factory" spec §4.6 describes as the
// viewport's input: something the viewport can ask for a stable id, a
// height at a given render width, and rendered content once that width
// is fixed. A Notebook's cells (wrapped through internal/render) are
// the production implementation; tests use a bare fake.
type CellProvider interface {
	ID() string
	MeasureHeight(width int) int
	Render(width int) CellRender

	// Focused reports whether this cell currently owns the viewport's
	// focused control.
	Focused() bool
}

// CursorRower is an optional CellProvider capability: a cell with an
// active text cursor reports the cursor's row (relative to the cell's
// own top) so scroll-to-cursor can bring it into view.
type CursorRower interface {
	CursorRow() int
}

// CellRender is one cell's rendered content at a fixed width, including
// any graphics its outputs hold.
type CellRender struct {
	Lines    []string
	Graphics []GraphicPlacement
}

// GraphicPlacement is one image inside a cell's output, offset
// relative to the cell's own top row. The viewport turns this into an
// absolute screen position once the cell's top is known, then asks the
// Graphics Manager to draw it (spec §4.6's "Graphic placement"
// paragraph).
type GraphicPlacement struct {
	Graphic                 *graphics.Graphic
	OffsetX, OffsetY         int
	WidthCells, HeightCells  int
}
