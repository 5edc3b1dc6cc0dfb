package viewport

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
)

type fakeCell struct {
	id      string
	height  int
	focused bool
}

func (c *fakeCell) ID() string             { return c.id }
func (c *fakeCell) MeasureHeight(int) int  { return c.height }
func (c *fakeCell) Focused() bool          { return c.focused }
func (c *fakeCell) Render(width int) CellRender {
	lines := make([]string, c.height)
	for i := range lines {
		lines[i] = fmt.Sprintf("%s:%d", c.id, i)
	}
	return CellRender{Lines: lines}
}

func makeCells(n, height int) []CellProvider {
	cells := make([]CellProvider, n)
	for i := 0; i < n; i++ {
		cells[i] = &fakeCell{id: fmt.Sprintf("cell-%d", i), height: height}
	}
	return cells
}

func TestSelectScrollsCellFullyIntoView(t *testing.T) {
	cells := makeCells(20, 3)
	m := New(func() []CellProvider { return cells }, 80, 10, nil)

	m.Select(19, false, nil)
	drawn := m.Arrange()
	require.NotEmpty(t, drawn)

	var last, secondLast *DrawingSet
	for i := range drawn {
		if drawn[i].Index == 19 {
			last = &drawn[i]
		}
		if drawn[i].Index == 18 {
			secondLast = &drawn[i]
		}
	}
	require.NotNil(t, last)
	require.NotNil(t, secondLast)
	require.Equal(t, 7, last.Top)
	require.Equal(t, 3, last.Height)
	require.Equal(t, last.Top, secondLast.Top+secondLast.Height)
}

func TestSelectSetsCollapsedSlice(t *testing.T) {
	cells := makeCells(5, 2)
	m := New(func() []CellProvider { return cells }, 80, 10, nil)

	m.Select(2, false, nil)
	sel := m.Selection()
	require.Equal(t, Selection{Start: 2, Stop: 3, Step: 1}, sel)
}

func TestExtendSelectionReversesStepWhenMovingBackward(t *testing.T) {
	cells := makeCells(10, 2)
	m := New(func() []CellProvider { return cells }, 80, 10, nil)

	m.Select(5, false, nil)
	m.Select(2, true, nil)
	sel := m.Selection()
	require.Equal(t, 5, sel.Start)
	require.Equal(t, -1, sel.Step)
	require.Equal(t, []int{5, 4, 3, 2}, sel.Indices(10))
}

func TestDrawingSetCoversEveryIntersectingCellExactlyOnce(t *testing.T) {
	cells := makeCells(15, 4)
	m := New(func() []CellProvider { return cells }, 80, 10, nil)
	m.Select(7, false, nil)

	drawn := m.Arrange()
	seen := map[int]int{}
	for _, d := range drawn {
		seen[d.Index]++
		require.Less(t, d.Top, m.height)
		require.Greater(t, d.Top+d.Height, 0)
	}
	for idx, count := range seen {
		require.Equalf(t, 1, count, "cell %d drawn %d times", idx, count)
	}
}

func TestTopCellFlushWhenScrolledToStart(t *testing.T) {
	cells := makeCells(3, 2)
	m := New(func() []CellProvider { return cells }, 80, 10, nil)
	m.Select(0, false, nil)

	drawn := m.Arrange()
	require.Equal(t, 0, drawn[0].Top)
}

func TestInvalidateDropsMeasurementAndRenderCache(t *testing.T) {
	cells := makeCells(3, 2)
	m := New(func() []CellProvider { return cells }, 80, 10, nil)
	m.Select(0, false, nil)
	m.Arrange()

	require.Contains(t, m.measureCache, "cell-0")
	m.Invalidate("cell-0")
	require.NotContains(t, m.measureCache, "cell-0")
	require.NotContains(t, m.renderCache, "cell-0")
}

func TestHandleKeyMovesSelectionByOne(t *testing.T) {
	cells := makeCells(5, 2)
	m := New(func() []CellProvider { return cells }, 80, 10, nil)
	m.Select(1, false, nil)

	require.True(t, m.HandleKey("down", false))
	require.Equal(t, 2, m.Selection().Start)

	require.False(t, m.HandleKey("x", false))
}
