// Package notebook holds the notebook/cell/output data model (spec §3) and
// the structural operations (insert, delete, move, merge, split, paste)
// used to mutate it. Cells live in an arena indexed by id rather than
// through cyclic cell<->notebook pointers, per the cyclic-reference
// redesign note: the Notebook owns an ordered slice of ids and a map from
// id to Cell, so other components (comms, viewport) can refer to a cell by
// its stable id without holding a reference into the arena itself.
package notebook

import (
	"strings"

	"github.com/gofrs/uuid"
)

// Kind is the cell kind.
type Kind int

const (
	KindCode Kind = iota
	KindMarkdown
	KindRaw
)

// OutputKind tags the union in Output.
type OutputKind int

const (
	OutputStream OutputKind = iota
	OutputDisplayData
	OutputExecuteResult
	OutputError
)

func (k OutputKind) String() string {
	switch k {
	case OutputStream:
		return "stream"
	case OutputDisplayData:
		return "display_data"
	case OutputExecuteResult:
		return "execute_result"
	case OutputError:
		return "error"
	default:
		return "unknown"
	}
}

// Output is the tagged union described in spec §3.
type Output struct {
	Kind OutputKind

	// stream
	StreamName string // "stdout" | "stderr"
	Text       string

	// display_data / execute_result
	Data           map[string]any
	Metadata       map[string]any
	ExecutionCount int // execute_result only

	// error
	EName     string
	EValue    string
	Traceback []string

	// DisplayID, if non-empty, is the transient.display_id this output was
	// published under; update_display_data messages target it by value.
	DisplayID string
}

// MergeStream appends text into a stream output of the same name, per the
// stream-merging testable property. One trailing ANSI reset (ESC[0m) is
// stripped from the existing text before text is appended, since several
// kernels append a redundant ESC[0m to every stream chunk (see SPEC_FULL
// §12).
func (o *Output) MergeStream(text string) {
	o.Text = strings.TrimSuffix(o.Text, "\x1b[0m") + text
}

// Cell is a single notebook element (spec §3). ID is immutable for the
// cell's lifetime; ExecutionCount is meaningful only for KindCode.
type Cell struct {
	ID             string
	Kind           Kind
	Source         string
	ExecutionCount *int
	Outputs        []Output
	Metadata       map[string]any
}

// NewCell creates a cell of the given kind with a fresh id. Code cells get
// a non-nil (but unset) Outputs slice; non-code cells get a nil one, per
// the "outputs present iff kind=code" invariant.
func NewCell(kind Kind, source string) *Cell {
	c := &Cell{
		ID:       newID(),
		Kind:     kind,
		Source:   source,
		Metadata: map[string]any{},
	}
	if kind == KindCode {
		c.Outputs = []Output{}
	}
	return c
}

func newID() string {
	u, err := uuid.NewV4()
	if err != nil {
		// uuid v4 generation only fails if the system entropy source is
		// broken; fall back to a fixed-width non-random id rather than
		// panic so a single bad /dev/urandom read can't crash the editor.
		return "cell-fallback"
	}
	return u.String()
}

// AddOutput appends an output, merging it into the previous output first
// when both are stream outputs with the same name (stream merging spans
// add_output calls per SPEC_FULL's Open Question decision).
func (c *Cell) AddOutput(o Output) {
	if o.Kind == OutputStream && len(c.Outputs) > 0 {
		last := &c.Outputs[len(c.Outputs)-1]
		if last.Kind == OutputStream && last.StreamName == o.StreamName {
			last.MergeStream(o.Text)
			return
		}
	}
	c.Outputs = append(c.Outputs, o)
}

// ClearOutputs empties the cell's output list. wait is accepted for
// interface symmetry with the kernel's clear_output(wait) callback; the
// core has no deferred-clear state of its own — the kernel session decides
// when to actually call this.
func (c *Cell) ClearOutputs(wait bool) {
	c.Outputs = c.Outputs[:0]
}

// ReplaceByDisplayID implements the update_display_data semantics decided
// in SPEC_FULL §14.1: locate the previous output with matching DisplayID
// and replace its Data/Metadata in place; if none is found the update is
// dropped (the reference client behavior for an unknown display_id).
func (c *Cell) ReplaceByDisplayID(displayID string, data, metadata map[string]any) bool {
	for i := range c.Outputs {
		if c.Outputs[i].DisplayID == displayID {
			c.Outputs[i].Data = data
			c.Outputs[i].Metadata = metadata
			return true
		}
	}
	return false
}

// Notebook is the ordered sequence of cells plus notebook-level metadata.
type Notebook struct {
	order    []string
	cells    map[string]*Cell
	Metadata map[string]any
}

// New returns a notebook with a single empty code cell, satisfying the
// "length >= 1" invariant for a freshly created notebook.
func New() *Notebook {
	nb := &Notebook{
		cells:    map[string]*Cell{},
		Metadata: map[string]any{},
	}
	nb.insertAt(0, NewCell(KindCode, ""))
	return nb
}

// FromCells builds a notebook from an already-ordered, non-empty cell
// list, as used when loading from disk (parsing the JSON itself is the
// external file writer's job, out of scope here).
func FromCells(cells []*Cell, metadata map[string]any) *Notebook {
	nb := &Notebook{cells: map[string]*Cell{}, Metadata: metadata}
	if nb.Metadata == nil {
		nb.Metadata = map[string]any{}
	}
	for _, c := range cells {
		nb.order = append(nb.order, c.ID)
		nb.cells[c.ID] = c
	}
	if len(nb.order) == 0 {
		nb.insertAt(0, NewCell(KindCode, ""))
	}
	return nb
}

// Len returns the number of cells.
func (nb *Notebook) Len() int { return len(nb.order) }

// CellAt returns the cell at position i, or nil if out of range.
func (nb *Notebook) CellAt(i int) *Cell {
	if i < 0 || i >= len(nb.order) {
		return nil
	}
	return nb.cells[nb.order[i]]
}

// IndexOf returns the position of the cell with the given id, or -1.
func (nb *Notebook) IndexOf(id string) int {
	for i, cid := range nb.order {
		if cid == id {
			return i
		}
	}
	return -1
}

// Cell looks a cell up by id.
func (nb *Notebook) Cell(id string) *Cell { return nb.cells[id] }

// Cells returns the ordered cell ids.
func (nb *Notebook) Cells() []string {
	out := make([]string, len(nb.order))
	copy(out, nb.order)
	return out
}

func (nb *Notebook) insertAt(i int, c *Cell) {
	nb.cells[c.ID] = c
	nb.order = append(nb.order, "")
	copy(nb.order[i+1:], nb.order[i:])
	nb.order[i] = c.ID
}

// Insert inserts a new cell of the given kind at position i (0<=i<=Len())
// and returns it. The new cell receives a fresh id, satisfying the
// cell-id-stability property (no existing cell's id changes).
func (nb *Notebook) Insert(i int, kind Kind, source string) *Cell {
	if i < 0 {
		i = 0
	}
	if i > len(nb.order) {
		i = len(nb.order)
	}
	c := NewCell(kind, source)
	nb.insertAt(i, c)
	return c
}

// Delete removes the cell at position i. If this empties the notebook, a
// single fresh empty code cell is inserted in its place, per the boundary
// behavior "deleting the last cell leaves exactly one empty code cell".
func (nb *Notebook) Delete(i int) {
	if i < 0 || i >= len(nb.order) {
		return
	}
	id := nb.order[i]
	nb.order = append(nb.order[:i], nb.order[i+1:]...)
	delete(nb.cells, id)
	if len(nb.order) == 0 {
		nb.insertAt(0, NewCell(KindCode, ""))
	}
}

// Move relocates the cell at position i by n positions (negative moves
// up). It is a no-op if the destination would fall outside [0,Len()), per
// the boundary behavior for selection moves.
func (nb *Notebook) Move(i, n int) bool {
	dst := i + n
	if i < 0 || i >= len(nb.order) || dst < 0 || dst >= len(nb.order) {
		return false
	}
	id := nb.order[i]
	nb.order = append(nb.order[:i], nb.order[i+1:]...)
	nb.order = append(nb.order[:dst], append([]string{id}, nb.order[dst:]...)...)
	return true
}

// Merge combines cell i and the cell immediately after it into one cell
// holding both sources separated by a newline, keeping cell i's id and
// dropping the other. Merge is a no-op at the last cell.
func (nb *Notebook) Merge(i int) bool {
	if i < 0 || i+1 >= len(nb.order) {
		return false
	}
	a := nb.cells[nb.order[i]]
	b := nb.cells[nb.order[i+1]]
	a.Source = a.Source + "\n" + b.Source
	a.Outputs = append(a.Outputs, b.Outputs...)
	nb.Delete(i + 1)
	return true
}

// Split breaks the cell at position i into two cells at rune offset k of
// its source. The concatenation of the two resulting sources equals the
// original, per the split boundary behavior. The first resulting cell
// keeps the original id; the second gets a fresh one.
func (nb *Notebook) Split(i, k int) bool {
	if i < 0 || i >= len(nb.order) {
		return false
	}
	c := nb.cells[nb.order[i]]
	runes := []rune(c.Source)
	if k < 0 {
		k = 0
	}
	if k > len(runes) {
		k = len(runes)
	}
	head := string(runes[:k])
	tail := string(runes[k:])
	c.Source = head
	nb.Insert(i+1, c.Kind, tail)
	return true
}

// Paste inserts a block of cells (e.g. from a clipboard of copied cells)
// starting at position i, assigning each a fresh id so pasting the same
// clipboard twice never collides with an existing id.
func (nb *Notebook) Paste(i int, cells []*Cell) []*Cell {
	inserted := make([]*Cell, 0, len(cells))
	for off, src := range cells {
		c := NewCell(src.Kind, src.Source)
		c.Metadata = cloneMap(src.Metadata)
		c.Outputs = append([]Output(nil), src.Outputs...)
		nb.insertAt(i+off, c)
		inserted = append(inserted, c)
	}
	return inserted
}

func cloneMap(m map[string]any) map[string]any {
	if m == nil {
		return map[string]any{}
	}
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
