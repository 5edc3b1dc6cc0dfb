package viewport

// Selection is the Python-style slice the spec describes: step is ±1,
// and Stop is exclusive, matching `selected_slice == [i, i+1, +1]` after
// a plain select(i).
type Selection struct {
	Start, Stop, Step int
}

// Indices expands the slice into concrete cell indices, clamped to
// [0, n).
func (s Selection) Indices(n int) []int {
	if n == 0 {
		return nil
	}
	step := s.Step
	if step == 0 {
		step = 1
	}
	var out []int
	if step > 0 {
		for i := s.Start; i < s.Stop && i < n; i += step {
			if i >= 0 {
				out = append(out, i)
			}
		}
	} else {
		for i := s.Start; i > s.Stop && i >= 0; i += step {
			if i < n {
				out = append(out, i)
			}
		}
	}
	return out
}

// Selection returns the current selection slice.
func (m *Model) Selection() Selection {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.selection
}

// Select implements spec §4.6's selection semantics: extend grows the
// slice to include i (reversing step if i now lies on the other side of
// the anchor), otherwise the slice collapses to [i, i+1, +1]. A non-nil
// position only turns on scroll-to-cursor for the next arrangement; its
// value is not stored and is not passed on to the cell's editor.
func (m *Model) Select(i int, extend bool, position *int) {
	m.mu.Lock()
	defer m.mu.Unlock()

	children := m.Children()
	n := len(children)
	if n == 0 {
		return
	}
	i = clampInt(i, 0, n-1)

	if extend {
		anchor := m.selection.Start
		if i >= anchor {
			m.selection = Selection{Start: anchor, Stop: i + 1, Step: 1}
		} else {
			m.selection = Selection{Start: anchor, Stop: i - 1, Step: -1}
		}
	} else {
		m.selection = Selection{Start: i, Stop: i + 1, Step: 1}
	}

	m.scrollTo(i)
	m.anchor = i

	if position != nil {
		m.scrollToCursor = true
	}
}

// scrollTo nudges anchorPosition so that index i (about to become the
// new anchor) lands fully in view: bottom-aligned when moving to a
// later cell than the current anchor, top-aligned when moving earlier.
// This is the viewport's generalization of the teacher's page-scroll
// helpers (ViewUp/ViewDown) to a "scroll to this specific item" jump.
func (m *Model) scrollTo(i int) {
	children := m.Children()
	if i == m.anchor {
		return
	}
	h := m.heightOf(children, i)
	if i > m.anchor {
		pos := m.height - h
		if pos < 0 {
			pos = 0
		}
		m.anchorPosition = pos
	} else {
		m.anchorPosition = 0
	}
}

// MoveBy moves the selection anchor by delta cells (±1 for arrow keys,
// ±5 for the spec's larger jump), clamped to the valid range.
func (m *Model) MoveBy(delta int, extend bool) {
	m.mu.Lock()
	n := len(m.Children())
	m.mu.Unlock()
	if n == 0 {
		return
	}
	target := clampInt(m.anchor+delta, 0, n-1)
	m.Select(target, extend, nil)
}

// Home selects the first cell.
func (m *Model) Home(extend bool) { m.Select(0, extend, nil) }

// End selects the last cell.
func (m *Model) End(extend bool) {
	m.mu.Lock()
	n := len(m.Children())
	m.mu.Unlock()
	if n == 0 {
		return
	}
	m.Select(n-1, extend, nil)
}

// PageDown/PageUp jump the selection by one viewport height's worth of
// cells: jumpByRows walks from the anchor, subtracting each cell's
// measured height until the viewport's row count is used up.
func (m *Model) PageDown(extend bool) { m.jumpByRows(m.height, extend) }
func (m *Model) PageUp(extend bool)   { m.jumpByRows(-m.height, extend) }

func (m *Model) jumpByRows(rows int, extend bool) {
	m.mu.Lock()
	children := m.Children()
	n := len(children)
	anchor := m.anchor
	m.ensureCaches(m.width)

	remaining := rows
	i := anchor
	if rows > 0 {
		for i < n-1 && remaining > 0 {
			remaining -= m.heightOf(children, i)
			i++
		}
	} else {
		for i > 0 && remaining < 0 {
			remaining += m.heightOf(children, i)
			i--
		}
	}
	m.mu.Unlock()

	if n == 0 {
		return
	}
	m.Select(i, extend, nil)
}

// ClickCell handles a mouse click on cell i: selects it, extending the
// existing selection when shift/ctrl is held.
func (m *Model) ClickCell(i int, extend bool) {
	m.Select(i, extend, nil)
}

// WheelScroll moves the viewport by dy rows without touching the
// selection, per spec §4.6's "mouse wheel scrolls ... without changing
// the selection" rule.
func (m *Model) WheelScroll(dy int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.anchorPosition -= dy
}

// HandleKey applies the viewport's default key bindings, returning
// false when the key was not one of them (the caller should then decide
// whether edit mode routes it to the selected cell's editor instead).
func (m *Model) HandleKey(key string, extend bool) bool {
	switch key {
	case "up", "k":
		m.MoveBy(-1, extend)
	case "down", "j":
		m.MoveBy(1, extend)
	case "shift+up":
		m.MoveBy(-1, true)
	case "shift+down":
		m.MoveBy(1, true)
	case "pgup":
		m.PageUp(extend)
	case "pgdown":
		m.PageDown(extend)
	case "home":
		m.Home(extend)
	case "end":
		m.End(extend)
	default:
		return false
	}
	return true
}
