// Package graphics implements the Graphics Manager (spec §4.2): a
// registry of out-of-band terminal graphic objects, drawn/hidden/deleted
// by writing protocol-specific escape sequences directly to the terminal
// output stream after each frame (never inside the cell compositor).
package graphics

import (
	"bytes"
	"fmt"
	"os"
	"sync"

	"github.com/charmbracelet/log"
	"github.com/dustin/go-humanize"
)

// Protocol is implemented by each terminal graphics backend (§4.2's three
// variants).
type Protocol interface {
	// Transmit prepares g for drawing, returning bytes to write once
	// before its first draw (e.g. kitty's "a=t" transmission). Protocols
	// that re-encode on every draw (sixel) return nil here.
	Transmit(g *Graphic) ([]byte, error)
	// Draw returns the bytes that place g on screen at its current
	// position/size.
	Draw(g *Graphic) ([]byte, error)
	// Hide returns the bytes that remove g from the screen without
	// forgetting it.
	Hide(g *Graphic) []byte
	// Delete returns the bytes that permanently forget g on the terminal
	// side.
	Delete(g *Graphic) []byte
}

// VisibleFunc reports whether a Graphic should currently be on screen; the
// viewport supplies one bound to a cell's presence in the drawing set.
type VisibleFunc func() bool

// Graphic is a single terminal-side image (spec §3).
type Graphic struct {
	ID       int
	Data     []byte
	Format   string // "png" | "jpeg"
	BGColor  string

	visible VisibleFunc
	wasShown bool

	XPos, YPos             int
	WidthCells, HeightCells int

	redraw bool // position/size changed, or just became visible
	transmitted bool
	protoID     string // protocol-assigned image id (e.g. kitty's transmitted id)
}

// Visible reports the graphic's current visibility per its filter.
func (g *Graphic) Visible() bool {
	if g.visible == nil {
		return false
	}
	return g.visible()
}

// SetPosition updates the anchor cell and size, flagging a redraw if
// anything actually changed, per the "moves/resizes fire redraw" invariant.
func (g *Graphic) SetPosition(x, y, w, h int) {
	if x != g.XPos || y != g.YPos || w != g.WidthCells || h != g.HeightCells {
		g.XPos, g.YPos, g.WidthCells, g.HeightCells = x, y, w, h
		g.redraw = true
	}
}

// Manager owns the set of registered graphics and emits the minimal
// draw/hide/delete command set once per frame.
type Manager struct {
	mu       sync.Mutex
	protocol Protocol
	graphics map[int]*Graphic
	nextID   int
	log      *log.Logger
}

// New creates a Manager that draws with the given protocol
// implementation (SixelProtocol, KittyProtocol or ITermProtocol).
func New(protocol Protocol, logger *log.Logger) *Manager {
	if logger == nil {
		logger = log.New(os.Stderr)
	}
	return &Manager{
		protocol: protocol,
		graphics: map[int]*Graphic{},
		log:      logger,
	}
}

// Add registers a new graphic, starting hidden, and assigns it a dense
// integer id.
func (m *Manager) Add(data []byte, format string, visible VisibleFunc, bg string) *Graphic {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextID++
	g := &Graphic{
		ID:      m.nextID,
		Data:    data,
		Format:  format,
		BGColor: bg,
		visible: visible,
	}
	m.graphics[g.ID] = g
	m.log.Debug("graphic registered", "id", g.ID, "bytes", humanize.Bytes(uint64(len(data))))
	return g
}

// Remove issues the protocol-specific delete command and forgets g.
func (m *Manager) Remove(id int) []byte {
	m.mu.Lock()
	defer m.mu.Unlock()
	g, ok := m.graphics[id]
	if !ok {
		return nil
	}
	delete(m.graphics, id)
	if !g.transmitted {
		return nil
	}
	return m.protocol.Delete(g)
}

// BeforeRender hides any graphic whose visibility filter is now false,
// per the "graphics hidden invariant" testable property, returning the
// concatenated hide bytes to write.
func (m *Manager) BeforeRender() []byte {
	m.mu.Lock()
	defer m.mu.Unlock()
	var buf bytes.Buffer
	for _, g := range m.graphics {
		if !g.Visible() && g.wasShown {
			buf.Write(m.protocol.Hide(g))
			g.wasShown = false
			m.log.Debug("graphic hidden", "id", g.ID)
		}
	}
	return buf.Bytes()
}

// AfterRender draws every visible graphic flagged for redraw, wrapping
// each draw in cursor save/goto/restore, per spec §4.2's after_render
// contract. It emits at most one draw per graphic per frame.
func (m *Manager) AfterRender() []byte {
	m.mu.Lock()
	defer m.mu.Unlock()
	var buf bytes.Buffer
	for _, g := range m.graphics {
		if !g.Visible() {
			continue
		}
		justShown := !g.wasShown
		if !g.redraw && !justShown {
			continue
		}
		if !g.transmitted {
			if b, err := m.protocol.Transmit(g); err == nil {
				buf.Write(b)
				g.transmitted = true
			} else {
				m.log.Warn("graphic transmit failed", "id", g.ID, "err", err)
				continue
			}
		}
		drawBytes, err := m.protocol.Draw(g)
		if err != nil {
			m.log.Warn("graphic draw failed", "id", g.ID, "err", err)
			continue
		}
		buf.WriteString("\x1b7")                                      // save cursor
		fmt.Fprintf(&buf, "\x1b[%d;%dH", g.YPos+1, g.XPos+1)           // goto anchor
		buf.Write(drawBytes)
		buf.WriteString("\x1b8")     // restore cursor position
		buf.WriteString("\x1b[?25l") // cursor visibility is restored by the
		// compositor's own last-rendered state; hiding it here is the safe
		// default until the next frame's cursor command runs.
		g.redraw = false
		g.wasShown = true
		m.log.Debug("graphic drawn", "id", g.ID, "x", g.XPos, "y", g.YPos)
	}
	return buf.Bytes()
}

// Graphics returns the live set, for tests and diagnostics.
func (m *Manager) Graphics() []*Graphic {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*Graphic, 0, len(m.graphics))
	for _, g := range m.graphics {
		out = append(out, g)
	}
	return out
}
