// Package termquery implements the Terminal Query Layer (spec §4.1): a
// batch of capability probes written to the terminal once, with responses
// correlated by escape-sequence shape rather than by request id (the
// terminal gives us no such id), cached for the session, and defaulted
// when no reply arrives before the next render tick.
package termquery

import (
	"bytes"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/lucasb-eyer/go-colorful"
)

// Capabilities holds the cached result of every query, defaulted per
// spec §4.1's table until (if ever) a real reply arrives. It is a plain
// value type; Terminal guards the live copy with its own mutex so
// Capabilities itself stays safe to copy out as a snapshot.
type Capabilities struct {
	Foreground colorful.Color
	Background colorful.Color
	PixelCols  int
	PixelRows  int
	Sixel      bool
	Kitty      bool
	ITerm      bool

	resolved map[string]bool
}

func defaults() Capabilities {
	fg, _ := colorful.Hex("#FFFFFF")
	bg, _ := colorful.Hex("#000000")
	return Capabilities{
		Foreground: fg,
		Background: bg,
		resolved:   map[string]bool{},
	}
}

// Query identifies a single probe: the command string to write, a
// predicate that recognizes a candidate response as belonging to this
// query, and whether the result should be cached across calls.
type Query struct {
	Name       string
	Command    string
	Recognize  func(tok token) bool
	Apply      func(*Capabilities, token)
	Cacheable  bool
}

// Terminal batches and dispatches the queries of spec §4.1 against a
// terminal, reading replies via Feed and blocking a caller no longer
// than a given timeout: WaitFor returns the best-known Capabilities
// snapshot, defaulted for anything that hasn't resolved by the deadline.
type Terminal struct {
	log       *log.Logger
	multiplex bool // wrap queries for tmux passthrough

	mu   sync.RWMutex
	caps Capabilities
}

// New creates a Terminal query layer. BatchBytes returns the full batch
// of query command bytes; the caller is responsible for delivering it
// to the real terminal (ownership of the terminal output stream stays
// with the UI thread per the concurrency model — this package never opens
// a file descriptor itself).
func New(logger *log.Logger) *Terminal {
	if logger == nil {
		logger = log.New(os.Stderr)
	}
	caps := defaults()
	caps.ITerm = detectITerm()
	return &Terminal{
		log:       logger,
		multiplex: detectMultiplexer(),
		caps:      caps,
	}
}

func detectMultiplexer() bool {
	return os.Getenv("TMUX") != ""
}

// detectITerm reports whether the controlling terminal identifies itself
// as iTerm2 or WezTerm via $TERM_PROGRAM, per spec §4.1's table entry:
// unlike sixel/kitty this capability has no query/response round trip,
// it is environment detection only.
func detectITerm() bool {
	switch os.Getenv("TERM_PROGRAM") {
	case "iTerm.app", "WezTerm":
		return true
	default:
		return false
	}
}

// Queries is the fixed probe set from spec §4.1's table.
func Queries() []Query {
	return []Query{
		{
			Name:    "fg",
			Command: "\x1b]11;?\x1b\\",
			Recognize: func(t token) bool {
				return t.kind == tokOSC && strings.HasPrefix(t.body, "10;rgb:")
			},
			Apply: func(c *Capabilities, t token) {
				if col, ok := parseRGBReply(strings.TrimPrefix(t.body, "10;rgb:")); ok {
					c.Foreground = col
				}
			},
			Cacheable: true,
		},
		{
			Name:    "bg",
			Command: "\x1b]10;?\x1b\\",
			Recognize: func(t token) bool {
				return t.kind == tokOSC && strings.HasPrefix(t.body, "11;rgb:")
			},
			Apply: func(c *Capabilities, t token) {
				if col, ok := parseRGBReply(strings.TrimPrefix(t.body, "11;rgb:")); ok {
					c.Background = col
				}
			},
			Cacheable: true,
		},
		{
			Name:    "pixels",
			Command: "\x1b[14t",
			Recognize: func(t token) bool {
				return t.kind == tokCSI && strings.HasSuffix(t.body, "t") && strings.HasPrefix(t.body, "4;")
			},
			Apply: func(c *Capabilities, t token) {
				parts := strings.Split(strings.TrimSuffix(t.body, "t"), ";")
				if len(parts) == 3 {
					h, _ := strconv.Atoi(parts[1])
					w, _ := strconv.Atoi(parts[2])
					c.PixelRows, c.PixelCols = h, w
				}
			},
			Cacheable: true,
		},
		{
			Name:    "sixel",
			Command: "\x1b[c",
			Recognize: func(t token) bool {
				return t.kind == tokCSI && strings.HasSuffix(t.body, "c") && strings.HasPrefix(t.body, "?")
			},
			Apply: func(c *Capabilities, t token) {
				for _, p := range strings.Split(strings.TrimSuffix(strings.TrimPrefix(t.body, "?"), "c"), ";") {
					if p == "4" {
						c.Sixel = true
					}
				}
			},
			Cacheable: true,
		},
		{
			Name:    "kitty",
			Command: "\x1b_Gi=4294967295,s=1,v=1,a=q,t=d,f=24;AAAA\x1b\\",
			Recognize: func(t token) bool {
				return t.kind == tokAPC && strings.Contains(t.body, "i=4294967295;OK")
			},
			Apply: func(c *Capabilities, t token) {
				c.Kitty = true
			},
			Cacheable: true,
		},
	}
}

func parseRGBReply(body string) (colorful.Color, bool) {
	parts := strings.Split(body, "/")
	if len(parts) != 3 {
		return colorful.Color{}, false
	}
	conv := func(s string) float64 {
		v, err := strconv.ParseUint(s, 16, 32)
		if err != nil {
			return 0
		}
		max := float64(uint64(1)<<(4*len(s))) - 1
		return float64(v) / max
	}
	return colorful.Color{R: conv(parts[0]), G: conv(parts[1]), B: conv(parts[2])}, true
}

// BatchBytes concatenates every query's command string in the fixed order
// of Queries(), wrapping the whole burst in a tmux passthrough envelope
// when running inside a multiplexer.
func (t *Terminal) BatchBytes() []byte {
	var buf bytes.Buffer
	for _, q := range Queries() {
		buf.WriteString(q.Command)
	}
	if !t.multiplex {
		return buf.Bytes()
	}
	return wrapTmux(buf.Bytes())
}

// Feed parses as many complete query responses out of data as it can find
// and applies them to the cached Capabilities. Bytes that are not a
// recognized reply (plain input, unknown escapes) are scanned past and
// counted in the returned total; Feed does not hand them back. Only an
// incomplete sequence at the end of data is left out of the total.
func (t *Terminal) Feed(data []byte) (consumed int) {
	queries := Queries()
	rest := data
	total := 0
	for len(rest) > 0 {
		tok, n := scanToken(rest)
		if n == 0 {
			break
		}
		if tok.kind != tokNone {
			for _, q := range queries {
				if q.Recognize(tok) {
					t.mu.Lock()
					q.Apply(&t.caps, tok)
					t.caps.resolved[q.Name] = true
					t.mu.Unlock()
					t.log.Debug("terminal query resolved", "query", q.Name)
					break
				}
			}
		}
		rest = rest[n:]
		total += n
	}
	return total
}

// Snapshot returns the current best-known capabilities. WaitFor blocks (up
// to timeout) polling read for new bytes to feed before returning a
// snapshot; callers (the UI render loop) never block beyond this bound,
// per the "callers never block" failure model.
func (t *Terminal) Snapshot() Capabilities {
	t.mu.RLock()
	defer t.mu.RUnlock()
	cp := t.caps
	resolved := make(map[string]bool, len(t.caps.resolved))
	for k, v := range t.caps.resolved {
		resolved[k] = v
	}
	cp.resolved = resolved
	return cp
}

// WaitFor polls read for incoming bytes until every cacheable query has
// resolved or timeout elapses, returning the resulting snapshot. read
// should be a non-blocking or short-timeout read of the terminal's input;
// passing a read that always returns nil simply waits out the full
// timeout and returns defaults.
func (t *Terminal) WaitFor(timeout time.Duration, read func() []byte) Capabilities {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if b := read(); len(b) > 0 {
			t.Feed(b)
		}
		if t.allCacheableResolved() {
			break
		}
		time.Sleep(time.Millisecond)
	}
	return t.Snapshot()
}

func (t *Terminal) allCacheableResolved() bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	for _, q := range Queries() {
		if q.Cacheable && !t.caps.resolved[q.Name] {
			return false
		}
	}
	return true
}
