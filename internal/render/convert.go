package render

import "github.com/lucasb-eyer/go-colorful"

// Converter is the external format-conversion registry (spec §6),
// consumed here and never implemented: `convert(data, from, to, cols,
// rows, fg, bg) → data` plus route discovery.
type Converter interface {
	Convert(data []byte, from, to string, cols, rows int, fg, bg colorful.Color) ([]byte, error)
	FindRoute(from, to string) ([]string, bool)
}

// Sink is the rendering target a representation must ultimately reach.
type Sink int

const (
	SinkANSI Sink = iota
	SinkGraphic
)

func sinkMime(s Sink) string {
	if s == SinkGraphic {
		return "image/png"
	}
	return "text/ansi"
}
