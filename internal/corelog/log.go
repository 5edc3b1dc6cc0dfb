// Package corelog sets up structured, per-component loggers for the
// notebook core. There is no global logger: every component that wants to
// log is handed its own *log.Logger at construction time.
package corelog

import (
	"io"
	"os"

	"github.com/charmbracelet/log"
)

// New returns a logger prefixed with component, writing to w. Pass nil for
// w to default to os.Stderr, which keeps the terminal output stream (UI
// thread only, per the concurrency model) free of log noise.
func New(component string, w io.Writer) *log.Logger {
	if w == nil {
		w = os.Stderr
	}
	l := log.NewWithOptions(w, log.Options{
		Prefix:          component,
		ReportTimestamp: true,
	})
	l.SetLevel(log.InfoLevel)
	return l
}

// Discard returns a logger that throws away everything, for tests and for
// callers that have no interest in diagnostics.
func Discard() *log.Logger {
	l := log.New(io.Discard)
	return l
}
