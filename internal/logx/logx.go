// Package logx is the logging seam shared by every decoder and pipeline stage. Each
// package derives a component-tagged logger from a shared default that discards output, so
// importing the library never prints unless the caller opts in with Enable.
package logx

import (
	"io"

	"github.com/charmbracelet/log"
)

// Default discards output so importing this module never prints without being asked to.
var Default = log.NewWithOptions(io.Discard, log.Options{ReportTimestamp: false})

// New returns a component-tagged logger derived from Default, or from base if given.
func New(component string, base *log.Logger) *log.Logger {
	if base == nil {
		base = Default
	}
	return base.With("component", component)
}

// Enable points Default at w and sets the minimum reported level, for callers that want to
// see decoder diagnostics.
func Enable(w io.Writer, level log.Level) {
	Default = log.NewWithOptions(w, log.Options{ReportTimestamp: true})
	Default.SetLevel(level)
}
