// Package caption renders translation text into the fixed rectangle of the
// glasses display: a configurable number of lines, each a configurable
// number of display cells wide.
//
// The formatter keeps a bounded history of final captions. Each frame shows
// the most recent final lines from the top, followed by the wrapped current
// interim (when there is one); when the total exceeds the configured line
// count, the oldest lines scroll off the top.
package caption

import "strings"

// MaxFinalCaptions bounds the final-caption history. Oldest captions are
// ejected first.
const MaxFinalCaptions = 100

// Formatter composes display frames for a single user. It is a single-owner
// object used from the session worker; no locking.
type Formatter struct {
	cols    int
	lines   int
	history []finalCaption
}

// finalCaption stores one final both raw (for replay through a reconfigured
// formatter) and wrapped (for frame composition).
type finalCaption struct {
	raw     string
	wrapped []string
}

// New creates a Formatter producing frames of numberOfLines lines, each at
// most cols display cells wide.
func New(cols, numberOfLines int) *Formatter {
	if cols <= 0 {
		cols = 1
	}
	if numberOfLines <= 0 {
		numberOfLines = 1
	}
	return &Formatter{cols: cols, lines: numberOfLines}
}

// ProcessString renders one text into the current display frame.
//
// Finals are appended to the bounded history; interims are composed below
// the history without mutating it. The returned frame never exceeds the
// configured number of lines — older lines drop off the top.
func (f *Formatter) ProcessString(text string, isFinal bool) string {
	if isFinal {
		trimmed := strings.TrimSpace(text)
		if trimmed != "" {
			f.history = append(f.history, finalCaption{
				raw:     trimmed,
				wrapped: wrapLines(trimmed, f.cols),
			})
			if len(f.history) > MaxFinalCaptions {
				f.history = f.history[len(f.history)-MaxFinalCaptions:]
			}
		}
		return f.frame(nil)
	}
	return f.frame(wrapLines(text, f.cols))
}

// frame assembles final-history lines plus the given interim lines, keeping
// only the newest window.
func (f *Formatter) frame(interim []string) string {
	var all []string
	for _, fc := range f.history {
		all = append(all, fc.wrapped...)
	}
	all = append(all, interim...)

	if len(all) > f.lines {
		all = all[len(all)-f.lines:]
	}
	return strings.Join(all, "\n")
}

// Clear empties the final-caption history.
func (f *Formatter) Clear() {
	f.history = nil
}

// Finals returns the raw final captions in order, oldest first. Used to
// replay history through a formatter rebuilt with new dimensions.
func (f *Formatter) Finals() []string {
	out := make([]string, len(f.history))
	for i, fc := range f.history {
		out[i] = fc.raw
	}
	return out
}

// Resize rebuilds the formatter for new dimensions and replays the retained
// final history so wrapping adapts to the new width. Returns the new
// formatter; the receiver must not be used afterwards.
func (f *Formatter) Resize(cols, numberOfLines int) *Formatter {
	nf := New(cols, numberOfLines)
	for _, fc := range f.history {
		nf.ProcessString(fc.raw, true)
	}
	return nf
}
