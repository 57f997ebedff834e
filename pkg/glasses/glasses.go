// Package glasses defines the display-sink contract for the heads-up
// display. The sink is a single-writer, idempotent surface: showing text
// replaces whatever was shown before, and an empty string clears it.
package glasses

import "context"

// TextWallOptions carries per-write display options.
type TextWallOptions struct {
	// DurationMs keeps the text up for the given time before the display
	// blanks itself. Zero means "display until superseded".
	DurationMs int
}

// Sink is the glasses display surface for all users. Implementations must
// be safe for concurrent use — session workers and debounce timers write
// from different goroutines.
type Sink interface {
	// ShowTextWall renders text on the user's primary view. An empty text
	// clears the display.
	ShowTextWall(ctx context.Context, userID, text string, opts TextWallOptions) error
}
