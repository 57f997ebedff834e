// Package mock provides a recording glasses sink for tests.
package mock

import (
	"context"
	"sync"

	"github.com/lenslate/lenslate/pkg/glasses"
)

// Write records a single ShowTextWall call.
type Write struct {
	UserID string
	Text   string
	Opts   glasses.TextWallOptions
}

// Sink implements [glasses.Sink] by recording every write.
type Sink struct {
	mu     sync.Mutex
	writes []Write

	// Err, when non-nil, is returned from every call.
	Err error
}

// ShowTextWall records the call and returns Sink.Err.
func (s *Sink) ShowTextWall(_ context.Context, userID, text string, opts glasses.TextWallOptions) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.writes = append(s.writes, Write{UserID: userID, Text: text, Opts: opts})
	return s.Err
}

// Writes returns a copy of all recorded writes.
func (s *Sink) Writes() []Write {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Write, len(s.writes))
	copy(out, s.writes)
	return out
}

// LastText returns the most recently written text, or "" when nothing was
// written.
func (s *Sink) LastText() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.writes) == 0 {
		return ""
	}
	return s.writes[len(s.writes)-1].Text
}
