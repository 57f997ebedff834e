// Package stabilize turns the noisy, oscillating sequence of interim
// translations for one user into a non-shrinking "confident prefix" suitable
// for a peripheral display.
//
// The core machinery is a rolling word-detail buffer (WordStability): every
// interim is tokenized, each token is fuzzily matched against details seen in
// earlier interims, and a per-token confidence grows with repeat sightings at
// a consistent position. Tokens that vanish from interims decay rather than
// being dropped outright, so a recognizer that briefly swallows a word does
// not destabilize the caption.
//
// Six scoring heuristics share that machinery; a seventh (None) passes text
// through untouched. The confident prefix is strictly left-anchored: the scan
// stops at the first token under the acceptance threshold, never skipping an
// unstable token to accept a later one. A prefix with fewer tokens than the
// previously emitted one is replaced by the previous prefix, so the caption
// never shrinks between finals.
package stabilize

import (
	"time"

	"github.com/lenslate/lenslate/pkg/types"
)

// DefaultThreshold is the per-token acceptance threshold.
const DefaultThreshold = 0.4

// historyCap bounds the rolling transcript history.
const historyCap = 20

// Option is a functional option for configuring a [Stabilizer].
type Option func(*Stabilizer)

// WithHeuristic selects the scoring heuristic. Default: WordStability.
func WithHeuristic(h types.Heuristic) Option {
	return func(s *Stabilizer) {
		s.heuristic = h
	}
}

// WithCJK switches tokenization to per-character units for
// character-tokenized target scripts.
func WithCJK(cjk bool) Option {
	return func(s *Stabilizer) {
		s.cjk = cjk
	}
}

// WithThreshold overrides the per-token acceptance threshold.
// Default: [DefaultThreshold].
func WithThreshold(threshold float64) Option {
	return func(s *Stabilizer) {
		s.threshold = threshold
	}
}

// WithClock injects a time source for tests.
func WithClock(now func() time.Time) Option {
	return func(s *Stabilizer) {
		s.now = now
	}
}

// Stabilizer converts one user's interim stream into a non-shrinking
// confident prefix. It is a single-owner object: the session worker that
// owns the user's state is the only caller, so no locking is needed.
type Stabilizer struct {
	heuristic types.Heuristic
	cjk       bool
	threshold float64
	now       func() time.Time

	tracker tracker

	// history holds the most recent interim texts, newest last.
	history []string

	prevText   string
	prevTokens []token

	lastInterimLength int

	// lastPrefix remembers the previously emitted confident prefix for the
	// non-shrinking guarantee. Reset on finals and language changes.
	lastPrefix       string
	lastPrefixTokens int
}

// New creates a Stabilizer with the given options.
func New(opts ...Option) *Stabilizer {
	s := &Stabilizer{
		heuristic: types.HeuristicWordStability,
		threshold: DefaultThreshold,
		now:       time.Now,
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Stabilize processes one interim text and returns the confident prefix to
// display. The returned prefix never has fewer tokens than the previous
// return value; [Reset] clears that memory.
//
// An empty input returns the remembered prefix unchanged (an empty interim
// carries no evidence that earlier words were wrong).
func (s *Stabilizer) Stabilize(text string) string {
	if s.heuristic == types.HeuristicNone {
		return text
	}

	cur := tokenize(text, s.cjk)
	if len(cur) == 0 {
		return s.lastPrefix
	}

	now := s.now()
	s.tracker.observe(cur, now)

	scalar := s.score(cur, text)

	accepted := 0
	for i, tok := range cur {
		if s.tokenConfidence(tok, i, scalar) < s.threshold {
			break
		}
		accepted++
	}
	prefix := joinTokens(cur[:accepted], s.cjk)

	s.recordInterim(text, cur)

	// Non-shrinking guarantee: a shorter prefix re-emits the previous one.
	if accepted < s.lastPrefixTokens {
		return s.lastPrefix
	}
	s.lastPrefix = prefix
	s.lastPrefixTokens = accepted
	return prefix
}

// tokenConfidence computes the acceptance confidence for one token.
// WordStability uses the detail-buffer confidence directly; the other
// heuristics blend their interim-level scalar with a read-only lookup into
// the same buffer, so a token must be both individually re-sighted and part
// of a settled interim to pass.
func (s *Stabilizer) tokenConfidence(tok token, pos int, scalar float64) float64 {
	dc := s.tracker.lookup(tok, pos)
	if s.heuristic == types.HeuristicWordStability {
		return dc
	}
	return 0.5*dc + 0.5*scalar
}

// recordInterim pushes the interim into the rolling history and the
// previous-interim slots used by the comparative heuristics.
func (s *Stabilizer) recordInterim(text string, tokens []token) {
	s.history = append(s.history, text)
	if len(s.history) > historyCap {
		s.history = s.history[len(s.history)-historyCap:]
	}
	s.prevText = text
	s.prevTokens = tokens
	s.lastInterimLength = len(tokens)
}

// Reset clears all interim tracking: the word-detail buffer, the transcript
// history, and the non-shrinking prefix memory. Call on every final event
// and on any change of source or target language.
func (s *Stabilizer) Reset() {
	s.tracker.reset()
	s.history = nil
	s.prevText = ""
	s.prevTokens = nil
	s.lastInterimLength = 0
	s.lastPrefix = ""
	s.lastPrefixTokens = 0
}
