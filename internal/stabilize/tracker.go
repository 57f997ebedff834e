package stabilize

import (
	"math"
	"time"
)

const (
	// createStableCount is the stability assigned to a freshly observed
	// token: a per-token confidence of 0.2 before any repeat sightings.
	createStableCount = 0.6

	// matchIncrement is added to a detail's stability on every re-sighting.
	matchIncrement = 0.5

	// similarityGate is the word-similarity a candidate must exceed to be
	// treated as a re-sighting of an existing detail. A score of exactly
	// the gate (e.g. "quik" vs "quick") starts a fresh detail instead.
	similarityGate = 0.8

	// decayGrace is how long a token may be absent from interims before
	// its stability starts decaying.
	decayGrace = 2 * time.Second

	// decayWindow is the span over which an absent token's stability
	// ramps down to the decay floor.
	decayWindow = 5 * time.Second

	// decayFloor is the minimum decay multiplier.
	decayFloor = 0.1

	// discardBelow drops details whose stability decayed under this value.
	discardBelow = 0.5

	// positionHistoryCap bounds the per-detail position history.
	positionHistoryCap = 5

	// stableForFull is the stability at which per-token confidence
	// saturates at 1.0.
	stableForFull = 3.0
)

// wordDetail tracks one observed token across successive interims.
type wordDetail struct {
	word            string
	normalized      string
	stableCount     float64
	firstSeen       time.Time
	lastSeen        time.Time
	bestPosition    int
	positionHistory []int
}

// confidence is the per-token WordStability confidence:
// min(1, stableCount/3) · positionConsistency.
func (d *wordDetail) confidence() float64 {
	base := d.stableCount / stableForFull
	if base > 1 {
		base = 1
	}
	return base * d.positionConsistency()
}

// positionConsistency is max(0, 1 − stdDev(positionHistory)/2). A token that
// keeps appearing at the same position scores 1; one that jumps around
// scores lower.
func (d *wordDetail) positionConsistency() float64 {
	n := len(d.positionHistory)
	if n < 2 {
		return 1
	}
	var sum float64
	for _, p := range d.positionHistory {
		sum += float64(p)
	}
	mean := sum / float64(n)
	var variance float64
	for _, p := range d.positionHistory {
		dev := float64(p) - mean
		variance += dev * dev
	}
	variance /= float64(n)
	c := 1 - math.Sqrt(variance)/2
	if c < 0 {
		return 0
	}
	return c
}

// tracker is the WordStability machinery: the rolling word-detail buffer
// shared by all heuristics (read-only for the non-WordStability modes).
type tracker struct {
	details []*wordDetail
}

// observe updates the buffer for one interim: every current token is matched
// against the best prior detail or creates a fresh one, then absent details
// decay and decayed-out details are discarded.
func (t *tracker) observe(tokens []token, now time.Time) {
	seen := make(map[*wordDetail]bool, len(tokens))

	for i, tok := range tokens {
		d := t.bestMatch(tok, i, seen)
		if d == nil {
			d = &wordDetail{
				word:            tok.Text,
				normalized:      tok.Normalized,
				stableCount:     createStableCount,
				firstSeen:       now,
				bestPosition:    i,
				positionHistory: []int{i},
			}
			d.lastSeen = now
			t.details = append(t.details, d)
			seen[d] = true
			continue
		}

		d.stableCount += matchIncrement
		d.word = tok.Text
		d.normalized = tok.Normalized
		d.lastSeen = now
		d.bestPosition = i
		d.positionHistory = append(d.positionHistory, i)
		if len(d.positionHistory) > positionHistoryCap {
			d.positionHistory = d.positionHistory[len(d.positionHistory)-positionHistoryCap:]
		}
		seen[d] = true
	}

	t.decayAbsent(seen, now)
}

// bestMatch finds the unclaimed detail with the highest combined score
// 0.7·word-similarity + 0.3·position-proximity, provided the word similarity
// exceeds the gate.
func (t *tracker) bestMatch(tok token, pos int, claimed map[*wordDetail]bool) *wordDetail {
	var best *wordDetail
	var bestScore float64

	for _, d := range t.details {
		if claimed[d] {
			continue
		}
		sim := wordSimilarity(tok.Normalized, d.normalized)
		if sim <= similarityGate {
			continue
		}
		score := 0.7*sim + 0.3*positionProximity(pos, d.bestPosition)
		if best == nil || score > bestScore {
			best = d
			bestScore = score
		}
	}
	return best
}

// lookup returns the per-token confidence for a token at the given position
// without mutating the buffer. Unknown tokens score 0.
func (t *tracker) lookup(tok token, pos int) float64 {
	var best *wordDetail
	var bestScore float64
	for _, d := range t.details {
		sim := wordSimilarity(tok.Normalized, d.normalized)
		if sim <= similarityGate {
			continue
		}
		score := 0.7*sim + 0.3*positionProximity(pos, d.bestPosition)
		if best == nil || score > bestScore {
			best = d
			bestScore = score
		}
	}
	if best == nil {
		return 0
	}
	return best.confidence()
}

// duration returns (lastSeen − firstSeen) and the stability for the best
// matching detail, for the word-duration heuristic. ok is false for tokens
// with no matching detail.
func (t *tracker) duration(tok token, pos int) (age time.Duration, weight float64, ok bool) {
	var best *wordDetail
	var bestScore float64
	for _, d := range t.details {
		sim := wordSimilarity(tok.Normalized, d.normalized)
		if sim <= similarityGate {
			continue
		}
		score := 0.7*sim + 0.3*positionProximity(pos, d.bestPosition)
		if best == nil || score > bestScore {
			best = d
			bestScore = score
		}
	}
	if best == nil {
		return 0, 0, false
	}
	return best.lastSeen.Sub(best.firstSeen), best.stableCount, true
}

// decayAbsent ramps down the stability of details not present in the current
// interim. Absence under the grace period is free; past it the stability is
// scaled by max(floor, 1 − (age−grace)/window). Details decayed below the
// discard threshold are dropped.
func (t *tracker) decayAbsent(seen map[*wordDetail]bool, now time.Time) {
	kept := t.details[:0]
	for _, d := range t.details {
		if seen[d] {
			kept = append(kept, d)
			continue
		}
		age := now.Sub(d.lastSeen)
		if age > decayGrace {
			factor := 1 - float64(age-decayGrace)/float64(decayWindow)
			if factor < decayFloor {
				factor = decayFloor
			}
			d.stableCount *= factor
		}
		if d.stableCount < discardBelow {
			continue
		}
		kept = append(kept, d)
	}
	// Zero the tail so dropped details do not pin memory.
	for i := len(kept); i < len(t.details); i++ {
		t.details[i] = nil
	}
	t.details = kept
}

// reset discards the whole buffer.
func (t *tracker) reset() {
	t.details = nil
}

// meanConfidence is the average per-token confidence across tokens, used as
// the WordStability component of the hybrid score.
func (t *tracker) meanConfidence(tokens []token) float64 {
	if len(tokens) == 0 {
		return 0
	}
	var sum float64
	for i, tok := range tokens {
		sum += t.lookup(tok, i)
	}
	return sum / float64(len(tokens))
}

// positionProximity scores how close two positions are, 1 at equality
// falling linearly to 0 at ten positions apart.
func positionProximity(a, b int) float64 {
	d := a - b
	if d < 0 {
		d = -d
	}
	p := 1 - float64(d)/10
	if p < 0 {
		return 0
	}
	return p
}
