package stabilize

import (
	"time"

	"github.com/antzucaro/matchr"

	"github.com/lenslate/lenslate/pkg/types"
)

// Heuristic scalar scores. Each returns a value in [0, 1] describing how
// settled the current interim looks as a whole. The scalar blends with the
// per-token WordStability lookup during prefix extraction; see
// Stabilizer.tokenConfidence.

// prefixRetentionScore is the token-level longest-common-prefix with the
// previous interim, normalized by the current length.
func prefixRetentionScore(cur, prev []token) float64 {
	if len(cur) == 0 {
		return 0
	}
	return float64(commonTokenPrefix(cur, prev)) / float64(len(cur))
}

// commonTokenPrefix counts leading tokens whose normalized forms agree.
func commonTokenPrefix(cur, prev []token) int {
	n := 0
	for n < len(cur) && n < len(prev) && cur[n].Normalized == prev[n].Normalized {
		n++
	}
	return n
}

// editDistanceScore is 1 − levenshtein(cur, prev)/max(len, 1) over the raw
// interim strings. A first interim (empty prev) scores 0.
func editDistanceScore(cur, prev string) float64 {
	longest := len([]rune(cur))
	if l := len([]rune(prev)); l > longest {
		longest = l
	}
	if longest == 0 {
		return 0
	}
	dist := matchr.Levenshtein(cur, prev)
	score := 1 - float64(dist)/float64(longest)
	if score < 0 {
		return 0
	}
	return score
}

// wordDurationScore is the average on-screen age of the current tokens
// weighted by their stability, where an age of one second or more counts as
// fully settled.
func wordDurationScore(t *tracker, tokens []token) float64 {
	var weightedSum, totalWeight float64
	for i, tok := range tokens {
		age, weight, ok := t.duration(tok, i)
		if !ok || weight <= 0 {
			continue
		}
		frac := float64(age) / float64(time.Second)
		if frac > 1 {
			frac = 1
		}
		weightedSum += frac * weight
		totalWeight += weight
	}
	if totalWeight == 0 {
		return 0
	}
	return weightedSum / totalWeight
}

// trailingWordDecayScore is the mean of (i+1)/n across token positions — a
// monotonically increasing positional weight.
func trailingWordDecayScore(n int) float64 {
	if n == 0 {
		return 0
	}
	var sum float64
	for i := 0; i < n; i++ {
		sum += float64(i+1) / float64(n)
	}
	return sum / float64(n)
}

// hybrid component weights.
const (
	hybridWordStability = 0.4
	hybridPrefix        = 0.3
	hybridEditDistance  = 0.2
	hybridTrailingDecay = 0.1
)

// score computes the selected heuristic's scalar for the current interim.
// WordStability and None have no scalar of their own (per-token confidence
// carries the whole signal) and return 1.
func (s *Stabilizer) score(cur []token, curText string) float64 {
	switch s.heuristic {
	case types.HeuristicPrefixRetention:
		return prefixRetentionScore(cur, s.prevTokens)
	case types.HeuristicEditDistance:
		return editDistanceScore(curText, s.prevText)
	case types.HeuristicWordDuration:
		return wordDurationScore(&s.tracker, cur)
	case types.HeuristicTrailingWordDecay:
		return trailingWordDecayScore(len(cur))
	case types.HeuristicHybrid:
		h := hybridWordStability*s.tracker.meanConfidence(cur) +
			hybridPrefix*prefixRetentionScore(cur, s.prevTokens) +
			hybridEditDistance*editDistanceScore(curText, s.prevText) +
			hybridTrailingDecay*trailingWordDecayScore(len(cur))
		if h > 1 {
			return 1
		}
		if h < 0 {
			return 0
		}
		return h
	default:
		return 1
	}
}
