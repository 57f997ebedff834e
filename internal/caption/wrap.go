package caption

import (
	"strings"

	"github.com/mattn/go-runewidth"
)

// wrapLines breaks text into lines of at most cols display cells. Words are
// kept whole when they fit; a word wider than a full line (and any unspaced
// CJK run, which arrives as one "word") is broken at cell boundaries. CJK
// characters occupy two cells, which is the width adjustment the glasses
// renderer expects.
func wrapLines(text string, cols int) []string {
	if cols <= 0 {
		cols = 1
	}
	words := strings.Fields(text)
	if len(words) == 0 {
		return nil
	}

	var lines []string
	var cur strings.Builder
	curWidth := 0

	flush := func() {
		if cur.Len() > 0 {
			lines = append(lines, cur.String())
			cur.Reset()
			curWidth = 0
		}
	}

	for _, word := range words {
		w := runewidth.StringWidth(word)

		if w > cols {
			// Hard-break an overlong word at cell boundaries.
			flush()
			for _, part := range breakWord(word, cols) {
				pw := runewidth.StringWidth(part)
				if pw == cols {
					lines = append(lines, part)
				} else {
					cur.WriteString(part)
					curWidth = pw
				}
			}
			continue
		}

		sep := 0
		if curWidth > 0 {
			sep = 1
		}
		if curWidth+sep+w > cols {
			flush()
			sep = 0
		}
		if sep == 1 {
			cur.WriteByte(' ')
			curWidth++
		}
		cur.WriteString(word)
		curWidth += w
	}
	flush()
	return lines
}

// breakWord splits a single word into cell-bounded chunks. The final chunk
// may be narrower than cols.
func breakWord(word string, cols int) []string {
	var chunks []string
	var cur strings.Builder
	curWidth := 0
	for _, r := range word {
		rw := runewidth.RuneWidth(r)
		if rw == 0 {
			rw = 1
		}
		if curWidth+rw > cols {
			chunks = append(chunks, cur.String())
			cur.Reset()
			curWidth = 0
		}
		cur.WriteRune(r)
		curWidth += rw
	}
	if cur.Len() > 0 {
		chunks = append(chunks, cur.String())
	}
	return chunks
}
