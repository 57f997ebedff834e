// Package conversation maintains the per-user conversation log: an ordered,
// bounded sequence of translation entries that distinguishes "the same
// utterance being refined" from "a new utterance".
//
// Interims for the current utterance update a single entry in place; the
// final for that utterance promotes the same entry (same id) to final. A
// translation arriving with no open interim starts a new entry. The log is
// capped; on overflow the oldest entry is evicted.
package conversation

import (
	"fmt"
	"time"

	"github.com/lenslate/lenslate/pkg/types"
)

// MaxEntries bounds the log. Eviction is FIFO by insertion.
const MaxEntries = 500

// Entry is one conversation-log record as delivered to viewers.
type Entry struct {
	// ID is stable across updates of the same utterance and unique within
	// a user for the lifetime of a viewer connection.
	ID string `json:"id"`

	// Timestamp is epoch milliseconds of the latest update to this entry.
	Timestamp int64 `json:"timestamp"`

	OriginalText   string `json:"originalText"`
	TranslatedText string `json:"translatedText"`

	// OriginalLanguage and TranslatedLanguage are viewer-facing display
	// names (e.g. "English", "Chinese").
	OriginalLanguage   string `json:"originalLanguage"`
	TranslatedLanguage string `json:"translatedLanguage"`

	// IsFinal is monotone: once true it never returns to false for this ID.
	IsFinal bool `json:"isFinal"`

	// IsNewUtterance marks the promotion (or direct creation) of a final,
	// telling viewers the utterance is complete.
	IsNewUtterance bool `json:"isNewUtterance"`
}

// Log is a single-owner conversation log; the owning session worker is the
// only caller.
type Log struct {
	entries map[string]*Entry
	order   []string

	currentInterimID string
	counter          uint64

	pair types.LanguagePair

	now func() time.Time
}

// Option configures a [Log].
type Option func(*Log)

// WithClock injects a time source for tests.
func WithClock(now func() time.Time) Option {
	return func(l *Log) {
		l.now = now
	}
}

// New creates an empty Log.
func New(opts ...Option) *Log {
	l := &Log{
		entries: make(map[string]*Entry),
		now:     time.Now,
	}
	for _, o := range opts {
		o(l)
	}
	return l
}

// AddTranslation records one translation result and returns the created or
// updated entry (a copy), or nil when both texts are empty.
//
// Behaviour:
//   - interim while an interim entry is open → update that entry in place;
//   - final while an interim entry is open → promote it (same id);
//   - otherwise → create a new entry, which becomes the open interim when
//     the result is not final.
func (l *Log) AddTranslation(originalText, translatedText, originalLang, translatedLang string, isFinal bool) *Entry {
	if originalText == "" && translatedText == "" {
		return nil
	}

	nowMillis := l.now().UnixMilli()

	if l.currentInterimID != "" {
		e, ok := l.entries[l.currentInterimID]
		if !ok {
			// The open interim was evicted; fall through to creation.
			l.currentInterimID = ""
		} else {
			e.OriginalText = originalText
			e.TranslatedText = translatedText
			e.OriginalLanguage = originalLang
			e.TranslatedLanguage = translatedLang
			e.Timestamp = nowMillis
			if isFinal {
				e.IsFinal = true
				e.IsNewUtterance = true
				l.currentInterimID = ""
			}
			out := *e
			return &out
		}
	}

	l.counter++
	e := &Entry{
		ID:                 fmt.Sprintf("entry-%d", l.counter),
		Timestamp:          nowMillis,
		OriginalText:       originalText,
		TranslatedText:     translatedText,
		OriginalLanguage:   originalLang,
		TranslatedLanguage: translatedLang,
		IsFinal:            isFinal,
		IsNewUtterance:     isFinal,
	}
	l.entries[e.ID] = e
	l.order = append(l.order, e.ID)
	if !isFinal {
		l.currentInterimID = e.ID
	}

	if len(l.order) > MaxEntries {
		oldest := l.order[0]
		l.order = l.order[1:]
		delete(l.entries, oldest)
		if l.currentInterimID == oldest {
			l.currentInterimID = ""
		}
	}

	out := *e
	return &out
}

// Entries returns a copy of all entries in insertion order.
func (l *Log) Entries() []Entry {
	out := make([]Entry, 0, len(l.order))
	for _, id := range l.order {
		if e, ok := l.entries[id]; ok {
			out = append(out, *e)
		}
	}
	return out
}

// Len returns the number of entries currently retained.
func (l *Log) Len() int {
	return len(l.order)
}

// Clear empties the log and drops the open interim. The id counter is
// preserved so ids stay unique for the lifetime of a viewer connection.
func (l *Log) Clear() {
	l.entries = make(map[string]*Entry)
	l.order = nil
	l.currentInterimID = ""
}

// SetLanguagePair records the viewer-facing language pair.
func (l *Log) SetLanguagePair(from, to string) {
	l.pair = types.LanguagePair{From: from, To: to}
}

// LanguagePair returns the current viewer-facing language pair.
func (l *Log) LanguagePair() types.LanguagePair {
	return l.pair
}
