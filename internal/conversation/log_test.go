package conversation

import (
	"fmt"
	"testing"
	"time"
)

func fixedClock() func() time.Time {
	t := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	return func() time.Time { return t }
}

func TestAddTranslation_InterimUpdateInPlace(t *testing.T) {
	t.Parallel()

	l := New(WithClock(fixedClock()))

	e1 := l.AddTranslation("hallo", "hello", "German", "English", false)
	e2 := l.AddTranslation("hallo zusammen", "hello everyone", "German", "English", false)

	if e1 == nil || e2 == nil {
		t.Fatal("expected entries")
	}
	if e1.ID != e2.ID {
		t.Errorf("interim refinement changed id: %s -> %s", e1.ID, e2.ID)
	}
	if l.Len() != 1 {
		t.Errorf("log size = %d, want 1", l.Len())
	}
	if got := l.Entries()[0].TranslatedText; got != "hello everyone" {
		t.Errorf("stored text = %q, want latest interim", got)
	}
}

func TestAddTranslation_UtterancePromotion(t *testing.T) {
	t.Parallel()

	l := New(WithClock(fixedClock()))

	a := l.AddTranslation("a", "A", "German", "English", false)
	b := l.AddTranslation("b", "B", "German", "English", false)
	c := l.AddTranslation("c", "C", "German", "English", true)

	if a.ID != b.ID || b.ID != c.ID {
		t.Fatalf("ids diverged: %s %s %s", a.ID, b.ID, c.ID)
	}
	if l.Len() != 1 {
		t.Errorf("log size = %d, want 1", l.Len())
	}

	got := l.Entries()[0]
	if !got.IsFinal || !got.IsNewUtterance {
		t.Errorf("promoted entry flags = final:%v new:%v, want both true", got.IsFinal, got.IsNewUtterance)
	}
	if got.TranslatedText != "C" {
		t.Errorf("promoted text = %q, want %q", got.TranslatedText, "C")
	}

	// The next interim starts a fresh utterance.
	d := l.AddTranslation("d", "D", "German", "English", false)
	if d.ID == c.ID {
		t.Error("post-final interim reused the promoted entry id")
	}
	if l.Len() != 2 {
		t.Errorf("log size = %d, want 2", l.Len())
	}
}

func TestAddTranslation_FinalMonotone(t *testing.T) {
	t.Parallel()

	l := New(WithClock(fixedClock()))

	l.AddTranslation("x", "X", "German", "English", false)
	final := l.AddTranslation("x!", "X!", "German", "English", true)

	// An interim arriving after the final must not reopen the entry.
	next := l.AddTranslation("y", "Y", "German", "English", false)
	if next.ID == final.ID {
		t.Fatal("interim after final reused the final's id")
	}
	for _, e := range l.Entries() {
		if e.ID == final.ID && !e.IsFinal {
			t.Error("isFinal regressed from true to false")
		}
	}
}

func TestAddTranslation_DirectFinal(t *testing.T) {
	t.Parallel()

	l := New(WithClock(fixedClock()))
	e := l.AddTranslation("kurz", "short", "German", "English", true)
	if !e.IsFinal || !e.IsNewUtterance {
		t.Errorf("direct final flags = final:%v new:%v, want both true", e.IsFinal, e.IsNewUtterance)
	}

	// No interim is left open.
	f := l.AddTranslation("nochmal", "again", "German", "English", true)
	if f.ID == e.ID {
		t.Error("second final reused the first final's id")
	}
}

func TestAddTranslation_EmptyTexts(t *testing.T) {
	t.Parallel()

	l := New(WithClock(fixedClock()))
	if e := l.AddTranslation("", "", "German", "English", false); e != nil {
		t.Errorf("empty texts produced entry %v, want nil", e)
	}
	if l.Len() != 0 {
		t.Error("empty texts advanced the log")
	}
}

func TestLog_BoundedFIFO(t *testing.T) {
	t.Parallel()

	l := New(WithClock(fixedClock()))
	for i := 0; i < MaxEntries+25; i++ {
		l.AddTranslation(fmt.Sprintf("o%d", i), fmt.Sprintf("t%d", i), "German", "English", true)
	}
	if l.Len() != MaxEntries {
		t.Fatalf("log size = %d, want %d", l.Len(), MaxEntries)
	}
	entries := l.Entries()
	if entries[0].TranslatedText != "t25" {
		t.Errorf("oldest retained = %q, want t25", entries[0].TranslatedText)
	}
	if entries[len(entries)-1].TranslatedText != fmt.Sprintf("t%d", MaxEntries+24) {
		t.Errorf("newest = %q", entries[len(entries)-1].TranslatedText)
	}
}

func TestLog_ClearPreservesCounter(t *testing.T) {
	t.Parallel()

	l := New(WithClock(fixedClock()))
	l.AddTranslation("eins", "one", "German", "English", true)
	l.AddTranslation("zwei", "two", "German", "English", true)

	l.Clear()
	if l.Len() != 0 {
		t.Fatalf("log size after clear = %d, want 0", l.Len())
	}

	e := l.AddTranslation("drei", "three", "German", "English", true)
	if e.ID != "entry-3" {
		t.Errorf("post-clear id = %q, want entry-3 (counter not reset)", e.ID)
	}
}

func TestLog_LanguagePair(t *testing.T) {
	t.Parallel()

	l := New()
	l.SetLanguagePair("German", "English")
	p := l.LanguagePair()
	if p.From != "German" || p.To != "English" {
		t.Errorf("pair = %+v", p)
	}
}
