package debounce

import (
	"sync"
	"testing"
	"time"
)

// recorder collects emitted frames with timestamps.
type recorder struct {
	mu     sync.Mutex
	frames []frame
}

type frame struct {
	text    string
	isFinal bool
	at      time.Time
}

func (r *recorder) emit(text string, isFinal bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.frames = append(r.frames, frame{text: text, isFinal: isFinal, at: time.Now()})
}

func (r *recorder) snapshot() []frame {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]frame, len(r.frames))
	copy(out, r.frames)
	return out
}

func TestDebouncer_FinalImmediate(t *testing.T) {
	t.Parallel()

	rec := &recorder{}
	db := New(rec.emit, WithInterval(time.Hour))
	defer db.Stop()

	db.Send("final frame", true)

	frames := rec.snapshot()
	if len(frames) != 1 || !frames[0].isFinal || frames[0].text != "final frame" {
		t.Fatalf("frames = %+v, want one immediate final", frames)
	}
}

func TestDebouncer_FirstInterimImmediate(t *testing.T) {
	t.Parallel()

	rec := &recorder{}
	db := New(rec.emit, WithInterval(50*time.Millisecond))
	defer db.Stop()

	db.Send("first", false)
	if frames := rec.snapshot(); len(frames) != 1 || frames[0].text != "first" {
		t.Fatalf("frames = %+v, want the first interim emitted immediately", frames)
	}
}

func TestDebouncer_CoalescesToLatest(t *testing.T) {
	t.Parallel()

	rec := &recorder{}
	db := New(rec.emit, WithInterval(80*time.Millisecond))
	defer db.Stop()

	db.Send("a", false) // immediate
	db.Send("b", false) // parked
	db.Send("c", false) // replaces b
	db.Send("d", false) // replaces c

	time.Sleep(200 * time.Millisecond)

	frames := rec.snapshot()
	if len(frames) != 2 {
		t.Fatalf("got %d frames, want 2 (immediate + trailing): %+v", len(frames), frames)
	}
	if frames[0].text != "a" || frames[1].text != "d" {
		t.Errorf("frames = %q,%q, want a then latest d", frames[0].text, frames[1].text)
	}
	if gap := frames[1].at.Sub(frames[0].at); gap < 60*time.Millisecond {
		t.Errorf("trailing write after %v, want >= interval minus scheduling slack", gap)
	}
}

func TestDebouncer_FinalCancelsParkedInterim(t *testing.T) {
	t.Parallel()

	rec := &recorder{}
	db := New(rec.emit, WithInterval(80*time.Millisecond))
	defer db.Stop()

	db.Send("a", false)     // immediate
	db.Send("stale", false) // parked
	db.Send("done", true)   // cancels parked, emits now

	time.Sleep(200 * time.Millisecond)

	frames := rec.snapshot()
	if len(frames) != 2 {
		t.Fatalf("got %d frames, want 2: %+v", len(frames), frames)
	}
	if frames[1].text != "done" || !frames[1].isFinal {
		t.Errorf("second frame = %+v, want the final", frames[1])
	}
}

func TestDebouncer_StopDropsParked(t *testing.T) {
	t.Parallel()

	rec := &recorder{}
	db := New(rec.emit, WithInterval(50*time.Millisecond))

	db.Send("a", false)
	db.Send("parked", false)
	db.Stop()
	db.Stop() // idempotent

	time.Sleep(120 * time.Millisecond)

	if frames := rec.snapshot(); len(frames) != 1 {
		t.Fatalf("frames after stop = %+v, want only the pre-stop write", frames)
	}

	db.Send("late", false)
	if frames := rec.snapshot(); len(frames) != 1 {
		t.Error("send after stop emitted a frame")
	}
}

func TestDebouncer_RateCap(t *testing.T) {
	t.Parallel()

	rec := &recorder{}
	db := New(rec.emit, WithInterval(60*time.Millisecond))
	defer db.Stop()

	// Interims every 15 ms for ~10 intervals.
	for i := 0; i < 40; i++ {
		db.Send("tick", false)
		time.Sleep(15 * time.Millisecond)
	}
	time.Sleep(100 * time.Millisecond)

	frames := rec.snapshot()
	for i := 1; i < len(frames); i++ {
		if gap := frames[i].at.Sub(frames[i-1].at); gap < 40*time.Millisecond {
			t.Errorf("writes %d and %d only %v apart", i-1, i, gap)
		}
	}
}
