package fanout

import (
	"testing"
	"time"
)

func collect(s *Subscriber, n int, t *testing.T) []Event {
	t.Helper()
	out := make([]Event, 0, n)
	timeout := time.After(2 * time.Second)
	for len(out) < n {
		select {
		case ev, ok := <-s.Events():
			if !ok {
				t.Fatalf("subscriber closed after %d events, want %d", len(out), n)
			}
			out = append(out, ev)
		case <-timeout:
			t.Fatalf("timed out after %d events, want %d", len(out), n)
		}
	}
	return out
}

func TestHub_ConnectedThenReplayThenLive(t *testing.T) {
	t.Parallel()

	h := New()
	replay := []Event{
		{Type: EventTranslation, Data: "one"},
		{Type: EventTranslation, Data: "two"},
	}
	s := h.Subscribe(replay)
	defer s.Close()

	h.Broadcast(Event{Type: EventTranslation, Data: "live"})

	evs := collect(s, 4, t)
	if evs[0].Type != EventConnected {
		t.Errorf("first event = %s, want connected", evs[0].Type)
	}
	if evs[1].Data != "one" || evs[2].Data != "two" {
		t.Errorf("replay out of order: %+v", evs[1:3])
	}
	if evs[3].Data != "live" {
		t.Errorf("live event = %+v, want after replay", evs[3])
	}
}

func TestHub_OrderPreservedPerSubscriber(t *testing.T) {
	t.Parallel()

	h := New()
	s := h.Subscribe(nil)
	defer s.Close()

	for i := 0; i < 50; i++ {
		h.Broadcast(Event{Type: EventTranslation, Data: i})
	}

	evs := collect(s, 51, t) // connected + 50
	for i, ev := range evs[1:] {
		if ev.Data != i {
			t.Fatalf("event %d carried %v", i, ev.Data)
		}
	}
}

func TestHub_SlowSubscriberDropped(t *testing.T) {
	t.Parallel()

	h := New(WithQueueCap(4))
	slow := h.Subscribe(nil)

	// Overflow the slow subscriber's queue without draining it. The
	// broadcast loop must complete regardless — a full queue drops the
	// subscriber instead of blocking the publisher.
	for i := 0; i < 100; i++ {
		h.Broadcast(Event{Type: EventTranslation, Data: i})
	}

	if got := h.SubscriberCount(); got != 0 {
		t.Errorf("subscriber count = %d, want 0 after slow drop", got)
	}

	// The slow subscriber's channel is closed once drained.
	drained := 0
	for range slow.Events() {
		drained++
	}
	if drained != 4 {
		t.Errorf("slow subscriber drained %d events, want its queue capacity of 4", drained)
	}
}

func TestHub_CloseIdempotentAndRaceSafe(t *testing.T) {
	t.Parallel()

	h := New()
	s := h.Subscribe(nil)
	s.Close()
	s.Close()

	// Broadcasting after removal must not panic or deliver.
	h.Broadcast(Event{Type: EventClear, Data: map[string]string{}})
	if got := h.SubscriberCount(); got != 0 {
		t.Errorf("subscriber count = %d, want 0", got)
	}
}

func TestHub_CloseAll(t *testing.T) {
	t.Parallel()

	h := New()
	a := h.Subscribe(nil)
	b := h.Subscribe(nil)
	h.CloseAll()

	for _, s := range []*Subscriber{a, b} {
		// Drain: channel must be closed.
		for range s.Events() {
		}
	}
	if got := h.SubscriberCount(); got != 0 {
		t.Errorf("subscriber count = %d, want 0", got)
	}
}
