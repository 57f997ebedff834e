// Package fanout broadcasts one user's typed relay events to any number of
// viewer subscribers.
//
// Each subscriber owns a bounded queue drained by its transport (the SSE
// handler). On subscribe the hub enqueues a synthetic connected event and a
// replay of the conversation log before the subscriber is added to the live
// set, so a viewer sees exactly the log as of the moment of subscription and
// then every live event in hub order. A subscriber whose queue is full is
// removed atomically — a slow viewer never stalls the user's worker.
package fanout

import (
	"sync"

	"github.com/google/uuid"
)

// EventType labels the events delivered to viewers.
type EventType string

const (
	// EventConnected is sent once, first, to every new subscriber.
	EventConnected EventType = "connected"

	// EventTranslation carries a created or updated conversation entry.
	EventTranslation EventType = "translation"

	// EventLanguageChange announces a new language pair.
	EventLanguageChange EventType = "languageChange"

	// EventClear tells viewers to drop their rendered log.
	EventClear EventType = "clear"
)

// Event is one typed message delivered to subscribers. Data must be
// JSON-marshalable; the hub treats it as opaque.
type Event struct {
	Type EventType
	Data any
}

// defaultQueueCap bounds a subscriber's outbound queue. It leaves headroom
// above the largest possible replay (the conversation-log cap).
const defaultQueueCap = 1024

// Subscriber is one viewer's handle onto the hub. Drain [Subscriber.Events]
// until it is closed; call [Subscriber.Close] when the transport goes away.
type Subscriber struct {
	id  string
	ch  chan Event
	hub *Hub

	closeOnce sync.Once
}

// Events returns the subscriber's queue. The channel is closed when the
// subscriber is removed (explicitly or for falling behind).
func (s *Subscriber) Events() <-chan Event {
	return s.ch
}

// Close detaches the subscriber from the hub. Safe to call more than once
// and safe to race with hub-side removal.
func (s *Subscriber) Close() {
	s.hub.remove(s)
}

// Hub is a per-user broadcast channel. All methods are safe for concurrent
// use: the user's worker publishes while HTTP handlers subscribe and
// unsubscribe.
type Hub struct {
	mu       sync.Mutex
	subs     map[string]*Subscriber
	queueCap int
}

// Option configures a [Hub].
type Option func(*Hub)

// WithQueueCap overrides the per-subscriber queue bound.
func WithQueueCap(n int) Option {
	return func(h *Hub) {
		if n > 0 {
			h.queueCap = n
		}
	}
}

// New creates an empty Hub.
func New(opts ...Option) *Hub {
	h := &Hub{
		subs:     make(map[string]*Subscriber),
		queueCap: defaultQueueCap,
	}
	for _, o := range opts {
		o(h)
	}
	return h
}

// Subscribe registers a new viewer. The replay slice (the conversation log
// at the moment of subscription, already shaped as events) is enqueued after
// the connected event and before any live event; the boundary is atomic with
// respect to Broadcast.
func (h *Hub) Subscribe(replay []Event) *Subscriber {
	capacity := h.queueCap
	if need := len(replay) + 1; need > capacity {
		capacity = need
	}

	s := &Subscriber{
		id:  uuid.NewString(),
		ch:  make(chan Event, capacity),
		hub: h,
	}

	h.mu.Lock()
	s.ch <- Event{Type: EventConnected, Data: map[string]string{}}
	for _, ev := range replay {
		s.ch <- ev
	}
	h.subs[s.id] = s
	h.mu.Unlock()

	return s
}

// Broadcast delivers an event to every live subscriber. Subscribers whose
// queues are full are removed; delivery to the others is unaffected.
func (h *Hub) Broadcast(ev Event) {
	h.mu.Lock()
	defer h.mu.Unlock()

	for id, s := range h.subs {
		select {
		case s.ch <- ev:
		default:
			delete(h.subs, id)
			s.closeOnce.Do(func() { close(s.ch) })
		}
	}
}

// remove detaches a subscriber and closes its queue.
func (h *Hub) remove(s *Subscriber) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.subs[s.id]; ok {
		delete(h.subs, s.id)
	}
	s.closeOnce.Do(func() { close(s.ch) })
}

// SubscriberCount returns the number of live subscribers.
func (h *Hub) SubscriberCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs)
}

// CloseAll detaches every subscriber. Used on process shutdown; session
// stop and inactivity clears deliberately do NOT close subscribers.
func (h *Hub) CloseAll() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for id, s := range h.subs {
		delete(h.subs, id)
		s.closeOnce.Do(func() { close(s.ch) })
	}
}
