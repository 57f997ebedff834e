// Package debounce caps the rate of interim caption writes to the glasses.
//
// Finals always pass through immediately. Interims pass when the configured
// interval has elapsed since the last write; otherwise the latest interim is
// parked behind a single reschedulable timer and earlier parked interims are
// discarded (coalesce to latest). Finals cancel any parked interim.
package debounce

import (
	"sync"
	"time"
)

// DefaultInterval is the minimum spacing between interim writes.
const DefaultInterval = 400 * time.Millisecond

// Option configures a [Debouncer].
type Option func(*Debouncer)

// WithInterval overrides the interim spacing. Default: [DefaultInterval].
func WithInterval(d time.Duration) Option {
	return func(db *Debouncer) {
		db.interval = d
	}
}

// WithClock injects a time source for tests. The timer itself still uses
// real time; the clock only drives the elapsed-time decision.
func WithClock(now func() time.Time) Option {
	return func(db *Debouncer) {
		db.now = now
	}
}

// Debouncer is the per-session output governor. Safe for concurrent use:
// the session worker calls Send while the parked timer fires from a timer
// goroutine.
type Debouncer struct {
	mu       sync.Mutex
	interval time.Duration
	now      func() time.Time
	emit     func(text string, isFinal bool)

	lastSent time.Time
	timer    *time.Timer
	pending  string
	parked   bool
	stopped  bool
}

// New creates a Debouncer that delivers frames through emit.
func New(emit func(text string, isFinal bool), opts ...Option) *Debouncer {
	db := &Debouncer{
		interval: DefaultInterval,
		now:      time.Now,
		emit:     emit,
	}
	for _, o := range opts {
		o(db)
	}
	return db
}

// Send submits one frame. Finals are emitted synchronously and cancel any
// parked interim. Interims are emitted synchronously when the interval has
// elapsed, otherwise parked (replacing any earlier parked interim) behind a
// timer for the remainder.
func (db *Debouncer) Send(text string, isFinal bool) {
	db.mu.Lock()
	if db.stopped {
		db.mu.Unlock()
		return
	}

	if isFinal {
		db.cancelTimerLocked()
		db.lastSent = db.now()
		db.mu.Unlock()
		db.emit(text, true)
		return
	}

	elapsed := db.now().Sub(db.lastSent)
	if elapsed >= db.interval {
		db.cancelTimerLocked()
		db.lastSent = db.now()
		db.mu.Unlock()
		db.emit(text, false)
		return
	}

	// Park the latest interim; reschedule the single timer token.
	db.cancelTimerLocked()
	db.pending = text
	db.parked = true
	db.timer = time.AfterFunc(db.interval-elapsed, db.fire)
	db.mu.Unlock()
}

// fire delivers the parked interim. A fire racing with Stop or with a
// cancelling final observes parked=false and is a no-op.
func (db *Debouncer) fire() {
	db.mu.Lock()
	if db.stopped || !db.parked {
		db.mu.Unlock()
		return
	}
	text := db.pending
	db.parked = false
	db.pending = ""
	db.timer = nil
	db.lastSent = db.now()
	db.mu.Unlock()
	db.emit(text, false)
}

// Stop cancels any parked interim and disables further sends. Idempotent.
func (db *Debouncer) Stop() {
	db.mu.Lock()
	defer db.mu.Unlock()
	db.stopped = true
	db.cancelTimerLocked()
}

// cancelTimerLocked stops and clears the timer token and drops the parked
// interim. Caller holds db.mu.
func (db *Debouncer) cancelTimerLocked() {
	if db.timer != nil {
		db.timer.Stop()
		db.timer = nil
	}
	db.parked = false
	db.pending = ""
}
