// Package relay hosts the per-user session controller: the single worker
// that owns all of a user's caption state and drives both output surfaces
// from the upstream translation stream.
//
// Each user gets one worker goroutine fed by an inbox of messages
// (translation events, settings changes, timer fires, subscriptions, stop).
// The worker is the only goroutine that touches the user's stabilizer,
// formatter, conversation log, and hub broadcasts, which keeps the hot path
// lock-free and preserves per-user event order. The process-wide
// [Registry] map is the only cross-worker shared object.
package relay

import (
	"context"
	"log/slog"
	"time"

	"github.com/lenslate/lenslate/internal/caption"
	"github.com/lenslate/lenslate/internal/config"
	"github.com/lenslate/lenslate/internal/conversation"
	"github.com/lenslate/lenslate/internal/debounce"
	"github.com/lenslate/lenslate/internal/fanout"
	"github.com/lenslate/lenslate/internal/observe"
	"github.com/lenslate/lenslate/internal/stabilize"
	"github.com/lenslate/lenslate/pkg/glasses"
	"github.com/lenslate/lenslate/pkg/types"
)

const (
	// DefaultInactivityTimeout clears a session's display state after this
	// long without translation events.
	DefaultInactivityTimeout = 40 * time.Second

	// finalDisplayMillis keeps a final caption on the glasses before the
	// display blanks itself.
	finalDisplayMillis = 20000
)

// inbox message kinds. The worker is the sole consumer.
type msg interface{ isMsg() }

type translationMsg struct{ ev types.TranslationEvent }

type settingsMsg struct{ update types.UserSettings }

type inactivityMsg struct{}

type subscribeMsg struct{ reply chan *fanout.Subscriber }

type stopMsg struct{ handoff chan *carryover }

func (translationMsg) isMsg() {}
func (settingsMsg) isMsg()    {}
func (inactivityMsg) isMsg()  {}
func (subscribeMsg) isMsg()   {}
func (stopMsg) isMsg()        {}

// carryover is the state a stopping session hands to its graceful
// successor: the conversation log and caption history survive a same-user
// session restart when the language pair is unchanged.
type carryover struct {
	log       *conversation.Log
	formatter *caption.Formatter
	source    string
	target    string
}

// session is the per-user worker state. All fields after construction are
// owned exclusively by the run goroutine.
type session struct {
	userID    string
	sessionID string
	device    string

	settings types.UserSettings

	stab      *stabilize.Stabilizer
	formatter *caption.Formatter
	log       *conversation.Log
	deb       *debounce.Debouncer
	hub       *fanout.Hub

	sink          glasses.Sink
	transliterate func(string) string
	metrics       *observe.Metrics

	inbox             chan msg
	inactivity        *time.Timer
	inactivityTimeout time.Duration

	// setPair publishes the viewer-facing language pair to the registry
	// slot so HTTP snapshots need not round-trip through the worker.
	setPair func(types.LanguagePair)

	// unsupported consults the (device, target language) exclusion table.
	// A settings change into an excluded pair suppresses glasses output
	// until the pair becomes supported again.
	unsupported func(device, target string) (string, bool)
	suppressed  bool

	done chan struct{}
	now  func() time.Time
}

// newSession builds a worker for one user session. The caller starts it
// with go s.run().
func newSession(userID, sessionID, device string, settings types.UserSettings, deps sessionDeps) *session {
	s := &session{
		userID:            userID,
		sessionID:         sessionID,
		device:            device,
		settings:          settings,
		log:               conversation.New(),
		hub:               deps.hub,
		sink:              deps.sink,
		transliterate:     deps.transliterate,
		metrics:           deps.metrics,
		inbox:             make(chan msg, 256),
		inactivityTimeout: deps.inactivityTimeout,
		setPair:           deps.setPair,
		unsupported:       deps.unsupported,
		done:              make(chan struct{}),
		now:               time.Now,
	}
	if s.inactivityTimeout <= 0 {
		s.inactivityTimeout = DefaultInactivityTimeout
	}

	s.stab = newStabilizer(settings)
	s.formatter = caption.New(settings.LineWidth.Columns(), settings.NumberOfLines)

	debOpts := []debounce.Option{}
	if deps.debounceInterval > 0 {
		debOpts = append(debOpts, debounce.WithInterval(deps.debounceInterval))
	}
	s.deb = debounce.New(s.emitFrame, debOpts...)

	s.publishPair()
	return s
}

// sessionDeps bundles the construction-time dependencies shared by all
// sessions of a registry.
type sessionDeps struct {
	hub               *fanout.Hub
	sink              glasses.Sink
	transliterate     func(string) string
	metrics           *observe.Metrics
	inactivityTimeout time.Duration
	debounceInterval  time.Duration
	setPair           func(types.LanguagePair)
	unsupported       func(device, target string) (string, bool)
}

// newStabilizer builds a stabilizer matching the current settings.
func newStabilizer(settings types.UserSettings) *stabilize.Stabilizer {
	return stabilize.New(
		stabilize.WithHeuristic(settings.ConfidenceHeuristic),
		stabilize.WithCJK(types.IsCJK(settings.TargetLanguage)),
	)
}

// run is the worker loop. It exits when a stop message arrives; the
// inactivity timer posts back into the inbox rather than touching state.
func (s *session) run() {
	defer close(s.done)

	s.inactivity = time.AfterFunc(s.inactivityTimeout, func() {
		// Non-blocking: a full inbox means events are flowing, which
		// resets the timer anyway.
		select {
		case s.inbox <- inactivityMsg{}:
		default:
		}
	})

	for m := range s.inbox {
		switch m := m.(type) {
		case translationMsg:
			s.handleTranslation(m.ev)
		case settingsMsg:
			s.applySettings(m.update)
		case inactivityMsg:
			s.handleInactivity()
		case subscribeMsg:
			m.reply <- s.hub.Subscribe(s.replayEvents())
		case stopMsg:
			s.teardown()
			if m.handoff != nil {
				m.handoff <- &carryover{
					log:       s.log,
					formatter: s.formatter,
					source:    s.settings.SourceLanguage,
					target:    s.settings.TargetLanguage,
				}
			}
			return
		}
	}
}

// post delivers a message to the worker, giving up once the worker is gone.
func (s *session) post(m msg) bool {
	select {
	case s.inbox <- m:
		return true
	case <-s.done:
		return false
	}
}

// handleTranslation is the heart of the engine: route one upstream event to
// the glasses (stabilized, debounced) and to the conversation log (fanned
// out to viewers).
func (s *session) handleTranslation(ev types.TranslationEvent) {
	start := s.now()
	s.inactivity.Reset(s.inactivityTimeout)

	// Directional routing. The upstream delivers both directions of the
	// configured pair; only text translated *into* the user's target (or
	// passthrough in everything-mode) reaches the glasses.
	var glassesText string
	var show bool
	switch {
	case s.suppressed:
		// Target language unsupported on this device; log-only.
	case !ev.DidTranslate:
		glassesText = ev.TranslatedText
		show = s.settings.DisplayMode == types.DisplayEverything
	case types.SameLanguage(ev.TargetLocale, s.settings.TargetLanguage):
		glassesText = ev.TranslatedText
		show = true
	default:
		// Reverse direction: logged for viewers, never shown on glasses.
	}

	if show && types.IsPinyin(s.settings.TargetLanguage) && s.transliterate != nil {
		glassesText = s.transliterate(glassesText)
	}

	if show && glassesText != "" {
		var frame string
		if ev.IsFinal {
			frame = s.formatter.ProcessString(glassesText, true)
		} else {
			frame = s.formatter.ProcessString(s.stab.Stabilize(glassesText), false)
		}
		s.deb.Send(frame, ev.IsFinal)
	}

	if ev.DidTranslate {
		entry := s.log.AddTranslation(
			ev.OriginalText,
			ev.TranslatedText,
			types.LanguageName(ev.SourceLocale),
			types.LanguageName(ev.TargetLocale),
			ev.IsFinal,
		)
		if entry != nil {
			s.hub.Broadcast(fanout.Event{Type: fanout.EventTranslation, Data: entry})
		}
	}

	if ev.IsFinal {
		s.stab.Reset()
	}

	if s.metrics != nil {
		ctx := context.Background()
		s.metrics.RecordTranslationEvent(ctx, ev.IsFinal, show)
		s.metrics.EventDuration.Record(ctx, s.now().Sub(start).Seconds())
	}
}

// applySettings merges a settings update. A language change resets the
// stabilizer and caption history and announces the new pair to viewers; a
// formatting-only change preserves the caption history by replaying it
// through a formatter with the new dimensions. The conversation log is kept
// in both cases.
func (s *session) applySettings(update types.UserSettings) {
	merged, err := config.MergeSettings(s.settings, update)
	if err != nil {
		slog.Warn("settings update rejected, keeping current settings",
			"user_id", s.userID, "err", err)
		return
	}

	old := s.settings
	s.settings = merged

	languageChanged := merged.SourceLanguage != old.SourceLanguage ||
		merged.TargetLanguage != old.TargetLanguage

	if languageChanged && s.unsupported != nil {
		if warning, bad := s.unsupported(s.device, merged.TargetLanguage); bad {
			if !s.suppressed {
				if err := s.sink.ShowTextWall(context.Background(), s.userID, warning,
					glasses.TextWallOptions{DurationMs: unsupportedDisplayMillis}); err != nil {
					slog.Warn("unsupported-combination caption failed", "user_id", s.userID, "err", err)
				}
			}
			s.suppressed = true
		} else {
			s.suppressed = false
		}
	}

	if languageChanged {
		s.stab = newStabilizer(merged)
		s.formatter = caption.New(merged.LineWidth.Columns(), merged.NumberOfLines)
		pair := s.publishPair()
		s.hub.Broadcast(fanout.Event{Type: fanout.EventLanguageChange, Data: pair})
		slog.Info("language pair changed",
			"user_id", s.userID, "from", pair.From, "to", pair.To)
		return
	}

	if merged.LineWidth != old.LineWidth || merged.NumberOfLines != old.NumberOfLines {
		s.formatter = s.formatter.Resize(merged.LineWidth.Columns(), merged.NumberOfLines)
	}
	if merged.ConfidenceHeuristic != old.ConfidenceHeuristic {
		s.stab = newStabilizer(merged)
	}
}

// handleInactivity clears the display state after a quiet period. Viewers
// stay subscribed; the id counter keeps counting.
func (s *session) handleInactivity() {
	s.formatter.Clear()
	s.log.Clear()
	s.stab.Reset()
	s.deb.Send("", true)
	s.hub.Broadcast(fanout.Event{Type: fanout.EventClear, Data: map[string]string{}})

	if s.metrics != nil {
		s.metrics.InactivityClears.Add(context.Background(), 1)
	}
	slog.Info("session cleared after inactivity", "user_id", s.userID, "session_id", s.sessionID)
}

// replayEvents shapes the current conversation log as the replay slice a
// new subscriber must see before live events.
func (s *session) replayEvents() []fanout.Event {
	entries := s.log.Entries()
	out := make([]fanout.Event, len(entries))
	for i := range entries {
		e := entries[i]
		out[i] = fanout.Event{Type: fanout.EventTranslation, Data: &e}
	}
	return out
}

// emitFrame is the debouncer's delivery callback: the actual glasses write.
// Failures are logged and swallowed — the display is best-effort.
func (s *session) emitFrame(text string, isFinal bool) {
	opts := glasses.TextWallOptions{}
	reason := "interim"
	if isFinal {
		opts.DurationMs = finalDisplayMillis
		reason = "final"
	}
	if text == "" {
		reason = "clear"
	}
	if err := s.sink.ShowTextWall(context.Background(), s.userID, text, opts); err != nil {
		slog.Warn("glasses write failed", "user_id", s.userID, "err", err)
		return
	}
	if s.metrics != nil {
		s.metrics.RecordGlassesWrite(context.Background(), reason)
	}
}

// publishPair recomputes the viewer-facing language pair, stores it on the
// log, and pushes it to the registry slot. Returns the pair.
func (s *session) publishPair() types.LanguagePair {
	pair := types.LanguagePair{
		From: types.LanguageName(s.settings.SourceLanguage),
		To:   types.LanguageName(s.settings.TargetLanguage),
	}
	s.log.SetLanguagePair(pair.From, pair.To)
	if s.setPair != nil {
		s.setPair(pair)
	}
	return pair
}

// adopt takes over a predecessor's log and caption history. Only called
// before run() starts, when the language pair is unchanged.
func (s *session) adopt(c *carryover) {
	s.log = c.log
	s.formatter = c.formatter.Resize(s.settings.LineWidth.Columns(), s.settings.NumberOfLines)
	s.publishPair()
}

// teardown cancels timers and the debouncer. Subscribers are deliberately
// left attached: they may be viewing idle state and will receive the next
// session's events under the same user id.
func (s *session) teardown() {
	if s.inactivity != nil {
		s.inactivity.Stop()
	}
	s.deb.Stop()
}
