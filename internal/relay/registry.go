package relay

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/lenslate/lenslate/internal/config"
	"github.com/lenslate/lenslate/internal/fanout"
	"github.com/lenslate/lenslate/internal/observe"
	"github.com/lenslate/lenslate/pkg/glasses"
	"github.com/lenslate/lenslate/pkg/types"
)

// ErrUnsupported is returned from [Registry.Open] when the device model
// cannot display the requested target language. The user has already been
// shown an explanatory caption; the caller must not subscribe upstream.
var ErrUnsupported = errors.New("relay: unsupported device/language combination")

// unsupportedDisplayMillis keeps the explanatory caption visible.
const unsupportedDisplayMillis = 10000

// handoffTimeout bounds how long Open waits for a superseded worker to
// surrender its state.
const handoffTimeout = 2 * time.Second

// Config bundles the dependencies shared by all sessions of a [Registry].
type Config struct {
	// Sink is the glasses display surface.
	Sink glasses.Sink

	// Defaults are the per-user settings applied before any
	// session-specific overrides.
	Defaults types.UserSettings

	// Unsupported lists (device model, target language) pairs that
	// short-circuit session open.
	Unsupported []config.UnsupportedCombo

	// Transliterate converts text to Hanyu Pinyin for pinyin targets.
	// Optional; nil disables transliteration.
	Transliterate func(string) string

	// Metrics receives engine instrumentation. Optional.
	Metrics *observe.Metrics

	// InactivityTimeout overrides [DefaultInactivityTimeout]. Tests only.
	InactivityTimeout time.Duration

	// DebounceInterval overrides the glasses debounce interval. Tests only.
	DebounceInterval time.Duration
}

// userSlot is the per-user anchor that outlives individual sessions: the
// fan-out hub (viewers survive session restarts) and the latest language
// pair snapshot.
type userSlot struct {
	hub *fanout.Hub

	mu      sync.Mutex
	pair    types.LanguagePair
	session *session
}

func (u *userSlot) setPair(p types.LanguagePair) {
	u.mu.Lock()
	u.pair = p
	u.mu.Unlock()
}

// Registry is the process-wide map from user id to session state. It is the
// only object shared across session workers; all methods are safe for
// concurrent use.
type Registry struct {
	cfg Config

	mu    sync.Mutex
	users map[string]*userSlot
}

// NewRegistry creates an empty Registry.
func NewRegistry(cfg Config) *Registry {
	if cfg.Defaults == (types.UserSettings{}) {
		cfg.Defaults = config.DefaultSettings()
	}
	return &Registry{
		cfg:   cfg,
		users: make(map[string]*userSlot),
	}
}

// slot returns the user's anchor, creating it on first use. Viewers may
// subscribe before the user's first session opens.
func (r *Registry) slot(userID string) *userSlot {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.slotLocked(userID)
}

func (r *Registry) slotLocked(userID string) *userSlot {
	u, ok := r.users[userID]
	if !ok {
		u = &userSlot{
			hub: fanout.New(),
			pair: types.LanguagePair{
				From: types.LanguageName(r.cfg.Defaults.SourceLanguage),
				To:   types.LanguageName(r.cfg.Defaults.TargetLanguage),
			},
		}
		r.users[userID] = u
	}
	return u
}

// Open creates (or supersedes) the user's session. A prior session for the
// same user is stopped first; its conversation log and caption history are
// carried over when the language pair is unchanged, so a graceful session
// restart is invisible to viewers.
//
// Returns [ErrUnsupported] when the (device, target language) combination
// is excluded; in that case a fixed explanatory caption has been shown and
// no session exists.
func (r *Registry) Open(userID, sessionID, deviceModel string, initial types.UserSettings) error {
	settings, err := config.MergeSettings(r.cfg.Defaults, initial)
	if err != nil {
		slog.Warn("initial settings rejected, using defaults", "user_id", userID, "err", err)
		settings = r.cfg.Defaults
	}

	if combo, bad := r.unsupportedFor(deviceModel, settings.TargetLanguage); bad {
		text := unsupportedCaption(combo, deviceModel)
		if err := r.cfg.Sink.ShowTextWall(context.Background(), userID, text,
			glasses.TextWallOptions{DurationMs: unsupportedDisplayMillis}); err != nil {
			slog.Warn("unsupported-combination caption failed", "user_id", userID, "err", err)
		}
		slog.Info("session rejected: unsupported combination",
			"user_id", userID, "device", deviceModel, "target", settings.TargetLanguage)
		return ErrUnsupported
	}

	u := r.slot(userID)

	u.mu.Lock()
	prior := u.session
	u.mu.Unlock()

	var carry *carryover
	if prior != nil {
		carry = prior.stopForHandoff()
		if r.cfg.Metrics != nil {
			r.cfg.Metrics.ActiveSessions.Add(context.Background(), -1)
		}
		slog.Info("session superseded",
			"user_id", userID, "old_session", prior.sessionID, "new_session", sessionID)
	}

	sess := newSession(userID, sessionID, deviceModel, settings, sessionDeps{
		hub:               u.hub,
		sink:              r.cfg.Sink,
		transliterate:     r.cfg.Transliterate,
		metrics:           r.cfg.Metrics,
		inactivityTimeout: r.cfg.InactivityTimeout,
		debounceInterval:  r.cfg.DebounceInterval,
		setPair:           u.setPair,
		unsupported: func(device, target string) (string, bool) {
			combo, bad := r.unsupportedFor(device, target)
			if !bad {
				return "", false
			}
			return unsupportedCaption(combo, device), true
		},
	})
	if carry != nil && carry.source == settings.SourceLanguage && carry.target == settings.TargetLanguage {
		sess.adopt(carry)
	}

	u.mu.Lock()
	u.session = sess
	u.mu.Unlock()

	go sess.run()

	if r.cfg.Metrics != nil {
		r.cfg.Metrics.ActiveSessions.Add(context.Background(), 1)
	}
	slog.Info("session opened",
		"user_id", userID, "session_id", sessionID, "device", deviceModel,
		"source", settings.SourceLanguage, "target", settings.TargetLanguage)
	return nil
}

// stopForHandoff asks a worker to stop and surrender its state. Returns nil
// when the worker is already gone or unresponsive.
func (s *session) stopForHandoff() *carryover {
	reply := make(chan *carryover, 1)
	if !s.post(stopMsg{handoff: reply}) {
		return nil
	}
	select {
	case c := <-reply:
		return c
	case <-time.After(handoffTimeout):
		slog.Warn("session handoff timed out", "user_id", s.userID, "session_id", s.sessionID)
		return nil
	}
}

// Stop terminates the user's session: timers cancelled, state deleted.
// Subscribers stay attached and will see the next session's events.
func (r *Registry) Stop(userID string) {
	r.mu.Lock()
	u, ok := r.users[userID]
	r.mu.Unlock()
	if !ok {
		return
	}

	u.mu.Lock()
	sess := u.session
	u.session = nil
	u.mu.Unlock()

	if sess == nil {
		return
	}
	sess.post(stopMsg{})
	<-sess.done

	if r.cfg.Metrics != nil {
		r.cfg.Metrics.ActiveSessions.Add(context.Background(), -1)
	}
	slog.Info("session stopped", "user_id", userID, "session_id", sess.sessionID)
}

// Translation routes one upstream event to its user's worker. Events for
// unknown users are dropped with a log entry and no state change.
func (r *Registry) Translation(ev types.TranslationEvent) {
	r.mu.Lock()
	u, ok := r.users[ev.UserID]
	r.mu.Unlock()

	var sess *session
	if ok {
		u.mu.Lock()
		sess = u.session
		u.mu.Unlock()
	}
	if sess == nil {
		if r.cfg.Metrics != nil {
			r.cfg.Metrics.DroppedEvents.Add(context.Background(), 1)
		}
		slog.Debug("translation event for inactive user dropped", "user_id", ev.UserID)
		return
	}
	sess.post(translationMsg{ev: ev})
}

// UpdateSettings applies a settings change to the user's live session.
// No-op for users without a session.
func (r *Registry) UpdateSettings(userID string, update types.UserSettings) {
	r.mu.Lock()
	u, ok := r.users[userID]
	r.mu.Unlock()
	if !ok {
		return
	}

	u.mu.Lock()
	sess := u.session
	u.mu.Unlock()
	if sess == nil {
		return
	}
	sess.post(settingsMsg{update: update})
}

// Subscribe attaches a viewer to the user's fan-out hub. When a session is
// live the subscription goes through its worker so the log replay is atomic
// with respect to live broadcasts; otherwise the viewer joins the idle hub
// with an empty replay.
func (r *Registry) Subscribe(userID string) *fanout.Subscriber {
	u := r.slot(userID)

	u.mu.Lock()
	sess := u.session
	u.mu.Unlock()

	if sess != nil {
		reply := make(chan *fanout.Subscriber, 1)
		if sess.post(subscribeMsg{reply: reply}) {
			select {
			case sub := <-reply:
				return sub
			case <-sess.done:
				// Worker exited between post and reply; fall through.
			}
		}
	}
	return u.hub.Subscribe(nil)
}

// LanguagePair returns the user's viewer-facing language pair snapshot.
func (r *Registry) LanguagePair(userID string) types.LanguagePair {
	u := r.slot(userID)
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.pair
}

// FirstActiveUser returns the lexicographically first user with a live
// session. Development-mode authentication uses it as a token fallback.
func (r *Registry) FirstActiveUser() (string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	ids := make([]string, 0, len(r.users))
	for id, u := range r.users {
		u.mu.Lock()
		live := u.session != nil
		u.mu.Unlock()
		if live {
			ids = append(ids, id)
		}
	}
	if len(ids) == 0 {
		return "", false
	}
	slices.Sort(ids)
	return ids[0], true
}

// Shutdown stops every session and detaches every viewer. Used on process
// exit only.
func (r *Registry) Shutdown(ctx context.Context) {
	r.mu.Lock()
	ids := make([]string, 0, len(r.users))
	for id := range r.users {
		ids = append(ids, id)
	}
	r.mu.Unlock()

	for _, id := range ids {
		r.Stop(id)
	}

	r.mu.Lock()
	for _, u := range r.users {
		u.hub.CloseAll()
	}
	r.mu.Unlock()

	_ = ctx // reserved for a future drain deadline
}

// unsupportedCaption is the fixed explanatory text shown when a device
// cannot display the requested target language.
func unsupportedCaption(combo config.UnsupportedCombo, deviceModel string) string {
	return fmt.Sprintf("Sorry, %s translation is not supported on %s.",
		types.LanguageName(combo.TargetLanguage), deviceModel)
}

// unsupportedFor looks up the (device, target) exclusion table. Matching is
// by exact device model and primary language subtag.
func (r *Registry) unsupportedFor(deviceModel, targetLanguage string) (config.UnsupportedCombo, bool) {
	sub := types.LanguageSubtag(targetLanguage)
	for _, c := range r.cfg.Unsupported {
		if c.DeviceModel == deviceModel && types.LanguageSubtag(c.TargetLanguage) == sub {
			return c, true
		}
	}
	return config.UnsupportedCombo{}, false
}
