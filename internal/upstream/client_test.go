package upstream

import (
	"sync"
	"testing"

	"github.com/lenslate/lenslate/pkg/glasses"
	"github.com/lenslate/lenslate/pkg/types"
)

// recordingHandler captures handler calls for dispatch tests.
type recordingHandler struct {
	mu       sync.Mutex
	opens    []string
	stops    []string
	settings []types.UserSettings
	events   []types.TranslationEvent
}

func (h *recordingHandler) SessionOpen(userID, sessionID, deviceModel string, settings types.UserSettings) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.opens = append(h.opens, userID+"/"+sessionID+"/"+deviceModel)
}

func (h *recordingHandler) SessionStop(userID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.stops = append(h.stops, userID)
}

func (h *recordingHandler) SettingsUpdate(userID string, settings types.UserSettings) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.settings = append(h.settings, settings)
}

func (h *recordingHandler) Translation(ev types.TranslationEvent) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.events = append(h.events, ev)
}

func newTestClient(t *testing.T) (*Client, *recordingHandler) {
	t.Helper()
	h := &recordingHandler{}
	c, err := New(Config{URL: "wss://cloud.test/relay-ws", PackageName: "com.test", APIKey: "k"}, h)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return c, h
}

func TestNew_Validation(t *testing.T) {
	t.Parallel()

	if _, err := New(Config{}, &recordingHandler{}); err == nil {
		t.Error("expected error for empty URL")
	}
	if _, err := New(Config{URL: "wss://x"}, nil); err == nil {
		t.Error("expected error for nil handler")
	}
}

func TestDispatch_Translation(t *testing.T) {
	t.Parallel()

	c, h := newTestClient(t)
	c.dispatch([]byte(`{
		"type": "translation",
		"event": {
			"sessionId": "s1",
			"userId": "u1",
			"originalText": "hallo",
			"translatedText": "hello",
			"sourceLocale": "de-DE",
			"targetLocale": "en-US",
			"didTranslate": true,
			"isFinal": false
		}
	}`))

	if len(h.events) != 1 {
		t.Fatalf("events = %d, want 1", len(h.events))
	}
	ev := h.events[0]
	if ev.TranslatedText != "hello" || ev.IsFinal || !ev.DidTranslate {
		t.Errorf("event = %+v", ev)
	}
	if ev.ReceivedAt.IsZero() {
		t.Error("ReceivedAt not stamped")
	}
}

func TestDispatch_SessionLifecycle(t *testing.T) {
	t.Parallel()

	c, h := newTestClient(t)
	c.dispatch([]byte(`{"type":"session.open","userId":"u1","sessionId":"s1","deviceModel":"Mach1","settings":{"targetLanguage":"fr-FR"}}`))
	c.dispatch([]byte(`{"type":"settings.update","userId":"u1","settings":{"numberOfLines":4}}`))
	c.dispatch([]byte(`{"type":"session.stop","userId":"u1"}`))

	if len(h.opens) != 1 || h.opens[0] != "u1/s1/Mach1" {
		t.Errorf("opens = %v", h.opens)
	}
	if len(h.settings) != 1 || h.settings[0].NumberOfLines != 4 {
		t.Errorf("settings = %+v", h.settings)
	}
	if len(h.stops) != 1 || h.stops[0] != "u1" {
		t.Errorf("stops = %v", h.stops)
	}
}

func TestDispatch_MalformedDropped(t *testing.T) {
	t.Parallel()

	c, h := newTestClient(t)
	c.dispatch([]byte(`{not json`))
	c.dispatch([]byte(`{"type":"translation"}`))                  // no event
	c.dispatch([]byte(`{"type":"session.open","userId":"u1"}`))   // no session id
	c.dispatch([]byte(`{"type":"settings.update","userId":"u1"}`)) // no settings
	c.dispatch([]byte(`{"type":"mystery"}`))

	if len(h.events)+len(h.opens)+len(h.settings)+len(h.stops) != 0 {
		t.Errorf("malformed messages advanced state: %+v", h)
	}
}

func TestStopAllSessions(t *testing.T) {
	t.Parallel()

	c, h := newTestClient(t)
	c.dispatch([]byte(`{"type":"session.open","userId":"u1","sessionId":"s1"}`))
	c.dispatch([]byte(`{"type":"session.open","userId":"u2","sessionId":"s2"}`))

	c.stopAllSessions()

	if len(h.stops) != 2 {
		t.Fatalf("stops = %v, want both users", h.stops)
	}

	// Idempotent: no tracked sessions remain.
	c.stopAllSessions()
	if len(h.stops) != 2 {
		t.Errorf("second stopAllSessions produced more stops: %v", h.stops)
	}
}

func TestShowTextWall_Disconnected(t *testing.T) {
	t.Parallel()

	c, _ := newTestClient(t)
	err := c.ShowTextWall(t.Context(), "u1", "hi", glasses.TextWallOptions{})
	if err == nil {
		t.Error("expected error while disconnected")
	}
	if c.Connected() {
		t.Error("Connected() = true without a connection")
	}
}
