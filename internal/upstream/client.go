// Package upstream connects to the cloud translation source over WebSocket
// and turns its message stream into engine calls.
//
// The connection is bidirectional: translation events, session lifecycle,
// and settings updates flow down; glasses display commands flow back up.
// The client therefore also implements [glasses.Sink].
package upstream

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/coder/websocket"

	"github.com/lenslate/lenslate/pkg/glasses"
	"github.com/lenslate/lenslate/pkg/types"
)

// Handler receives the decoded upstream stream. Implemented by the app
// package's adapter over the session registry.
type Handler interface {
	// SessionOpen is called when the cloud starts a user session.
	SessionOpen(userID, sessionID, deviceModel string, settings types.UserSettings)

	// SessionStop is called when the cloud ends a user session, and for
	// every tracked session when the connection drops.
	SessionStop(userID string)

	// SettingsUpdate delivers a mid-session settings change.
	SettingsUpdate(userID string, settings types.UserSettings)

	// Translation delivers one translation event.
	Translation(ev types.TranslationEvent)
}

// wire message types.
const (
	msgSessionOpen    = "session.open"
	msgSessionStop    = "session.stop"
	msgSettingsUpdate = "settings.update"
	msgTranslation    = "translation"
	msgDisplayText    = "display.text_wall"
)

// envelope is the JSON frame exchanged with the cloud.
type envelope struct {
	Type        string                  `json:"type"`
	SessionID   string                  `json:"sessionId,omitempty"`
	UserID      string                  `json:"userId,omitempty"`
	DeviceModel string                  `json:"deviceModel,omitempty"`
	Settings    *types.UserSettings     `json:"settings,omitempty"`
	Event       *types.TranslationEvent `json:"event,omitempty"`
	Text        string                  `json:"text,omitempty"`
	View        string                  `json:"view,omitempty"`
	DurationMs  int                     `json:"durationMs,omitempty"`
}

// Config holds the connection parameters.
type Config struct {
	// URL is the WebSocket endpoint of the translation cloud.
	URL string

	// PackageName identifies this app; sent as a query parameter.
	PackageName string

	// APIKey is sent as a Bearer token.
	APIKey string
}

// writeTimeout bounds a single outbound display write.
const writeTimeout = 5 * time.Second

// reconnect backoff bounds.
const (
	backoffMin = time.Second
	backoffMax = 30 * time.Second
)

// Client maintains the upstream connection. Safe for concurrent use:
// session workers write display frames while the run loop reads.
type Client struct {
	cfg     Config
	handler Handler

	connMu sync.Mutex
	conn   *websocket.Conn

	// active tracks users with open sessions so a connection drop can be
	// translated into per-user session stops.
	activeMu sync.Mutex
	active   map[string]struct{}
}

// New creates a Client delivering the stream to handler.
func New(cfg Config, handler Handler) (*Client, error) {
	if cfg.URL == "" {
		return nil, errors.New("upstream: URL must not be empty")
	}
	if handler == nil {
		return nil, errors.New("upstream: handler must not be nil")
	}
	return &Client{
		cfg:     cfg,
		handler: handler,
		active:  make(map[string]struct{}),
	}, nil
}

// Run connects and consumes the stream until ctx is cancelled, reconnecting
// with exponential backoff. Every disconnect stops all tracked sessions
// before the next attempt.
func (c *Client) Run(ctx context.Context) error {
	backoff := backoffMin
	for {
		err := c.runOnce(ctx)
		c.stopAllSessions()

		if ctx.Err() != nil {
			return ctx.Err()
		}
		slog.Warn("upstream connection lost, reconnecting", "err", err, "backoff", backoff)

		select {
		case <-time.After(backoff):
		case <-ctx.Done():
			return ctx.Err()
		}
		backoff *= 2
		if backoff > backoffMax {
			backoff = backoffMax
		}
	}
}

// runOnce dials and reads until the connection fails or ctx is cancelled.
func (c *Client) runOnce(ctx context.Context) error {
	wsURL, err := c.buildURL()
	if err != nil {
		return fmt.Errorf("upstream: build URL: %w", err)
	}

	headers := http.Header{}
	headers.Set("Authorization", "Bearer "+c.cfg.APIKey)

	dialCtx, cancel := context.WithTimeout(ctx, 15*time.Second)
	conn, _, err := websocket.Dial(dialCtx, wsURL, &websocket.DialOptions{
		HTTPHeader: headers,
	})
	cancel()
	if err != nil {
		return fmt.Errorf("upstream: dial: %w", err)
	}
	// Raise the per-message read limit to 1 MiB.
	conn.SetReadLimit(1 << 20)

	c.connMu.Lock()
	c.conn = conn
	c.connMu.Unlock()

	defer func() {
		c.connMu.Lock()
		c.conn = nil
		c.connMu.Unlock()
		_ = conn.Close(websocket.StatusNormalClosure, "")
	}()

	slog.Info("upstream connected", "url", c.cfg.URL, "package", c.cfg.PackageName)

	for {
		_, data, err := conn.Read(ctx)
		if err != nil {
			return fmt.Errorf("upstream: read: %w", err)
		}
		c.dispatch(data)
	}
}

// buildURL appends the package identifier to the configured endpoint.
func (c *Client) buildURL() (string, error) {
	u, err := url.Parse(c.cfg.URL)
	if err != nil {
		return "", err
	}
	q := u.Query()
	q.Set("package", c.cfg.PackageName)
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// dispatch decodes one wire frame and routes it to the handler. Malformed
// frames are logged and dropped without advancing any state.
func (c *Client) dispatch(data []byte) {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		slog.Warn("upstream: malformed message dropped", "err", err)
		return
	}

	switch env.Type {
	case msgSessionOpen:
		if env.UserID == "" || env.SessionID == "" {
			slog.Warn("upstream: session.open missing ids, dropped")
			return
		}
		var settings types.UserSettings
		if env.Settings != nil {
			settings = *env.Settings
		}
		c.trackSession(env.UserID)
		c.handler.SessionOpen(env.UserID, env.SessionID, env.DeviceModel, settings)

	case msgSessionStop:
		if env.UserID == "" {
			slog.Warn("upstream: session.stop missing user id, dropped")
			return
		}
		c.untrackSession(env.UserID)
		c.handler.SessionStop(env.UserID)

	case msgSettingsUpdate:
		if env.UserID == "" || env.Settings == nil {
			slog.Warn("upstream: settings.update missing payload, dropped")
			return
		}
		c.handler.SettingsUpdate(env.UserID, *env.Settings)

	case msgTranslation:
		if env.Event == nil || env.Event.UserID == "" {
			slog.Warn("upstream: translation missing event, dropped")
			return
		}
		ev := *env.Event
		if ev.ReceivedAt.IsZero() {
			ev.ReceivedAt = time.Now()
		}
		c.handler.Translation(ev)

	default:
		slog.Debug("upstream: unknown message type ignored", "type", env.Type)
	}
}

// ShowTextWall implements [glasses.Sink] by sending a display command over
// the upstream connection. Writes while disconnected are dropped — the
// display is superseded by the next frame anyway.
func (c *Client) ShowTextWall(ctx context.Context, userID, text string, opts glasses.TextWallOptions) error {
	c.connMu.Lock()
	conn := c.conn
	c.connMu.Unlock()
	if conn == nil {
		return errors.New("upstream: not connected")
	}

	payload, err := json.Marshal(envelope{
		Type:       msgDisplayText,
		UserID:     userID,
		Text:       text,
		View:       "main",
		DurationMs: opts.DurationMs,
	})
	if err != nil {
		return fmt.Errorf("upstream: marshal display command: %w", err)
	}

	wctx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()
	if err := conn.Write(wctx, websocket.MessageText, payload); err != nil {
		return fmt.Errorf("upstream: write display command: %w", err)
	}
	return nil
}

// Connected reports whether the upstream link is currently up. Used by the
// readiness probe.
func (c *Client) Connected() bool {
	c.connMu.Lock()
	defer c.connMu.Unlock()
	return c.conn != nil
}

func (c *Client) trackSession(userID string) {
	c.activeMu.Lock()
	c.active[userID] = struct{}{}
	c.activeMu.Unlock()
}

func (c *Client) untrackSession(userID string) {
	c.activeMu.Lock()
	delete(c.active, userID)
	c.activeMu.Unlock()
}

// stopAllSessions converts a connection drop into session stops for every
// tracked user.
func (c *Client) stopAllSessions() {
	c.activeMu.Lock()
	users := make([]string, 0, len(c.active))
	for id := range c.active {
		users = append(users, id)
	}
	c.active = make(map[string]struct{})
	c.activeMu.Unlock()

	for _, id := range users {
		c.handler.SessionStop(id)
	}
}
