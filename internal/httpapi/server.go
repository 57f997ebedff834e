// Package httpapi serves the viewer surface: a server-sent event stream of
// the user's conversation log and a language-pair snapshot. Health probes
// are served by package health.
package httpapi

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/lenslate/lenslate/internal/fanout"
	"github.com/lenslate/lenslate/internal/observe"
	"github.com/lenslate/lenslate/pkg/types"
)

// devUserID is the synthetic user served to unauthenticated viewers in
// non-production mode when no session is active.
const devUserID = "dev-user"

// Relay is the engine surface the HTTP layer needs. Implemented by the
// session registry.
type Relay interface {
	// Subscribe attaches a viewer to the user's fan-out hub.
	Subscribe(userID string) *fanout.Subscriber

	// LanguagePair returns the user's current language pair snapshot.
	LanguagePair(userID string) types.LanguagePair

	// FirstActiveUser returns a live user for the development fallback.
	FirstActiveUser() (string, bool)
}

// Config holds the viewer-surface settings.
type Config struct {
	// APIKey signs viewer tokens.
	APIKey string

	// Production enforces token validation; non-production falls back to a
	// synthetic dev user.
	Production bool
}

// Server hosts the viewer endpoints. Safe for concurrent use.
type Server struct {
	cfg     Config
	relay   Relay
	metrics *observe.Metrics
}

// New creates a Server for the given relay.
func New(cfg Config, relay Relay, metrics *observe.Metrics) *Server {
	return &Server{cfg: cfg, relay: relay, metrics: metrics}
}

// Register adds the viewer routes to mux.
func (s *Server) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /translation-events", s.handleEvents)
	mux.HandleFunc("GET /api/language-settings", s.handleLanguageSettings)
}

// CORS returns permissive cross-origin middleware for the viewer surface.
// Deployments can front the server with stricter policies.
func CORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Headers", "Authorization, Content-Type")
		w.Header().Set("Access-Control-Allow-Methods", "GET, OPTIONS")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// authenticate resolves the requesting viewer to a user id. Tokens come
// from the Authorization header or, for EventSource clients, the token
// query parameter. In production an invalid token is rejected; otherwise
// the request falls back to the first active user or the dev user.
func (s *Server) authenticate(r *http.Request) (string, bool) {
	token := r.URL.Query().Get("token")
	if auth := r.Header.Get("Authorization"); auth != "" {
		if len(auth) > 7 && auth[:7] == "Bearer " {
			token = auth[7:]
		}
	}

	if token != "" {
		if userID, ok := verifyToken(token, s.cfg.APIKey); ok {
			return userID, true
		}
	}

	if s.cfg.Production {
		return "", false
	}

	// Development affordance: no (or invalid) token maps to whoever is
	// live, else a synthetic user.
	if userID, ok := s.relay.FirstActiveUser(); ok {
		return userID, true
	}
	return devUserID, true
}

// handleEvents is the long-lived SSE stream: connected event, conversation
// replay, then live events, framed as "event: <type>\ndata: <json>\n\n".
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	userID, ok := s.authenticate(r)
	if !ok {
		http.Error(w, `{"error":"unauthorized"}`, http.StatusUnauthorized)
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, `{"error":"streaming unsupported"}`, http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	sub := s.relay.Subscribe(userID)
	defer sub.Close()

	if s.metrics != nil {
		s.metrics.ActiveSubscribers.Add(r.Context(), 1)
		defer s.metrics.ActiveSubscribers.Add(context.Background(), -1)
	}
	slog.Debug("viewer connected", "user_id", userID)

	for {
		select {
		case ev, open := <-sub.Events():
			if !open {
				// Dropped by the hub for backpressure.
				if s.metrics != nil {
					s.metrics.SubscriberDrops.Add(context.Background(), 1)
				}
				return
			}
			if err := writeEvent(w, ev); err != nil {
				slog.Debug("viewer write failed, detaching", "user_id", userID, "err", err)
				return
			}
			flusher.Flush()
		case <-r.Context().Done():
			return
		}
	}
}

// writeEvent frames one event onto the stream.
func writeEvent(w http.ResponseWriter, ev fanout.Event) error {
	data, err := json.Marshal(ev.Data)
	if err != nil {
		return fmt.Errorf("marshal %s event: %w", ev.Type, err)
	}
	_, err = fmt.Fprintf(w, "event: %s\ndata: %s\n\n", ev.Type, data)
	return err
}

// handleLanguageSettings returns the {from, to} snapshot of the user's
// language pair.
func (s *Server) handleLanguageSettings(w http.ResponseWriter, r *http.Request) {
	userID, ok := s.authenticate(r)
	if !ok {
		http.Error(w, `{"error":"unauthorized"}`, http.StatusUnauthorized)
		return
	}

	pair := s.relay.LanguagePair(userID)
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	if err := json.NewEncoder(w).Encode(pair); err != nil {
		slog.Debug("language-settings write failed", "user_id", userID, "err", err)
	}
}
