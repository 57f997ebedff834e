// Package app wires the Lenslate relay together: upstream client, session
// registry, viewer HTTP server, and observability.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"github.com/lenslate/lenslate/internal/config"
	"github.com/lenslate/lenslate/internal/health"
	"github.com/lenslate/lenslate/internal/httpapi"
	"github.com/lenslate/lenslate/internal/observe"
	"github.com/lenslate/lenslate/internal/relay"
	"github.com/lenslate/lenslate/internal/upstream"
	"github.com/lenslate/lenslate/pkg/types"
)

// shutdownTimeout bounds the HTTP server drain on exit.
const shutdownTimeout = 10 * time.Second

// Option configures optional application collaborators.
type Option func(*App)

// WithTransliterator injects the pinyin transliteration function used for
// Chinese-Pinyin display targets.
func WithTransliterator(fn func(string) string) Option {
	return func(a *App) {
		a.transliterate = fn
	}
}

// App is the composed relay server.
type App struct {
	cfg      *config.Config
	registry *relay.Registry
	client   *upstream.Client
	server   *http.Server

	transliterate func(string) string
}

// New builds the application from configuration. The OTel provider should
// already be initialised (see observe.InitProvider) so that metrics land in
// the Prometheus registry served at /metrics.
func New(ctx context.Context, cfg *config.Config, opts ...Option) (*App, error) {
	a := &App{cfg: cfg}
	for _, o := range opts {
		o(a)
	}

	metrics := observe.DefaultMetrics()
	defaults := config.LoadSettingsDescriptor(cfg.Settings.DescriptorPath)

	// The upstream client is both the event source and the glasses sink,
	// so it is created first with a late-bound handler.
	handler := &engineHandler{}
	client, err := upstream.New(upstream.Config{
		URL:         cfg.Upstream.URL,
		PackageName: cfg.Upstream.PackageName,
		APIKey:      cfg.Upstream.APIKey,
	}, handler)
	if err != nil {
		return nil, fmt.Errorf("app: create upstream client: %w", err)
	}

	registry := relay.NewRegistry(relay.Config{
		Sink:          client,
		Defaults:      defaults,
		Unsupported:   cfg.Unsupported,
		Transliterate: a.transliterate,
		Metrics:       metrics,
	})
	handler.registry = registry

	viewer := httpapi.New(httpapi.Config{
		APIKey:     cfg.Upstream.APIKey,
		Production: cfg.Auth.Production,
	}, registry, metrics)

	probes := health.New(cfg.Upstream.PackageName, health.Checker{
		Name: "upstream",
		Check: func(context.Context) error {
			if !client.Connected() {
				return errors.New("upstream disconnected")
			}
			return nil
		},
	})

	mux := http.NewServeMux()
	viewer.Register(mux)
	probes.Register(mux)
	mux.Handle("GET /metrics", promhttp.Handler())

	a.registry = registry
	a.client = client
	a.server = &http.Server{
		Addr:    cfg.Server.ListenAddr,
		Handler: httpapi.CORS(observe.Middleware(metrics)(mux)),
	}

	_ = ctx // reserved for future async init
	return a, nil
}

// Run serves until ctx is cancelled or a component fails fatally.
func (a *App) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return a.client.Run(ctx)
	})

	g.Go(func() error {
		slog.Info("viewer surface listening", "addr", a.server.Addr)
		err := a.server.ListenAndServe()
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	})

	g.Go(func() error {
		<-ctx.Done()
		drainCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return a.server.Shutdown(drainCtx)
	})

	return g.Wait()
}

// Shutdown stops all sessions and detaches all viewers.
func (a *App) Shutdown(ctx context.Context) error {
	a.registry.Shutdown(ctx)
	return nil
}

// engineHandler adapts the upstream stream to the session registry. The
// registry field is bound right after construction (the upstream client and
// the registry reference each other).
type engineHandler struct {
	registry *relay.Registry
}

func (h *engineHandler) SessionOpen(userID, sessionID, deviceModel string, settings types.UserSettings) {
	err := h.registry.Open(userID, sessionID, deviceModel, settings)
	if err != nil && !errors.Is(err, relay.ErrUnsupported) {
		slog.Error("session open failed", "user_id", userID, "err", err)
	}
}

func (h *engineHandler) SessionStop(userID string) {
	h.registry.Stop(userID)
}

func (h *engineHandler) SettingsUpdate(userID string, settings types.UserSettings) {
	h.registry.UpdateSettings(userID, settings)
}

func (h *engineHandler) Translation(ev types.TranslationEvent) {
	h.registry.Translation(ev)
}
