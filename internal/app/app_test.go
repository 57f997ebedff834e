package app

import (
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/lenslate/lenslate/internal/config"
)

func testConfig() *config.Config {
	cfg := &config.Config{}
	cfg.Server.ListenAddr = ":0"
	cfg.Upstream.URL = "wss://cloud.test/relay-ws"
	cfg.Upstream.PackageName = "com.test.lenslate"
	cfg.Upstream.APIKey = "test-key"
	return cfg
}

func TestNew_WiresRoutes(t *testing.T) {
	a, err := New(t.Context(), testConfig())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer func() {
		if err := a.Shutdown(t.Context()); err != nil {
			t.Errorf("shutdown: %v", err)
		}
	}()

	// The health probe answers with the package name.
	rec := httptest.NewRecorder()
	a.server.Handler.ServeHTTP(rec, httptest.NewRequest("GET", "/health", nil))
	if rec.Code != 200 {
		t.Fatalf("/health status = %d", rec.Code)
	}
	body := rec.Body.String()
	if !strings.Contains(body, `"status":"healthy"`) || !strings.Contains(body, "com.test.lenslate") {
		t.Errorf("/health body = %q", body)
	}

	// Readiness fails while the upstream is disconnected.
	rec = httptest.NewRecorder()
	a.server.Handler.ServeHTTP(rec, httptest.NewRequest("GET", "/readyz", nil))
	if rec.Code != 503 {
		t.Errorf("/readyz status = %d, want 503 before upstream connects", rec.Code)
	}

	// The metrics scrape endpoint is mounted.
	rec = httptest.NewRecorder()
	a.server.Handler.ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	if rec.Code != 200 {
		t.Errorf("/metrics status = %d", rec.Code)
	}

	// Language settings resolve through dev-mode auth.
	rec = httptest.NewRecorder()
	a.server.Handler.ServeHTTP(rec, httptest.NewRequest("GET", "/api/language-settings", nil))
	if rec.Code != 200 {
		t.Errorf("/api/language-settings status = %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), `"from"`) {
		t.Errorf("language settings body = %q", rec.Body.String())
	}
}
