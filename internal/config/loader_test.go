package config

import (
	"strings"
	"testing"

	"github.com/lenslate/lenslate/pkg/types"
)

const sampleYAML = `
server:
  listen_addr: ":8080"
  log_level: debug
upstream:
  url: wss://cloud.example.com/relay-ws
  package_name: com.example.lenslate
  api_key: test-key
auth:
  production: true
unsupported:
  - device_model: "Mach1"
    target_language: zh
`

func TestLoadFromReader(t *testing.T) {
	cfg, err := LoadFromReader(strings.NewReader(sampleYAML))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Server.ListenAddr != ":8080" {
		t.Errorf("listen_addr = %q", cfg.Server.ListenAddr)
	}
	if cfg.Upstream.PackageName != "com.example.lenslate" {
		t.Errorf("package_name = %q", cfg.Upstream.PackageName)
	}
	if !cfg.Auth.Production {
		t.Error("auth.production not parsed")
	}
	if len(cfg.Unsupported) != 1 || cfg.Unsupported[0].TargetLanguage != "zh" {
		t.Errorf("unsupported = %+v", cfg.Unsupported)
	}
}

func TestLoadFromReader_UnknownFieldRejected(t *testing.T) {
	_, err := LoadFromReader(strings.NewReader("serverr:\n  listen_addr: \":1\"\n"))
	if err == nil {
		t.Fatal("expected unknown-field error")
	}
}

func TestValidate_RequiredFields(t *testing.T) {
	err := Validate(&Config{})
	if err == nil {
		t.Fatal("expected validation errors for empty config")
	}
	msg := err.Error()
	for _, want := range []string{"package_name", "api_key"} {
		if !strings.Contains(msg, want) {
			t.Errorf("error %q does not mention %s", msg, want)
		}
	}
}

func TestValidate_BadLogLevel(t *testing.T) {
	cfg := &Config{}
	cfg.Upstream.PackageName = "p"
	cfg.Upstream.APIKey = "k"
	cfg.Server.LogLevel = "loud"
	if err := Validate(cfg); err == nil {
		t.Fatal("expected log level validation error")
	}
}

func TestApplyEnv(t *testing.T) {
	t.Setenv("PACKAGE_NAME", "com.env.pkg")
	t.Setenv("AUGMENTOS_API_KEY", "env-key")
	t.Setenv("PORT", "9090")
	t.Setenv("NODE_ENV", "production")

	cfg := &Config{}
	cfg.Upstream.PackageName = "com.file.pkg"
	ApplyEnv(cfg)

	if cfg.Upstream.PackageName != "com.env.pkg" {
		t.Errorf("PACKAGE_NAME overlay failed: %q", cfg.Upstream.PackageName)
	}
	if cfg.Upstream.APIKey != "env-key" {
		t.Errorf("AUGMENTOS_API_KEY overlay failed: %q", cfg.Upstream.APIKey)
	}
	if cfg.Server.ListenAddr != ":9090" {
		t.Errorf("PORT overlay failed: %q", cfg.Server.ListenAddr)
	}
	if !cfg.Auth.Production {
		t.Error("NODE_ENV=production did not enable production auth")
	}
}

func TestMergeSettings(t *testing.T) {
	t.Parallel()

	base := DefaultSettings()

	got, err := MergeSettings(base, types.UserSettings{
		TargetLanguage: "fr-FR",
		NumberOfLines:  5,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.TargetLanguage != "fr-FR" || got.NumberOfLines != 5 {
		t.Errorf("merge result = %+v", got)
	}
	if got.SourceLanguage != base.SourceLanguage {
		t.Error("unset field overwrote base")
	}

	if _, err := MergeSettings(base, types.UserSettings{NumberOfLines: 9}); err == nil {
		t.Error("expected range error for numberOfLines 9")
	}
	if _, err := MergeSettings(base, types.UserSettings{LineWidth: "huge"}); err == nil {
		t.Error("expected enum error for lineWidth huge")
	}
}

func TestLoadSettingsDescriptor_MissingFile(t *testing.T) {
	got := LoadSettingsDescriptor("/nonexistent/descriptor.json")
	if got != DefaultSettings() {
		t.Errorf("missing descriptor = %+v, want built-in defaults", got)
	}
}
