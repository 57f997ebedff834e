package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"gopkg.in/yaml.v3"
)

// defaultListenAddr is used when neither the config file nor PORT set an
// address.
const defaultListenAddr = ":80"

// Load reads the YAML configuration file at path, applies the environment
// overlay, and returns a validated [Config]. A missing file is not an error:
// the ecosystem variables alone are a complete configuration.
func Load(path string) (*Config, error) {
	cfg := &Config{}

	if path != "" {
		f, err := os.Open(path)
		switch {
		case errors.Is(err, os.ErrNotExist):
			slog.Info("config file not found, using environment only", "path", path)
		case err != nil:
			return nil, fmt.Errorf("config: open %q: %w", path, err)
		default:
			defer f.Close()
			cfg, err = LoadFromReader(f)
			if err != nil {
				return nil, fmt.Errorf("config: parse %q: %w", path, err)
			}
		}
	}

	ApplyEnv(cfg)

	if cfg.Server.ListenAddr == "" {
		cfg.Server.ListenAddr = defaultListenAddr
	}

	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadFromReader decodes a YAML config from r without applying the
// environment overlay or validation. Useful in tests where configs are
// constructed from string literals.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := &Config{}
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	return cfg, nil
}

// ApplyEnv overlays the glasses-ecosystem environment variables onto cfg.
// Environment values win over file values.
//
//	PACKAGE_NAME      → Upstream.PackageName
//	AUGMENTOS_API_KEY → Upstream.APIKey
//	PORT              → Server.ListenAddr (":<port>")
//	NODE_ENV          → Auth.Production (true when "production")
func ApplyEnv(cfg *Config) {
	if v := os.Getenv("PACKAGE_NAME"); v != "" {
		cfg.Upstream.PackageName = v
	}
	if v := os.Getenv("AUGMENTOS_API_KEY"); v != "" {
		cfg.Upstream.APIKey = v
	}
	if v := os.Getenv("PORT"); v != "" {
		cfg.Server.ListenAddr = ":" + v
	}
	if v := os.Getenv("NODE_ENV"); v != "" {
		cfg.Auth.Production = v == "production"
	}
}

// Validate checks that cfg contains a coherent set of values. It returns a
// joined error listing all validation failures found: missing credentials,
// an invalid log level, and incomplete unsupported entries. [Load] returns
// any of them as an error, which stops startup.
func Validate(cfg *Config) error {
	var errs []error

	if cfg.Upstream.PackageName == "" {
		errs = append(errs, errors.New("upstream.package_name is required (or set PACKAGE_NAME)"))
	}
	if cfg.Upstream.APIKey == "" {
		errs = append(errs, errors.New("upstream.api_key is required (or set AUGMENTOS_API_KEY)"))
	}
	if cfg.Server.LogLevel != "" && !cfg.Server.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("server.log_level %q is invalid; valid values: debug, info, warn, error", cfg.Server.LogLevel))
	}

	for i, combo := range cfg.Unsupported {
		prefix := fmt.Sprintf("unsupported[%d]", i)
		if combo.DeviceModel == "" {
			errs = append(errs, fmt.Errorf("%s.device_model is required", prefix))
		}
		if combo.TargetLanguage == "" {
			errs = append(errs, fmt.Errorf("%s.target_language is required", prefix))
		}
	}

	return errors.Join(errs...)
}
