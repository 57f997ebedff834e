// Package config provides the configuration schema, loader, and settings
// descriptor for the Lenslate relay server.
package config

import (
	"github.com/lenslate/lenslate/pkg/types"
)

// LogLevel controls log verbosity for the relay server.
type LogLevel string

const (
	LogDebug LogLevel = "debug"
	LogInfo  LogLevel = "info"
	LogWarn  LogLevel = "warn"
	LogError LogLevel = "error"
)

// IsValid reports whether l is a recognised log level.
func (l LogLevel) IsValid() bool {
	switch l {
	case LogDebug, LogInfo, LogWarn, LogError:
		return true
	}
	return false
}

// Config is the root configuration structure for Lenslate.
// It is typically loaded from a YAML file using [Load] and then overlaid
// with the ecosystem environment variables via [ApplyEnv].
type Config struct {
	Server      ServerConfig       `yaml:"server"`
	Upstream    UpstreamConfig     `yaml:"upstream"`
	Auth        AuthConfig         `yaml:"auth"`
	Settings    SettingsConfig     `yaml:"settings"`
	Unsupported []UnsupportedCombo `yaml:"unsupported"`
}

// ServerConfig holds network and logging settings for the viewer-facing
// HTTP server.
type ServerConfig struct {
	// ListenAddr is the TCP address the server listens on (e.g., ":8080").
	// Overridden by the PORT environment variable. Default: ":80".
	ListenAddr string `yaml:"listen_addr"`

	// LogLevel controls verbosity.
	LogLevel LogLevel `yaml:"log_level"`
}

// UpstreamConfig describes the connection to the cloud translation source.
type UpstreamConfig struct {
	// URL is the WebSocket endpoint of the translation cloud.
	URL string `yaml:"url"`

	// PackageName identifies this app to the cloud. Overridden by the
	// PACKAGE_NAME environment variable. Required.
	PackageName string `yaml:"package_name"`

	// APIKey authenticates against the cloud and signs viewer tokens.
	// Overridden by the AUGMENTOS_API_KEY environment variable. Required.
	APIKey string `yaml:"api_key"`
}

// AuthConfig selects the viewer-authentication policy.
type AuthConfig struct {
	// Production enforces token validation on the viewer surface. In
	// non-production, missing or invalid tokens fall back to a synthetic
	// dev user (or the first active user). Overridden by NODE_ENV.
	Production bool `yaml:"production"`
}

// SettingsConfig locates the JSON descriptor holding per-user setting
// defaults.
type SettingsConfig struct {
	// DescriptorPath is the path of the JSON defaults descriptor.
	// Optional; built-in defaults apply when empty or unreadable.
	DescriptorPath string `yaml:"descriptor_path"`
}

// UnsupportedCombo marks a (device model, target language) pair the glasses
// renderer cannot display. Sessions opening with a matching combination get
// a fixed explanatory caption instead of an upstream subscription.
type UnsupportedCombo struct {
	// DeviceModel is the glasses hardware model string.
	DeviceModel string `yaml:"device_model"`

	// TargetLanguage is the primary language subtag (e.g. "zh").
	TargetLanguage string `yaml:"target_language"`
}

// DefaultSettings are the built-in per-user defaults used when the
// descriptor is absent or unreadable.
func DefaultSettings() types.UserSettings {
	return types.UserSettings{
		SourceLanguage:      "zh-CN",
		TargetLanguage:      "en-US",
		LineWidth:           types.LineWidthMedium,
		NumberOfLines:       3,
		DisplayMode:         types.DisplayEverything,
		ConfidenceHeuristic: types.HeuristicHybrid,
	}
}
