package config

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"

	"github.com/lenslate/lenslate/pkg/types"
)

// LoadSettingsDescriptor reads the JSON defaults descriptor at path and
// returns the per-user default settings. Any read or parse failure falls
// back to the built-in defaults with a single warning log — a broken
// descriptor must not take the relay down.
func LoadSettingsDescriptor(path string) types.UserSettings {
	defaults := DefaultSettings()
	if path == "" {
		return defaults
	}

	data, err := os.ReadFile(path)
	if err != nil {
		slog.Warn("settings descriptor unreadable, using built-in defaults", "path", path, "err", err)
		return defaults
	}

	var loaded types.UserSettings
	if err := json.Unmarshal(data, &loaded); err != nil {
		slog.Warn("settings descriptor malformed, using built-in defaults", "path", path, "err", err)
		return defaults
	}

	merged, err := MergeSettings(defaults, loaded)
	if err != nil {
		slog.Warn("settings descriptor rejected, using built-in defaults", "path", path, "err", err)
		return defaults
	}
	return merged
}

// MergeSettings overlays non-zero fields of update onto base, validating
// enum values and ranges. Invalid fields abort the merge so callers keep a
// known-good settings object.
func MergeSettings(base, update types.UserSettings) (types.UserSettings, error) {
	out := base

	if update.SourceLanguage != "" {
		out.SourceLanguage = update.SourceLanguage
	}
	if update.TargetLanguage != "" {
		out.TargetLanguage = update.TargetLanguage
	}
	if update.LineWidth != "" {
		if !update.LineWidth.IsValid() {
			return base, fmt.Errorf("settings: lineWidth %q is invalid; valid values: small, medium, large", update.LineWidth)
		}
		out.LineWidth = update.LineWidth
	}
	if update.NumberOfLines != 0 {
		if update.NumberOfLines < 1 || update.NumberOfLines > 5 {
			return base, fmt.Errorf("settings: numberOfLines %d is out of range [1, 5]", update.NumberOfLines)
		}
		out.NumberOfLines = update.NumberOfLines
	}
	if update.DisplayMode != "" {
		if !update.DisplayMode.IsValid() {
			return base, fmt.Errorf("settings: displayMode %q is invalid; valid values: everything, translations", update.DisplayMode)
		}
		out.DisplayMode = update.DisplayMode
	}
	if update.ConfidenceHeuristic != "" {
		if !update.ConfidenceHeuristic.IsValid() {
			return base, fmt.Errorf("settings: confidenceHeuristic %q is invalid", update.ConfidenceHeuristic)
		}
		out.ConfidenceHeuristic = update.ConfidenceHeuristic
	}

	return out, nil
}
