package config

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"

	"dario.cat/mergo"
	"github.com/google/renameio/v2"
)

// Initialize loads, merges, and validates configuration from the state
// directory. This is the primary entry point for configuration loading.
//
// Steps performed:
//  1. Start from built-in defaults
//  2. Overlay config.json if present (a missing file is not an error)
//  3. Re-apply explicitly set boolean keys
//  4. Validate the result
func Initialize(stateDir string) (*Config, error) {
	path := NewPaths(stateDir).ConfigFile()
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			slog.Debug("No config file, using defaults", "path", path)
			if err := validate(cfg); err != nil {
				return nil, err
			}
			return cfg, nil
		}
		return nil, NewLoadError(path, err)
	}

	overlay := &Config{}
	if err := json.Unmarshal(data, overlay); err != nil {
		return nil, NewLoadError(path, fmt.Errorf("%w: %v", ErrInvalidJSON, err))
	}

	// Merge file values into defaults (non-zero values override).
	if err := mergo.Merge(cfg, overlay, mergo.WithOverride); err != nil {
		return nil, NewLoadError(path, err)
	}

	// mergo treats false as unset, so booleans that default to true need
	// the raw document consulted for an explicit false.
	if err := applyExplicitFlags(cfg, data); err != nil {
		return nil, NewLoadError(path, err)
	}

	if err := validate(cfg); err != nil {
		return nil, err
	}

	slog.Debug("Configuration loaded",
		"path", path,
		"check_interval_ms", cfg.CheckIntervalMS,
		"transcript_polling", cfg.TranscriptPollingEnabled,
		"server_enabled", cfg.ServerEnabled)

	return cfg, nil
}

// explicitFlags mirrors the boolean keys of Config with pointer fields so
// an explicit false in the document is distinguishable from an absent key.
type explicitFlags struct {
	TranscriptPollingEnabled    *bool `json:"transcript_polling_enabled"`
	ServerEnabled               *bool `json:"server_enabled"`
	MetricsEnabled              *bool `json:"metrics_enabled"`
	DesktopNotificationsEnabled *bool `json:"desktop_notifications_enabled"`
	SlackEnabled                *bool `json:"slack_enabled"`
}

func applyExplicitFlags(cfg *Config, data []byte) error {
	var flags explicitFlags
	if err := json.Unmarshal(data, &flags); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidJSON, err)
	}
	if flags.TranscriptPollingEnabled != nil {
		cfg.TranscriptPollingEnabled = *flags.TranscriptPollingEnabled
	}
	if flags.ServerEnabled != nil {
		cfg.ServerEnabled = *flags.ServerEnabled
	}
	if flags.MetricsEnabled != nil {
		cfg.MetricsEnabled = *flags.MetricsEnabled
	}
	if flags.DesktopNotificationsEnabled != nil {
		cfg.DesktopNotificationsEnabled = *flags.DesktopNotificationsEnabled
	}
	if flags.SlackEnabled != nil {
		cfg.SlackEnabled = *flags.SlackEnabled
	}
	return nil
}

// Save writes cfg to the config file with atomic replace.
func Save(stateDir string, cfg *Config) error {
	paths := NewPaths(stateDir)
	if err := paths.Ensure(); err != nil {
		return fmt.Errorf("creating state dir: %w", err)
	}
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding config: %w", err)
	}
	if err := renameio.WriteFile(paths.ConfigFile(), append(data, '\n'), 0o644); err != nil {
		return fmt.Errorf("writing config: %w", err)
	}
	return nil
}

// Set parses value for key, updates the on-disk document in place, and
// returns the re-validated effective configuration. Keys this build does
// not know are preserved untouched in the document.
func Set(stateDir, key, value string) (*Config, error) {
	parsed, err := parseValue(key, value)
	if err != nil {
		return nil, err
	}

	paths := NewPaths(stateDir)
	if err := paths.Ensure(); err != nil {
		return nil, fmt.Errorf("creating state dir: %w", err)
	}

	doc := map[string]any{}
	if data, err := os.ReadFile(paths.ConfigFile()); err == nil {
		if err := json.Unmarshal(data, &doc); err != nil {
			return nil, NewLoadError(paths.ConfigFile(), fmt.Errorf("%w: %v", ErrInvalidJSON, err))
		}
	} else if !os.IsNotExist(err) {
		return nil, NewLoadError(paths.ConfigFile(), err)
	}
	doc[key] = parsed

	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encoding config: %w", err)
	}
	if err := renameio.WriteFile(paths.ConfigFile(), append(data, '\n'), 0o644); err != nil {
		return nil, fmt.Errorf("writing config: %w", err)
	}

	cfg, err := Initialize(stateDir)
	if err != nil {
		return nil, fmt.Errorf("config invalid after set %s=%s: %w", key, value, err)
	}
	return cfg, nil
}

// parseValue converts a command-line string into the typed value for key.
func parseValue(key, value string) (any, error) {
	switch key {
	case "resume_prompt", "server_addr", "slack_token_env", "slack_channel":
		return value, nil
	case "check_interval_ms", "post_reset_delay_sec", "max_retries",
		"verification_window_sec", "active_verification_timeout_ms",
		"active_verification_poll_ms", "transcript_poll_interval_sec",
		"max_log_size_mb", "memory_ceiling_mb", "retention_hours":
		n, err := strconv.Atoi(value)
		if err != nil {
			return nil, NewValidationError(key, value, fmt.Errorf("%w: not an integer", ErrInvalidValue))
		}
		return n, nil
	case "transcript_polling_enabled", "server_enabled", "metrics_enabled",
		"desktop_notifications_enabled", "slack_enabled":
		b, err := strconv.ParseBool(value)
		if err != nil {
			return nil, NewValidationError(key, value, fmt.Errorf("%w: not a boolean", ErrInvalidValue))
		}
		return b, nil
	case "retry_backoff_sec":
		parts := strings.Split(value, ",")
		out := make([]int, 0, len(parts))
		for _, p := range parts {
			n, err := strconv.Atoi(strings.TrimSpace(p))
			if err != nil {
				return nil, NewValidationError(key, value, fmt.Errorf("%w: not a comma-separated integer list", ErrInvalidValue))
			}
			out = append(out, n)
		}
		return out, nil
	case "trigger_phrases":
		parts := strings.Split(value, ",")
		out := make([]string, 0, len(parts))
		for _, p := range parts {
			if s := strings.TrimSpace(p); s != "" {
				out = append(out, s)
			}
		}
		return out, nil
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownKey, key)
	}
}
