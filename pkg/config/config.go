// Package config loads and persists the supervisor configuration.
//
// Configuration is a single JSON document under the per-user state
// directory. Missing keys take built-in defaults; unknown keys are
// preserved on write and ignored on read, so different builds can share
// the same file.
package config

import "time"

// Config holds every tunable the supervisor reads at startup.
// Field tags mirror the on-disk JSON keys.
type Config struct {
	// ResumePrompt is the literal text typed into the session after a
	// limit reset.
	ResumePrompt string `json:"resume_prompt"`

	// CheckIntervalMS is the queue-file polling cadence in milliseconds.
	CheckIntervalMS int `json:"check_interval_ms"`

	// PostResetDelaySec is the safety wait between the deadline elapsing
	// and keystroke delivery.
	PostResetDelaySec int `json:"post_reset_delay_sec"`

	// MaxRetries is the number of delivery retry rounds after the first
	// full pass over the tiers.
	MaxRetries int `json:"max_retries"`

	// RetryBackoffSec is the ordered wait schedule between retry rounds.
	// The last entry repeats when MaxRetries exceeds its length.
	RetryBackoffSec []int `json:"retry_backoff_sec"`

	// VerificationWindowSec is the passive verification horizon.
	VerificationWindowSec int `json:"verification_window_sec"`

	// ActiveVerificationTimeoutMS is the active transcript polling horizon.
	ActiveVerificationTimeoutMS int `json:"active_verification_timeout_ms"`

	// ActiveVerificationPollMS is the active transcript polling cadence.
	ActiveVerificationPollMS int `json:"active_verification_poll_ms"`

	// TranscriptPollingEnabled turns on the fallback transcript poller
	// that catches events missed by the hook path.
	TranscriptPollingEnabled bool `json:"transcript_polling_enabled"`

	// TranscriptPollIntervalSec is the transcript poller cadence.
	TranscriptPollIntervalSec int `json:"transcript_poll_interval_sec"`

	// MaxLogSizeMB is the log rotation threshold in MiB.
	MaxLogSizeMB int `json:"max_log_size_mb"`

	// MemoryCeilingMB is the resident-memory self-exit threshold.
	MemoryCeilingMB int `json:"memory_ceiling_mb"`

	// RetentionHours is how long completed/failed events stay in the
	// queue document before pruning.
	RetentionHours int `json:"retention_hours"`

	// ServerEnabled binds the loopback HTTP/WebSocket control server.
	ServerEnabled bool `json:"server_enabled"`

	// ServerAddr is the listen address for the control server.
	// Must resolve to a loopback interface.
	ServerAddr string `json:"server_addr"`

	// MetricsEnabled exposes /metrics on the control server.
	MetricsEnabled bool `json:"metrics_enabled"`

	// DesktopNotificationsEnabled sends a desktop notification when an
	// event exhausts every delivery tier.
	DesktopNotificationsEnabled bool `json:"desktop_notifications_enabled"`

	// SlackEnabled mirrors failure notifications to Slack. Useful for
	// headless hosts where desktop notifications have nowhere to go.
	SlackEnabled bool `json:"slack_enabled"`

	// SlackTokenEnv names the environment variable holding the bot token.
	SlackTokenEnv string `json:"slack_token_env"`

	// SlackChannel is the channel ID or name for failure notifications.
	SlackChannel string `json:"slack_channel"`

	// TriggerPhrases are extra case-insensitive substrings treated as
	// rate-limit sentinels, merged with the built-in patterns.
	TriggerPhrases []string `json:"trigger_phrases"`
}

// DefaultConfig returns the built-in defaults.
func DefaultConfig() *Config {
	return &Config{
		ResumePrompt:                "continue",
		CheckIntervalMS:             5000,
		PostResetDelaySec:           10,
		MaxRetries:                  4,
		RetryBackoffSec:             []int{10, 20, 40, 60},
		VerificationWindowSec:       90,
		ActiveVerificationTimeoutMS: 30000,
		ActiveVerificationPollMS:    2000,
		TranscriptPollingEnabled:    true,
		TranscriptPollIntervalSec:   30,
		MaxLogSizeMB:                1,
		MemoryCeilingMB:             200,
		RetentionHours:              24,
		ServerEnabled:               false,
		ServerAddr:                  "127.0.0.1:7865",
		MetricsEnabled:              true,
		DesktopNotificationsEnabled: true,
		SlackEnabled:                false,
		SlackTokenEnv:               "SLACK_BOT_TOKEN",
	}
}

// CheckInterval returns the queue polling cadence as a duration.
func (c *Config) CheckInterval() time.Duration {
	return time.Duration(c.CheckIntervalMS) * time.Millisecond
}

// PostResetDelay returns the safety wait after a deadline elapses.
func (c *Config) PostResetDelay() time.Duration {
	return time.Duration(c.PostResetDelaySec) * time.Second
}

// VerificationWindow returns the passive verification horizon.
func (c *Config) VerificationWindow() time.Duration {
	return time.Duration(c.VerificationWindowSec) * time.Second
}

// ActiveVerificationTimeout returns the active polling horizon.
func (c *Config) ActiveVerificationTimeout() time.Duration {
	return time.Duration(c.ActiveVerificationTimeoutMS) * time.Millisecond
}

// ActiveVerificationPoll returns the active polling cadence.
func (c *Config) ActiveVerificationPoll() time.Duration {
	return time.Duration(c.ActiveVerificationPollMS) * time.Millisecond
}

// TranscriptPollInterval returns the transcript poller cadence.
func (c *Config) TranscriptPollInterval() time.Duration {
	return time.Duration(c.TranscriptPollIntervalSec) * time.Second
}

// Retention returns how long terminal events are kept before pruning.
func (c *Config) Retention() time.Duration {
	return time.Duration(c.RetentionHours) * time.Hour
}

// MaxLogSizeBytes returns the rotation threshold in bytes.
func (c *Config) MaxLogSizeBytes() int64 {
	return int64(c.MaxLogSizeMB) * 1024 * 1024
}

// MemoryCeilingBytes returns the watchdog threshold in bytes.
func (c *Config) MemoryCeilingBytes() uint64 {
	return uint64(c.MemoryCeilingMB) * 1024 * 1024
}

// RetryBackoff returns the wait before retry round i. Rounds beyond the
// schedule reuse the final entry.
func (c *Config) RetryBackoff(i int) time.Duration {
	if len(c.RetryBackoffSec) == 0 {
		return 0
	}
	if i >= len(c.RetryBackoffSec) {
		i = len(c.RetryBackoffSec) - 1
	}
	return time.Duration(c.RetryBackoffSec[i]) * time.Second
}
