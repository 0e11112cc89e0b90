package config

import (
	"fmt"
	"net"
)

// validate performs validation on the effective configuration.
func validate(cfg *Config) error {
	if cfg.ResumePrompt == "" {
		return NewValidationError("resume_prompt", nil, ErrMissingRequiredField)
	}
	if cfg.CheckIntervalMS <= 0 {
		return NewValidationError("check_interval_ms", cfg.CheckIntervalMS, fmt.Errorf("%w: must be positive", ErrInvalidValue))
	}
	if cfg.PostResetDelaySec < 0 {
		return NewValidationError("post_reset_delay_sec", cfg.PostResetDelaySec, fmt.Errorf("%w: must not be negative", ErrInvalidValue))
	}
	if cfg.MaxRetries < 0 {
		return NewValidationError("max_retries", cfg.MaxRetries, fmt.Errorf("%w: must not be negative", ErrInvalidValue))
	}
	if len(cfg.RetryBackoffSec) == 0 {
		return NewValidationError("retry_backoff_sec", nil, fmt.Errorf("%w: schedule must not be empty", ErrInvalidValue))
	}
	for _, sec := range cfg.RetryBackoffSec {
		if sec < 0 {
			return NewValidationError("retry_backoff_sec", sec, fmt.Errorf("%w: entries must not be negative", ErrInvalidValue))
		}
	}
	if cfg.VerificationWindowSec <= 0 {
		return NewValidationError("verification_window_sec", cfg.VerificationWindowSec, fmt.Errorf("%w: must be positive", ErrInvalidValue))
	}
	if cfg.ActiveVerificationTimeoutMS <= 0 {
		return NewValidationError("active_verification_timeout_ms", cfg.ActiveVerificationTimeoutMS, fmt.Errorf("%w: must be positive", ErrInvalidValue))
	}
	if cfg.ActiveVerificationPollMS <= 0 {
		return NewValidationError("active_verification_poll_ms", cfg.ActiveVerificationPollMS, fmt.Errorf("%w: must be positive", ErrInvalidValue))
	}
	if cfg.TranscriptPollIntervalSec <= 0 {
		return NewValidationError("transcript_poll_interval_sec", cfg.TranscriptPollIntervalSec, fmt.Errorf("%w: must be positive", ErrInvalidValue))
	}
	if cfg.MaxLogSizeMB <= 0 {
		return NewValidationError("max_log_size_mb", cfg.MaxLogSizeMB, fmt.Errorf("%w: must be positive", ErrInvalidValue))
	}
	if cfg.MemoryCeilingMB <= 0 {
		return NewValidationError("memory_ceiling_mb", cfg.MemoryCeilingMB, fmt.Errorf("%w: must be positive", ErrInvalidValue))
	}
	if cfg.RetentionHours <= 0 {
		return NewValidationError("retention_hours", cfg.RetentionHours, fmt.Errorf("%w: must be positive", ErrInvalidValue))
	}
	if cfg.ServerEnabled {
		if err := validateLoopbackAddr(cfg.ServerAddr); err != nil {
			return NewValidationError("server_addr", cfg.ServerAddr, err)
		}
	}
	if cfg.SlackEnabled {
		if cfg.SlackTokenEnv == "" {
			return NewValidationError("slack_token_env", nil, ErrMissingRequiredField)
		}
		if cfg.SlackChannel == "" {
			return NewValidationError("slack_channel", nil, ErrMissingRequiredField)
		}
	}
	return nil
}

// validateLoopbackAddr rejects listen addresses that would expose the
// control server beyond the local host.
func validateLoopbackAddr(addr string) error {
	host, _, err := net.SplitHostPort(addr)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidValue, err)
	}
	if host == "localhost" {
		return nil
	}
	ip := net.ParseIP(host)
	if ip == nil || !ip.IsLoopback() {
		return fmt.Errorf("%w: control server must bind a loopback address", ErrInvalidValue)
	}
	return nil
}
