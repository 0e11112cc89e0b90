// Package notify fans user-facing events out to the configured sinks:
// a desktop notification popup and an optional Slack channel. All sinks
// fail open; a notification that cannot be delivered is logged and
// dropped, never propagated to the caller.
package notify

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// LimitDetectedInput describes a freshly queued rate-limit event.
type LimitDetectedInput struct {
	EventID   string
	ResetTime time.Time
	Timezone  string
	Message   string
}

// ResumeResultInput describes a finished delivery run.
type ResumeResultInput struct {
	EventID        string
	ResetTime      time.Time
	TierUsed       string
	TiersAttempted []string
	Error          string
}

// Service delivers notifications to every configured sink.
// Nil-safe: all methods are no-ops when service is nil.
type Service struct {
	desktop *DesktopNotifier
	slack   *SlackNotifier
	logger  *slog.Logger
}

// NewService creates the notification service. Returns nil when no sink
// is configured, so callers can hold a nil *Service and skip every
// notification without branching.
func NewService(desktop *DesktopNotifier, slack *SlackNotifier) *Service {
	if desktop == nil && slack == nil {
		return nil
	}
	return &Service{
		desktop: desktop,
		slack:   slack,
		logger:  slog.Default().With("component", "notify"),
	}
}

// NotifyLimitDetected announces a new event and its scheduled resume.
func (s *Service) NotifyLimitDetected(ctx context.Context, input LimitDetectedInput) {
	if s == nil {
		return
	}
	body := fmt.Sprintf("Rate limit detected. Auto-resume scheduled for %s.",
		formatReset(input.ResetTime, input.Timezone))
	s.desktop.Send(ctx, "Rate limit hit", body)
	s.slack.PostDetected(ctx, input)
}

// NotifyResumeSucceeded announces a verified resume.
func (s *Service) NotifyResumeSucceeded(ctx context.Context, input ResumeResultInput) {
	if s == nil {
		return
	}
	body := fmt.Sprintf("Session resumed via %s.", input.TierUsed)
	s.desktop.Send(ctx, "Session resumed", body)
	s.slack.PostResult(ctx, input, true)
}

// NotifyResumeFailed announces an exhausted delivery run. This is the
// one notification that matters most: the user has to resume by hand.
func (s *Service) NotifyResumeFailed(ctx context.Context, input ResumeResultInput) {
	if s == nil {
		return
	}
	body := "Automatic resume failed. Please resume the session manually."
	if input.Error != "" {
		body = fmt.Sprintf("Automatic resume failed (%s). Please resume the session manually.", input.Error)
	}
	s.desktop.Send(ctx, "Resume failed", body)
	s.slack.PostResult(ctx, input, false)
}

func formatReset(resetTime time.Time, timezone string) string {
	if timezone != "" {
		if loc, err := time.LoadLocation(timezone); err == nil {
			return resetTime.In(loc).Format("3:04pm MST")
		}
	}
	return resetTime.UTC().Format("15:04 UTC")
}
