package api

import (
	"time"

	"github.com/Muminur/auto-claude-resume-after-limit-reset-sub000/pkg/delivery"
)

// HealthResponse is returned by GET /healthz.
type HealthResponse struct {
	Status  string                 `json:"status"`
	Version string                 `json:"version"`
	Checks  map[string]HealthCheck `json:"checks"`
}

// HealthCheck is one component's health verdict.
type HealthCheck struct {
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
}

// StatusResponse is returned by GET /api/v1/status.
type StatusResponse struct {
	State         string             `json:"state"`
	PID           int                `json:"pid"`
	Version       string             `json:"version"`
	UptimeSeconds int64              `json:"uptime_seconds"`
	QueueDepth    int                `json:"queue_depth"`
	Detected      bool               `json:"detected"`
	NextEvent     *QueueEventSummary `json:"next_event,omitempty"`
	LastHookRun   *time.Time         `json:"last_hook_run,omitempty"`
	Connections   int                `json:"ws_connections"`
}

// QueueEventSummary condenses the head event for status output.
type QueueEventSummary struct {
	ID               string    `json:"id"`
	Status           string    `json:"status"`
	ResetTime        time.Time `json:"reset_time"`
	RemainingSeconds int       `json:"remaining_seconds"`
}

// ResumeNowResponse is returned by POST /api/v1/actions/resume-now.
type ResumeNowResponse struct {
	EventID string          `json:"event_id"`
	Result  delivery.Result `json:"result"`
}

// ActionResponse acknowledges a side-effect-only action.
type ActionResponse struct {
	Status string `json:"status"`
}
