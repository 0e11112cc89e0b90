package queue

import "time"

// Status is the lifecycle state of a rate-limit event.
type Status string

const (
	// StatusPending - detected, not yet picked up by the scheduler
	StatusPending Status = "pending"
	// StatusWaiting - adopted by the scheduler, countdown in progress
	StatusWaiting Status = "waiting"
	// StatusResuming - deadline elapsed, keystroke delivery in progress
	StatusResuming Status = "resuming"
	// StatusCompleted - delivery confirmed
	StatusCompleted Status = "completed"
	// StatusFailed - every tier and retry exhausted
	StatusFailed Status = "failed"
)

// statusRank orders the lifecycle for the forward-only transition check.
var statusRank = map[Status]int{
	StatusPending:   0,
	StatusWaiting:   1,
	StatusResuming:  2,
	StatusCompleted: 3,
	StatusFailed:    3,
}

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	_, ok := statusRank[s]
	return ok
}

// Terminal reports whether no further transitions are allowed from s.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// CanTransitionTo reports whether moving from s to next advances the
// lifecycle. Transitions never go backward and terminal states are final;
// skipping forward (pending straight to resuming on a manual resume) is
// allowed.
func (s Status) CanTransitionTo(next Status) bool {
	from, ok := statusRank[s]
	if !ok {
		return false
	}
	to, ok := statusRank[next]
	if !ok {
		return false
	}
	return !s.Terminal() && to > from
}

// RateLimitEvent is one pending or historical limit detection.
type RateLimitEvent struct {
	ID             string     `json:"id"`
	ResetTime      time.Time  `json:"reset_time"`
	Timezone       string     `json:"timezone,omitempty"`
	Message        string     `json:"message,omitempty"`
	DetectedAt     time.Time  `json:"detected_at"`
	SessionID      string     `json:"session_id,omitempty"`
	SessionPID     int        `json:"session_pid,omitempty"`
	TranscriptPath string     `json:"transcript_path,omitempty"`
	Status         Status     `json:"status"`
	CompletedAt    *time.Time `json:"completed_at,omitempty"`
}

// Active reports whether the event still needs scheduler attention.
func (e *RateLimitEvent) Active() bool {
	return !e.Status.Terminal()
}
