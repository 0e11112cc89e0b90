// Package scheduler drives the countdown for the head-of-queue event:
// it ticks once a second until the reset deadline, waits the safety
// delay, then hands the event to the delivery orchestrator and records
// the outcome.
package scheduler

import (
	"context"
	"log/slog"
	"time"

	"github.com/Muminur/auto-claude-resume-after-limit-reset-sub000/pkg/delivery"
	"github.com/Muminur/auto-claude-resume-after-limit-reset-sub000/pkg/events"
	"github.com/Muminur/auto-claude-resume-after-limit-reset-sub000/pkg/metrics"
	"github.com/Muminur/auto-claude-resume-after-limit-reset-sub000/pkg/notify"
	"github.com/Muminur/auto-claude-resume-after-limit-reset-sub000/pkg/queue"
	"github.com/Muminur/auto-claude-resume-after-limit-reset-sub000/pkg/resettime"
)

// logTickEvery throttles countdown logging; the per-second stream goes
// to the progress sink and the event hub, not the log file.
const logTickEvery = time.Minute

// Orchestrator runs the tier chain for one event. Satisfied by
// delivery.Orchestrator.
type Orchestrator interface {
	Deliver(ctx context.Context, target delivery.Target, prompt string) delivery.Result
}

// Update is one countdown tick handed to the progress sink.
type Update struct {
	EventID   string
	ResetTime time.Time
	Remaining time.Duration
	Display   string
}

// Config wires a Scheduler.
type Config struct {
	Store        *queue.Store
	Orchestrator Orchestrator
	Notifier     *notify.Service
	Hub          *events.Hub

	// Recheck is signalled by the watcher whenever the queue document
	// changes; the scheduler re-peeks the head on it.
	Recheck <-chan struct{}

	// PostResetDelay is the safety margin after the provider-announced
	// reset before keystrokes go out.
	PostResetDelay time.Duration

	// ResumePrompt is the text typed into the session.
	ResumePrompt string

	// Progress, when set, receives one Update per countdown second.
	// Used by the foreground monitor mode.
	Progress func(Update)
}

// Scheduler owns the countdown loop. One per daemon.
type Scheduler struct {
	cfg Config
	now func() time.Time
}

// New creates a Scheduler.
func New(cfg Config) *Scheduler {
	return &Scheduler{cfg: cfg, now: time.Now}
}

// Run blocks until ctx is cancelled, processing head events as the
// watcher surfaces them.
func (s *Scheduler) Run(ctx context.Context) error {
	for {
		head, err := s.awaitHead(ctx)
		if err != nil {
			return err
		}
		s.process(ctx, head)
	}
}

// awaitHead returns the next pending event, blocking on the recheck
// signal while the queue is empty.
func (s *Scheduler) awaitHead(ctx context.Context) (*queue.RateLimitEvent, error) {
	for {
		head, err := s.cfg.Store.PeekNextPending()
		if err != nil {
			slog.Warn("Could not peek queue", "error", err)
		}
		if head != nil {
			return head, nil
		}
		metrics.SetCountdown(0)

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-s.cfg.Recheck:
		}
	}
}

// process runs one event from waiting through its terminal status. A
// queue change that replaces the head mid-countdown abandons this event
// back to pending and starts over.
func (s *Scheduler) process(ctx context.Context, head *queue.RateLimitEvent) {
	// A head re-picked after an earlier event superseded it is already
	// waiting; only a fresh head needs the transition.
	if head.Status == queue.StatusPending {
		if _, err := s.cfg.Store.UpdateStatus(head.ID, queue.StatusWaiting); err != nil {
			slog.Warn("Could not mark event waiting", "id", head.ID, "error", err)
			return
		}
	}
	slog.Info("Countdown started",
		"id", head.ID,
		"reset_time", head.ResetTime.Format(time.RFC3339),
		"remaining", resettime.FormatRemaining(head.ResetTime.Sub(s.now())))

	switch s.countdown(ctx, head) {
	case countdownFired:
	case countdownSuperseded:
		slog.Info("Head event changed, restarting countdown", "abandoned", head.ID)
		return
	case countdownCancelled:
		return
	}

	if err := sleepCtx(ctx, s.cfg.PostResetDelay); err != nil {
		return
	}
	s.resume(ctx, head)
}

type countdownOutcome int

const (
	countdownFired countdownOutcome = iota
	countdownSuperseded
	countdownCancelled
)

func (s *Scheduler) countdown(ctx context.Context, head *queue.RateLimitEvent) countdownOutcome {
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()
	lastLogged := time.Time{}

	for {
		remaining := head.ResetTime.Sub(s.now())
		if remaining <= 0 {
			return countdownFired
		}
		s.publishTick(head, remaining)
		if now := s.now(); now.Sub(lastLogged) >= logTickEvery {
			lastLogged = now
			slog.Info("Waiting for reset", "id", head.ID, "remaining", resettime.FormatRemaining(remaining))
		}

		select {
		case <-ctx.Done():
			return countdownCancelled
		case <-s.cfg.Recheck:
			current, err := s.cfg.Store.PeekNextPending()
			if err != nil {
				continue
			}
			// The queue was reset, or an earlier event arrived.
			if current == nil || current.ID != head.ID {
				return countdownSuperseded
			}
		case <-ticker.C:
		}
	}
}

func (s *Scheduler) publishTick(head *queue.RateLimitEvent, remaining time.Duration) {
	display := resettime.FormatRemaining(remaining)
	metrics.SetCountdown(remaining)
	s.cfg.Hub.Publish(events.TypeCountdownTick, events.CountdownPayload{
		EventID:          head.ID,
		ResetTime:        head.ResetTime,
		RemainingSeconds: int(remaining.Seconds()),
		Display:          display,
	})
	if s.cfg.Progress != nil {
		s.cfg.Progress(Update{
			EventID:   head.ID,
			ResetTime: head.ResetTime,
			Remaining: remaining,
			Display:   display,
		})
	}
}

// ResumeNow skips any countdown and delivers for the current head event
// immediately. A countdown in flight for the same event notices the
// status change on its next recheck and stands down.
func (s *Scheduler) ResumeNow(ctx context.Context) (*queue.RateLimitEvent, delivery.Result, error) {
	head, err := s.cfg.Store.PeekNextPending()
	if err != nil {
		return nil, delivery.Result{}, err
	}
	if head == nil {
		return nil, delivery.Result{}, queue.ErrEventNotFound
	}
	return head, s.resume(ctx, head), nil
}

// resume marks the event resuming, runs the orchestrator, and records
// the terminal status.
func (s *Scheduler) resume(ctx context.Context, head *queue.RateLimitEvent) delivery.Result {
	if _, err := s.cfg.Store.UpdateStatus(head.ID, queue.StatusResuming); err != nil {
		slog.Warn("Could not mark event resuming", "id", head.ID, "error", err)
		return delivery.Result{Error: err.Error()}
	}
	metrics.SetCountdown(0)
	s.cfg.Hub.Publish(events.TypeDeliveryStarted, events.DeliveryPayload{EventID: head.ID})
	slog.Info("Reset reached, delivering keystrokes", "id", head.ID)

	target := delivery.Target{
		SessionPID:     head.SessionPID,
		TranscriptPath: head.TranscriptPath,
	}
	result := s.cfg.Orchestrator.Deliver(ctx, target, s.cfg.ResumePrompt)

	if result.Success {
		if _, err := s.cfg.Store.UpdateStatus(head.ID, queue.StatusCompleted); err != nil {
			slog.Warn("Could not mark event completed", "id", head.ID, "error", err)
		}
		slog.Info("Session resumed", "id", head.ID, "tier", result.TierUsed)
		s.cfg.Hub.Publish(events.TypeDeliveryCompleted, events.DeliveryPayload{
			EventID:        head.ID,
			TierUsed:       result.TierUsed,
			TiersAttempted: result.TiersAttempted,
		})
		s.cfg.Notifier.NotifyResumeSucceeded(ctx, notify.ResumeResultInput{
			EventID:        head.ID,
			ResetTime:      head.ResetTime,
			TierUsed:       result.TierUsed,
			TiersAttempted: result.TiersAttempted,
		})
		return result
	}

	if _, err := s.cfg.Store.UpdateStatus(head.ID, queue.StatusFailed); err != nil {
		slog.Warn("Could not mark event failed", "id", head.ID, "error", err)
	}
	slog.Error("All delivery attempts failed",
		"id", head.ID,
		"tiers_attempted", result.TiersAttempted,
		"error", result.Error)
	s.cfg.Hub.Publish(events.TypeDeliveryFailed, events.DeliveryPayload{
		EventID:        head.ID,
		TiersAttempted: result.TiersAttempted,
		Error:          result.Error,
	})
	s.cfg.Notifier.NotifyResumeFailed(ctx, notify.ResumeResultInput{
		EventID:        head.ID,
		ResetTime:      head.ResetTime,
		TiersAttempted: result.TiersAttempted,
		Error:          result.Error,
	})
	return result
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
