// Package verify confirms that delivered keystrokes actually reached a
// session. The active probe watches the session transcript for records
// written after the send; the passive fallback, used when no transcript
// is known, just checks that no fresh rate-limit detection arrived.
package verify

import (
	"bufio"
	"context"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/Muminur/auto-claude-resume-after-limit-reset-sub000/pkg/delivery"
	"github.com/Muminur/auto-claude-resume-after-limit-reset-sub000/pkg/transcript"
)

// maxRecordBytes bounds a single transcript line, matching the analyzer.
const maxRecordBytes = 4 * 1024 * 1024

// DetectionLog is the slice of the event queue the passive fallback
// needs: whether any rate-limit detection landed after a given instant.
type DetectionLog interface {
	HasDetectionAfter(t time.Time) (bool, error)
}

// Outcome is the result of one active verification probe.
type Outcome struct {
	Verified bool
	NewBytes int64
	Elapsed  time.Duration
}

// Service implements delivery.Verifier.
type Service struct {
	timeout    time.Duration
	poll       time.Duration
	window     time.Duration
	detections DetectionLog
	now        func() time.Time
}

// NewService creates a verifier. timeout and poll drive the active
// probe; window is the passive horizon. detections may be nil, in which
// case the passive path reports verified after the window elapses.
func NewService(timeout, poll, window time.Duration, detections DetectionLog) *Service {
	if poll <= 0 {
		poll = 2 * time.Second
	}
	return &Service{
		timeout:    timeout,
		poll:       poll,
		window:     window,
		detections: detections,
		now:        time.Now,
	}
}

// Baseline snapshots the transcript before keystrokes go out. A stat
// failure leaves the zero baseline, so any later appearance of the file
// counts as activity.
func (s *Service) Baseline(target delivery.Target) delivery.VerifyBaseline {
	baseline := delivery.VerifyBaseline{TranscriptPath: target.TranscriptPath}
	if target.TranscriptPath == "" {
		return baseline
	}
	info, err := os.Stat(target.TranscriptPath)
	if err != nil {
		slog.Debug("Could not stat transcript for baseline", "path", target.TranscriptPath, "error", err)
		return baseline
	}
	baseline.MTime = info.ModTime()
	baseline.Size = info.Size()
	return baseline
}

// Confirm blocks until the delivery is verified or the applicable
// window runs out.
func (s *Service) Confirm(ctx context.Context, baseline delivery.VerifyBaseline, sentAt time.Time) bool {
	if baseline.TranscriptPath == "" {
		return s.confirmPassive(ctx, sentAt)
	}
	outcome := s.Probe(ctx, baseline, sentAt)
	if outcome.Verified {
		slog.Info("Delivery verified", "new_bytes", outcome.NewBytes, "elapsed", outcome.Elapsed.Round(time.Millisecond))
	} else {
		slog.Warn("Active verification timed out", "path", baseline.TranscriptPath, "elapsed", outcome.Elapsed.Round(time.Millisecond))
	}
	return outcome.Verified
}

// Probe polls the transcript until it grows past the baseline and the
// new tail contains a record stamped at or after sentAt, or until the
// timeout measured from sentAt expires.
func (s *Service) Probe(ctx context.Context, baseline delivery.VerifyBaseline, sentAt time.Time) Outcome {
	deadline := sentAt.Add(s.timeout)
	for {
		now := s.now()
		if !now.Before(deadline) {
			return Outcome{Elapsed: now.Sub(sentAt)}
		}

		if grown, newBytes := s.transcriptGrew(baseline); grown {
			if s.tailHasRecordAfter(baseline, sentAt) {
				return Outcome{Verified: true, NewBytes: newBytes, Elapsed: s.now().Sub(sentAt)}
			}
		}

		wait := s.poll
		if remaining := deadline.Sub(s.now()); remaining < wait {
			wait = remaining
		}
		if err := sleep(ctx, wait); err != nil {
			return Outcome{Elapsed: s.now().Sub(sentAt)}
		}
	}
}

func (s *Service) transcriptGrew(baseline delivery.VerifyBaseline) (bool, int64) {
	info, err := os.Stat(baseline.TranscriptPath)
	if err != nil {
		return false, 0
	}
	if info.ModTime().After(baseline.MTime) && info.Size() > baseline.Size {
		return true, info.Size() - baseline.Size
	}
	return false, 0
}

// tailHasRecordAfter reads everything appended past the baseline and
// looks for one well-formed record stamped at or after sentAt. Partial
// trailing lines from an in-flight write simply fail the timestamp
// parse and are picked up on the next poll.
func (s *Service) tailHasRecordAfter(baseline delivery.VerifyBaseline, sentAt time.Time) bool {
	f, err := os.Open(baseline.TranscriptPath)
	if err != nil {
		return false
	}
	defer f.Close()

	if _, err := f.Seek(baseline.Size, io.SeekStart); err != nil {
		return false
	}

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 64*1024), maxRecordBytes)
	for scanner.Scan() {
		ts, ok := transcript.RecordTimestamp(scanner.Bytes())
		if ok && !ts.Before(sentAt) {
			return true
		}
	}
	return false
}

// confirmPassive waits out the verification window and reports success
// if no new rate-limit detection was enqueued after the send.
func (s *Service) confirmPassive(ctx context.Context, sentAt time.Time) bool {
	slog.Info("No transcript path, using passive verification", "window", s.window)
	if err := sleep(ctx, s.window); err != nil {
		return false
	}
	if s.detections == nil {
		return true
	}
	redetected, err := s.detections.HasDetectionAfter(sentAt)
	if err != nil {
		slog.Warn("Could not check detections for passive verification", "error", err)
		return false
	}
	return !redetected
}

func sleep(ctx context.Context, d time.Duration) error {
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
