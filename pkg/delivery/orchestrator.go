package delivery

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/Muminur/auto-claude-resume-after-limit-reset-sub000/pkg/metrics"
)

// VerifyBaseline snapshots the transcript state before keystrokes go
// out, so verification can distinguish new activity from what was
// already there.
type VerifyBaseline struct {
	TranscriptPath string
	MTime          time.Time
	Size           int64
}

// Verifier confirms that a delivery actually reached the session.
// Baseline is taken before the keystrokes are sent; Confirm blocks
// until the session shows post-delivery activity or its window runs
// out.
type Verifier interface {
	Baseline(target Target) VerifyBaseline
	Confirm(ctx context.Context, baseline VerifyBaseline, sentAt time.Time) bool
}

// Result is the outcome of one full delivery run, including retries.
type Result struct {
	Success        bool     `json:"success"`
	TierUsed       string   `json:"tier_used,omitempty"`
	TiersAttempted []string `json:"tiers_attempted"`
	Error          string   `json:"error,omitempty"`
}

// Orchestrator walks the tier chain until one delivery verifies or the
// retry budget runs out. Availability is probed fresh before every
// attempt; a tier that was unavailable in one round may serve the next.
type Orchestrator struct {
	tiers      []Tier
	verifier   Verifier
	maxRetries int
	backoff    func(attempt int) time.Duration
	now        func() time.Time
}

// NewOrchestrator creates an orchestrator over the given tiers, sorted
// by priority. backoff maps a retry index to its wait; a nil verifier
// treats every successful send as confirmed.
func NewOrchestrator(tiers []Tier, verifier Verifier, maxRetries int, backoff func(int) time.Duration) *Orchestrator {
	sorted := make([]Tier, len(tiers))
	copy(sorted, tiers)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Priority() < sorted[j].Priority() })
	if backoff == nil {
		backoff = func(int) time.Duration { return 0 }
	}
	return &Orchestrator{
		tiers:      sorted,
		verifier:   verifier,
		maxRetries: maxRetries,
		backoff:    backoff,
		now:        time.Now,
	}
}

// DefaultTiers builds the production tier chain.
func DefaultTiers(runner Runner) []Tier {
	return []Tier{NewTmuxTier(runner), NewPTYTier(runner), NewNativeTier(runner)}
}

// Deliver runs the full attempt-verify-retry loop for one target.
//
// The first pass tries every available tier once in priority order.
// Each retry round waits its backoff, re-probes availability, and
// re-attempts the highest-priority available tier. TiersAttempted
// records the order in which tiers were first tried.
func (o *Orchestrator) Deliver(ctx context.Context, target Target, prompt string) Result {
	keys := Sequence(prompt)
	attempted := []string{}
	seen := make(map[string]bool)
	var lastErr error

	record := func(t Tier) {
		if !seen[t.Name()] {
			seen[t.Name()] = true
			attempted = append(attempted, t.Name())
		}
	}

	attempt := func(t Tier) bool {
		record(t)
		var baseline VerifyBaseline
		if o.verifier != nil {
			baseline = o.verifier.Baseline(target)
		}
		sentAt := o.now()
		if err := t.Deliver(ctx, target, keys); err != nil {
			lastErr = err
			metrics.RecordDelivery(t.Name(), false)
			slog.Warn("Delivery attempt failed", "tier", t.Name(), "error", err)
			return false
		}
		if o.verifier == nil {
			metrics.RecordDelivery(t.Name(), true)
			return true
		}
		verified := o.verifier.Confirm(ctx, baseline, sentAt)
		metrics.RecordVerification(verified)
		metrics.RecordDelivery(t.Name(), verified)
		if !verified {
			lastErr = fmt.Errorf("%w via %s", ErrNotVerified, t.Name())
			slog.Warn("Delivery not verified", "tier", t.Name())
			return false
		}
		return true
	}

	fail := func() Result {
		err := ErrAllTiersExhausted.Error()
		if lastErr != nil {
			err = fmt.Sprintf("%s: %s", err, lastErr)
		}
		return Result{TiersAttempted: attempted, Error: err}
	}

	// First pass: every available tier once.
	anyAvailable := false
	for _, t := range o.tiers {
		if ctx.Err() != nil {
			return Result{TiersAttempted: attempted, Error: ctx.Err().Error()}
		}
		if !t.Available(ctx, target) {
			slog.Debug("Tier unavailable", "tier", t.Name())
			continue
		}
		anyAvailable = true
		if attempt(t) {
			return Result{Success: true, TierUsed: t.Name(), TiersAttempted: attempted}
		}
	}
	if !anyAvailable {
		lastErr = ErrNoTiersAvailable
	}

	// Retry rounds, each against the best tier available at that time.
	for i := 0; i <= o.maxRetries; i++ {
		wait := o.backoff(i)
		metrics.RecordRetry()
		slog.Info("Retrying delivery", "round", i+1, "wait", wait)
		if err := pause(ctx, wait); err != nil {
			return Result{TiersAttempted: attempted, Error: err.Error()}
		}
		tier := o.firstAvailable(ctx, target)
		if tier == nil {
			lastErr = ErrNoTiersAvailable
			continue
		}
		if attempt(tier) {
			return Result{Success: true, TierUsed: tier.Name(), TiersAttempted: attempted}
		}
	}
	return fail()
}

func (o *Orchestrator) firstAvailable(ctx context.Context, target Target) Tier {
	for _, t := range o.tiers {
		if ctx.Err() != nil {
			return nil
		}
		if t.Available(ctx, target) {
			return t
		}
	}
	return nil
}
