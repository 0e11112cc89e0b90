package delivery

import "errors"

// Sentinel errors for tier attempts and orchestration outcomes.
var (
	// ErrTierUnavailable means the tier cannot be attempted for this
	// target right now (binary missing, no pane owns the process, no
	// display attached).
	ErrTierUnavailable = errors.New("delivery tier unavailable")

	// ErrNoTiersAvailable means availability probing found nothing to
	// attempt in a delivery round.
	ErrNoTiersAvailable = errors.New("no delivery tiers available")

	// ErrAllTiersExhausted means every round, including retries, ended
	// without a verified delivery.
	ErrAllTiersExhausted = errors.New("all delivery tiers exhausted")

	// ErrNotVerified means keystrokes were sent but the session showed
	// no activity within the verification window.
	ErrNotVerified = errors.New("delivery not verified")
)
