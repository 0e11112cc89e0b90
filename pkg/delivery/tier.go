package delivery

import "context"

// Tier names, which are also the priority order.
const (
	TierTmux   = "tmux"
	TierPTY    = "pty"
	TierNative = "native"
)

// Target identifies the session a delivery is aimed at.
type Target struct {
	// SessionPID is the process ID of the assistant CLI, when known.
	SessionPID int

	// TranscriptPath is the session's transcript file, used by
	// verification to watch for post-delivery activity.
	TranscriptPath string
}

// Tier is one keystroke transport in the fallback chain. Tiers are
// stateless; availability is probed fresh before every attempt because
// panes close, devices vanish, and displays detach between rounds.
type Tier interface {
	Name() string

	// Priority orders tiers in the fallback chain, lowest first.
	Priority() int

	// Available reports whether the tier can be attempted for the
	// target right now.
	Available(ctx context.Context, target Target) bool

	// Deliver sends the keystroke sequence to the target.
	Deliver(ctx context.Context, target Target, keys []Key) error
}
