package delivery

import (
	"context"
	"fmt"
	"os/exec"
	"time"
)

// DefaultCommandTimeout bounds every external tool invocation so a hung
// xdotool or osascript cannot stall the scheduler.
const DefaultCommandTimeout = 30 * time.Second

// Runner executes the external tools the delivery tiers drive (tmux,
// xdotool, osascript, powershell). Tests substitute fakes so tier logic
// can be exercised without a display or a terminal multiplexer.
type Runner interface {
	// Run executes argv[0] with the remaining arguments and returns the
	// combined stdout and stderr.
	Run(ctx context.Context, argv ...string) ([]byte, error)

	// LookPath resolves a binary on PATH.
	LookPath(name string) (string, error)
}

type execRunner struct {
	timeout time.Duration
}

// NewRunner creates the production Runner. A non-positive timeout falls
// back to DefaultCommandTimeout.
func NewRunner(timeout time.Duration) Runner {
	if timeout <= 0 {
		timeout = DefaultCommandTimeout
	}
	return &execRunner{timeout: timeout}
}

func (r *execRunner) Run(ctx context.Context, argv ...string) ([]byte, error) {
	if len(argv) == 0 {
		return nil, fmt.Errorf("empty command")
	}
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, argv[0], argv[1:]...)
	out, err := cmd.CombinedOutput()
	if ctx.Err() == context.DeadlineExceeded {
		return out, fmt.Errorf("%s timed out after %s", argv[0], r.timeout)
	}
	if err != nil {
		return out, fmt.Errorf("%s: %w (output: %s)", argv[0], err, truncateOutput(out))
	}
	return out, nil
}

func (r *execRunner) LookPath(name string) (string, error) {
	return exec.LookPath(name)
}

func truncateOutput(out []byte) string {
	const max = 200
	s := string(out)
	if len(s) > max {
		return s[:max] + "..."
	}
	return s
}
