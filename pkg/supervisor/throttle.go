package supervisor

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/google/renameio/v2"
)

// throttleWindow is the minimum spacing between daemon starts. A crash
// loop under a service manager burns through restarts faster than the
// queue file can change, so back-to-back starts wait instead of failing.
const throttleWindow = 30 * time.Second

// throttleStart enforces the crash-loop guard. When the marker at path
// records a start within window, the call sleeps out the remainder, then
// rewrites the marker with the current time. An unreadable marker counts
// as no previous start.
func throttleStart(ctx context.Context, path string, window time.Duration, now func() time.Time) error {
	if data, err := os.ReadFile(path); err == nil {
		if prev, perr := strconv.ParseInt(strings.TrimSpace(string(data)), 10, 64); perr == nil {
			elapsed := now().Sub(time.Unix(prev, 0))
			if elapsed >= 0 && elapsed < window {
				wait := window - elapsed
				slog.Warn("Started again too soon, throttling",
					"previous_start", time.Unix(prev, 0).UTC().Format(time.RFC3339),
					"wait", wait.Round(time.Second))
				timer := time.NewTimer(wait)
				defer timer.Stop()
				select {
				case <-ctx.Done():
					return ctx.Err()
				case <-timer.C:
				}
			}
		}
	}

	stamp := strconv.FormatInt(now().Unix(), 10) + "\n"
	if err := renameio.WriteFile(path, []byte(stamp), 0o644); err != nil {
		return fmt.Errorf("writing start marker %s: %w", path, err)
	}
	return nil
}
