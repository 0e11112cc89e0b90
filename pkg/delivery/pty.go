package delivery

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"runtime"
	"strings"
	"time"
)

// PTYTier writes raw control bytes to the target session's controlling
// terminal device. It needs no multiplexer and no display, but the
// device must be writable by the daemon's user, which in practice means
// the daemon runs as the same user as the session.
type PTYTier struct {
	goos    string
	runner  Runner
	resolve func(ctx context.Context, pid int) (string, error)
	open    func(path string) (io.WriteCloser, error)
	delay   time.Duration
}

// NewPTYTier creates the PTY tier for the current platform.
func NewPTYTier(runner Runner) *PTYTier {
	t := &PTYTier{
		goos:   runtime.GOOS,
		runner: runner,
		open: func(path string) (io.WriteCloser, error) {
			return os.OpenFile(path, os.O_WRONLY, 0)
		},
		delay: DefaultInterKeyDelay,
	}
	t.resolve = t.resolveDevice
	return t
}

func (t *PTYTier) Name() string { return TierPTY }

func (t *PTYTier) Priority() int { return 2 }

// Available reports whether the target's terminal device can be
// resolved and opened for writing.
func (t *PTYTier) Available(ctx context.Context, target Target) bool {
	if target.SessionPID <= 0 {
		return false
	}
	device, err := t.resolve(ctx, target.SessionPID)
	if err != nil {
		slog.Debug("No terminal device for target", "pid", target.SessionPID, "error", err)
		return false
	}
	w, err := t.open(device)
	if err != nil {
		slog.Debug("Terminal device not writable", "device", device, "error", err)
		return false
	}
	w.Close()
	return true
}

// Deliver writes the sequence byte-for-byte to the device. The bytes
// land in the terminal's input queue exactly as if typed.
func (t *PTYTier) Deliver(ctx context.Context, target Target, keys []Key) error {
	device, err := t.resolve(ctx, target.SessionPID)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrTierUnavailable, err)
	}
	w, err := t.open(device)
	if err != nil {
		return fmt.Errorf("%w: open %s: %v", ErrTierUnavailable, device, err)
	}
	defer w.Close()

	for i, key := range keys {
		if i > 0 {
			if err := pause(ctx, t.delay); err != nil {
				return err
			}
		}
		if _, err := w.Write(key.Bytes()); err != nil {
			return fmt.Errorf("write %s to %s: %w", key.Name, device, err)
		}
	}
	slog.Info("Delivered keystrokes via pty", "device", device, "pid", target.SessionPID)
	return nil
}

// resolveDevice finds the controlling terminal of pid. On Linux the
// process's stdin symlink names the pseudo-terminal directly; on macOS
// /proc does not exist, so ps reports the tty name instead.
func (t *PTYTier) resolveDevice(ctx context.Context, pid int) (string, error) {
	switch t.goos {
	case "linux":
		link, err := os.Readlink(fmt.Sprintf("/proc/%d/fd/0", pid))
		if err != nil {
			return "", fmt.Errorf("readlink stdin: %w", err)
		}
		if !strings.HasPrefix(link, "/dev/pts/") {
			return "", fmt.Errorf("stdin is %s, not a pseudo-terminal", link)
		}
		return link, nil
	case "darwin":
		out, err := t.runner.Run(ctx, "ps", "-o", "tty=", "-p", fmt.Sprintf("%d", pid))
		if err != nil {
			return "", fmt.Errorf("ps tty lookup: %w", err)
		}
		tty := strings.TrimSpace(string(out))
		if tty == "" || tty == "??" {
			return "", fmt.Errorf("pid %d has no controlling terminal", pid)
		}
		return "/dev/" + tty, nil
	default:
		return "", fmt.Errorf("pty delivery not supported on %s", t.goos)
	}
}
