package delivery

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/Muminur/auto-claude-resume-after-limit-reset-sub000/pkg/proctree"
)

// terminalClasses are WM_CLASS names of common terminal emulators, the
// last-resort window discovery strategy when no process lineage leads
// to a window.
var terminalClasses = []string{
	"gnome-terminal",
	"konsole",
	"xfce4-terminal",
	"alacritty",
	"kitty",
	"terminator",
	"tilix",
	"xterm",
	"urxvt",
	"st",
}

// assistantPattern matches the assistant CLI in process listings, used
// when the queue entry carries no session pid.
var assistantPattern = regexp.MustCompile(`(?i)\bclaude\b`)

// x11Injector drives xdotool. Keystrokes go through the XTEST extension
// (key/type without --window): the --window form synthesizes events
// that most terminal emulators discard, so the target window is focused
// first and real input goes wherever focus is.
type x11Injector struct {
	runner        Runner
	ancestors     func(pid int) []int
	findPIDs      func(pattern *regexp.Regexp) []int
	shellChildren func(pid int) int
	delay         time.Duration
}

func newX11Injector(runner Runner) *x11Injector {
	return &x11Injector{
		runner:        runner,
		ancestors:     proctree.Ancestors,
		findPIDs:      proctree.FindByPattern,
		shellChildren: proctree.ShellChildren,
		delay:         DefaultInterKeyDelay,
	}
}

func (x *x11Injector) deliver(ctx context.Context, target Target, keys []Key) error {
	window, ownerPID, err := x.discoverWindow(ctx, target)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrTierUnavailable, err)
	}

	// A terminal running several tabs exposes one window; the sequence
	// is repeated across all of them since X11 cannot tell which tab
	// holds the session.
	tabs := 1
	if ownerPID > 0 {
		if n := x.shellChildren(ownerPID); n > 1 {
			tabs = n
		}
	}
	slog.Info("Injecting keystrokes via xdotool", "window", window, "owner_pid", ownerPID, "tabs", tabs)

	original := x.activeWindow(ctx)
	defer x.restoreFocus(ctx, original, window)

	for tab := 0; tab < tabs; tab++ {
		if tab > 0 {
			if _, err := x.runner.Run(ctx, "xdotool", "key", "--clearmodifiers", "ctrl+Page_Down"); err != nil {
				return fmt.Errorf("cycle tab: %w", err)
			}
			if err := pause(ctx, x.delay); err != nil {
				return err
			}
		}
		if _, err := x.runner.Run(ctx, "xdotool", "windowactivate", "--sync", window); err != nil {
			return fmt.Errorf("activate window %s: %w", window, err)
		}
		if err := pause(ctx, x.delay); err != nil {
			return err
		}
		for i, key := range keys {
			if i > 0 {
				if err := pause(ctx, x.delay); err != nil {
					return err
				}
			}
			if _, err := x.runner.Run(ctx, x.keyArgs(key)...); err != nil {
				return fmt.Errorf("xdotool %s: %w", key.Name, err)
			}
		}
	}
	return nil
}

func (x *x11Injector) keyArgs(key Key) []string {
	switch key.Name {
	case KeyEscape:
		return []string{"xdotool", "key", "--clearmodifiers", "Escape"}
	case KeyCtrlU:
		return []string{"xdotool", "key", "--clearmodifiers", "ctrl+u"}
	case KeyText:
		return []string{"xdotool", "type", "--delay", "50", "--", key.Text}
	case KeyEnter:
		return []string{"xdotool", "key", "--clearmodifiers", "Return"}
	}
	return nil
}

// discoverWindow finds the terminal window hosting the session. Three
// strategies, in order of precision: the session pid's own ancestry,
// the ancestry of any process matching the assistant pattern, then a
// class-name sweep over known terminal emulators.
func (x *x11Injector) discoverWindow(ctx context.Context, target Target) (string, int, error) {
	if target.SessionPID > 0 {
		if window, pid := x.windowForAncestry(ctx, target.SessionPID); window != "" {
			return window, pid, nil
		}
	}

	for _, pid := range x.findPIDs(assistantPattern) {
		if window, owner := x.windowForAncestry(ctx, pid); window != "" {
			return window, owner, nil
		}
	}

	for _, class := range terminalClasses {
		out, err := x.runner.Run(ctx, "xdotool", "search", "--class", class)
		if err != nil {
			continue
		}
		window := firstLine(out)
		if window == "" {
			continue
		}
		return window, x.windowPID(ctx, window), nil
	}
	return "", 0, fmt.Errorf("no terminal window found")
}

// windowForAncestry walks pid's parent chain looking for a process that
// owns an X11 window. Returns the window and the owning pid, or empty.
func (x *x11Injector) windowForAncestry(ctx context.Context, pid int) (string, int) {
	for _, ancestor := range x.ancestors(pid) {
		out, err := x.runner.Run(ctx, "xdotool", "search", "--pid", strconv.Itoa(ancestor))
		if err != nil {
			continue
		}
		if window := firstLine(out); window != "" {
			return window, ancestor
		}
	}
	return "", 0
}

func (x *x11Injector) windowPID(ctx context.Context, window string) int {
	out, err := x.runner.Run(ctx, "xdotool", "getwindowpid", window)
	if err != nil {
		return 0
	}
	pid, err := strconv.Atoi(firstLine(out))
	if err != nil {
		return 0
	}
	return pid
}

// activeWindow snapshots the currently focused window so focus can be
// handed back after injection. Best effort: an empty result just skips
// the restore.
func (x *x11Injector) activeWindow(ctx context.Context) string {
	out, err := x.runner.Run(ctx, "xdotool", "getactivewindow")
	if err != nil {
		return ""
	}
	return firstLine(out)
}

func (x *x11Injector) restoreFocus(ctx context.Context, original, target string) {
	if original == "" || original == target {
		return
	}
	if _, err := x.runner.Run(ctx, "xdotool", "windowactivate", original); err != nil {
		slog.Debug("Could not restore focus", "window", original, "error", err)
	}
}

func firstLine(out []byte) string {
	s := strings.TrimSpace(string(out))
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		s = s[:i]
	}
	return strings.TrimSpace(s)
}
