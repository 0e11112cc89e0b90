package delivery

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/Muminur/auto-claude-resume-after-limit-reset-sub000/pkg/proctree"
)

// TmuxTier delivers keystrokes through a tmux pane. It is the highest
// priority tier because it works over SSH and with no display attached,
// and send-keys is reliable regardless of window focus.
type TmuxTier struct {
	runner    Runner
	ancestors func(pid int) []int
	delay     time.Duration
}

// NewTmuxTier creates the tmux tier backed by the given runner.
func NewTmuxTier(runner Runner) *TmuxTier {
	return &TmuxTier{
		runner:    runner,
		ancestors: proctree.Ancestors,
		delay:     DefaultInterKeyDelay,
	}
}

func (t *TmuxTier) Name() string { return TierTmux }

func (t *TmuxTier) Priority() int { return 1 }

// Available reports whether tmux is installed, a server is running, and
// the target process lives inside one of its panes.
func (t *TmuxTier) Available(ctx context.Context, target Target) bool {
	if _, err := t.runner.LookPath("tmux"); err != nil {
		return false
	}
	if target.SessionPID <= 0 {
		return false
	}
	pane, err := t.findPane(ctx, target.SessionPID)
	if err != nil {
		slog.Debug("No tmux pane for target", "pid", target.SessionPID, "error", err)
		return false
	}
	slog.Debug("Found tmux pane", "pid", target.SessionPID, "session", pane.session, "pane", pane.id)
	return true
}

// Deliver resolves the pane again and sends the sequence one key at a
// time. The pane is re-resolved rather than cached from the probe since
// panes can close between the two calls.
func (t *TmuxTier) Deliver(ctx context.Context, target Target, keys []Key) error {
	pane, err := t.findPane(ctx, target.SessionPID)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrTierUnavailable, err)
	}

	for i, key := range keys {
		if i > 0 {
			if err := pause(ctx, t.delay); err != nil {
				return err
			}
		}
		argv := t.sendArgs(pane.id, key)
		if _, err := t.runner.Run(ctx, argv...); err != nil {
			return fmt.Errorf("tmux send-keys %s: %w", key.Name, err)
		}
	}
	slog.Info("Delivered keystrokes via tmux", "session", pane.session, "pane", pane.id)
	return nil
}

// sendArgs maps a logical key to a tmux send-keys invocation. Text goes
// through -l so tmux does not interpret it as key names; "--" guards
// prompts that start with a dash.
func (t *TmuxTier) sendArgs(paneID string, key Key) []string {
	base := []string{"tmux", "send-keys", "-t", paneID}
	switch key.Name {
	case KeyEscape:
		return append(base, "Escape")
	case KeyCtrlU:
		return append(base, "C-u")
	case KeyText:
		return append(base, "-l", "--", key.Text)
	case KeyEnter:
		return append(base, "Enter")
	}
	return base
}

type tmuxPane struct {
	pid     int
	session string
	id      string
}

// findPane locates the pane whose shell is an ancestor of pid. The
// target process is usually a child of the pane's shell, so the walk
// goes from the process up through its parents until one of them owns
// a pane.
func (t *TmuxTier) findPane(ctx context.Context, pid int) (*tmuxPane, error) {
	panes, err := t.listPanes(ctx)
	if err != nil {
		return nil, err
	}
	if len(panes) == 0 {
		return nil, fmt.Errorf("no panes")
	}

	byPID := make(map[int]*tmuxPane, len(panes))
	for i := range panes {
		byPID[panes[i].pid] = &panes[i]
	}
	for _, ancestor := range t.ancestors(pid) {
		if pane, ok := byPID[ancestor]; ok {
			return pane, nil
		}
	}
	return nil, fmt.Errorf("pid %d is not inside a tmux pane", pid)
}

func (t *TmuxTier) listPanes(ctx context.Context) ([]tmuxPane, error) {
	out, err := t.runner.Run(ctx, "tmux", "list-panes", "-a", "-F", "#{pane_pid} #{session_name} #{pane_id}")
	if err != nil {
		return nil, fmt.Errorf("list-panes: %w", err)
	}

	var panes []tmuxPane
	for _, line := range strings.Split(string(out), "\n") {
		fields := strings.Fields(line)
		if len(fields) != 3 {
			continue
		}
		pid, err := strconv.Atoi(fields[0])
		if err != nil {
			continue
		}
		panes = append(panes, tmuxPane{pid: pid, session: fields[1], id: fields[2]})
	}
	return panes, nil
}
