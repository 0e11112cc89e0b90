package notify

import (
	"context"
	"fmt"
	"log/slog"
	"os/exec"
	"runtime"
	"strings"
	"time"
)

const desktopTimeout = 10 * time.Second

// DesktopNotifier shows OS-level notification popups. One tool per
// platform: notify-send on Linux, osascript on macOS, a WScript popup
// on Windows. Nil-safe: Send is a no-op on a nil notifier.
type DesktopNotifier struct {
	goos   string
	run    func(ctx context.Context, argv ...string) error
	logger *slog.Logger
}

// NewDesktopNotifier creates the desktop sink, or nil when the current
// platform has no usable notification tool.
func NewDesktopNotifier() *DesktopNotifier {
	n := &DesktopNotifier{
		goos:   runtime.GOOS,
		run:    runCommand,
		logger: slog.Default().With("component", "desktop-notify"),
	}
	if n.tool() == "" {
		return nil
	}
	if _, err := exec.LookPath(n.tool()); err != nil {
		return nil
	}
	return n
}

func (n *DesktopNotifier) tool() string {
	switch n.goos {
	case "linux":
		return "notify-send"
	case "darwin":
		return "osascript"
	case "windows":
		return "powershell"
	}
	return ""
}

// Send shows a popup. Fail-open: errors are logged, never returned.
func (n *DesktopNotifier) Send(ctx context.Context, title, body string) {
	if n == nil {
		return
	}
	argv := n.argv(title, body)
	if argv == nil {
		return
	}
	if err := n.run(ctx, argv...); err != nil {
		n.logger.Warn("Desktop notification failed", "title", title, "error", err)
	}
}

func (n *DesktopNotifier) argv(title, body string) []string {
	switch n.goos {
	case "linux":
		return []string{"notify-send", "--app-name", "autoresume", title, body}
	case "darwin":
		script := fmt.Sprintf("display notification %q with title %q", body, title)
		return []string{"osascript", "-e", script}
	case "windows":
		popup := fmt.Sprintf(
			"(New-Object -ComObject WScript.Shell).Popup('%s', 5, '%s', 64)",
			escapePSQuotes(body), escapePSQuotes(title))
		return []string{"powershell", "-NoProfile", "-Command", popup}
	}
	return nil
}

func escapePSQuotes(s string) string {
	return strings.ReplaceAll(s, "'", "''")
}

func runCommand(ctx context.Context, argv ...string) error {
	ctx, cancel := context.WithTimeout(ctx, desktopTimeout)
	defer cancel()
	cmd := exec.CommandContext(ctx, argv[0], argv[1:]...)
	if out, err := cmd.CombinedOutput(); err != nil {
		return fmt.Errorf("%s: %w (output: %s)", argv[0], err, strings.TrimSpace(string(out)))
	}
	return nil
}
