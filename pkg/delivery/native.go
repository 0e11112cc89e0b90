package delivery

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"runtime"
	"strings"
	"time"
)

// NativeTier injects keystrokes at the GUI layer, one platform tool per
// OS: xdotool on X11, osascript on macOS, SendKeys on Windows. It is
// the last tier in the chain because it depends on window focus and a
// running display server.
type NativeTier struct {
	goos   string
	runner Runner
	x11    *x11Injector
	getenv func(string) string
	delay  time.Duration
}

// NewNativeTier creates the native tier for the current platform.
func NewNativeTier(runner Runner) *NativeTier {
	return &NativeTier{
		goos:   runtime.GOOS,
		runner: runner,
		x11:    newX11Injector(runner),
		getenv: os.Getenv,
		delay:  DefaultInterKeyDelay,
	}
}

func (t *NativeTier) Name() string { return TierNative }

func (t *NativeTier) Priority() int { return 3 }

// Available reports whether the platform's injection tool is present
// and a display is reachable.
func (t *NativeTier) Available(ctx context.Context, target Target) bool {
	switch t.goos {
	case "linux":
		if t.getenv("DISPLAY") == "" {
			return false
		}
		if _, err := t.runner.LookPath("xdotool"); err != nil {
			return false
		}
		return true
	case "darwin":
		_, err := t.runner.LookPath("osascript")
		return err == nil
	case "windows":
		_, err := t.runner.LookPath("powershell")
		return err == nil
	}
	return false
}

func (t *NativeTier) Deliver(ctx context.Context, target Target, keys []Key) error {
	switch t.goos {
	case "linux":
		return t.x11.deliver(ctx, target, keys)
	case "darwin":
		return t.deliverDarwin(ctx, keys)
	case "windows":
		return t.deliverWindows(ctx, keys)
	}
	return fmt.Errorf("%w: no native injection on %s", ErrTierUnavailable, t.goos)
}

// deliverDarwin drives System Events one keystroke per osascript call.
// Key code 53 is Escape, 36 is Return; printable text goes through
// keystroke so the layout mapping is the system's problem.
func (t *NativeTier) deliverDarwin(ctx context.Context, keys []Key) error {
	for i, key := range keys {
		if i > 0 {
			if err := pause(ctx, t.delay); err != nil {
				return err
			}
		}
		script := darwinScript(key)
		if script == "" {
			continue
		}
		if _, err := t.runner.Run(ctx, "osascript", "-e", script); err != nil {
			return fmt.Errorf("osascript %s: %w", key.Name, err)
		}
	}
	slog.Info("Delivered keystrokes via osascript")
	return nil
}

func darwinScript(key Key) string {
	switch key.Name {
	case KeyEscape:
		return `tell application "System Events" to key code 53`
	case KeyCtrlU:
		return `tell application "System Events" to keystroke "u" using control down`
	case KeyText:
		return fmt.Sprintf(`tell application "System Events" to keystroke %q`, key.Text)
	case KeyEnter:
		return `tell application "System Events" to key code 36`
	}
	return ""
}

// deliverWindows sends the whole sequence in a single powershell
// invocation, with Start-Sleep providing the inter-key pauses.
func (t *NativeTier) deliverWindows(ctx context.Context, keys []Key) error {
	ms := t.delay.Milliseconds()
	parts := []string{"Add-Type -AssemblyName System.Windows.Forms"}
	for i, key := range keys {
		if i > 0 {
			parts = append(parts, fmt.Sprintf("Start-Sleep -Milliseconds %d", ms))
		}
		token := sendKeysToken(key)
		if token == "" {
			continue
		}
		parts = append(parts, fmt.Sprintf("[System.Windows.Forms.SendKeys]::SendWait('%s')", token))
	}
	script := strings.Join(parts, "; ")
	if _, err := t.runner.Run(ctx, "powershell", "-NoProfile", "-Command", script); err != nil {
		return fmt.Errorf("powershell SendKeys: %w", err)
	}
	slog.Info("Delivered keystrokes via SendKeys")
	return nil
}

func sendKeysToken(key Key) string {
	switch key.Name {
	case KeyEscape:
		return "{ESC}"
	case KeyCtrlU:
		return "^u"
	case KeyText:
		return escapeSendKeys(key.Text)
	case KeyEnter:
		return "{ENTER}"
	}
	return ""
}

// escapeSendKeys wraps the characters SendKeys treats as operators in
// braces, and doubles single quotes for the surrounding PowerShell
// string literal.
func escapeSendKeys(text string) string {
	var b strings.Builder
	for _, r := range text {
		switch r {
		case '+', '^', '%', '~', '(', ')', '{', '}', '[', ']':
			b.WriteRune('{')
			b.WriteRune(r)
			b.WriteRune('}')
		case '\'':
			b.WriteString("''")
		default:
			b.WriteRune(r)
		}
	}
	return b.String()
}
