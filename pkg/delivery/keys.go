package delivery

import (
	"context"
	"time"
)

// Key names used across all tiers. Every tier translates the same
// logical sequence into its own encoding (control bytes, tmux key
// names, X11 keysyms, AppleScript key codes, SendKeys tokens).
const (
	KeyEscape = "escape"
	KeyCtrlU  = "ctrl-u"
	KeyText   = "text"
	KeyEnter  = "enter"
)

// DefaultInterKeyDelay is the pause between elements of the sequence.
// Terminal UIs debounce input; sending the whole sequence in one burst
// gets the prompt swallowed by the menu the Escape just dismissed.
const DefaultInterKeyDelay = 200 * time.Millisecond

// Key is one element of the resume keystroke sequence.
type Key struct {
	Name string
	Text string
}

// Sequence builds the canonical resume sequence: Escape dismisses any
// open menu or dialog, Ctrl+U clears partial input from the prompt
// line, then the resume text and Enter submit it.
func Sequence(prompt string) []Key {
	return []Key{
		{Name: KeyEscape},
		{Name: KeyCtrlU},
		{Name: KeyText, Text: prompt},
		{Name: KeyEnter},
	}
}

// Bytes returns the raw terminal encoding of the key, used by the PTY
// tier to write directly to the session's controlling device.
func (k Key) Bytes() []byte {
	switch k.Name {
	case KeyEscape:
		return []byte{0x1b}
	case KeyCtrlU:
		return []byte{0x15}
	case KeyText:
		return []byte(k.Text)
	case KeyEnter:
		return []byte{'\r'}
	}
	return nil
}

// pause sleeps for d unless the context is cancelled first.
func pause(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
