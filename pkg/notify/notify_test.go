package notify

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestService_NilReceiver(t *testing.T) {
	var s *Service

	// Should not panic.
	s.NotifyLimitDetected(context.Background(), LimitDetectedInput{EventID: "ev-1"})
	s.NotifyResumeSucceeded(context.Background(), ResumeResultInput{EventID: "ev-1"})
	s.NotifyResumeFailed(context.Background(), ResumeResultInput{EventID: "ev-1"})
}

func TestNewService(t *testing.T) {
	t.Run("returns nil when no sinks", func(t *testing.T) {
		assert.Nil(t, NewService(nil, nil))
	})

	t.Run("returns service with slack only", func(t *testing.T) {
		assert.NotNil(t, NewService(nil, NewSlackNotifier("xoxb-test", "C123")))
	})
}

func TestNewSlackNotifier(t *testing.T) {
	t.Run("returns nil when token empty", func(t *testing.T) {
		assert.Nil(t, NewSlackNotifier("", "C123"))
	})

	t.Run("returns nil when channel empty", func(t *testing.T) {
		assert.Nil(t, NewSlackNotifier("xoxb-test", ""))
	})

	t.Run("returns notifier when configured", func(t *testing.T) {
		assert.NotNil(t, NewSlackNotifier("xoxb-test", "C123"))
	})
}

func TestSlackNotifier_NilReceiver(t *testing.T) {
	var n *SlackNotifier

	// Should not panic.
	n.PostDetected(context.Background(), LimitDetectedInput{})
	n.PostResult(context.Background(), ResumeResultInput{}, true)
}

func TestDesktopNotifierPlatformArgv(t *testing.T) {
	tests := []struct {
		goos string
		want string
	}{
		{"linux", "notify-send"},
		{"darwin", "osascript"},
		{"windows", "powershell"},
	}

	for _, tt := range tests {
		t.Run(tt.goos, func(t *testing.T) {
			n := &DesktopNotifier{goos: tt.goos}

			argv := n.argv("Title", "Body")

			require.NotEmpty(t, argv)
			assert.Equal(t, tt.want, argv[0])
		})
	}
}

func TestDesktopNotifierSendUsesRunner(t *testing.T) {
	var got []string
	n := &DesktopNotifier{
		goos: "linux",
		run: func(ctx context.Context, argv ...string) error {
			got = argv
			return nil
		},
	}

	n.Send(context.Background(), "Rate limit hit", "resumes at 8pm")

	require.NotEmpty(t, got)
	assert.Equal(t, "notify-send", got[0])
	assert.Contains(t, got, "Rate limit hit")
	assert.Contains(t, got, "resumes at 8pm")
}

func TestDesktopNotifier_NilReceiver(t *testing.T) {
	var n *DesktopNotifier

	// Should not panic.
	n.Send(context.Background(), "t", "b")
}

func TestFormatReset(t *testing.T) {
	reset := time.Date(2025, 6, 1, 14, 0, 0, 0, time.UTC)

	t.Run("renders in original zone", func(t *testing.T) {
		got := formatReset(reset, "Asia/Dhaka")
		assert.Contains(t, got, "8:00pm")
	})

	t.Run("falls back to UTC on unknown zone", func(t *testing.T) {
		got := formatReset(reset, "Not/AZone")
		assert.Equal(t, "14:00 UTC", got)
	})

	t.Run("UTC when zone empty", func(t *testing.T) {
		got := formatReset(reset, "")
		assert.Equal(t, "14:00 UTC", got)
	})
}

func TestEscapePSQuotes(t *testing.T) {
	assert.Equal(t, "it''s done", escapePSQuotes("it's done"))
}
