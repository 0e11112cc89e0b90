package notify

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	goslack "github.com/slack-go/slack"
)

const slackPostTimeout = 10 * time.Second

var resultEmoji = map[bool]string{
	true:  ":white_check_mark:",
	false: ":x:",
}

// SlackNotifier posts resume events to a Slack channel through a thin
// wrapper around the slack-go SDK.
// Nil-safe: all methods are no-ops when the notifier is nil.
type SlackNotifier struct {
	api     *goslack.Client
	channel string
	logger  *slog.Logger
}

// NewSlackNotifier creates the Slack sink. Returns nil if token or
// channel is empty.
func NewSlackNotifier(token, channel string) *SlackNotifier {
	if token == "" || channel == "" {
		return nil
	}
	return &SlackNotifier{
		api:     goslack.New(token),
		channel: channel,
		logger:  slog.Default().With("component", "slack-notify"),
	}
}

// NewSlackNotifierWithAPIURL targets a custom API URL. Useful for
// testing with a mock server.
func NewSlackNotifierWithAPIURL(token, channel, apiURL string) *SlackNotifier {
	return &SlackNotifier{
		api:     goslack.New(token, goslack.OptionAPIURL(apiURL)),
		channel: channel,
		logger:  slog.Default().With("component", "slack-notify"),
	}
}

// PostDetected announces a new rate-limit event.
// Fail-open: errors are logged, never returned.
func (n *SlackNotifier) PostDetected(ctx context.Context, input LimitDetectedInput) {
	if n == nil {
		return
	}
	text := fmt.Sprintf(":hourglass_flowing_sand: *Rate limit hit*, auto-resume scheduled for %s.",
		formatReset(input.ResetTime, input.Timezone))
	n.post(ctx, text, input.EventID)
}

// PostResult announces the outcome of a delivery run.
// Fail-open: errors are logged, never returned.
func (n *SlackNotifier) PostResult(ctx context.Context, input ResumeResultInput, success bool) {
	if n == nil {
		return
	}
	var text string
	if success {
		text = fmt.Sprintf("%s *Session resumed* via `%s`.", resultEmoji[true], input.TierUsed)
	} else {
		text = fmt.Sprintf("%s *Automatic resume failed*, manual resume needed.", resultEmoji[false])
		if input.Error != "" {
			text += fmt.Sprintf("\n*Error:* %s", input.Error)
		}
	}
	n.post(ctx, text, input.EventID)
}

func (n *SlackNotifier) post(ctx context.Context, text, eventID string) {
	ctx, cancel := context.WithTimeout(ctx, slackPostTimeout)
	defer cancel()

	blocks := []goslack.Block{
		goslack.NewSectionBlock(
			goslack.NewTextBlockObject(goslack.MarkdownType, text, false, false),
			nil, nil,
		),
	}
	_, _, err := n.api.PostMessageContext(ctx, n.channel, goslack.MsgOptionBlocks(blocks...))
	if err != nil {
		n.logger.Error("Failed to post Slack notification", "event_id", eventID, "error", err)
	}
}
