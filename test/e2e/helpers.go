package e2e

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/Muminur/auto-claude-resume-after-limit-reset-sub000/pkg/queue"
	"github.com/Muminur/auto-claude-resume-after-limit-reset-sub000/pkg/transcript"
)

// EnqueueEvent appends an event whose reset lies resetIn from now.
// Negative offsets produce an already-due event.
func (app *TestApp) EnqueueEvent(t *testing.T, resetIn time.Duration, pid int) *queue.RateLimitEvent {
	t.Helper()
	ev, duplicate, err := app.Store.Enqueue(queue.RateLimitEvent{
		ResetTime:  time.Now().UTC().Add(resetIn),
		Timezone:   "UTC",
		Message:    "hit your limit",
		SessionID:  fmt.Sprintf("session-%d", pid),
		SessionPID: pid,
	})
	require.NoError(t, err)
	require.False(t, duplicate, "event unexpectedly deduped")
	return ev
}

// WaitForEventStatus polls the store until the event reaches status.
func (app *TestApp) WaitForEventStatus(t *testing.T, id string, status queue.Status) {
	t.Helper()
	require.Eventuallyf(t, func() bool {
		doc, err := app.Store.Load()
		if err != nil {
			return false
		}
		for i := range doc.Queue {
			if doc.Queue[i].ID == id {
				return doc.Queue[i].Status == status
			}
		}
		return false
	}, 10*time.Second, 20*time.Millisecond, "event %s never reached %s", id, status)
}

// LoadDoc reads the current queue document.
func (app *TestApp) LoadDoc(t *testing.T) *queue.Document {
	t.Helper()
	doc, err := app.Store.Load()
	require.NoError(t, err)
	return doc
}

// RunHook replays the hook entry path end to end: payload on stdin,
// transcript scan, enqueue. Returns the stored event (nil when the
// transcript held no banner) and whether the enqueue was deduped.
func (app *TestApp) RunHook(t *testing.T, transcriptPath, sessionID string) (*queue.RateLimitEvent, bool) {
	t.Helper()

	payload := fmt.Sprintf(`{"transcript_path":%q,"session_id":%q}`, transcriptPath, sessionID)
	hp, err := transcript.ReadHookPayload(strings.NewReader(payload))
	require.NoError(t, err)
	require.NoError(t, app.Store.RecordHookRun(hp.SessionID))

	detection := transcript.NewAnalyzer(app.Config.TriggerPhrases).AnalyzeFile(hp.TranscriptPath)
	if detection == nil {
		return nil, false
	}

	ev, duplicate, err := app.Store.Enqueue(queue.RateLimitEvent{
		ResetTime:      detection.ResetTime,
		Timezone:       detection.Timezone,
		Message:        detection.RawMessage,
		SessionID:      hp.SessionID,
		SessionPID:     os.Getpid(),
		TranscriptPath: hp.TranscriptPath,
	})
	require.NoError(t, err)
	return ev, duplicate
}

// writeTranscript writes a one-record assistant transcript whose text
// field carries the given banner.
func writeTranscript(t *testing.T, text string) string {
	t.Helper()
	record := map[string]any{
		"type":      "assistant",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
		"message": map[string]any{
			"content": []any{
				map[string]any{"type": "text", "text": text},
			},
		},
	}
	data, err := json.Marshal(record)
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "transcript.jsonl")
	require.NoError(t, os.WriteFile(path, append(data, '\n'), 0o644))
	return path
}
