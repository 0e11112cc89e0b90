package watcher

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Muminur/auto-claude-resume-after-limit-reset-sub000/pkg/queue"
	"github.com/Muminur/auto-claude-resume-after-limit-reset-sub000/pkg/transcript"
)

func newTestWatcher(t *testing.T) (*Watcher, *queue.Store, chan struct{}) {
	t.Helper()
	store := queue.NewStore(filepath.Join(t.TempDir(), "status.json"))
	recheck := make(chan struct{}, 1)
	w := New(Config{
		Store:         store,
		Analyzer:      transcript.NewAnalyzer(nil),
		CheckInterval: 20 * time.Millisecond,
		PollInterval:  20 * time.Millisecond,
		Recheck:       recheck,
	})
	return w, store, recheck
}

func enqueueTestEvent(t *testing.T, store *queue.Store, offset time.Duration) *queue.RateLimitEvent {
	t.Helper()
	ev, duplicate, err := store.Enqueue(queue.RateLimitEvent{
		ResetTime: time.Now().UTC().Add(offset),
		Timezone:  "Asia/Dhaka",
		Message:   "You've hit your limit",
	})
	require.NoError(t, err)
	require.False(t, duplicate)
	return ev
}

func drainSignal(ch chan struct{}) {
	select {
	case <-ch:
	default:
	}
}

func TestCheckQueueSignalsOnChange(t *testing.T) {
	w, store, recheck := newTestWatcher(t)
	enqueueTestEvent(t, store, time.Hour)

	w.checkQueue(context.Background())

	select {
	case <-recheck:
	default:
		t.Fatal("expected recheck signal after queue change")
	}

	// Unchanged mtime: no second signal.
	w.checkQueue(context.Background())
	select {
	case <-recheck:
		t.Fatal("unexpected signal without queue change")
	default:
	}
}

func TestCheckQueueMissingFile(t *testing.T) {
	w, _, recheck := newTestWatcher(t)

	w.checkQueue(context.Background())

	select {
	case <-recheck:
		t.Fatal("no signal expected when queue file is absent")
	default:
	}
}

func TestPrimeMarksExistingEventsKnown(t *testing.T) {
	w, store, recheck := newTestWatcher(t)
	ev := enqueueTestEvent(t, store, time.Hour)

	w.prime()

	assert.True(t, w.knownIDs[ev.ID])
	// A pending head left over from before the restart still nudges
	// the scheduler.
	select {
	case <-recheck:
	default:
		t.Fatal("expected recheck signal from prime")
	}
}

func TestAnnounceTracksNewIDs(t *testing.T) {
	w, store, _ := newTestWatcher(t)
	first := enqueueTestEvent(t, store, time.Hour)
	w.checkQueue(context.Background())
	require.True(t, w.knownIDs[first.ID])

	second := enqueueTestEvent(t, store, 2*time.Hour)
	w.checkQueue(context.Background())

	assert.True(t, w.knownIDs[second.ID])
	assert.Len(t, w.knownIDs, 2)
}

func writeTranscriptFile(t *testing.T, dir, name, text string) string {
	t.Helper()
	line := fmt.Sprintf(`{"type":"assistant","timestamp":%q,"message":{"content":[{"type":"text","text":%q}]}}`+"\n",
		time.Now().UTC().Format(time.RFC3339), text)
	path := filepath.Join(dir, name)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
	require.NoError(t, os.WriteFile(path, []byte(line), 0644))
	return path
}

func TestPollerEnqueuesFreshDetection(t *testing.T) {
	w, store, _ := newTestWatcher(t)
	projects := t.TempDir()
	w.cfg.ProjectsDir = projects
	writeTranscriptFile(t, projects, "myproject/abc123.jsonl",
		"You've hit your limit · resets 8pm (Asia/Dhaka)")

	w.pollTranscripts()

	pending, err := store.PeekNextPending()
	require.NoError(t, err)
	require.NotNil(t, pending)
	assert.Equal(t, "abc123", pending.SessionID)
	assert.Equal(t, "Asia/Dhaka", pending.Timezone)
	assert.Contains(t, pending.TranscriptPath, "abc123.jsonl")

	doc, err := store.Load()
	require.NoError(t, err)
	require.NotNil(t, doc.LastHookRun)
}

func TestPollerSkipsWhenPendingExists(t *testing.T) {
	w, store, _ := newTestWatcher(t)
	projects := t.TempDir()
	w.cfg.ProjectsDir = projects
	enqueueTestEvent(t, store, time.Hour)
	writeTranscriptFile(t, projects, "p/session.jsonl",
		"You've hit your limit · resets 11pm (UTC)")

	w.pollTranscripts()

	doc, err := store.Load()
	require.NoError(t, err)
	assert.Len(t, doc.Queue, 1)
}

func TestPollerSkipsStaleTranscript(t *testing.T) {
	w, store, _ := newTestWatcher(t)
	projects := t.TempDir()
	w.cfg.ProjectsDir = projects
	path := writeTranscriptFile(t, projects, "p/session.jsonl",
		"You've hit your limit · resets 8pm (Asia/Dhaka)")
	old := time.Now().Add(-20 * time.Minute)
	require.NoError(t, os.Chtimes(path, old, old))

	w.pollTranscripts()

	pending, err := store.PeekNextPending()
	require.NoError(t, err)
	assert.Nil(t, pending)
}

func TestPollerNoTranscripts(t *testing.T) {
	w, store, _ := newTestWatcher(t)
	w.cfg.ProjectsDir = t.TempDir()

	w.pollTranscripts()

	pending, err := store.PeekNextPending()
	require.NoError(t, err)
	assert.Nil(t, pending)
}

func TestLatestTranscript(t *testing.T) {
	root := t.TempDir()
	older := writeTranscriptFile(t, root, "a/older.jsonl", "x")
	past := time.Now().Add(-time.Hour)
	require.NoError(t, os.Chtimes(older, past, past))
	newest := writeTranscriptFile(t, root, "a/newest.jsonl", "x")
	// Too deep for the walk: four levels below the root.
	writeTranscriptFile(t, root, "a/b/c/d/deep.jsonl", "x")

	path, mtime, ok := latestTranscript(root)

	require.True(t, ok)
	assert.Equal(t, newest, path)
	assert.WithinDuration(t, time.Now(), mtime, time.Minute)
}

func TestLatestTranscriptEmpty(t *testing.T) {
	_, _, ok := latestTranscript(t.TempDir())
	assert.False(t, ok)
}

func TestRunObserverPicksUpWrites(t *testing.T) {
	w, store, recheck := newTestWatcher(t)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()

	time.Sleep(50 * time.Millisecond)
	drainSignal(recheck)
	enqueueTestEvent(t, store, time.Hour)

	select {
	case <-recheck:
	case <-time.After(2 * time.Second):
		t.Fatal("observer did not notice the queue write")
	}

	cancel()
	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatal("watcher did not stop")
	}
}
