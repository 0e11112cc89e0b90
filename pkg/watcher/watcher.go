// Package watcher observes the queue document and, as a fallback, the
// transcript tree. It is the daemon's sensory layer: every state change
// funnels through here before the scheduler acts on it.
package watcher

import (
	"context"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"golang.org/x/sync/errgroup"

	"github.com/Muminur/auto-claude-resume-after-limit-reset-sub000/pkg/events"
	"github.com/Muminur/auto-claude-resume-after-limit-reset-sub000/pkg/metrics"
	"github.com/Muminur/auto-claude-resume-after-limit-reset-sub000/pkg/notify"
	"github.com/Muminur/auto-claude-resume-after-limit-reset-sub000/pkg/queue"
	"github.com/Muminur/auto-claude-resume-after-limit-reset-sub000/pkg/transcript"
)

const (
	// transcriptFreshWindow is how recent a transcript's mtime must be
	// for the poller to bother scanning it.
	transcriptFreshWindow = 10 * time.Minute

	// transcriptMaxDepth bounds the walk below the projects directory.
	transcriptMaxDepth = 3
)

// Config wires a Watcher.
type Config struct {
	Store          *queue.Store
	Analyzer       *transcript.Analyzer
	Notifier       *notify.Service
	Hub            *events.Hub
	ProjectsDir    string
	CheckInterval  time.Duration
	PollInterval   time.Duration
	PollingEnabled bool

	// Recheck is signalled (non-blocking) whenever the queue document
	// changes; the scheduler re-peeks the head on it.
	Recheck chan<- struct{}
}

// Watcher runs the queue-file observer and the transcript poller.
type Watcher struct {
	cfg Config
	now func() time.Time

	lastMtime time.Time
	knownIDs  map[string]bool
}

// New creates a Watcher.
func New(cfg Config) *Watcher {
	return &Watcher{
		cfg:      cfg,
		now:      time.Now,
		knownIDs: make(map[string]bool),
	}
}

// Run blocks until ctx is cancelled.
func (w *Watcher) Run(ctx context.Context) error {
	w.prime()

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return w.runQueueObserver(ctx) })
	if w.cfg.PollingEnabled {
		g.Go(func() error { return w.runTranscriptPoller(ctx) })
	}
	return g.Wait()
}

// prime marks events already on disk as known so a daemon restart does
// not re-announce them, and nudges the scheduler in case a pending head
// survived the restart.
func (w *Watcher) prime() {
	info, err := os.Stat(w.cfg.Store.Path())
	if err != nil {
		return
	}
	w.lastMtime = info.ModTime()

	doc, err := w.cfg.Store.Load()
	if err != nil {
		slog.Warn("Could not load queue document", "error", err)
		return
	}
	for i := range doc.Queue {
		w.knownIDs[doc.Queue[i].ID] = true
	}
	w.publishDepth(doc)
	w.signalRecheck()
}

// runQueueObserver polls the queue file on the check interval. When the
// state directory supports it, an fsnotify watch collapses the latency
// between a hook write and the scheduler noticing; the interval poll
// stays on as the correctness backstop.
func (w *Watcher) runQueueObserver(ctx context.Context) error {
	ticker := time.NewTicker(w.cfg.CheckInterval)
	defer ticker.Stop()

	var fsEvents chan fsnotify.Event
	var fsErrors chan error
	if fw, err := fsnotify.NewWatcher(); err == nil {
		if err := fw.Add(filepath.Dir(w.cfg.Store.Path())); err == nil {
			fsEvents = make(chan fsnotify.Event, 16)
			fsErrors = make(chan error, 1)
			go forwardFSEvents(fw, fsEvents, fsErrors)
			defer fw.Close()
		} else {
			slog.Warn("Could not watch state directory, polling only", "error", err)
			fw.Close()
		}
	} else {
		slog.Warn("fsnotify unavailable, polling only", "error", err)
	}

	queueBase := filepath.Base(w.cfg.Store.Path())
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			w.checkQueue(ctx)
		case ev := <-fsEvents:
			if filepath.Base(ev.Name) == queueBase && ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) != 0 {
				w.checkQueue(ctx)
			}
		case err := <-fsErrors:
			slog.Warn("fsnotify error", "error", err)
		}
	}
}

func forwardFSEvents(fw *fsnotify.Watcher, events chan<- fsnotify.Event, errors chan<- error) {
	for {
		select {
		case ev, ok := <-fw.Events:
			if !ok {
				return
			}
			select {
			case events <- ev:
			default:
			}
		case err, ok := <-fw.Errors:
			if !ok {
				return
			}
			select {
			case errors <- err:
			default:
			}
		}
	}
}

// checkQueue reloads the document when its mtime moved, announces new
// events, and nudges the scheduler.
func (w *Watcher) checkQueue(ctx context.Context) {
	info, err := os.Stat(w.cfg.Store.Path())
	if err != nil {
		// No queue file yet; nothing detected so far.
		return
	}
	if info.ModTime().Equal(w.lastMtime) {
		return
	}
	w.lastMtime = info.ModTime()

	doc, err := w.cfg.Store.Load()
	if err != nil {
		slog.Warn("Could not load queue document", "error", err)
		return
	}

	w.publishDepth(doc)
	w.announceNewEvents(ctx, doc)
	w.signalRecheck()
}

func (w *Watcher) publishDepth(doc *queue.Document) {
	depth := 0
	for i := range doc.Queue {
		if doc.Queue[i].Active() {
			depth++
		}
	}
	metrics.SetQueueDepth(depth)
	w.cfg.Hub.Publish(events.TypeQueueUpdated, map[string]any{
		"depth":    depth,
		"detected": doc.Detected,
	})
}

// announceNewEvents notifies once per event id, regardless of whether
// the hook process or the poller enqueued it.
func (w *Watcher) announceNewEvents(ctx context.Context, doc *queue.Document) {
	for i := range doc.Queue {
		ev := &doc.Queue[i]
		if w.knownIDs[ev.ID] {
			continue
		}
		w.knownIDs[ev.ID] = true
		if ev.Status.Terminal() {
			continue
		}
		slog.Info("New rate-limit event",
			"id", ev.ID,
			"reset_time", ev.ResetTime.Format(time.RFC3339),
			"timezone", ev.Timezone)
		metrics.RecordDetection()
		w.cfg.Notifier.NotifyLimitDetected(ctx, notify.LimitDetectedInput{
			EventID:   ev.ID,
			ResetTime: ev.ResetTime,
			Timezone:  ev.Timezone,
			Message:   ev.Message,
		})
	}
}

func (w *Watcher) signalRecheck() {
	if w.cfg.Recheck == nil {
		return
	}
	select {
	case w.cfg.Recheck <- struct{}{}:
	default:
	}
}

// runTranscriptPoller is the safety net for sessions whose hook never
// fired: it scans the freshest transcript on a fixed cadence.
func (w *Watcher) runTranscriptPoller(ctx context.Context) error {
	ticker := time.NewTicker(w.cfg.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			w.pollTranscripts()
		}
	}
}

func (w *Watcher) pollTranscripts() {
	metrics.RecordHookRun()
	if err := w.cfg.Store.RecordHookRun(""); err != nil {
		slog.Warn("Could not record poller run", "error", err)
	}

	path, mtime, ok := latestTranscript(w.cfg.ProjectsDir)
	if !ok {
		return
	}
	if w.now().Sub(mtime) > transcriptFreshWindow {
		return
	}

	detection := w.cfg.Analyzer.AnalyzeFile(path)
	if detection == nil {
		return
	}

	pending, err := w.cfg.Store.PeekNextPending()
	if err != nil {
		slog.Warn("Could not peek queue", "error", err)
		return
	}
	if pending != nil {
		// The hook already queued this limit; the dedupe window would
		// reject it anyway.
		return
	}

	sessionID := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	_, duplicate, err := w.cfg.Store.Enqueue(queue.RateLimitEvent{
		ResetTime:      detection.ResetTime,
		Timezone:       detection.Timezone,
		Message:        detection.RawMessage,
		SessionID:      sessionID,
		TranscriptPath: path,
	})
	if err != nil {
		slog.Warn("Could not enqueue polled detection", "error", err)
		return
	}
	if !duplicate {
		slog.Info("Transcript poller detected rate limit", "path", path,
			"reset_time", detection.ResetTime.Format(time.RFC3339))
	}
}

// latestTranscript returns the most recently modified .jsonl file under
// root, walking at most transcriptMaxDepth levels deep.
func latestTranscript(root string) (string, time.Time, bool) {
	var bestPath string
	var bestTime time.Time

	_ = filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		rel, relErr := filepath.Rel(root, path)
		if relErr != nil {
			return nil
		}
		depth := strings.Count(rel, string(filepath.Separator))
		if d.IsDir() {
			if depth >= transcriptMaxDepth {
				return fs.SkipDir
			}
			return nil
		}
		if !strings.HasSuffix(path, ".jsonl") {
			return nil
		}
		info, infoErr := d.Info()
		if infoErr != nil {
			return nil
		}
		if info.ModTime().After(bestTime) {
			bestTime = info.ModTime()
			bestPath = path
		}
		return nil
	})

	return bestPath, bestTime, bestPath != ""
}
