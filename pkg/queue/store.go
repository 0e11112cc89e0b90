// Package queue persists rate-limit events in a single JSON document with
// atomic-replace write semantics.
//
// The document is shared between the supervisor (status updates, pruning)
// and short-lived hook invocations of the analyzer (appends). There is no
// cross-process lock: every writer does a full read-modify-write ending in
// a rename, which gives all-or-nothing visibility. A lost append under a
// write race is tolerated because the hook and the transcript poller both
// re-emit detections.
package queue

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/renameio/v2"
	"github.com/google/uuid"
)

// dedupeWindow collapses detections of the same reset instant. Hook and
// poller frequently see the same banner seconds apart.
const dedupeWindow = time.Second

// Store reads and writes the queue document at a fixed path.
type Store struct {
	path string
	mu   sync.Mutex
	now  func() time.Time
}

// NewStore returns a store bound to the queue document at path.
func NewStore(path string) *Store {
	return &Store{
		path: path,
		now:  time.Now,
	}
}

// Path returns the queue document location.
func (s *Store) Path() string {
	return s.path
}

// Load reads the current document. A missing file yields an empty
// document without creating it; a corrupt file is backed up, replaced
// with a fresh document, and never fails the caller.
func (s *Store) Load() (*Document, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.load()
}

// Enqueue appends event unless an active entry already covers the same
// reset instant within the dedupe window. Returns the stored entry and
// whether the append was suppressed as a duplicate. Missing id, status,
// and detection stamps are filled in.
func (s *Store) Enqueue(event RateLimitEvent) (*RateLimitEvent, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, err := s.load()
	if err != nil {
		return nil, false, err
	}

	for i := range doc.Queue {
		e := &doc.Queue[i]
		if !e.Active() {
			continue
		}
		if absDuration(e.ResetTime.Sub(event.ResetTime)) <= dedupeWindow {
			slog.Debug("Duplicate detection suppressed",
				"existing_id", e.ID, "reset_time", e.ResetTime)
			return e, true, nil
		}
	}

	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if event.Status == "" {
		event.Status = StatusPending
	}
	if event.DetectedAt.IsZero() {
		event.DetectedAt = s.now().UTC()
	}
	event.ResetTime = event.ResetTime.UTC()

	doc.Queue = append(doc.Queue, event)
	if event.SessionID != "" && !doc.hasSession(event.SessionID) {
		doc.Sessions = append(doc.Sessions, event.SessionID)
	}
	if err := s.save(doc); err != nil {
		return nil, false, err
	}
	slog.Info("Rate-limit event queued",
		"id", event.ID, "reset_time", event.ResetTime, "timezone", event.Timezone)
	return doc.find(event.ID), false, nil
}

// PeekNextPending returns the schedulable entry (pending or waiting)
// with the smallest reset time, or nil when nothing is schedulable.
func (s *Store) PeekNextPending() (*RateLimitEvent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, err := s.load()
	if err != nil {
		return nil, err
	}
	head := doc.nextSchedulable()
	if head == nil {
		return nil, nil
	}
	out := *head
	return &out, nil
}

// UpdateStatus advances the entry's lifecycle and persists the document.
// Terminal statuses stamp completed_at. Moving an entry to resuming while
// another entry is resuming is rejected.
func (s *Store) UpdateStatus(id string, status Status) (*RateLimitEvent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, err := s.load()
	if err != nil {
		return nil, err
	}
	entry := doc.find(id)
	if entry == nil {
		return nil, fmt.Errorf("%w: %s", ErrEventNotFound, id)
	}
	if !entry.Status.CanTransitionTo(status) {
		return nil, fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, entry.Status, status)
	}
	if status == StatusResuming {
		for i := range doc.Queue {
			if doc.Queue[i].ID != id && doc.Queue[i].Status == StatusResuming {
				return nil, fmt.Errorf("%w: %s", ErrResumeInProgress, doc.Queue[i].ID)
			}
		}
	}

	entry.Status = status
	if status.Terminal() {
		ts := s.now().UTC()
		entry.CompletedAt = &ts
	}
	if err := s.save(doc); err != nil {
		return nil, err
	}
	out := *entry
	return &out, nil
}

// Prune drops completed and failed entries older than retention. Returns
// how many entries were removed.
func (s *Store) Prune(retention time.Duration) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, err := s.load()
	if err != nil {
		return 0, err
	}
	cutoff := s.now().Add(-retention)
	kept := doc.Queue[:0]
	removed := 0
	for _, e := range doc.Queue {
		if e.Status.Terminal() && eventRefTime(&e).Before(cutoff) {
			removed++
			continue
		}
		kept = append(kept, e)
	}
	if removed == 0 {
		return 0, nil
	}
	doc.Queue = kept
	if err := s.save(doc); err != nil {
		return 0, err
	}
	slog.Info("Pruned queue history", "removed", removed, "retention", retention)
	return removed, nil
}

// Reset replaces the document with a fresh empty one.
func (s *Store) Reset() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.save(newDocument())
}

// RecordHookRun stamps last_hook_run and records the contributing
// session, whether or not the run produced a detection.
func (s *Store) RecordHookRun(sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, err := s.load()
	if err != nil {
		return err
	}
	ts := s.now().UTC()
	doc.LastHookRun = &ts
	if sessionID != "" && !doc.hasSession(sessionID) {
		doc.Sessions = append(doc.Sessions, sessionID)
	}
	return s.save(doc)
}

// HasDetectionAfter reports whether any entry was detected after t. The
// passive verification path uses this to spot a relimited session.
func (s *Store) HasDetectionAfter(t time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, err := s.load()
	if err != nil {
		return false, err
	}
	for i := range doc.Queue {
		if doc.Queue[i].DetectedAt.After(t) {
			return true, nil
		}
	}
	return false, nil
}

func (s *Store) load() (*Document, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return newDocument(), nil
		}
		return nil, fmt.Errorf("reading queue document: %w", err)
	}

	doc, err := parseDocument(data, s.now())
	if err != nil {
		slog.Error("Queue document corrupt, reinitializing",
			"path", s.path, "error", fmt.Errorf("%w: %v", ErrInvalidQueueDocument, err))
		if err := s.backupCorrupt(); err != nil {
			slog.Warn("Could not back up corrupt queue document", "error", err)
		}
		doc = newDocument()
		if err := s.save(doc); err != nil {
			return nil, err
		}
	}
	return doc, nil
}

func (s *Store) save(doc *Document) error {
	doc.normalize()
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding queue document: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return fmt.Errorf("creating state dir: %w", err)
	}
	if err := renameio.WriteFile(s.path, append(data, '\n'), 0o644); err != nil {
		return fmt.Errorf("writing queue document: %w", err)
	}
	return nil
}

func (s *Store) backupCorrupt() error {
	backup := fmt.Sprintf("%s.corrupt.%d", s.path, s.now().Unix())
	return os.Rename(s.path, backup)
}

func eventRefTime(e *RateLimitEvent) time.Time {
	if e.CompletedAt != nil {
		return *e.CompletedAt
	}
	return e.DetectedAt
}

func absDuration(d time.Duration) time.Duration {
	if d < 0 {
		return -d
	}
	return d
}
