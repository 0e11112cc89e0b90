package queue

import (
	"encoding/json"
	"log/slog"
	"time"

	"github.com/google/uuid"
)

// Document is the on-disk queue file: the authoritative record of pending
// and historical rate-limit events.
type Document struct {
	Detected    bool             `json:"detected"`
	Queue       []RateLimitEvent `json:"queue"`
	Sessions    []string         `json:"sessions"`
	LastHookRun *time.Time       `json:"last_hook_run"`
}

// legacyDocument is the flat single-event form written by earlier
// releases. It is accepted on read and promoted to a one-entry queue.
type legacyDocument struct {
	Detected       bool   `json:"detected"`
	ResetTime      string `json:"reset_time"`
	Timezone       string `json:"timezone"`
	Message        string `json:"message"`
	ClaudePID      int    `json:"claude_pid"`
	TranscriptPath string `json:"transcript_path"`
}

// newDocument returns an initialized empty document. Queue and Sessions
// are non-nil so the document always marshals with [] rather than null.
func newDocument() *Document {
	return &Document{
		Queue:    []RateLimitEvent{},
		Sessions: []string{},
	}
}

// parseDocument decodes data into a Document, promoting the legacy flat
// form when the modern shape is absent.
func parseDocument(data []byte, now time.Time) (*Document, error) {
	var doc Document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, err
	}
	if doc.Queue == nil && looksLegacy(data) {
		if promoted := promoteLegacy(data, now); promoted != nil {
			return promoted, nil
		}
	}
	doc.normalize()
	return &doc, nil
}

// looksLegacy reports whether the raw document carries a top-level
// reset_time, the marker of the flat single-event form.
func looksLegacy(data []byte) bool {
	var probe map[string]json.RawMessage
	if err := json.Unmarshal(data, &probe); err != nil {
		return false
	}
	_, ok := probe["reset_time"]
	return ok
}

// promoteLegacy lifts a flat document into a one-entry queue. The entry
// keeps the old fields and enters the lifecycle as pending. Returns nil
// when the legacy reset_time does not parse; the caller falls back to an
// empty modern document.
func promoteLegacy(data []byte, now time.Time) *Document {
	var legacy legacyDocument
	if err := json.Unmarshal(data, &legacy); err != nil {
		return nil
	}
	if legacy.ResetTime == "" {
		return nil
	}
	reset, err := time.Parse(time.RFC3339, legacy.ResetTime)
	if err != nil {
		slog.Warn("Legacy queue entry has unparseable reset_time, dropping it",
			"reset_time", legacy.ResetTime, "error", err)
		return nil
	}

	doc := newDocument()
	doc.Queue = append(doc.Queue, RateLimitEvent{
		ID:             uuid.NewString(),
		ResetTime:      reset.UTC(),
		Timezone:       legacy.Timezone,
		Message:        legacy.Message,
		DetectedAt:     now.UTC(),
		SessionPID:     legacy.ClaudePID,
		TranscriptPath: legacy.TranscriptPath,
		Status:         StatusPending,
	})
	doc.normalize()
	slog.Info("Promoted legacy queue document", "reset_time", reset)
	return doc
}

// normalize repairs invariants before the document is used or written:
// non-nil slices and a Detected flag that reflects queue contents.
func (d *Document) normalize() {
	if d.Queue == nil {
		d.Queue = []RateLimitEvent{}
	}
	if d.Sessions == nil {
		d.Sessions = []string{}
	}
	d.Detected = false
	for i := range d.Queue {
		if d.Queue[i].Active() {
			d.Detected = true
			break
		}
	}
}

// nextSchedulable returns the schedulable entry with the smallest reset
// time. Waiting entries count: an event abandoned mid-countdown when an
// earlier reset arrived must come back once that one finishes, and
// status can never move backward to pending.
func (d *Document) nextSchedulable() *RateLimitEvent {
	var head *RateLimitEvent
	for i := range d.Queue {
		e := &d.Queue[i]
		if e.Status != StatusPending && e.Status != StatusWaiting {
			continue
		}
		if head == nil || e.ResetTime.Before(head.ResetTime) {
			head = e
		}
	}
	return head
}

// find returns the entry with the given id.
func (d *Document) find(id string) *RateLimitEvent {
	for i := range d.Queue {
		if d.Queue[i].ID == id {
			return &d.Queue[i]
		}
	}
	return nil
}

// hasSession reports whether the session id is already recorded.
func (d *Document) hasSession(id string) bool {
	for _, s := range d.Sessions {
		if s == id {
			return true
		}
	}
	return false
}
