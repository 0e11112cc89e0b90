// Package transcript detects rate-limit events in the assistant's
// newline-delimited JSON session transcripts.
//
// The analyzer runs in two modes: as a short-lived hook invoked by the
// assistant after each transcript append (payload on stdin), and inline
// from the supervisor's transcript poller. Both funnel into AnalyzeFile.
package transcript

import (
	"bufio"
	"encoding/json"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/Muminur/auto-claude-resume-after-limit-reset-sub000/pkg/resettime"
)

// Detection is one extracted rate-limit event, before it is enqueued.
type Detection struct {
	ResetTime  time.Time // absolute UTC instant the limit lifts
	Timezone   string    // zone name from the banner, informational
	RawMessage string    // text the sentinel matched in
}

// maxLineBytes bounds a single transcript line. Assistant records can
// carry large embedded tool output.
const maxLineBytes = 4 * 1024 * 1024

// maxFieldDepth bounds the recursive walk over a record's fields.
const maxFieldDepth = 6

// Analyzer scans transcript records for rate-limit sentinels.
type Analyzer struct {
	sentinels []SentinelPattern
	now       func() time.Time
}

// NewAnalyzer returns an analyzer matching the built-in sentinels plus
// any user-configured trigger phrases.
func NewAnalyzer(extraPhrases []string) *Analyzer {
	return &Analyzer{
		sentinels: append(append([]SentinelPattern{}, builtinSentinels...), compilePhrases(extraPhrases)...),
		now:       time.Now,
	}
}

// AnalyzeFile scans the transcript at path line by line and returns the
// last detection found, or nil. A missing or unreadable file is not an
// error: the hook contract requires a clean exit either way, so problems
// are logged and swallowed here.
func (a *Analyzer) AnalyzeFile(path string) *Detection {
	f, err := os.Open(path)
	if err != nil {
		slog.Warn("Transcript unreadable", "path", path, "error", err)
		return nil
	}
	defer f.Close()

	var last *Detection
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 64*1024), maxLineBytes)
	for scanner.Scan() {
		if d := a.AnalyzeLine(scanner.Bytes()); d != nil {
			last = d
		}
	}
	if err := scanner.Err(); err != nil {
		slog.Warn("Transcript scan aborted", "path", path, "error", err)
		return nil
	}
	return last
}

// AnalyzeLine inspects a single transcript record. Records that fail to
// parse as JSON are skipped. The scanner hands over the final line of a
// file even without a trailing newline, so no special casing is needed
// for partially written transcripts.
func (a *Analyzer) AnalyzeLine(line []byte) *Detection {
	if len(strings.TrimSpace(string(line))) == 0 {
		return nil
	}
	var record any
	if err := json.Unmarshal(line, &record); err != nil {
		slog.Debug("Skipping malformed transcript line", "error", err)
		return nil
	}

	var last *Detection
	for _, field := range collectStrings(record, maxFieldDepth) {
		if d := a.scanText(field); d != nil {
			last = d
		}
	}
	return last
}

// scanText applies the sentinel table to one textual field.
func (a *Analyzer) scanText(text string) *Detection {
	matched := ""
	for _, p := range a.sentinels {
		if p.Regex.MatchString(text) {
			matched = p.Name
			break
		}
	}
	if matched == "" {
		return nil
	}

	if m := resetTokenRe.FindStringSubmatch(text); m != nil {
		hour, _ := strconv.Atoi(m[1])
		minute := 0
		if m[2] != "" {
			minute, _ = strconv.Atoi(m[2])
		}
		zone := strings.TrimSpace(m[4])
		reset, err := resettime.Resolve(hour, minute, m[3], zone, a.now())
		if err != nil {
			slog.Warn("Reset token did not resolve", "pattern", matched, "text", text, "error", err)
			return nil
		}
		return &Detection{ResetTime: reset, Timezone: zone, RawMessage: text}
	}

	if m := tryAgainRe.FindStringSubmatch(text); m != nil {
		n, _ := strconv.Atoi(m[1])
		var unit time.Duration
		switch strings.ToLower(m[2]) {
		case "second":
			unit = time.Second
		case "minute":
			unit = time.Minute
		case "hour":
			unit = time.Hour
		}
		return &Detection{
			ResetTime:  a.now().Add(time.Duration(n) * unit).UTC(),
			Timezone:   "UTC",
			RawMessage: text,
		}
	}

	// Sentinel with no recoverable deadline. Nothing to schedule.
	slog.Debug("Sentinel matched without reset token", "pattern", matched)
	return nil
}

// collectStrings gathers every string value in a decoded JSON record,
// depth-limited. Transcript records nest message content several levels
// deep ("message" -> "content" -> [{"text": ...}]).
func collectStrings(v any, depth int) []string {
	if depth < 0 {
		return nil
	}
	switch val := v.(type) {
	case string:
		return []string{val}
	case []any:
		var out []string
		for _, item := range val {
			out = append(out, collectStrings(item, depth-1)...)
		}
		return out
	case map[string]any:
		var out []string
		for _, item := range val {
			out = append(out, collectStrings(item, depth-1)...)
		}
		return out
	default:
		return nil
	}
}

// RecordTimestamp extracts the RFC3339 timestamp of a transcript record.
// Used by delivery verification to decide whether activity happened after
// keystrokes were sent.
func RecordTimestamp(line []byte) (time.Time, bool) {
	var record struct {
		Timestamp string `json:"timestamp"`
	}
	if err := json.Unmarshal(line, &record); err != nil || record.Timestamp == "" {
		return time.Time{}, false
	}
	ts, err := time.Parse(time.RFC3339, record.Timestamp)
	if err != nil {
		return time.Time{}, false
	}
	return ts, true
}
