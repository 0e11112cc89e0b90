// Package logging wires slog to the daemon's rotating log file.
//
// CLI commands keep the stock stderr handler; the daemon swaps in a
// handler backed by RotatingWriter so long-running output stays bounded.
package logging

import (
	"io"
	"log/slog"
	"os"
	"strings"
)

// Setup installs a text handler writing to w as the process-wide default.
func Setup(w io.Writer, level slog.Level) {
	slog.SetDefault(slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level})))
}

// ParseLevel maps a level name to a slog level, defaulting to info.
func ParseLevel(name string) slog.Level {
	switch strings.ToLower(name) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// TailLines returns the last n lines of the file at path. A missing file
// yields no lines and no error, matching an idle daemon that has not
// logged yet.
func TailLines(path string, n int) ([]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	lines := strings.Split(strings.TrimRight(string(data), "\n"), "\n")
	if len(lines) == 1 && lines[0] == "" {
		return nil, nil
	}
	if n > 0 && len(lines) > n {
		lines = lines[len(lines)-n:]
	}
	return lines, nil
}
