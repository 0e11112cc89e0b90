package config

import (
	"fmt"
	"os"
	"path/filepath"
)

// StateDirEnv overrides the default state directory location.
const StateDirEnv = "AUTORESUME_STATE_DIR"

// Paths locates every file the supervisor owns under the state directory.
type Paths struct {
	StateDir string
}

// NewPaths returns the file layout rooted at stateDir.
func NewPaths(stateDir string) Paths {
	return Paths{StateDir: stateDir}
}

// DefaultStateDir resolves the per-user state directory:
// $AUTORESUME_STATE_DIR if set, otherwise <home>/.claude/auto-resume.
func DefaultStateDir() (string, error) {
	if dir := os.Getenv(StateDirEnv); dir != "" {
		return dir, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolving home directory: %w", err)
	}
	return filepath.Join(home, ".claude", "auto-resume"), nil
}

// DefaultProjectsDir resolves the assistant's project tree, the root the
// transcript poller searches for recently active *.jsonl transcripts.
func DefaultProjectsDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolving home directory: %w", err)
	}
	return filepath.Join(home, ".claude", "projects"), nil
}

// Ensure creates the state directory if it does not exist.
func (p Paths) Ensure() error {
	return os.MkdirAll(p.StateDir, 0o755)
}

// QueueFile is the queue document ("status.json").
func (p Paths) QueueFile() string { return filepath.Join(p.StateDir, "status.json") }

// PIDFile holds the supervisor PID while it runs.
func (p Paths) PIDFile() string { return filepath.Join(p.StateDir, "daemon.pid") }

// LogFile is the current daemon log.
func (p Paths) LogFile() string { return filepath.Join(p.StateDir, "daemon.log") }

// RotatedLogFile is the single rotated predecessor of LogFile.
func (p Paths) RotatedLogFile() string { return p.LogFile() + ".1" }

// HeartbeatFile carries the most recent liveness stamp.
func (p Paths) HeartbeatFile() string { return filepath.Join(p.StateDir, "heartbeat.json") }

// LastStartFile records epoch seconds of the most recent start attempt.
func (p Paths) LastStartFile() string { return filepath.Join(p.StateDir, ".last-start") }

// ConfigFile is the configuration document.
func (p Paths) ConfigFile() string { return filepath.Join(p.StateDir, "config.json") }
