package supervisor

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/google/renameio/v2"
)

// Heartbeat is the liveness stamp written beside the pid file. External
// monitors (and the status subcommand) read it to tell a healthy daemon
// from a wedged one.
type Heartbeat struct {
	Timestamp time.Time `json:"timestamp"`
	PID       int       `json:"pid"`
}

// WriteHeartbeat atomically replaces the stamp at path.
func WriteHeartbeat(path string, hb Heartbeat) error {
	data, err := json.Marshal(hb)
	if err != nil {
		return fmt.Errorf("encoding heartbeat: %w", err)
	}
	if err := renameio.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("writing heartbeat %s: %w", path, err)
	}
	return nil
}

// ReadHeartbeat loads the most recent stamp.
func ReadHeartbeat(path string) (*Heartbeat, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var hb Heartbeat
	if err := json.Unmarshal(data, &hb); err != nil {
		return nil, fmt.Errorf("parsing heartbeat %s: %w", path, err)
	}
	return &hb, nil
}
