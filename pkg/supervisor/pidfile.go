package supervisor

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
)

// PIDLock owns the daemon.pid file for the lifetime of the process.
type PIDLock struct {
	path string
	pid  int
}

// AcquirePIDLock claims path for pid. An existing file whose recorded
// pid is still alive yields ErrAlreadyRunning; a stale file from a dead
// process is removed and the claim retried once.
func AcquirePIDLock(path string, pid int, alive func(int) bool) (*PIDLock, error) {
	for attempt := 0; attempt < 2; attempt++ {
		f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
		if err == nil {
			_, werr := fmt.Fprintf(f, "%d\n", pid)
			cerr := f.Close()
			if werr != nil {
				_ = os.Remove(path)
				return nil, fmt.Errorf("writing pid file %s: %w", path, werr)
			}
			if cerr != nil {
				_ = os.Remove(path)
				return nil, fmt.Errorf("closing pid file %s: %w", path, cerr)
			}
			return &PIDLock{path: path, pid: pid}, nil
		}
		if !os.IsExist(err) {
			return nil, fmt.Errorf("creating pid file %s: %w", path, err)
		}

		existing, readErr := ReadPIDFile(path)
		if readErr == nil && existing > 0 && alive(existing) {
			return nil, fmt.Errorf("%w: pid %d holds %s", ErrAlreadyRunning, existing, path)
		}
		slog.Warn("Removing stale pid file", "path", path, "stale_pid", existing)
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			return nil, fmt.Errorf("removing stale pid file %s: %w", path, err)
		}
	}
	return nil, fmt.Errorf("%w: pid file %s kept reappearing", ErrAlreadyRunning, path)
}

// Release removes the pid file.
func (l *PIDLock) Release() {
	if err := os.Remove(l.path); err != nil && !os.IsNotExist(err) {
		slog.Warn("Could not remove pid file", "path", l.path, "error", err)
	}
}

// ReadPIDFile parses the pid recorded at path.
func ReadPIDFile(path string) (int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, err
	}
	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil {
		return 0, fmt.Errorf("parsing pid file %s: %w", path, err)
	}
	return pid, nil
}
