package supervisor

import "errors"

var (
	// ErrAlreadyRunning indicates another live supervisor holds the pid
	// file. The caller should surface the conflicting pid and exit.
	ErrAlreadyRunning = errors.New("supervisor already running")

	// ErrMemoryCeiling indicates the resident set crossed the configured
	// ceiling. The run loop aborts so the service manager can restart
	// the process from a clean slate.
	ErrMemoryCeiling = errors.New("resident memory above ceiling")
)
