package logging

import (
	"os"
	"sync"
)

// checkEvery is how many writes pass between size checks. Statting on
// every log call would dominate the cost of logging itself.
const checkEvery = 100

// RotatingWriter appends to a log file and rotates it to a single ".1"
// sibling once it crosses maxBytes. The previous ".1" is overwritten, so
// disk usage stays under roughly twice the threshold.
type RotatingWriter struct {
	mu       sync.Mutex
	path     string
	maxBytes int64
	file     *os.File
	calls    int
}

// NewRotatingWriter returns a writer for the log at path. The file is
// opened lazily on first write.
func NewRotatingWriter(path string, maxBytes int64) *RotatingWriter {
	return &RotatingWriter{
		path:     path,
		maxBytes: maxBytes,
	}
}

// Write appends p, checking the rotation threshold every checkEvery
// calls before writing.
func (w *RotatingWriter) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if err := w.ensureOpen(); err != nil {
		return 0, err
	}
	w.calls++
	if w.calls >= checkEvery {
		w.calls = 0
		w.rotateIfOversized()
		if err := w.ensureOpen(); err != nil {
			return 0, err
		}
	}
	return w.file.Write(p)
}

// Close releases the underlying file.
func (w *RotatingWriter) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.file == nil {
		return nil
	}
	err := w.file.Close()
	w.file = nil
	return err
}

func (w *RotatingWriter) ensureOpen() error {
	if w.file != nil {
		return nil
	}
	f, err := os.OpenFile(w.path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	w.file = f
	return nil
}

// rotateIfOversized renames the current log to "<path>.1" when the size
// threshold is reached. The caller reopens a fresh file afterward; rename
// failures fall back to appending to the existing file.
func (w *RotatingWriter) rotateIfOversized() {
	info, err := w.file.Stat()
	if err != nil || info.Size() < w.maxBytes {
		return
	}
	_ = w.file.Close()
	w.file = nil
	// Rename drops any previous ".1".
	_ = os.Rename(w.path, w.path+".1")
}
