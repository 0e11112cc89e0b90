package delivery

import (
	"context"
	"os/exec"
	"strings"
	"sync"
)

// fakeRunner records every invocation and answers from a scripted
// responder, so tier logic runs without tmux, xdotool, or a display.
type fakeRunner struct {
	mu      sync.Mutex
	calls   [][]string
	missing map[string]bool
	respond func(argv []string) (string, error)
}

func newFakeRunner(respond func(argv []string) (string, error)) *fakeRunner {
	return &fakeRunner{missing: make(map[string]bool), respond: respond}
}

func (f *fakeRunner) Run(_ context.Context, argv ...string) ([]byte, error) {
	f.mu.Lock()
	f.calls = append(f.calls, argv)
	f.mu.Unlock()
	if f.respond == nil {
		return nil, nil
	}
	out, err := f.respond(argv)
	return []byte(out), err
}

func (f *fakeRunner) LookPath(name string) (string, error) {
	if f.missing[name] {
		return "", exec.ErrNotFound
	}
	return "/usr/bin/" + name, nil
}

func (f *fakeRunner) callStrings() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.calls))
	for i, argv := range f.calls {
		out[i] = strings.Join(argv, " ")
	}
	return out
}
