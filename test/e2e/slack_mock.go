package e2e

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
)

// slackCall captures a single chat.postMessage request to the mock.
type slackCall struct {
	Channel string
	Blocks  string // raw JSON blocks payload
}

// mockSlackServer mimics the Slack API, recording chat.postMessage
// calls so tests can assert on notification content.
type mockSlackServer struct {
	mu    sync.Mutex
	calls []slackCall

	server *httptest.Server
}

func newMockSlackServer(t *testing.T) *mockSlackServer {
	m := &mockSlackServer{}

	mux := http.NewServeMux()
	mux.HandleFunc("/chat.postMessage", m.handlePostMessage)

	m.server = httptest.NewServer(mux)
	t.Cleanup(m.server.Close)
	return m
}

// APIURL returns the base URL in the trailing-slash form the slack-go
// client expects.
func (m *mockSlackServer) APIURL() string {
	return m.server.URL + "/"
}

func (m *mockSlackServer) handlePostMessage(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	call := slackCall{
		Channel: r.FormValue("channel"),
		Blocks:  r.FormValue("blocks"),
	}
	m.mu.Lock()
	m.calls = append(m.calls, call)
	n := len(m.calls)
	m.mu.Unlock()

	resp := map[string]any{
		"ok":      true,
		"channel": call.Channel,
		"ts":      fmt.Sprintf("1234567890.%06d", n),
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(resp)
}

// Calls returns a snapshot of every recorded chat.postMessage request.
func (m *mockSlackServer) Calls() []slackCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]slackCall(nil), m.calls...)
}

// HasCallContaining reports whether any recorded call's blocks payload
// contains substr.
func (m *mockSlackServer) HasCallContaining(substr string) bool {
	for _, call := range m.Calls() {
		if strings.Contains(call.Blocks, substr) {
			return true
		}
	}
	return false
}
