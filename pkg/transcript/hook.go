package transcript

import (
	"encoding/json"
	"fmt"
	"io"
)

// HookPayload is the JSON document the assistant pipes to the hook on
// stdin after appending to a transcript.
type HookPayload struct {
	TranscriptPath string `json:"transcript_path"`
	SessionID      string `json:"session_id"`
}

// maxPayloadBytes bounds the hook stdin document.
const maxPayloadBytes = 1 * 1024 * 1024

// ReadHookPayload decodes the hook payload from r.
func ReadHookPayload(r io.Reader) (*HookPayload, error) {
	data, err := io.ReadAll(io.LimitReader(r, maxPayloadBytes))
	if err != nil {
		return nil, fmt.Errorf("reading hook payload: %w", err)
	}
	var payload HookPayload
	if err := json.Unmarshal(data, &payload); err != nil {
		return nil, fmt.Errorf("decoding hook payload: %w", err)
	}
	if payload.TranscriptPath == "" {
		return nil, fmt.Errorf("hook payload missing transcript_path")
	}
	return &payload, nil
}
