package e2e

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/stretchr/testify/require"
)

// wsClient is a minimal consumer of the daemon's event stream.
type wsClient struct {
	conn *websocket.Conn
}

// wsConnect dials the daemon's /ws endpoint. Close is registered via
// t.Cleanup.
func wsConnect(t *testing.T, url string) *wsClient {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conn, resp, err := websocket.Dial(ctx, url, nil)
	require.NoError(t, err)
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}
	t.Cleanup(func() { _ = conn.Close(websocket.StatusNormalClosure, "") })
	return &wsClient{conn: conn}
}

// waitFor reads frames until one of the given type arrives, skipping
// everything else (connection banner, snapshots, countdown ticks).
func (c *wsClient) waitFor(t *testing.T, eventType string, timeout time.Duration) map[string]any {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	for {
		_, data, err := c.conn.Read(ctx)
		require.NoError(t, err, "waiting for %s", eventType)

		var msg map[string]any
		require.NoError(t, json.Unmarshal(data, &msg))
		if msg["type"] == eventType {
			return msg
		}
	}
}
