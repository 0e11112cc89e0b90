package events

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/google/uuid"
)

// snapshotTypes are replayed to a client right after it connects, so a
// dashboard opened mid-countdown shows current state without waiting
// for the next tick.
var snapshotTypes = []string{TypeDaemonStatus, TypeQueueUpdated, TypeCountdownTick}

// Hub manages WebSocket connections and fans events out to all of them.
// Nil-safe: Publish on a nil hub is a no-op, so the daemon runs
// identically with the control server disabled.
type Hub struct {
	// Active connections: connection_id → *Connection
	connections map[string]*Connection
	mu          sync.RWMutex

	// Last event per snapshot type, replayed on connect.
	snapshots  map[string][]byte
	snapshotMu sync.RWMutex

	writeTimeout time.Duration
}

// Connection represents a single WebSocket client.
type Connection struct {
	ID     string
	Conn   *websocket.Conn
	ctx    context.Context
	cancel context.CancelFunc
}

// NewHub creates an event hub with the given per-send write timeout.
func NewHub(writeTimeout time.Duration) *Hub {
	return &Hub{
		connections:  make(map[string]*Connection),
		snapshots:    make(map[string][]byte),
		writeTimeout: writeTimeout,
	}
}

// HandleConnection manages the lifecycle of a single WebSocket
// connection. Called by the HTTP handler after upgrade; blocks until
// the connection closes.
func (h *Hub) HandleConnection(parentCtx context.Context, conn *websocket.Conn) {
	connID := uuid.New().String()
	ctx, cancel := context.WithCancel(parentCtx)

	c := &Connection{
		ID:     connID,
		Conn:   conn,
		ctx:    ctx,
		cancel: cancel,
	}

	h.register(c)
	defer h.unregister(c)

	h.sendJSON(c, map[string]string{
		"type":          "connection.established",
		"connection_id": connID,
	})
	h.replaySnapshots(c)

	// Read loop. Clients only ever send pings; anything else is logged
	// and dropped.
	for {
		_, data, err := conn.Read(ctx)
		if err != nil {
			return
		}

		var msg ClientMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			slog.Warn("Invalid WebSocket message", "connection_id", connID, "error", err)
			continue
		}
		if msg.Action == "ping" {
			h.sendJSON(c, map[string]string{"type": "pong"})
		}
	}
}

// Publish sends an event to every connected client and records it as
// the latest snapshot of its type.
func (h *Hub) Publish(eventType string, payload any) {
	if h == nil {
		return
	}
	data, err := json.Marshal(Event{
		Type:      eventType,
		Timestamp: time.Now().UTC(),
		Payload:   payload,
	})
	if err != nil {
		slog.Warn("Failed to marshal event", "type", eventType, "error", err)
		return
	}

	h.storeSnapshot(eventType, data)

	// Snapshot connection pointers under the lock, then release before
	// sending. A slow client write (up to writeTimeout) must not stall
	// register/unregister.
	h.mu.RLock()
	conns := make([]*Connection, 0, len(h.connections))
	for _, c := range h.connections {
		conns = append(conns, c)
	}
	h.mu.RUnlock()

	for _, c := range conns {
		if err := h.sendRaw(c, data); err != nil {
			slog.Warn("Failed to send to WebSocket client", "connection_id", c.ID, "error", err)
		}
	}
}

// ActiveConnections returns the count of connected clients.
func (h *Hub) ActiveConnections() int {
	if h == nil {
		return 0
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.connections)
}

func (h *Hub) storeSnapshot(eventType string, data []byte) {
	for _, t := range snapshotTypes {
		if t == eventType {
			h.snapshotMu.Lock()
			h.snapshots[eventType] = data
			h.snapshotMu.Unlock()
			return
		}
	}
}

func (h *Hub) replaySnapshots(c *Connection) {
	h.snapshotMu.RLock()
	replay := make([][]byte, 0, len(snapshotTypes))
	for _, t := range snapshotTypes {
		if data, ok := h.snapshots[t]; ok {
			replay = append(replay, data)
		}
	}
	h.snapshotMu.RUnlock()

	for _, data := range replay {
		if err := h.sendRaw(c, data); err != nil {
			slog.Warn("Failed to replay snapshot", "connection_id", c.ID, "error", err)
			return
		}
	}
}

func (h *Hub) register(c *Connection) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.connections[c.ID] = c
}

func (h *Hub) unregister(c *Connection) {
	h.mu.Lock()
	delete(h.connections, c.ID)
	h.mu.Unlock()

	c.cancel()
	_ = c.Conn.Close(websocket.StatusNormalClosure, "")
}

func (h *Hub) sendJSON(c *Connection, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		slog.Warn("Failed to marshal WebSocket message", "connection_id", c.ID, "error", err)
		return
	}
	if err := h.sendRaw(c, data); err != nil {
		slog.Warn("Failed to send WebSocket message", "connection_id", c.ID, "error", err)
	}
}

// sendRaw sends raw bytes to a single connection with a write timeout.
func (h *Hub) sendRaw(c *Connection, data []byte) error {
	writeCtx, cancel := context.WithTimeout(c.ctx, h.writeTimeout)
	defer cancel()
	return c.Conn.Write(writeCtx, websocket.MessageText, data)
}
