// Package events streams daemon state changes to WebSocket clients on
// the loopback control server. One hub per daemon; every connected
// client receives every event.
package events

import "time"

// Event types pushed to subscribers.
const (
	TypeQueueUpdated      = "queue.updated"
	TypeCountdownTick     = "countdown.tick"
	TypeDeliveryStarted   = "delivery.started"
	TypeDeliveryCompleted = "delivery.completed"
	TypeDeliveryFailed    = "delivery.failed"
	TypeDaemonStatus      = "daemon.status"
)

// Event is one message on the stream.
type Event struct {
	Type      string    `json:"type"`
	Timestamp time.Time `json:"timestamp"`
	Payload   any       `json:"payload,omitempty"`
}

// ClientMessage is a message sent by a WebSocket client.
type ClientMessage struct {
	Action string `json:"action"`
}

// CountdownPayload accompanies countdown.tick.
type CountdownPayload struct {
	EventID          string    `json:"event_id"`
	ResetTime        time.Time `json:"reset_time"`
	RemainingSeconds int       `json:"remaining_seconds"`
	Display          string    `json:"display"`
}

// DeliveryPayload accompanies the delivery.* events.
type DeliveryPayload struct {
	EventID        string   `json:"event_id"`
	TierUsed       string   `json:"tier_used,omitempty"`
	TiersAttempted []string `json:"tiers_attempted,omitempty"`
	Error          string   `json:"error,omitempty"`
}

// DaemonStatusPayload accompanies daemon.status.
type DaemonStatusPayload struct {
	State         string `json:"state"`
	PID           int    `json:"pid"`
	Version       string `json:"version"`
	UptimeSeconds int64  `json:"uptime_seconds"`
}
