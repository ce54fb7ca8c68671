package models

import "time"

// -----------------------------------------------------------------------------
// Session Journal Events
// -----------------------------------------------------------------------------

const (
	EventConnected    = "connected"
	EventSuperseded   = "superseded"
	EventDisconnected = "disconnected"
	EventSubscribed   = "subscribed"
	EventUnsubscribed = "unsubscribed"
	EventAuthRejected = "auth_rejected"
)

// -----------------------------------------------------------------------------

// MSessionEvent is one row of the operational session journal. Only lifecycle
// facts are recorded; pushed payloads are never stored.
type MSessionEvent struct {
	ID        string    `json:"id"`
	UserID    int64     `json:"user_id"`
	SessionID string    `json:"session_id"`
	Event     string    `json:"event"`
	Detail    string    `json:"detail"`
	CreatedAt time.Time `json:"created_at"`
}

// -----------------------------------------------------------------------------

// MConnectionInfo is the ops-endpoint snapshot of one live connection.
type MConnectionInfo struct {
	UserID           int64   `json:"user_id"`
	SessionID        string  `json:"session_id"`
	ConnectedAt      string  `json:"connected_at"`
	LastActivity     string  `json:"last_activity"`
	SubscribedAssets []int64 `json:"subscribed_assets"`
}
