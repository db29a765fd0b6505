package realtime

import "time"

// Event types pushed to feed subscribers.
const (
	TypeSubscribed       = "tasks.subscribed"
	TypeTasksInvalidated = "tasks.invalidated"
	TypePong             = "pong"
	TypeError            = "error"
)

// Event is one server-to-client frame. Subscribers refetch GET /api/tasks on
// tasks.invalidated; the event carries no task data.
type Event struct {
	Type    string    `json:"type"`
	TS      time.Time `json:"ts"`
	Code    string    `json:"code,omitempty"`
	Message string    `json:"message,omitempty"`
}

// inbound is the only client frame understood: {"type":"ping"}.
type inbound struct {
	Type string `json:"type"`
}
