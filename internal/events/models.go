package events

import "time"

// Event is an immutable record on the call lifecycle stream.
//
// Events are never updated or retracted. Consumers may see an event more than
// once after a publisher reconnect and should key on ID.
type Event struct {
	ID   string    `json:"id"`
	Type EventType `json:"type"`

	CallID   string `json:"call_id"`
	Caller   string `json:"caller"`
	Receiver string `json:"receiver"`
	CallType string `json:"call_type"`

	// Status is the persisted outcome (missed, answered, rejected, cancelled).
	Status   string `json:"status"`
	Duration int    `json:"duration"`
	Reason   string `json:"reason,omitempty"`

	CreatedAt time.Time `json:"created_at"`
}

type EventType string

const (
	EventTypeCallFinished EventType = "call.finished"
)
