package calls

import (
	"fmt"
	"time"
)

// Type is the media type requested by the caller.
type Type string

const (
	TypeAudio Type = "audio"
	TypeVideo Type = "video"
)

func (t Type) Valid() bool {
	return t == TypeAudio || t == TypeVideo
}

// Status is the lifecycle state of an in-flight call.
//
// Only ringing and connected are ever observed in the tracker; the remaining
// values describe how a call left it.
type Status string

const (
	StatusRinging   Status = "ringing"
	StatusConnected Status = "connected"
	StatusEnded     Status = "ended"
	StatusRejected  Status = "rejected"
	StatusCancelled Status = "cancelled"
	StatusMissed    Status = "missed"
)

// Outcome is the final status written to call history.
type Outcome string

const (
	OutcomeMissed    Outcome = "missed"
	OutcomeAnswered  Outcome = "answered"
	OutcomeRejected  Outcome = "rejected"
	OutcomeCancelled Outcome = "cancelled"
)

func (o Outcome) Valid() bool {
	switch o {
	case OutcomeMissed, OutcomeAnswered, OutcomeRejected, OutcomeCancelled:
		return true
	default:
		return false
	}
}

// EndReason records which path terminated a call. It is stored next to the
// outcome for operational follow-up.
type EndReason string

const (
	ReasonHangup     EndReason = "hangup"
	ReasonRejected   EndReason = "rejected"
	ReasonCancelled  EndReason = "cancelled"
	ReasonDisconnect EndReason = "disconnect"
	ReasonOffline    EndReason = "offline"
	ReasonTimeout    EndReason = "timeout"
)

// Call is the transient, in-memory state of a call attempt.
//
// StartTime is zero until the receiver answers.
type Call struct {
	ID       string `json:"call_id"`
	Caller   string `json:"caller"`
	Receiver string `json:"receiver"`
	Type     Type   `json:"type"`
	Status   Status `json:"status"`

	CreatedAt time.Time `json:"created_at"`
	StartTime time.Time `json:"start_time,omitempty"`
}

func (c Call) Connected() bool { return !c.StartTime.IsZero() }

func (c Call) Involves(userID string) bool {
	return userID != "" && (c.Caller == userID || c.Receiver == userID)
}

// Peer returns the other participant, or "" if userID is not part of the call.
func (c Call) Peer(userID string) string {
	switch userID {
	case c.Caller:
		return c.Receiver
	case c.Receiver:
		return c.Caller
	default:
		return ""
	}
}

// Duration returns whole elapsed seconds since the call connected, 0 if it
// never did.
func (c Call) Duration(now time.Time) int {
	if !c.Connected() {
		return 0
	}
	return DurationSeconds(c.StartTime, now)
}

// Finish builds the history record for this call.
func (c Call) Finish(outcome Outcome, reason EndReason, now time.Time) Record {
	return Record{
		CallID:          c.ID,
		Caller:          c.Caller,
		Receiver:        c.Receiver,
		Type:            c.Type,
		Status:          outcome,
		DurationSeconds: c.Duration(now),
		EndReason:       reason,
		CreatedAt:       now,
	}
}

// Record is an append-only call history row.
type Record struct {
	ID       string `json:"id" db:"id"`
	CallID   string `json:"call_id,omitempty" db:"call_id"`
	Caller   string `json:"caller" db:"caller"`
	Receiver string `json:"receiver" db:"receiver"`
	Type     Type   `json:"type" db:"type"`

	Status Outcome `json:"status" db:"status"`

	// DurationSeconds is whole seconds between answer and termination.
	DurationSeconds int `json:"duration" db:"duration_seconds"`

	EndReason EndReason `json:"end_reason,omitempty" db:"end_reason"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

// DurationSeconds floors the elapsed time to whole seconds and never returns a
// negative value, even if the clock stepped backwards.
func DurationSeconds(start, end time.Time) int {
	if start.IsZero() || !end.After(start) {
		return 0
	}
	return int(end.Sub(start) / time.Second)
}

// DeriveCallID builds a call id from the participants and the initiation time
// for clients that do not supply one.
func DeriveCallID(caller, receiver string, at time.Time) string {
	return fmt.Sprintf("%s-%s-%d", caller, receiver, at.UnixMilli())
}
