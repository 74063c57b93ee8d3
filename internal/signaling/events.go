package signaling

import (
	"encoding/json"
	"errors"

	"callhub/internal/calls"
)

// Inbound event names.
const (
	EventCallInitiate     = "call:initiate"
	EventCallAnswer       = "call:answer"
	EventCallReject       = "call:reject"
	EventCallEnd          = "call:end"
	EventCallCancel       = "call:cancel"
	EventCallOffer        = "call:offer"
	EventCallAnswerSignal = "call:answer-signal"
	EventCallICECandidate = "call:ice-candidate"
	EventMessageSend      = "message:send"
	EventTypingStart      = "typing:start"
	EventTypingStop       = "typing:stop"
)

// Outbound event names. call:offer, call:answer-signal and
// call:ice-candidate are relayed under their inbound names.
const (
	EventCallIncoming    = "call:incoming"
	EventCallAnswered    = "call:answered"
	EventCallRejected    = "call:rejected"
	EventCallEnded       = "call:ended"
	EventCallUserOffline = "call:user-offline"
	EventCallMissed      = "call:missed"
	EventMessageReceive  = "message:receive"
	EventUserTyping      = "user:typing"
	EventUserStopTyping  = "user:stop-typing"
)

var (
	ErrMalformed     = errors.New("signaling: malformed event")
	ErrUnknownEvent  = errors.New("signaling: unknown event")
	ErrDuplicateCall = errors.New("signaling: call id already in use")
)

// Kind is a negotiation message relayed between peers.
type Kind string

const (
	KindOffer        Kind = "offer"
	KindAnswer       Kind = "answer"
	KindICECandidate Kind = "ice-candidate"
)

// Event returns the outbound event name used for this kind.
func (k Kind) Event() string {
	switch k {
	case KindOffer:
		return EventCallOffer
	case KindAnswer:
		return EventCallAnswerSignal
	case KindICECandidate:
		return EventCallICECandidate
	default:
		return ""
	}
}

type InitiateRequest struct {
	To         string          `json:"to"`
	From       string          `json:"from"`
	Type       calls.Type      `json:"type"`
	Offer      json.RawMessage `json:"offer,omitempty"`
	CallerInfo json.RawMessage `json:"callerInfo,omitempty"`
	CallID     string          `json:"callId,omitempty"`
}

type AnswerRequest struct {
	CallID string          `json:"callId"`
	Answer json.RawMessage `json:"answer,omitempty"`
	To     string          `json:"to,omitempty"`
}

// CallRequest carries the fields shared by reject, end and cancel.
type CallRequest struct {
	CallID string `json:"callId"`
	To     string `json:"to,omitempty"`
	UserID string `json:"userId,omitempty"`
}

// SignalRequest is a relayed negotiation message. Older clients put the body
// under offer, answer or candidate instead of payload.
type SignalRequest struct {
	To        string          `json:"to"`
	CallID    string          `json:"callId,omitempty"`
	Payload   json.RawMessage `json:"payload,omitempty"`
	Offer     json.RawMessage `json:"offer,omitempty"`
	Answer    json.RawMessage `json:"answer,omitempty"`
	Candidate json.RawMessage `json:"candidate,omitempty"`
}

func (r SignalRequest) body(k Kind) json.RawMessage {
	if len(r.Payload) > 0 {
		return r.Payload
	}
	switch k {
	case KindOffer:
		return r.Offer
	case KindAnswer:
		return r.Answer
	case KindICECandidate:
		return r.Candidate
	}
	return nil
}

type IncomingCall struct {
	CallID     string          `json:"callId"`
	From       string          `json:"from"`
	Type       calls.Type      `json:"type"`
	CallerInfo json.RawMessage `json:"callerInfo,omitempty"`
}

// SignalMessage is delivered to the peer. The body is repeated under the
// kind-specific key for clients that predate payload.
type SignalMessage struct {
	From      string          `json:"from"`
	CallID    string          `json:"callId,omitempty"`
	Payload   json.RawMessage `json:"payload"`
	Offer     json.RawMessage `json:"offer,omitempty"`
	Answer    json.RawMessage `json:"answer,omitempty"`
	Candidate json.RawMessage `json:"candidate,omitempty"`
}

type CallAnswered struct {
	CallID string          `json:"callId"`
	Answer json.RawMessage `json:"answer,omitempty"`
}

type CallRejected struct {
	CallID string `json:"callId"`
}

type CallEnded struct {
	CallID   string `json:"callId"`
	Duration int    `json:"duration"`
	Reason   string `json:"reason,omitempty"`
}

type UserOffline struct {
	To     string `json:"to"`
	CallID string `json:"callId,omitempty"`
}

type CallMissed struct {
	CallID string `json:"callId"`
	From   string `json:"from,omitempty"`
	Reason string `json:"reason,omitempty"`
}
