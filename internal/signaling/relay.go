package signaling

import (
	"encoding/json"
	"log/slog"

	"callhub/internal/metrics"
)

// Presence is the part of the presence registry signaling needs.
type Presence interface {
	SendTo(userID, event string, payload any) bool
}

// Relay forwards peer-to-peer messages without looking at call state.
// A message for a user that is not connected is dropped.
type Relay struct {
	presence Presence
	log      *slog.Logger
	metrics  *metrics.Metrics
}

func NewRelay(p Presence, log *slog.Logger, m *metrics.Metrics) *Relay {
	if log == nil {
		log = slog.Default()
	}
	return &Relay{presence: p, log: log.With("component", "relay"), metrics: m}
}

// Forward delivers a negotiation message of the given kind. It reports
// whether the peer was connected.
func (r *Relay) Forward(kind Kind, from, to, callID string, payload json.RawMessage) bool {
	msg := SignalMessage{From: from, CallID: callID, Payload: payload}
	switch kind {
	case KindOffer:
		msg.Offer = payload
	case KindAnswer:
		msg.Answer = payload
	case KindICECandidate:
		msg.Candidate = payload
	}
	return r.deliver(string(kind), from, to, kind.Event(), msg)
}

// Message relays a chat message unchanged.
func (r *Relay) Message(from, to string, data json.RawMessage) bool {
	return r.deliver("message", from, to, EventMessageReceive, data)
}

// Typing tells to that from started or stopped typing.
func (r *Relay) Typing(from, to string, typing bool) bool {
	event := EventUserStopTyping
	if typing {
		event = EventUserTyping
	}
	return r.deliver("typing", from, to, event, from)
}

func (r *Relay) deliver(kind, from, to, event string, payload any) bool {
	if r.presence.SendTo(to, event, payload) {
		return true
	}
	r.metrics.SignalDropped(kind)
	r.log.Debug("peer not connected, dropping", "kind", kind, "from", from, "to", to)
	return false
}
