package events

import (
	"context"
	"errors"
	"time"

	"callhub/internal/calls"

	"github.com/google/uuid"
)

// Publisher is the delivery contract for lifecycle events. It must be
// append-only; there is no way to withdraw an event.
type Publisher interface {
	Publish(ctx context.Context, e Event) error
}

// Service stamps and publishes lifecycle events.
//
// Callers should treat publishing as best-effort and never fail a call
// transition on it.
type Service struct {
	pub   Publisher
	clock func() time.Time
}

func NewService(pub Publisher) *Service {
	return &Service{pub: pub, clock: time.Now}
}

var ErrInvalidEvent = errors.New("events: invalid event")

func (s *Service) Publish(ctx context.Context, e Event) error {
	if s.pub == nil {
		return errors.New("events: publisher not configured")
	}
	if e.Type == "" || e.CallID == "" {
		return ErrInvalidEvent
	}

	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = s.clock().UTC()
	}
	return s.pub.Publish(ctx, e)
}

// CallFinished publishes the terminal event for a persisted call record.
func (s *Service) CallFinished(ctx context.Context, rec calls.Record) error {
	return s.Publish(ctx, Event{
		Type:      EventTypeCallFinished,
		CallID:    rec.CallID,
		Caller:    rec.Caller,
		Receiver:  rec.Receiver,
		CallType:  string(rec.Type),
		Status:    string(rec.Status),
		Duration:  rec.DurationSeconds,
		Reason:    string(rec.EndReason),
		CreatedAt: rec.CreatedAt,
	})
}
