package calls

import (
	"context"
	"errors"
	"time"
)

var (
	ErrInvalidRecord  = errors.New("calls: invalid record")
	ErrInvalidRequest = errors.New("calls: invalid request")
)

// Repository is the call history store.
//
// It is append-only: there are no update or delete methods, and
// implementations must not rewrite rows once written.
type Repository interface {
	Append(ctx context.Context, r Record) error

	// ListByUser returns records where userID is caller or receiver, newest
	// first. Zero from/to leave that side of the window open; limit <= 0 means
	// no limit.
	ListByUser(ctx context.Context, userID string, from, to time.Time, limit int) ([]Record, error)

	// CountMissed counts missed calls received by userID.
	CountMissed(ctx context.Context, userID string) (int, error)
}

func validateRecord(r Record) error {
	if r.ID == "" || r.Caller == "" || r.Receiver == "" {
		return ErrInvalidRecord
	}
	if !r.Type.Valid() || !r.Status.Valid() {
		return ErrInvalidRecord
	}
	if r.DurationSeconds < 0 {
		return ErrInvalidRecord
	}
	// Only answered calls accumulate talk time.
	if r.Status != OutcomeAnswered && r.DurationSeconds != 0 {
		return ErrInvalidRecord
	}
	return nil
}
