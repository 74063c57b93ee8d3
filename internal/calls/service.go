package calls

import (
	"context"
	"errors"
	"time"
)

const (
	DefaultHistoryLimit = 100
	MaxHistoryLimit     = 500
)

type TimeRange struct {
	From time.Time `json:"from"`
	To   time.Time `json:"to"`
}

// SummaryRequest requests aggregated call history for one user.
type SummaryRequest struct {
	UserID string    `json:"user_id"`
	Range  TimeRange `json:"range"`
}

type Summary struct {
	UserID string `json:"user_id"`

	TotalCalls     int `json:"total_calls"`
	AnsweredCalls  int `json:"answered_calls"`
	MissedCalls    int `json:"missed_calls"`
	RejectedCalls  int `json:"rejected_calls"`
	CancelledCalls int `json:"cancelled_calls"`

	// Outgoing and Incoming are relative to UserID.
	OutgoingCalls int `json:"outgoing_calls"`
	IncomingCalls int `json:"incoming_calls"`

	TotalDurationSeconds   int `json:"total_duration_seconds"`
	AverageDurationSeconds int `json:"average_duration_seconds"`
}

// Service answers history queries on top of a Repository.
type Service struct {
	repo Repository
}

func NewService(repo Repository) *Service { return &Service{repo: repo} }

// History returns the newest records involving userID. limit <= 0 selects
// DefaultHistoryLimit; larger values are capped at MaxHistoryLimit.
func (s *Service) History(ctx context.Context, userID string, limit int) ([]Record, error) {
	if userID == "" {
		return nil, ErrInvalidRequest
	}
	if s.repo == nil {
		return nil, errors.New("calls: repository not configured")
	}
	if limit <= 0 {
		limit = DefaultHistoryLimit
	}
	if limit > MaxHistoryLimit {
		limit = MaxHistoryLimit
	}
	return s.repo.ListByUser(ctx, userID, time.Time{}, time.Time{}, limit)
}

func (s *Service) MissedCount(ctx context.Context, userID string) (int, error) {
	if userID == "" {
		return 0, ErrInvalidRequest
	}
	if s.repo == nil {
		return 0, errors.New("calls: repository not configured")
	}
	return s.repo.CountMissed(ctx, userID)
}

func (s *Service) Summary(ctx context.Context, req SummaryRequest) (Summary, error) {
	if req.UserID == "" {
		return Summary{}, ErrInvalidRequest
	}
	if req.Range.From.IsZero() || req.Range.To.IsZero() || !req.Range.To.After(req.Range.From) {
		return Summary{}, ErrInvalidRequest
	}
	if s.repo == nil {
		return Summary{}, errors.New("calls: repository not configured")
	}

	rows, err := s.repo.ListByUser(ctx, req.UserID, req.Range.From, req.Range.To, 0)
	if err != nil {
		return Summary{}, err
	}

	out := Summary{UserID: req.UserID}
	answered := 0
	for _, r := range rows {
		out.TotalCalls++
		if r.Caller == req.UserID {
			out.OutgoingCalls++
		} else {
			out.IncomingCalls++
		}
		switch r.Status {
		case OutcomeAnswered:
			out.AnsweredCalls++
			answered++
			out.TotalDurationSeconds += r.DurationSeconds
		case OutcomeMissed:
			out.MissedCalls++
		case OutcomeRejected:
			out.RejectedCalls++
		case OutcomeCancelled:
			out.CancelledCalls++
		}
	}
	// average over answered calls only; the rest always carry 0
	if answered > 0 {
		out.AverageDurationSeconds = out.TotalDurationSeconds / answered
	}
	return out, nil
}
