package calls

import (
	"context"
	"sort"
	"sync"
	"time"
)

// MemoryRepo is an in-memory append-only history store for tests and local
// runs without a database.
type MemoryRepo struct {
	mu      sync.Mutex
	records []Record
}

func NewMemoryRepo() *MemoryRepo { return &MemoryRepo{} }

func (r *MemoryRepo) Append(ctx context.Context, rec Record) error {
	if err := validateRecord(rec); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.records = append(r.records, rec)
	return nil
}

func (r *MemoryRepo) ListByUser(ctx context.Context, userID string, from, to time.Time, limit int) ([]Record, error) {
	if userID == "" {
		return nil, ErrInvalidRequest
	}
	r.mu.Lock()
	out := make([]Record, 0)
	for _, rec := range r.records {
		if rec.Caller != userID && rec.Receiver != userID {
			continue
		}
		if !from.IsZero() && rec.CreatedAt.Before(from) {
			continue
		}
		if !to.IsZero() && !rec.CreatedAt.Before(to) {
			continue
		}
		out = append(out, rec)
	}
	r.mu.Unlock()

	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r *MemoryRepo) CountMissed(ctx context.Context, userID string) (int, error) {
	if userID == "" {
		return 0, ErrInvalidRequest
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, rec := range r.records {
		if rec.Receiver == userID && rec.Status == OutcomeMissed {
			n++
		}
	}
	return n, nil
}

// Records returns a copy of everything appended so far, in append order.
func (r *MemoryRepo) Records() []Record {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Record, len(r.records))
	copy(out, r.records)
	return out
}
