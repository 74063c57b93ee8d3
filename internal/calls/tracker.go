package calls

import (
	"sort"
	"sync"
	"time"
)

// Tracker holds the calls that are currently ringing or connected.
//
// Every terminal transition goes through Remove (or one of the bulk removers),
// so a call is consumed exactly once even when hangup and disconnect race.
// The tracker hands out copies; callers never share a *Call with it.
type Tracker struct {
	mu    sync.Mutex
	calls map[string]*Call
}

func NewTracker() *Tracker {
	return &Tracker{calls: make(map[string]*Call)}
}

// Create starts tracking a ringing call. It returns false if the id is
// already in use.
func (t *Tracker) Create(id, caller, receiver string, typ Type, now time.Time) (Call, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if _, exists := t.calls[id]; exists {
		return Call{}, false
	}
	c := &Call{
		ID:        id,
		Caller:    caller,
		Receiver:  receiver,
		Type:      typ,
		Status:    StatusRinging,
		CreatedAt: now,
	}
	t.calls[id] = c
	return *c, true
}

func (t *Tracker) Get(id string) (Call, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	c, ok := t.calls[id]
	if !ok {
		return Call{}, false
	}
	return *c, true
}

// MarkConnected moves a ringing call to connected and stamps its start time.
// It returns false if the call is gone or is no longer ringing.
func (t *Tracker) MarkConnected(id string, now time.Time) (Call, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	c, ok := t.calls[id]
	if !ok || c.Status != StatusRinging {
		return Call{}, false
	}
	c.Status = StatusConnected
	c.StartTime = now
	return *c, true
}

// Remove deletes the call and returns what it looked like at removal.
func (t *Tracker) Remove(id string) (Call, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	c, ok := t.calls[id]
	if !ok {
		return Call{}, false
	}
	delete(t.calls, id)
	return *c, true
}

// RemoveInvolving removes every call where userID is caller or receiver.
func (t *Tracker) RemoveInvolving(userID string) []Call {
	t.mu.Lock()
	defer t.mu.Unlock()

	var out []Call
	for id, c := range t.calls {
		if !c.Involves(userID) {
			continue
		}
		out = append(out, *c)
		delete(t.calls, id)
	}
	sortByCreated(out)
	return out
}

// ExpireRinging removes ringing calls created before cutoff.
func (t *Tracker) ExpireRinging(cutoff time.Time) []Call {
	t.mu.Lock()
	defer t.mu.Unlock()

	var out []Call
	for id, c := range t.calls {
		if c.Status != StatusRinging || !c.CreatedAt.Before(cutoff) {
			continue
		}
		out = append(out, *c)
		delete(t.calls, id)
	}
	sortByCreated(out)
	return out
}

func (t *Tracker) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.calls)
}

// Snapshot returns all tracked calls, oldest first.
func (t *Tracker) Snapshot() []Call {
	t.mu.Lock()
	out := make([]Call, 0, len(t.calls))
	for _, c := range t.calls {
		out = append(out, *c)
	}
	t.mu.Unlock()

	sortByCreated(out)
	return out
}

func sortByCreated(cs []Call) {
	sort.Slice(cs, func(i, j int) bool {
		if cs[i].CreatedAt.Equal(cs[j].CreatedAt) {
			return cs[i].ID < cs[j].ID
		}
		return cs[i].CreatedAt.Before(cs[j].CreatedAt)
	})
}
