// Package presence tracks which users hold a live connection and delivers
// events to them.
package presence

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"time"

	"callhub/internal/metrics"
)

const (
	EventUserOnline  = "user:online"
	EventUserOffline = "user:offline"
)

// Channel is a live, addressable connection to one user.
//
// Send must not block; a channel that cannot take the frame reports an error
// and the registry moves on.
type Channel interface {
	ID() string
	Send(event string, payload any) error
}

// Mirror publishes presence changes outside the process. Failures are logged
// and never change registry state.
type Mirror interface {
	SetOnline(ctx context.Context, userID string) error
	SetOffline(ctx context.Context, userID string) error
}

// Registry maps user ids to their current channel. A user has at most one
// channel; registering again replaces the previous one.
type Registry struct {
	mu       sync.RWMutex
	channels map[string]Channel

	log     *slog.Logger
	mirror  Mirror
	metrics *metrics.Metrics

	mirrorTimeout time.Duration
}

// NewRegistry builds an empty registry. mirror and m may be nil.
func NewRegistry(log *slog.Logger, mirror Mirror, m *metrics.Metrics) *Registry {
	if log == nil {
		log = slog.Default()
	}
	return &Registry{
		channels:      make(map[string]Channel),
		log:           log.With("component", "presence"),
		mirror:        mirror,
		metrics:       m,
		mirrorTimeout: 2 * time.Second,
	}
}

// Register makes ch the user's current channel and announces the user to
// everybody else. It returns the channel it replaced, if any.
func (r *Registry) Register(userID string, ch Channel) Channel {
	r.mu.Lock()
	prev := r.channels[userID]
	r.channels[userID] = ch
	n := len(r.channels)
	r.mu.Unlock()

	r.metrics.SetOnlineUsers(n)
	if prev != nil && prev.ID() != ch.ID() {
		r.log.Info("connection superseded", "user_id", userID, "old_conn_id", prev.ID(), "conn_id", ch.ID())
	}
	r.mirrorOnline(userID)
	r.Broadcast(userID, EventUserOnline, userID)
	return prev
}

// Unregister removes the user's channel, whichever it is.
func (r *Registry) Unregister(userID string) bool {
	r.mu.Lock()
	_, ok := r.channels[userID]
	if ok {
		delete(r.channels, userID)
	}
	n := len(r.channels)
	r.mu.Unlock()

	if !ok {
		return false
	}
	r.afterRemove(userID, n)
	return true
}

// UnregisterChannel removes the user's mapping only if it still points at ch.
// A connection that was replaced and closes later leaves the newer one alone.
func (r *Registry) UnregisterChannel(userID string, ch Channel) bool {
	r.mu.Lock()
	cur, ok := r.channels[userID]
	ok = ok && sameChannel(cur, ch)
	if ok {
		delete(r.channels, userID)
	}
	n := len(r.channels)
	r.mu.Unlock()

	if !ok {
		return false
	}
	r.afterRemove(userID, n)
	return true
}

// IsCurrent reports whether ch is the channel registered for userID.
func (r *Registry) IsCurrent(userID string, ch Channel) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	cur, ok := r.channels[userID]
	return ok && sameChannel(cur, ch)
}

func (r *Registry) Resolve(userID string) (Channel, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ch, ok := r.channels[userID]
	return ch, ok
}

func (r *Registry) IsOnline(userID string) bool {
	_, ok := r.Resolve(userID)
	return ok
}

// Online lists connected user ids in lexical order.
func (r *Registry) Online() []string {
	r.mu.RLock()
	out := make([]string, 0, len(r.channels))
	for id := range r.channels {
		out = append(out, id)
	}
	r.mu.RUnlock()
	sort.Strings(out)
	return out
}

// SendTo delivers one event to the user's current channel. It reports whether
// the channel accepted the frame; a channel that is closing but still
// registered counts as not delivered.
func (r *Registry) SendTo(userID, event string, payload any) bool {
	ch, ok := r.Resolve(userID)
	if !ok {
		return false
	}
	if err := ch.Send(event, payload); err != nil {
		r.log.Warn("send failed", "user_id", userID, "event", event, "conn_id", ch.ID(), "err", err)
		return false
	}
	return true
}

// Broadcast sends the event to every channel except the one registered for
// except. Delivery is fire-and-forget.
func (r *Registry) Broadcast(except, event string, payload any) {
	r.mu.RLock()
	targets := make(map[string]Channel, len(r.channels))
	for id, ch := range r.channels {
		if id == except {
			continue
		}
		targets[id] = ch
	}
	r.mu.RUnlock()

	for id, ch := range targets {
		if err := ch.Send(event, payload); err != nil {
			r.log.Debug("broadcast send failed", "user_id", id, "event", event, "err", err)
		}
	}
}

func (r *Registry) afterRemove(userID string, n int) {
	r.metrics.SetOnlineUsers(n)
	r.mirrorOffline(userID)
	r.Broadcast(userID, EventUserOffline, userID)
}

func (r *Registry) mirrorOnline(userID string) {
	if r.mirror == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), r.mirrorTimeout)
	defer cancel()
	if err := r.mirror.SetOnline(ctx, userID); err != nil {
		r.log.Warn("presence mirror update failed", "user_id", userID, "state", "online", "err", err)
	}
}

func (r *Registry) mirrorOffline(userID string) {
	if r.mirror == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), r.mirrorTimeout)
	defer cancel()
	if err := r.mirror.SetOffline(ctx, userID); err != nil {
		r.log.Warn("presence mirror update failed", "user_id", userID, "state", "offline", "err", err)
	}
}

func sameChannel(a, b Channel) bool {
	if a == nil || b == nil {
		return false
	}
	return a.ID() == b.ID()
}

// RefreshMirror rewrites the mirror entry of every connected user on each
// tick until ctx is done. It keeps the per-user TTL keys alive.
func (r *Registry) RefreshMirror(ctx context.Context, every time.Duration) {
	if r.mirror == nil || every <= 0 {
		return
	}
	t := time.NewTicker(every)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			for _, id := range r.Online() {
				r.mirrorOnline(id)
			}
		}
	}
}
