package gateway

import (
	"context"
	"log/slog"
	"sync"

	"callhub/internal/presence"
	"callhub/internal/signaling"
)

// Lifecycle orders the presence and call bookkeeping around a connection.
// Connect and Disconnect for the same user never interleave.
type Lifecycle struct {
	registry   *presence.Registry
	controller *signaling.Controller
	log        *slog.Logger

	locks userLocks
}

func NewLifecycle(r *presence.Registry, c *signaling.Controller, log *slog.Logger) *Lifecycle {
	if log == nil {
		log = slog.Default()
	}
	return &Lifecycle{
		registry:   r,
		controller: c,
		log:        log.With("component", "lifecycle"),
		locks:      userLocks{m: make(map[string]*userLock)},
	}
}

// Connect makes ch the user's channel and announces the user.
func (l *Lifecycle) Connect(userID string, ch presence.Channel) {
	unlock := l.locks.lock(userID)
	defer unlock()

	l.registry.Register(userID, ch)
	l.log.Info("user connected", "user_id", userID, "conn_id", ch.ID())
}

// Disconnect finishes the user's calls, then removes the user and announces
// it. Calls are reconciled first so peers can still be reached. A channel that
// was already replaced by a newer connection changes nothing.
//
// A call can be started towards the user while the first sweep runs; the
// second sweep after removal ends it. Calls started after removal find the
// user offline.
func (l *Lifecycle) Disconnect(ctx context.Context, userID string, ch presence.Channel) bool {
	unlock := l.locks.lock(userID)
	defer unlock()

	if !l.registry.IsCurrent(userID, ch) {
		l.log.Info("superseded connection closed", "user_id", userID, "conn_id", ch.ID())
		return false
	}
	ended := l.controller.Disconnect(ctx, userID)
	if !l.registry.UnregisterChannel(userID, ch) {
		// Only Lifecycle replaces channels and it holds the user lock.
		l.log.Warn("channel vanished during disconnect", "user_id", userID, "conn_id", ch.ID())
		return false
	}
	if late := l.controller.Disconnect(ctx, userID); late > 0 {
		l.log.Info("ended calls started during disconnect", "user_id", userID, "calls_ended", late)
		ended += late
	}
	l.log.Info("user disconnected", "user_id", userID, "conn_id", ch.ID(), "calls_ended", ended)
	return true
}

type userLock struct {
	sync.Mutex
	refs int
}

// userLocks hands out one mutex per user id and drops it when unused.
type userLocks struct {
	mu sync.Mutex
	m  map[string]*userLock
}

func (u *userLocks) lock(userID string) func() {
	u.mu.Lock()
	ul, ok := u.m[userID]
	if !ok {
		ul = &userLock{}
		u.m[userID] = ul
	}
	ul.refs++
	u.mu.Unlock()

	ul.Lock()
	return func() {
		ul.Unlock()
		u.mu.Lock()
		ul.refs--
		if ul.refs == 0 {
			delete(u.m, userID)
		}
		u.mu.Unlock()
	}
}
