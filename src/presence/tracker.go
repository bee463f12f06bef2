// Package presence keeps the session's view of who is online. The map is
// fed by user_online, presence_update, and user_offline frames,
// last-write-wins. GetOnlineUsers is the one RPC-shaped call in the layer:
// it sends a request and suspends the caller until the next online_users
// snapshot arrives or the wait bound elapses.
package presence

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/salesdeck/realtime/src/dispatch"
	"github.com/salesdeck/realtime/src/subs"
	"github.com/salesdeck/realtime/src/types"
)

// Tracker is the user-id keyed presence map plus the snapshot waiters.
type Tracker struct {
	mu      sync.Mutex
	users   map[string]types.OnlineUser
	waiters []chan []types.OnlineUser

	wait       time.Duration
	send       subs.SendFunc
	dispatcher *dispatch.Dispatcher
	logger     zerolog.Logger
}

// NewTracker creates an empty tracker. wait bounds GetOnlineUsers.
func NewTracker(wait time.Duration, send subs.SendFunc, d *dispatch.Dispatcher, logger zerolog.Logger) *Tracker {
	if wait <= 0 {
		wait = 5 * time.Second
	}
	return &Tracker{
		users:      make(map[string]types.OnlineUser),
		wait:       wait,
		send:       send,
		dispatcher: d,
		logger:     logger.With().Str("component", "presence").Logger(),
	}
}

// UpdateStatus reports the local user's availability to the server.
func (t *Tracker) UpdateStatus(status types.PresenceStatus) {
	t.send(types.Frame{
		Type:      types.FrameUpdatePresence,
		Presence:  status,
		Timestamp: time.Now(),
	})
}

// GetOnlineUsers requests a presence snapshot and blocks until one arrives,
// the context is done, or the wait bound elapses. A dropped connection must
// never hang the caller, so the timeout always applies.
func (t *Tracker) GetOnlineUsers(ctx context.Context, workspaceID string) ([]types.OnlineUser, error) {
	ch := make(chan []types.OnlineUser, 1)
	t.mu.Lock()
	t.waiters = append(t.waiters, ch)
	t.mu.Unlock()

	if !t.send(types.Frame{Type: types.FrameGetOnlineUsers, WorkspaceID: workspaceID}) {
		t.dropWaiter(ch)
		return nil, &types.TransportError{Err: types.ErrNotConnected}
	}

	timer := time.NewTimer(t.wait)
	defer timer.Stop()

	select {
	case users := <-ch:
		return users, nil
	case <-ctx.Done():
		t.dropWaiter(ch)
		return nil, ctx.Err()
	case <-timer.C:
		t.dropWaiter(ch)
		return nil, &types.TimeoutError{Op: "get_online_users"}
	}
}

// ApplyOnline upserts a user that just came online.
func (t *Tracker) ApplyOnline(u types.OnlineUser) {
	t.upsert(u)
}

// ApplyUpdate upserts a presence change.
func (t *Tracker) ApplyUpdate(u types.OnlineUser) {
	t.upsert(u)
}

// ApplyOffline removes a user from the map and notifies subscribers.
func (t *Tracker) ApplyOffline(userID string) {
	t.mu.Lock()
	_, ok := t.users[userID]
	delete(t.users, userID)
	t.mu.Unlock()

	if ok {
		t.dispatcher.EmitUserOffline(userID)
	}
}

// ApplySnapshot resolves pending GetOnlineUsers calls with the server's
// snapshot and folds it into the local map.
func (t *Tracker) ApplySnapshot(users []types.OnlineUser) {
	t.mu.Lock()
	for _, u := range users {
		if u.ID != "" {
			t.users[u.ID] = u
		}
	}
	waiters := t.waiters
	t.waiters = nil
	t.mu.Unlock()

	for _, ch := range waiters {
		ch <- users
	}
}

// Get returns the last-known presence for one user.
func (t *Tracker) Get(userID string) (types.OnlineUser, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	u, ok := t.users[userID]
	return u, ok
}

// Users returns the current local presence view.
func (t *Tracker) Users() []types.OnlineUser {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]types.OnlineUser, 0, len(t.users))
	for _, u := range t.users {
		out = append(out, u)
	}
	return out
}

// Len reports the number of known-online users.
func (t *Tracker) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.users)
}

// Reset clears the presence map and unblocks any pending snapshot waiters
// with an empty result. Called on session disconnect.
func (t *Tracker) Reset() {
	t.mu.Lock()
	clear(t.users)
	waiters := t.waiters
	t.waiters = nil
	t.mu.Unlock()

	for _, ch := range waiters {
		ch <- nil
	}
}

func (t *Tracker) upsert(u types.OnlineUser) {
	if u.ID == "" {
		t.logger.Debug().Msg("dropping presence frame without user id")
		return
	}
	t.mu.Lock()
	t.users[u.ID] = u
	t.mu.Unlock()

	t.dispatcher.EmitUserOnline(u)
}

func (t *Tracker) dropWaiter(ch chan []types.OnlineUser) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for i, w := range t.waiters {
		if w == ch {
			t.waiters = append(t.waiters[:i], t.waiters[i+1:]...)
			return
		}
	}
}
