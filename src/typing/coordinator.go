// Package typing maintains the per-conversation sets of currently-typing
// users. Membership is derived from typing_start/typing_stop frames, but a
// peer that drops its connection never sends the stop, so every entry also
// carries a deadline: a periodic sweep removes members whose start was not
// refreshed within the staleness window and emits a synthetic stop so
// consumers never show ghost typing indicators.
package typing

import (
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/salesdeck/realtime/src/dispatch"
	"github.com/salesdeck/realtime/src/subs"
	"github.com/salesdeck/realtime/src/types"
)

// Coordinator tracks who is typing where and relays the local user's own
// typing signals. Debouncing outbound calls is the consumer's job.
type Coordinator struct {
	mu sync.Mutex
	// conversation id -> user id -> entry deadline
	active map[string]map[string]time.Time
	done   chan struct{}
	once   sync.Once

	localUser  string
	ttl        time.Duration
	sweepEvery time.Duration
	send       subs.SendFunc
	dispatcher *dispatch.Dispatcher
	logger     zerolog.Logger
	now        func() time.Time
}

// NewCoordinator creates a coordinator for the given local user. ttl is the
// staleness window for remote typing entries.
func NewCoordinator(localUser string, ttl time.Duration, send subs.SendFunc, d *dispatch.Dispatcher, logger zerolog.Logger) *Coordinator {
	if ttl <= 0 {
		ttl = 10 * time.Second
	}
	sweep := ttl / 4
	if sweep < 50*time.Millisecond {
		sweep = 50 * time.Millisecond
	}
	return &Coordinator{
		active:     make(map[string]map[string]time.Time),
		done:       make(chan struct{}),
		localUser:  localUser,
		ttl:        ttl,
		sweepEvery: sweep,
		send:       send,
		dispatcher: d,
		logger:     logger.With().Str("component", "typing").Logger(),
		now:        time.Now,
	}
}

// SetClock overrides the time source. Test hook.
func (c *Coordinator) SetClock(now func() time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = now
}

// Run starts the staleness sweep loop. Call in a goroutine; returns when
// Stop is called.
func (c *Coordinator) Run() {
	ticker := time.NewTicker(c.sweepEvery)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			c.sweep()
		case <-c.done:
			return
		}
	}
}

// Stop halts the sweep loop. Idempotent.
func (c *Coordinator) Stop() {
	c.once.Do(func() { close(c.done) })
}

// StartTyping sends a typing_start frame stamped with the local user id.
func (c *Coordinator) StartTyping(conversationID string) {
	c.send(types.Frame{
		Type:           types.FrameTypingStart,
		ConversationID: conversationID,
		UserID:         c.localUser,
		Timestamp:      c.now(),
	})
}

// StopTyping sends a typing_stop frame for the local user.
func (c *Coordinator) StopTyping(conversationID string) {
	c.send(types.Frame{
		Type:           types.FrameTypingStop,
		ConversationID: conversationID,
		UserID:         c.localUser,
		Timestamp:      c.now(),
	})
}

// ApplyStart records a remote typing_start and notifies subscribers. A
// repeat start refreshes the entry's deadline.
func (c *Coordinator) ApplyStart(ind types.TypingIndicator) {
	if ind.UserID == "" || ind.ConversationID == "" {
		return
	}
	c.mu.Lock()
	users := c.active[ind.ConversationID]
	if users == nil {
		users = make(map[string]time.Time)
		c.active[ind.ConversationID] = users
	}
	_, refresh := users[ind.UserID]
	users[ind.UserID] = c.now().Add(c.ttl)
	c.mu.Unlock()

	if !refresh {
		ind.IsTyping = true
		c.dispatcher.EmitTypingStart(ind)
	}
}

// ApplyStop removes a remote user from the conversation's typing set. A
// stop for a user not in the set is ignored.
func (c *Coordinator) ApplyStop(ind types.TypingIndicator) {
	c.mu.Lock()
	users, ok := c.active[ind.ConversationID]
	if ok {
		_, ok = users[ind.UserID]
		delete(users, ind.UserID)
		if len(users) == 0 {
			delete(c.active, ind.ConversationID)
		}
	}
	c.mu.Unlock()

	if ok {
		ind.IsTyping = false
		c.dispatcher.EmitTypingStop(ind)
	}
}

// TypingUsers returns the user ids currently typing in a conversation.
func (c *Coordinator) TypingUsers(conversationID string) []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	users := c.active[conversationID]
	out := make([]string, 0, len(users))
	for id := range users {
		out = append(out, id)
	}
	return out
}

// Reset drops every typing set without emitting stop events. Called on
// session disconnect: a disconnected session holds no stale state.
func (c *Coordinator) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	clear(c.active)
}

// sweep expires entries past their deadline and emits synthetic stops.
func (c *Coordinator) sweep() {
	now := c.now()

	c.mu.Lock()
	var expired []types.TypingIndicator
	for convID, users := range c.active {
		for userID, deadline := range users {
			if now.After(deadline) {
				delete(users, userID)
				expired = append(expired, types.TypingIndicator{
					UserID:         userID,
					ConversationID: convID,
					IsTyping:       false,
					Timestamp:      now,
				})
			}
		}
		if len(users) == 0 {
			delete(c.active, convID)
		}
	}
	c.mu.Unlock()

	for _, ind := range expired {
		c.logger.Debug().Str("user_id", ind.UserID).
			Str("conversation_id", ind.ConversationID).
			Msg("typing entry expired")
		c.dispatcher.EmitTypingStop(ind)
	}
}
