// Package subs tracks which logical topics the application wants to be
// subscribed to, separately from what the server currently knows about.
// The server keeps no client state across a dropped connection, so after
// every successful (re)connect the full desired set is re-requested. That
// reconciliation is the mechanism that restores topic coverage after a
// network interruption.
package subs

import (
	"sync"

	"github.com/rs/zerolog"
	"github.com/salesdeck/realtime/src/types"
)

// SendFunc transmits a frame to the server. It reports false when the
// session is not connected, in which case the request stays deferred in the
// desired set until the next connected event.
type SendFunc func(types.Frame) bool

// Registry holds desired vs asserted subscriptions for conversation rooms,
// workspace rooms, and delivery-tracking message-id sets.
type Registry struct {
	mu            sync.Mutex
	conversations map[string]struct{}
	workspaces    map[string]struct{}
	delivery      map[string]struct{}
	// asserted tracks topics requested on the current connection epoch.
	// Cleared whenever the connection drops.
	asserted map[string]struct{}

	send   SendFunc
	logger zerolog.Logger
}

// NewRegistry creates an empty registry that transmits through send.
func NewRegistry(send SendFunc, logger zerolog.Logger) *Registry {
	return &Registry{
		conversations: make(map[string]struct{}),
		workspaces:    make(map[string]struct{}),
		delivery:      make(map[string]struct{}),
		asserted:      make(map[string]struct{}),
		send:          send,
		logger:        logger.With().Str("component", "subs").Logger(),
	}
}

// JoinConversation adds the conversation to the desired set and, if
// connected, requests it from the server immediately. Duplicate joins are
// no-ops.
func (r *Registry) JoinConversation(id string) {
	if id == "" {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.conversations[id] = struct{}{}
	r.assertLocked("conversation:"+id, types.Frame{
		Type:           types.FrameJoinConversation,
		ConversationID: id,
	})
}

// LeaveConversation removes the conversation from the desired set and sends
// a best-effort teardown frame. Leaving a conversation never joined is a
// no-op, not an error.
func (r *Registry) LeaveConversation(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.conversations[id]; !ok {
		return
	}
	delete(r.conversations, id)
	delete(r.asserted, "conversation:"+id)
	r.send(types.Frame{Type: types.FrameLeaveConversation, ConversationID: id})
}

// JoinWorkspace adds the workspace room to the desired set and requests it
// if connected.
func (r *Registry) JoinWorkspace(id string) {
	if id == "" {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.workspaces[id] = struct{}{}
	r.assertLocked("workspace:"+id, types.Frame{
		Type:        types.FrameJoinWorkspace,
		WorkspaceID: id,
	})
}

// SubscribeDeliveryUpdates adds message ids to the delivery-tracking set.
// Only ids not already tracked are sent to the server.
func (r *Registry) SubscribeDeliveryUpdates(ids []string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	fresh := make([]string, 0, len(ids))
	for _, id := range ids {
		if id == "" {
			continue
		}
		if _, ok := r.delivery[id]; !ok {
			fresh = append(fresh, id)
		}
		r.delivery[id] = struct{}{}
	}
	if len(fresh) == 0 {
		return
	}
	r.send(types.Frame{Type: types.FrameSubscribeDelivery, MessageIDs: fresh})
}

// UnsubscribeDeliveryUpdates drops message ids from the delivery-tracking
// set with a best-effort teardown frame. Unknown ids are ignored.
func (r *Registry) UnsubscribeDeliveryUpdates(ids []string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	dropped := make([]string, 0, len(ids))
	for _, id := range ids {
		if _, ok := r.delivery[id]; ok {
			delete(r.delivery, id)
			dropped = append(dropped, id)
		}
	}
	if len(dropped) == 0 {
		return
	}
	r.send(types.Frame{Type: types.FrameUnsubscribeDelivery, MessageIDs: dropped})
}

// Reassert re-sends every desired subscription. Called on each connected
// event; the server treats duplicate joins as idempotent.
func (r *Registry) Reassert() {
	r.mu.Lock()
	defer r.mu.Unlock()

	n := 0
	for id := range r.conversations {
		if r.send(types.Frame{Type: types.FrameJoinConversation, ConversationID: id}) {
			r.asserted["conversation:"+id] = struct{}{}
			n++
		}
	}
	for id := range r.workspaces {
		if r.send(types.Frame{Type: types.FrameJoinWorkspace, WorkspaceID: id}) {
			r.asserted["workspace:"+id] = struct{}{}
			n++
		}
	}
	if len(r.delivery) > 0 {
		ids := make([]string, 0, len(r.delivery))
		for id := range r.delivery {
			ids = append(ids, id)
		}
		if r.send(types.Frame{Type: types.FrameSubscribeDelivery, MessageIDs: ids}) {
			n++
		}
	}
	r.logger.Debug().Int("requests", n).Msg("subscriptions reasserted")
}

// ClearAsserted forgets which topics the current connection has requested.
// Called when the transport drops; the desired set is untouched.
func (r *Registry) ClearAsserted() {
	r.mu.Lock()
	defer r.mu.Unlock()
	clear(r.asserted)
}

// Reset drops the asserted set. Desired topics survive an explicit
// disconnect so a later connect can restore them.
func (r *Registry) Reset() {
	r.ClearAsserted()
}

// DesiredConversations returns the conversation ids currently desired.
func (r *Registry) DesiredConversations() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0, len(r.conversations))
	for id := range r.conversations {
		out = append(out, id)
	}
	return out
}

// DesiredDeliveryIDs returns the tracked message ids.
func (r *Registry) DesiredDeliveryIDs() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0, len(r.delivery))
	for id := range r.delivery {
		out = append(out, id)
	}
	return out
}

// AssertedCount reports how many topics have been requested on the current
// connection epoch.
func (r *Registry) AssertedCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.asserted)
}

// assertLocked marks the topic desired and requests it from the server if
// the session is connected. Caller holds r.mu.
func (r *Registry) assertLocked(topic string, f types.Frame) {
	if _, ok := r.asserted[topic]; ok {
		return
	}
	if r.send(f) {
		r.asserted[topic] = struct{}{}
	}
}
