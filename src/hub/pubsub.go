package hub

import (
	"strings"

	"github.com/salesdeck/realtime/src/types"
)

// subscribe adds a connection to a room. Duplicate joins are idempotent;
// the client session re-asserts its whole desired set after every
// reconnect.
func (h *Hub) subscribe(room, connID string) bool {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.clients[connID]; !ok {
		return false
	}
	if h.rooms[room] == nil {
		h.rooms[room] = make(map[string]bool)
	}
	h.rooms[room][connID] = true
	return true
}

// unsubscribe removes a connection from a room. Leaving a room never joined
// is a no-op.
func (h *Hub) unsubscribe(room, connID string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	subs, ok := h.rooms[room]
	if !ok {
		return
	}
	delete(subs, connID)
	if len(subs) == 0 {
		delete(h.rooms, room)
	}
}

// trackDelivery subscribes a connection to delivery updates for message ids.
func (h *Hub) trackDelivery(connID string, ids []string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, id := range ids {
		if id == "" {
			continue
		}
		if h.delivery[id] == nil {
			h.delivery[id] = make(map[string]bool)
		}
		h.delivery[id][connID] = true
	}
}

// untrackDelivery drops delivery subscriptions for message ids.
func (h *Hub) untrackDelivery(connID string, ids []string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, id := range ids {
		subs, ok := h.delivery[id]
		if !ok {
			continue
		}
		delete(subs, connID)
		if len(subs) == 0 {
			delete(h.delivery, id)
		}
	}
}

// fanRoom delivers a frame to every local member of a room, optionally
// publishing it to the bridge for other instances.
func (h *Hub) fanRoom(room string, f types.Frame, publish bool) {
	h.fanRoomExcept(room, f, "", publish)
}

// fanRoomExcept is fanRoom minus one connection, used to keep a sender from
// echoing its own typing and message frames back to itself.
func (h *Hub) fanRoomExcept(room string, f types.Frame, exceptConn string, publish bool) {
	if publish {
		h.publishToBridge(room, f)
	}

	h.mu.RLock()
	ids := make([]string, 0, len(h.rooms[room]))
	for id := range h.rooms[room] {
		if id != exceptConn {
			ids = append(ids, id)
		}
	}
	h.mu.RUnlock()

	for _, id := range ids {
		h.sendTo(id, f)
	}
}

// fanDelivery delivers a frame to every connection tracking a message id.
func (h *Hub) fanDelivery(messageID string, f types.Frame, publish bool) {
	if publish {
		h.publishToBridge(deliveryRoomPrefix+messageID, f)
	}

	h.mu.RLock()
	ids := make([]string, 0, len(h.delivery[messageID]))
	for id := range h.delivery[messageID] {
		ids = append(ids, id)
	}
	h.mu.RUnlock()

	for _, id := range ids {
		h.sendTo(id, f)
	}
}

// Broadcast delivers a frame to the local members of a room and publishes
// it to other instances. Server-originated events enter the hub here.
func (h *Hub) Broadcast(room string, f types.Frame) {
	if id, ok := strings.CutPrefix(room, deliveryRoomPrefix); ok {
		h.fanDelivery(id, f, true)
		return
	}
	h.fanRoom(room, f, true)
}

// fanLocal routes a bridged event to local subscribers without
// re-publishing it.
func (h *Hub) fanLocal(room string, f types.Frame) {
	if id, ok := strings.CutPrefix(room, deliveryRoomPrefix); ok {
		h.fanDelivery(id, f, false)
		return
	}
	h.fanRoom(room, f, false)
}

// sendTo queues a frame for one connection, dropping it when the send
// buffer is full rather than blocking the hub loop.
func (h *Hub) sendTo(connID string, f types.Frame) bool {
	h.mu.RLock()
	client, ok := h.clients[connID]
	h.mu.RUnlock()
	if !ok {
		return false
	}
	select {
	case client.Send <- f:
		return true
	default:
		h.logger.Warn().Str("conn_id", connID).Str("frame", string(f.Type)).
			Msg("send buffer full, dropping")
		return false
	}
}

// publishToBridge forwards an event to the bridge if one is attached.
func (h *Hub) publishToBridge(room string, f types.Frame) {
	h.mu.RLock()
	b := h.bridge
	h.mu.RUnlock()

	if b == nil || !b.Available() {
		return
	}
	if err := b.Publish(room, f); err != nil {
		h.logger.Error().Err(err).Str("room", room).Msg("bridge publish failed")
	}
}
