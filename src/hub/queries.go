package hub

import "github.com/salesdeck/realtime/src/types"

// ConnectedSessions returns the connection ids of all registered clients.
func (h *Hub) ConnectedSessions() []string {
	h.mu.RLock()
	defer h.mu.RUnlock()
	ids := make([]string, 0, len(h.clients))
	for id := range h.clients {
		ids = append(ids, id)
	}
	return ids
}

// SessionCount returns the number of live connections.
func (h *Hub) SessionCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Rooms returns room names with their member counts.
func (h *Hub) Rooms() map[string]int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	result := make(map[string]int, len(h.rooms))
	for room, subs := range h.rooms {
		result[room] = len(subs)
	}
	return result
}

// TrackedMessages returns how many connections track each message id.
func (h *Hub) TrackedMessages() map[string]int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	result := make(map[string]int, len(h.delivery))
	for id, subs := range h.delivery {
		result[id] = len(subs)
	}
	return result
}

// OnlineUsers returns the presence aggregate, optionally filtered to one
// workspace.
func (h *Hub) OnlineUsers(workspaceID string) []types.OnlineUser {
	h.mu.RLock()
	defer h.mu.RUnlock()
	users := make([]types.OnlineUser, 0, len(h.presence))
	for id, u := range h.presence {
		if workspaceID == "" || h.workspaces[id] == workspaceID {
			users = append(users, u)
		}
	}
	return users
}
