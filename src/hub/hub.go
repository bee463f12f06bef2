// Package hub is the server-side counterpart of the client session layer:
// it serves many concurrent sessions, one goroutine pair per connection,
// multiplexing conversation rooms, workspace rooms, and delivery-tracking
// subscriptions over each socket. The presence aggregate is the one piece
// of state shared across connections of a workspace.
package hub

import (
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/salesdeck/realtime/src/types"
)

// EventBridge relays room events to other server instances.
// Defined here to avoid circular imports with the bridge package.
type EventBridge interface {
	Publish(room string, f types.Frame) error
	Available() bool
}

// Hub manages all connected sessions, their room subscriptions, and the
// workspace presence aggregate.
type Hub struct {
	clients  map[string]*Client         // connection id -> client
	rooms    map[string]map[string]bool // room -> set of connection ids
	delivery map[string]map[string]bool // message id -> set of connection ids

	presence   map[string]types.OnlineUser // user id -> last-known presence
	userConns  map[string]int              // user id -> live connection count
	workspaces map[string]string           // user id -> workspace id

	register   chan *Client
	unregister chan *Client
	incoming   chan inbound
	localCast  chan roomCast

	bridge EventBridge
	mu     sync.RWMutex
	logger zerolog.Logger
	now    func() time.Time
	done   chan struct{}
}

type inbound struct {
	client *Client
	frame  types.Frame
}

type roomCast struct {
	room  string
	frame types.Frame
}

// New creates a new Hub instance.
func New(logger zerolog.Logger) *Hub {
	return &Hub{
		clients:    make(map[string]*Client),
		rooms:      make(map[string]map[string]bool),
		delivery:   make(map[string]map[string]bool),
		presence:   make(map[string]types.OnlineUser),
		userConns:  make(map[string]int),
		workspaces: make(map[string]string),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		incoming:   make(chan inbound, 256),
		localCast:  make(chan roomCast, 256),
		logger:     logger.With().Str("component", "hub").Logger(),
		now:        time.Now,
		done:       make(chan struct{}),
	}
}

// SetBridge attaches a cross-instance event bridge to the hub.
func (h *Hub) SetBridge(b EventBridge) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.bridge = b
}

// BroadcastToLocal delivers a bridged event to local subscribers only.
// It is not re-published, preventing infinite relay loops.
func (h *Hub) BroadcastToLocal(room string, f types.Frame) {
	h.localCast <- roomCast{room: room, frame: f}
}

// Run starts the hub event loop. Call in a goroutine.
func (h *Hub) Run() {
	for {
		select {
		case client := <-h.register:
			h.addClient(client)
		case client := <-h.unregister:
			h.removeClient(client)
		case in := <-h.incoming:
			h.handleFrame(in.client, in.frame)
		case rc := <-h.localCast:
			h.fanLocal(rc.room, rc.frame)
		case <-h.done:
			return
		}
	}
}

// Stop halts the hub event loop.
func (h *Hub) Stop() {
	close(h.done)
}

// Register queues a client for registration.
func (h *Hub) Register(c *Client) {
	h.register <- c
}

// Unregister queues a client for removal.
func (h *Hub) Unregister(c *Client) {
	h.unregister <- c
}

// addClient installs the connection and brings the user online. The first
// connection of a user announces user_online to the workspace room.
func (h *Hub) addClient(c *Client) {
	h.mu.Lock()
	h.clients[c.ID] = c
	h.userConns[c.UserID]++
	h.workspaces[c.UserID] = c.WorkspaceID
	first := h.userConns[c.UserID] == 1
	user := types.OnlineUser{
		ID:       c.UserID,
		Name:     c.UserName,
		Status:   types.PresenceOnline,
		LastSeen: h.now(),
	}
	if first {
		h.presence[c.UserID] = user
	}
	h.mu.Unlock()

	h.logger.Info().Str("conn_id", c.ID).Str("user_id", c.UserID).Msg("session registered")

	if first {
		h.fanRoom(workspaceRoom(c.WorkspaceID), types.Frame{
			Type:      types.FrameUserOnline,
			UserID:    c.UserID,
			User:      &user,
			Presence:  user.Status,
			Timestamp: user.LastSeen,
		}, true)
	}
}

// removeClient drops the connection from every room and delivery set. The
// last connection of a user takes the user offline.
func (h *Hub) removeClient(c *Client) {
	h.mu.Lock()
	if _, ok := h.clients[c.ID]; !ok {
		h.mu.Unlock()
		return
	}
	delete(h.clients, c.ID)

	for room, subs := range h.rooms {
		delete(subs, c.ID)
		if len(subs) == 0 {
			delete(h.rooms, room)
		}
	}
	for id, subs := range h.delivery {
		delete(subs, c.ID)
		if len(subs) == 0 {
			delete(h.delivery, id)
		}
	}

	h.userConns[c.UserID]--
	last := h.userConns[c.UserID] <= 0
	if last {
		delete(h.userConns, c.UserID)
		delete(h.presence, c.UserID)
		delete(h.workspaces, c.UserID)
	}
	h.mu.Unlock()

	c.Close()
	h.logger.Info().Str("conn_id", c.ID).Str("user_id", c.UserID).Msg("session unregistered")

	if last {
		h.fanRoom(workspaceRoom(c.WorkspaceID), types.Frame{
			Type:      types.FrameUserOffline,
			UserID:    c.UserID,
			Timestamp: h.now(),
		}, true)
	}
}

func conversationRoom(id string) string { return "conversation:" + id }
func workspaceRoom(id string) string    { return "workspace:" + id }

const deliveryRoomPrefix = "delivery:"
