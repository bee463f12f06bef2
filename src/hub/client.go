package hub

import (
	"sync"
	"time"

	"github.com/salesdeck/realtime/src/types"
)

// Client wraps one authenticated session connection and manages frame flow.
type Client struct {
	ID          string // connection id, unique per socket
	UserID      string
	UserName    string
	WorkspaceID string

	conn        types.Conn
	hub         *Hub
	Send        chan types.Frame
	connectedAt time.Time
	mu          sync.Mutex
	done        chan struct{}
	closed      bool
}

// NewClient creates a connection wrapper for an authenticated user. userName
// is the display name carried on presence announcements; it may be empty.
func NewClient(id, userID, userName, workspaceID string, conn types.Conn, h *Hub) *Client {
	return &Client{
		ID:          id,
		UserID:      userID,
		UserName:    userName,
		WorkspaceID: workspaceID,
		conn:        conn,
		hub:         h,
		Send:        make(chan types.Frame, 256),
		connectedAt: time.Now(),
		done:        make(chan struct{}),
	}
}

// ConnectedAt reports when the socket was accepted.
func (c *Client) ConnectedAt() time.Time { return c.connectedAt }

// ReadPump reads frames from the socket and routes them to the hub. Returns
// when the socket errors; the client is unregistered on the way out.
func (c *Client) ReadPump() {
	defer func() {
		c.hub.unregister <- c
		c.conn.Close()
	}()

	for {
		var f types.Frame
		if err := c.conn.ReadJSON(&f); err != nil {
			return
		}
		c.hub.incoming <- inbound{client: c, frame: f}
	}
}

// WritePump writes frames from the send channel to the socket.
func (c *Client) WritePump() {
	defer c.conn.Close()

	for {
		select {
		case f, ok := <-c.Send:
			if !ok {
				return
			}
			if err := c.conn.WriteJSON(f); err != nil {
				return
			}
		case <-c.done:
			return
		}
	}
}

// Close signals the client to stop its pumps. Idempotent.
func (c *Client) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.closed {
		c.closed = true
		close(c.done)
		close(c.Send)
	}
}
