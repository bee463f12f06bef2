package session

import (
	"context"
	"net/http"
	"time"

	"github.com/fasthttp/websocket"
	"github.com/salesdeck/realtime/src/types"
)

// Dialer opens one physical socket to the messaging endpoint. Abstracted so
// tests can connect sessions to in-memory transports.
type Dialer interface {
	Dial(ctx context.Context, url string) (types.Conn, error)
}

// WebSocketDialer dials real WebSocket endpoints.
type WebSocketDialer struct {
	HandshakeTimeout time.Duration
}

// Dial opens the connection. A handshake rejected with 401 or 403 is an
// AuthError so the session gives up instead of retrying into a wall.
func (d *WebSocketDialer) Dial(ctx context.Context, url string) (types.Conn, error) {
	dialer := websocket.Dialer{
		HandshakeTimeout: d.HandshakeTimeout,
	}
	conn, resp, err := dialer.DialContext(ctx, url, nil)
	if err != nil {
		if resp != nil && (resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden) {
			return nil, &types.AuthError{Reason: resp.Status}
		}
		return nil, &types.TransportError{Err: err}
	}
	return conn, nil
}
