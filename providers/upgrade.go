package providers

import (
	"strings"
	"time"

	"github.com/fasthttp/websocket"
	"github.com/google/uuid"
	"github.com/salesdeck/realtime/config"
	"github.com/salesdeck/realtime/src/hub"
	"github.com/valyala/fasthttp"
)

// newUpgrader builds the WebSocket upgrader with the configured buffer
// sizes.
func newUpgrader(cfg *config.SocketConfig) websocket.FastHTTPUpgrader {
	return websocket.FastHTTPUpgrader{
		ReadBufferSize:  cfg.ReadBufferSize,
		WriteBufferSize: cfg.WriteBufferSize,
		CheckOrigin:     func(*fasthttp.RequestCtx) bool { return true },
	}
}

// connTimeouts derives the per-connection deadlines: writes are bounded by
// WriteTimeout, and a connection that produces no frame for two ping
// intervals is considered dead. Clients heartbeat every PingInterval, so a
// healthy socket always resets the read deadline in time.
func connTimeouts(cfg *config.SocketConfig) (read, write time.Duration) {
	return 2 * time.Duration(cfg.PingInterval) * time.Second,
		time.Duration(cfg.WriteTimeout) * time.Second
}

// upgradeHandler returns the raw fasthttp handler for WebSocket upgrades.
// The auth payload arrives as query parameters: token, user_id, user_name,
// workspace_id. A bad token is rejected before the upgrade so the client
// surfaces it as a fatal auth error rather than retrying.
func (s *Server) upgradeHandler() fasthttp.RequestHandler {
	upgrader := newUpgrader(s.cfg)
	readTimeout, writeTimeout := connTimeouts(s.cfg)

	return func(ctx *fasthttp.RequestCtx) {
		upgrade := string(ctx.Request.Header.Peek("Upgrade"))
		if !strings.EqualFold(upgrade, "websocket") {
			ctx.SetStatusCode(fasthttp.StatusUpgradeRequired)
			ctx.SetBodyString(`{"error":"upgrade_required","message":"WebSocket upgrade required"}`)
			return
		}

		token := string(ctx.QueryArgs().Peek("token"))
		userID := string(ctx.QueryArgs().Peek("user_id"))
		userName := string(ctx.QueryArgs().Peek("user_name"))
		workspaceID := string(ctx.QueryArgs().Peek("workspace_id"))
		if userID == "" {
			ctx.SetStatusCode(fasthttp.StatusBadRequest)
			ctx.SetBodyString(`{"error":"bad_request","message":"user_id required"}`)
			return
		}
		if err := s.validate(token); err != nil {
			s.logger.Warn().Str("user_id", userID).Err(err).Msg("handshake rejected")
			ctx.SetStatusCode(fasthttp.StatusUnauthorized)
			ctx.SetBodyString(`{"error":"unauthorized","message":"invalid token"}`)
			return
		}
		if s.hub.SessionCount() >= s.cfg.MaxConnections {
			ctx.SetStatusCode(fasthttp.StatusServiceUnavailable)
			ctx.SetBodyString(`{"error":"capacity","message":"connection limit reached"}`)
			return
		}

		connID := uuid.New().String()
		h := s.hub
		err := upgrader.Upgrade(ctx, func(conn *websocket.Conn) {
			wrapped := &fasthttpConn{conn: conn, readTimeout: readTimeout, writeTimeout: writeTimeout}
			client := hub.NewClient(connID, userID, userName, workspaceID, wrapped, h)
			h.Register(client)
			go client.WritePump()
			client.ReadPump()
		})
		if err != nil {
			s.logger.Error().Err(err).Msg("websocket upgrade failed")
		}
	}
}

// fasthttpConn wraps fasthttp/websocket.Conn to satisfy types.Conn,
// applying the configured deadlines around each read and write.
type fasthttpConn struct {
	conn         *websocket.Conn
	readTimeout  time.Duration
	writeTimeout time.Duration
}

func (f *fasthttpConn) WriteJSON(v any) error {
	if f.writeTimeout > 0 {
		if err := f.conn.SetWriteDeadline(time.Now().Add(f.writeTimeout)); err != nil {
			return err
		}
	}
	return f.conn.WriteJSON(v)
}

func (f *fasthttpConn) ReadJSON(v any) error {
	if f.readTimeout > 0 {
		if err := f.conn.SetReadDeadline(time.Now().Add(f.readTimeout)); err != nil {
			return err
		}
	}
	return f.conn.ReadJSON(v)
}

func (f *fasthttpConn) Close() error { return f.conn.Close() }
