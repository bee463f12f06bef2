// Package session owns the connection lifecycle for one realtime messaging
// session: it is the only component that opens or closes the transport,
// runs the reconnect state machine, decodes inbound frames, and routes them
// to the message store, typing coordinator, and presence tracker. Everything
// else reacts to the state transitions it publishes.
package session

import (
	"context"
	"encoding/json"
	"errors"
	"net/url"
	"sync"
	"time"

	"github.com/fasthttp/websocket"
	"github.com/rs/zerolog"
	"github.com/salesdeck/realtime/config"
	"github.com/salesdeck/realtime/src/dispatch"
	"github.com/salesdeck/realtime/src/presence"
	"github.com/salesdeck/realtime/src/store"
	"github.com/salesdeck/realtime/src/subs"
	"github.com/salesdeck/realtime/src/types"
	"github.com/salesdeck/realtime/src/typing"
)

// Session is one logical client connection, including all its registries.
// Construct with New, connect with Connect, release with Close. All methods
// are safe for concurrent use.
type Session struct {
	cfg      *config.SessionConfig
	logger   zerolog.Logger
	dialer   Dialer
	notifier Notifier

	dispatcher *dispatch.Dispatcher
	registry   *subs.Registry
	store      *store.Store
	typing     *typing.Coordinator
	presence   *presence.Tracker

	mu          sync.Mutex
	state       types.ConnectionState
	conn        types.Conn
	done        chan struct{}
	epoch       int
	attempts    int
	retryTimer  *time.Timer
	intentional bool
	dialing     bool

	writeMu sync.Mutex
}

// New builds a session and starts its typing staleness sweeper. The session
// does not touch the network until Connect is called.
func New(cfg *config.SessionConfig, logger zerolog.Logger) *Session {
	cfg.Normalize()
	s := &Session{
		cfg:      cfg,
		logger:   logger.With().Str("component", "session").Str("user_id", cfg.UserID).Logger(),
		dialer:   &WebSocketDialer{HandshakeTimeout: cfg.DialTimeout},
		notifier: NopNotifier{},
		state:    types.StateDisconnected,
	}
	s.dispatcher = dispatch.New()
	s.registry = subs.NewRegistry(s.sendFrame, logger)
	s.store = store.New(s.sendFrame, func(ids []string) {
		s.registry.SubscribeDeliveryUpdates(ids)
	}, s.dispatcher, logger)
	s.typing = typing.NewCoordinator(cfg.UserID, cfg.TypingTTL, s.sendFrame, s.dispatcher, logger)
	s.presence = presence.NewTracker(cfg.PresenceWait, s.sendFrame, s.dispatcher, logger)
	go s.typing.Run()
	return s
}

// SetDialer swaps the transport dialer. Must be called before Connect.
func (s *Session) SetDialer(d Dialer) { s.dialer = d }

// SetNotifier attaches the presentation-layer observer.
func (s *Session) SetNotifier(n Notifier) {
	if n == nil {
		n = NopNotifier{}
	}
	s.notifier = n
}

// State returns the current connection state.
func (s *Session) State() types.ConnectionState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Connect opens the transport. It resets the reconnect attempt counter, so
// a manual call also resumes a session that exhausted its retries. The
// returned error reports only the first attempt; later retries surface
// through state change events.
func (s *Session) Connect() error {
	s.mu.Lock()
	if s.state == types.StateConnected || s.state == types.StateConnecting {
		s.mu.Unlock()
		return nil
	}
	s.stopRetryLocked()
	s.intentional = false
	s.attempts = 0
	ch := s.transitionLocked(types.StateConnecting, nil)
	s.mu.Unlock()
	s.emit(ch)

	return s.dial()
}

// Disconnect tears the session down: it wins over any in-flight reconnect
// timer, closes the socket, and clears every registry so a disconnected
// session holds no stale state. Desired subscriptions survive, ready to be
// re-requested by the next Connect. Idempotent.
func (s *Session) Disconnect() {
	s.mu.Lock()
	s.intentional = true
	s.stopRetryLocked()
	if s.done != nil {
		close(s.done)
		s.done = nil
	}
	conn := s.conn
	s.conn = nil
	s.epoch++
	s.attempts = 0
	ch := s.transitionLocked(types.StateDisconnected, nil)
	s.mu.Unlock()

	if conn != nil {
		conn.Close()
	}
	s.registry.Reset()
	s.typing.Reset()
	s.presence.Reset()

	if ch != nil {
		s.emit(ch)
		s.notifier.ConnectionDown("disconnect")
	}
}

// Close disconnects and releases the session's background goroutines. The
// session must not be reused afterwards.
func (s *Session) Close() {
	s.Disconnect()
	s.typing.Stop()
}

// JoinConversation subscribes to a conversation room.
func (s *Session) JoinConversation(id string) { s.registry.JoinConversation(id) }

// LeaveConversation unsubscribes from a conversation room.
func (s *Session) LeaveConversation(id string) { s.registry.LeaveConversation(id) }

// JoinWorkspace subscribes to a workspace room.
func (s *Session) JoinWorkspace(id string) { s.registry.JoinWorkspace(id) }

// SubscribeDeliveryUpdates tracks delivery updates for the given messages.
func (s *Session) SubscribeDeliveryUpdates(ids []string) {
	s.registry.SubscribeDeliveryUpdates(ids)
}

// UnsubscribeDeliveryUpdates stops tracking the given messages.
func (s *Session) UnsubscribeDeliveryUpdates(ids []string) {
	s.registry.UnsubscribeDeliveryUpdates(ids)
}

// SendMessage sends an outbound message optimistically and returns the
// stored pending entry.
func (s *Session) SendMessage(draft store.Draft) types.Message {
	return s.store.SendMessage(draft)
}

// MarkAsRead advances a message to read and notifies the server.
func (s *Session) MarkAsRead(id string) { s.store.MarkAsRead(id) }

// MarkAsDelivered advances a message to delivered and notifies the server.
func (s *Session) MarkAsDelivered(id string) { s.store.MarkAsDelivered(id) }

// StartTyping signals that the local user is typing.
func (s *Session) StartTyping(conversationID string) { s.typing.StartTyping(conversationID) }

// StopTyping signals that the local user stopped typing.
func (s *Session) StopTyping(conversationID string) { s.typing.StopTyping(conversationID) }

// UpdatePresenceStatus reports the local user's availability.
func (s *Session) UpdatePresenceStatus(status types.PresenceStatus) {
	s.presence.UpdateStatus(status)
}

// GetOnlineUsers requests a presence snapshot and waits for it.
func (s *Session) GetOnlineUsers(ctx context.Context) ([]types.OnlineUser, error) {
	return s.presence.GetOnlineUsers(ctx, s.cfg.WorkspaceID)
}

// Store exposes the message state store.
func (s *Session) Store() *store.Store { return s.store }

// Registry exposes the subscription registry.
func (s *Session) Registry() *subs.Registry { return s.registry }

// Typing exposes the typing coordinator.
func (s *Session) Typing() *typing.Coordinator { return s.typing }

// Presence exposes the presence tracker.
func (s *Session) Presence() *presence.Tracker { return s.presence }

// Events exposes the event dispatcher for subscribing consumers.
func (s *Session) Events() *dispatch.Dispatcher { return s.dispatcher }

// dial performs one connection attempt and installs the connection on
// success. Failures feed the bounded retry loop. At most one dial is in
// flight at a time: a manual Connect during a blocked retry dial must not
// race a second socket into the session.
func (s *Session) dial() error {
	s.mu.Lock()
	if s.dialing {
		s.mu.Unlock()
		return nil
	}
	s.dialing = true
	s.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), s.cfg.DialTimeout)
	defer cancel()

	conn, err := s.dialer.Dial(ctx, s.endpointURL())
	if err != nil {
		return s.dialFailed(err)
	}

	s.mu.Lock()
	s.dialing = false
	if s.intentional {
		s.mu.Unlock()
		conn.Close()
		return nil
	}
	// A superseded socket must not keep feeding frames into live state.
	if s.conn != nil {
		s.conn.Close()
	}
	if s.done != nil {
		close(s.done)
	}
	s.conn = conn
	s.epoch++
	epoch := s.epoch
	done := make(chan struct{})
	s.done = done
	s.attempts = 0
	ch := s.transitionLocked(types.StateConnected, nil)
	s.mu.Unlock()

	// State is Connected before reassertion so the join frames go out.
	s.emit(ch)
	go s.readLoop(conn, epoch)
	go s.heartbeat(done)
	s.registry.Reassert()
	s.notifier.ConnectionUp()
	return nil
}

// dialFailed decides between retrying and giving up. Auth rejections are
// fatal immediately; transport failures retry until the attempt budget is
// spent.
func (s *Session) dialFailed(err error) error {
	var authErr *types.AuthError
	fatal := errors.As(err, &authErr)

	s.mu.Lock()
	s.dialing = false
	if s.intentional {
		s.mu.Unlock()
		return err
	}
	var ch *types.StateChange
	if !fatal {
		s.attempts++
		fatal = s.attempts >= s.cfg.MaxReconnectAttempts
	}
	if fatal {
		ch = s.transitionLocked(types.StateError, err)
	} else {
		delay := backoffDelay(s.cfg.ReconnectBase, s.cfg.ReconnectCap, s.attempts)
		ch = s.transitionLocked(types.StateReconnecting, err)
		s.retryTimer = time.AfterFunc(delay, func() { _ = s.dial() })
		s.logger.Warn().Err(err).Int("attempt", s.attempts).Dur("retry_in", delay).
			Msg("connect failed, retrying")
	}
	s.mu.Unlock()

	s.emit(ch)
	if fatal {
		s.logger.Error().Err(err).Msg("connection failed permanently")
		s.notifier.ConnectError(err)
	}
	return err
}

// connectionLost reacts to a transport drop observed by the read loop.
// Stale epochs are ignored: a reader outliving its connection must not
// disturb the current one.
func (s *Session) connectionLost(epoch int, cause error) {
	authRejected := websocket.IsCloseError(cause, websocket.ClosePolicyViolation)

	s.mu.Lock()
	if s.intentional || epoch != s.epoch {
		s.mu.Unlock()
		return
	}
	if s.conn != nil {
		s.conn.Close()
		s.conn = nil
	}
	if s.done != nil {
		close(s.done)
		s.done = nil
	}

	var ch *types.StateChange
	if authRejected {
		err := &types.AuthError{Reason: cause.Error()}
		ch = s.transitionLocked(types.StateError, err)
		s.mu.Unlock()
		s.emit(ch)
		s.notifier.ConnectError(err)
		return
	}

	// The server forgot this connection's topics; the desired set will be
	// re-requested once the retry succeeds.
	s.registry.ClearAsserted()
	err := &types.TransportError{Err: cause}
	ch = s.transitionLocked(types.StateReconnecting, err)
	delay := backoffDelay(s.cfg.ReconnectBase, s.cfg.ReconnectCap, s.attempts+1)
	s.retryTimer = time.AfterFunc(delay, func() { _ = s.dial() })
	s.logger.Warn().Err(cause).Dur("retry_in", delay).Msg("connection lost")
	s.mu.Unlock()

	s.emit(ch)
	s.notifier.ConnectionDown(cause.Error())
}

// readLoop decodes inbound frames for one connection epoch. Malformed
// frames are protocol errors: logged, reported, dropped. Socket errors end
// the epoch.
func (s *Session) readLoop(conn types.Conn, epoch int) {
	for {
		var f types.Frame
		if err := conn.ReadJSON(&f); err != nil {
			if isDecodeError(err) {
				perr := &types.ProtocolError{Detail: err.Error()}
				s.logger.Warn().Err(err).Msg("dropping malformed frame")
				s.dispatcher.EmitError(perr)
				continue
			}
			s.connectionLost(epoch, err)
			return
		}
		s.mu.Lock()
		stale := epoch != s.epoch
		s.mu.Unlock()
		if stale {
			return
		}
		s.route(f)
	}
}

// route applies one inbound frame to the owning component.
func (s *Session) route(f types.Frame) {
	switch f.Type {
	case types.FrameMessage:
		if f.Message == nil {
			s.protocolError(f.Type, "missing message body")
			return
		}
		s.store.ApplyInbound(*f.Message)

	case types.FrameMessageSent:
		s.store.ApplyStatus(f.MessageID, types.StatusSent, f.Timestamp, "")
	case types.FrameMessageDelivered:
		s.store.ApplyStatus(f.MessageID, types.StatusDelivered, f.Timestamp, "")
	case types.FrameMessageRead:
		s.store.ApplyStatus(f.MessageID, types.StatusRead, f.Timestamp, "")
	case types.FrameMessageFailed:
		s.store.ApplyStatus(f.MessageID, types.StatusFailed, f.Timestamp, f.Error)
		s.notifier.MessageFailed(f.MessageID, f.Error)
	case types.FrameDeliveryUpdate:
		if !f.Status.Valid() {
			s.protocolError(f.Type, "unknown delivery status")
			return
		}
		s.store.ApplyStatus(f.MessageID, f.Status, f.Timestamp, f.Error)

	case types.FrameTypingStart:
		s.typing.ApplyStart(types.TypingIndicator{
			UserID:         f.UserID,
			ConversationID: f.ConversationID,
			IsTyping:       true,
			Timestamp:      f.Timestamp,
		})
	case types.FrameTypingStop:
		s.typing.ApplyStop(types.TypingIndicator{
			UserID:         f.UserID,
			ConversationID: f.ConversationID,
			Timestamp:      f.Timestamp,
		})

	case types.FrameUserOnline, types.FramePresenceUpdate:
		u := f.User
		if u == nil {
			if f.UserID == "" {
				s.protocolError(f.Type, "missing user")
				return
			}
			u = &types.OnlineUser{ID: f.UserID, Status: f.Presence, LastSeen: f.Timestamp}
		}
		s.presence.ApplyUpdate(*u)
	case types.FrameUserOffline:
		id := f.UserID
		if id == "" && f.User != nil {
			id = f.User.ID
		}
		s.presence.ApplyOffline(id)
	case types.FrameOnlineUsers:
		s.presence.ApplySnapshot(f.Users)

	case types.FrameError:
		if f.MessageID != "" {
			s.dispatcher.EmitError(&types.DeliveryError{MessageID: f.MessageID, Reason: f.Error})
			return
		}
		s.dispatcher.EmitError(errors.New("server: " + f.Error))

	default:
		s.protocolError(f.Type, "")
	}
}

// heartbeat sends a ping on a fixed interval while the epoch lives.
func (s *Session) heartbeat(done chan struct{}) {
	ticker := time.NewTicker(s.cfg.HeartbeatInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			if !s.sendFrame(types.Frame{Type: types.FramePing, Timestamp: time.Now()}) {
				return
			}
		case <-done:
			return
		}
	}
}

// sendFrame transmits a frame on the current connection. Reports false when
// not connected so callers can defer; write failures are left to the read
// loop, which observes the broken socket and drives the reconnect.
func (s *Session) sendFrame(f types.Frame) bool {
	s.mu.Lock()
	conn := s.conn
	connected := s.state == types.StateConnected
	s.mu.Unlock()
	if !connected || conn == nil {
		return false
	}

	s.writeMu.Lock()
	err := conn.WriteJSON(f)
	s.writeMu.Unlock()
	if err != nil {
		s.logger.Warn().Err(err).Str("frame", string(f.Type)).Msg("write failed")
		return false
	}
	return true
}

func (s *Session) protocolError(ft types.FrameType, detail string) {
	perr := &types.ProtocolError{FrameType: ft, Detail: detail}
	s.logger.Warn().Str("frame", string(ft)).Str("detail", detail).Msg("dropping frame")
	s.dispatcher.EmitError(perr)
}

func (s *Session) emit(ch *types.StateChange) {
	if ch != nil {
		s.dispatcher.EmitStateChange(*ch)
	}
}

// transitionLocked records a state change; the caller emits it after
// releasing the lock so subscriber callbacks can reenter the session.
func (s *Session) transitionLocked(next types.ConnectionState, cause error) *types.StateChange {
	if s.state == next {
		return nil
	}
	old := s.state
	s.state = next
	s.logger.Info().Str("from", old.String()).Str("to", next.String()).Msg("state change")
	return &types.StateChange{Old: old, New: next, Err: cause}
}

func (s *Session) stopRetryLocked() {
	if s.retryTimer != nil {
		s.retryTimer.Stop()
		s.retryTimer = nil
	}
}

// endpointURL appends the auth payload as query parameters.
func (s *Session) endpointURL() string {
	u, err := url.Parse(s.cfg.URL)
	if err != nil {
		return s.cfg.URL
	}
	q := u.Query()
	q.Set("token", s.cfg.Token)
	q.Set("user_id", s.cfg.UserID)
	if s.cfg.UserName != "" {
		q.Set("user_name", s.cfg.UserName)
	}
	q.Set("workspace_id", s.cfg.WorkspaceID)
	u.RawQuery = q.Encode()
	return u.String()
}

// isDecodeError distinguishes a bad frame from a dead socket.
func isDecodeError(err error) bool {
	var syntaxErr *json.SyntaxError
	var typeErr *json.UnmarshalTypeError
	return errors.As(err, &syntaxErr) || errors.As(err, &typeErr)
}
