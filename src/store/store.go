// Package store keeps the per-message delivery state for one session.
// Outbound sends are inserted optimistically with a pending status; the
// server's own delivery frames are the authoritative source and are applied
// whenever they arrive. Only forward status transitions are accepted, so
// out-of-order frames across a reconnect cannot regress a message.
package store

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/salesdeck/realtime/src/dispatch"
	"github.com/salesdeck/realtime/src/subs"
	"github.com/salesdeck/realtime/src/types"
)

// Draft is the caller-supplied part of an outbound message.
type Draft struct {
	ConversationID string
	Content        string
	Channel        string
	Metadata       map[string]string
	Attachments    []types.Attachment
	IsAutomated    bool
}

// Store is the keyed map from message id to message plus delivery status.
// Entries are only removed by explicit eviction; retention is owned by the
// consumer, not the protocol.
type Store struct {
	mu       sync.Mutex
	messages map[string]*types.Message

	send       subs.SendFunc
	track      func(ids []string)
	dispatcher *dispatch.Dispatcher
	logger     zerolog.Logger
	now        func() time.Time
}

// New creates a store. track registers freshly sent message ids with the
// delivery-tracking subscription.
func New(send subs.SendFunc, track func(ids []string), d *dispatch.Dispatcher, logger zerolog.Logger) *Store {
	return &Store{
		messages:   make(map[string]*types.Message),
		send:       send,
		track:      track,
		dispatcher: d,
		logger:     logger.With().Str("component", "store").Logger(),
		now:        time.Now,
	}
}

// SetClock overrides the time source. Test hook.
func (s *Store) SetClock(now func() time.Time) { s.now = now }

// SendMessage inserts an optimistic pending entry, transmits a send_message
// frame, and registers the new id for delivery tracking. The stored message
// is returned so the caller can render it immediately.
//
// If the session is not connected the message is marked failed right away;
// silent invisible retries would hide the failure from the user, and retry
// is an explicit new SendMessage with a new id.
func (s *Store) SendMessage(draft Draft) types.Message {
	msg := types.Message{
		ID:             uuid.New().String(),
		ConversationID: draft.ConversationID,
		Content:        draft.Content,
		Channel:        draft.Channel,
		Direction:      types.DirectionOutbound,
		Status:         types.StatusPending,
		Timestamp:      s.now(),
		Metadata:       draft.Metadata,
		Attachments:    draft.Attachments,
		IsAutomated:    draft.IsAutomated,
	}

	s.mu.Lock()
	s.messages[msg.ID] = cloneMessage(msg)
	s.mu.Unlock()

	sent := s.send(types.Frame{
		Type:      types.FrameSendMessage,
		Message:   &msg,
		Timestamp: msg.Timestamp,
	})
	if !sent {
		s.ApplyStatus(msg.ID, types.StatusFailed, s.now(), "not connected")
		msg.Status = types.StatusFailed
		return msg
	}

	s.track([]string{msg.ID})
	return msg
}

// MarkAsRead optimistically advances the message to read and notifies the
// server.
func (s *Store) MarkAsRead(id string) {
	s.ApplyStatus(id, types.StatusRead, s.now(), "")
	s.send(types.Frame{Type: types.FrameMarkAsRead, MessageID: id, Timestamp: s.now()})
}

// MarkAsDelivered optimistically advances the message to delivered and
// notifies the server.
func (s *Store) MarkAsDelivered(id string) {
	s.ApplyStatus(id, types.StatusDelivered, s.now(), "")
	s.send(types.Frame{Type: types.FrameMarkAsDelivered, MessageID: id, Timestamp: s.now()})
}

// ApplyInbound inserts or replaces the entry for a server-delivered message
// frame, keyed by the server-assigned id. An inbound message still pending
// triggers an automatic delivered acknowledgment; that ack is how the
// sender learns delivery without polling.
func (s *Store) ApplyInbound(msg types.Message) {
	if msg.ID == "" {
		s.logger.Warn().Msg("dropping message frame without id")
		return
	}
	s.mu.Lock()
	s.messages[msg.ID] = cloneMessage(msg)
	s.mu.Unlock()

	s.dispatcher.EmitMessage(msg)

	if msg.Direction == types.DirectionInbound && msg.Status == types.StatusPending {
		s.MarkAsDelivered(msg.ID)
	}
}

// ApplyStatus applies a delivery status transition to one message. Illegal
// transitions (regressions, moves out of a terminal state) are logged and
// ignored. failed transitions attach reason to metadata.error.
func (s *Store) ApplyStatus(id string, status types.DeliveryStatus, ts time.Time, reason string) {
	if ts.IsZero() {
		ts = s.now()
	}

	s.mu.Lock()
	msg, ok := s.messages[id]
	if !ok {
		s.mu.Unlock()
		s.logger.Debug().Str("message_id", id).Str("status", string(status)).
			Msg("status for unknown message dropped")
		return
	}
	if !msg.Status.CanAdvance(status) {
		prev := msg.Status
		s.mu.Unlock()
		if prev != status {
			s.logger.Warn().Str("message_id", id).
				Str("from", string(prev)).Str("to", string(status)).
				Msg("ignoring status regression")
		}
		return
	}
	msg.Status = status
	if status == types.StatusFailed && reason != "" {
		if msg.Metadata == nil {
			msg.Metadata = make(map[string]string)
		}
		msg.Metadata["error"] = reason
	}
	s.mu.Unlock()

	s.dispatcher.EmitDeliveryUpdate(types.DeliveryUpdate{
		MessageID: id,
		Status:    status,
		Timestamp: ts,
	})
	if status == types.StatusFailed {
		s.dispatcher.EmitError(&types.DeliveryError{MessageID: id, Reason: reason})
	}
}

// Get returns a copy of the stored message.
func (s *Store) Get(id string) (types.Message, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	msg, ok := s.messages[id]
	if !ok {
		return types.Message{}, false
	}
	return *cloneMessage(*msg), true
}

// Conversation returns copies of all stored messages for one conversation.
func (s *Store) Conversation(conversationID string) []types.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []types.Message
	for _, msg := range s.messages {
		if msg.ConversationID == conversationID {
			out = append(out, *cloneMessage(*msg))
		}
	}
	return out
}

// Evict removes entries from the store. The server protocol never destroys
// messages; consumers call this to bound retention.
func (s *Store) Evict(ids ...string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, id := range ids {
		delete(s.messages, id)
	}
}

// Len reports the number of stored messages.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.messages)
}

func cloneMessage(m types.Message) *types.Message {
	cp := m
	if m.Metadata != nil {
		cp.Metadata = make(map[string]string, len(m.Metadata))
		for k, v := range m.Metadata {
			cp.Metadata[k] = v
		}
	}
	if m.Attachments != nil {
		cp.Attachments = append([]types.Attachment(nil), m.Attachments...)
	}
	return &cp
}
