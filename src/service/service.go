// Package service is the high-level server API over the hub, used by the
// HTTP surface and by host applications that need to push events into the
// realtime layer (for example CRM automations emitting system messages).
package service

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/salesdeck/realtime/src/hub"
	"github.com/salesdeck/realtime/src/types"
)

// Service provides the high-level realtime server API.
type Service struct {
	hub    *hub.Hub
	logger zerolog.Logger
}

// New creates a service backed by the given hub.
func New(h *hub.Hub, logger zerolog.Logger) *Service {
	return &Service{hub: h, logger: logger}
}

// Hub returns the underlying hub.
func (s *Service) Hub() *hub.Hub { return s.hub }

// BroadcastMessage injects a server-originated message into a conversation
// room, e.g. an automated follow-up. The message id is assigned here.
func (s *Service) BroadcastMessage(conversationID, content, channel string) (types.Message, error) {
	if conversationID == "" {
		return types.Message{}, fmt.Errorf("broadcast: conversation id required")
	}
	msg := types.Message{
		ID:             uuid.New().String(),
		ConversationID: conversationID,
		Content:        content,
		Channel:        channel,
		Direction:      types.DirectionInbound,
		Status:         types.StatusPending,
		Timestamp:      time.Now(),
		IsAutomated:    true,
	}
	s.hub.Broadcast("conversation:"+conversationID, types.Frame{
		Type:      types.FrameMessage,
		Message:   &msg,
		Timestamp: msg.Timestamp,
	})
	s.logger.Debug().Str("conversation_id", conversationID).Str("message_id", msg.ID).
		Msg("automated message broadcast")
	return msg, nil
}

// PushDeliveryUpdate fans a delivery status change out to every session
// tracking the message, e.g. when an external channel (SMS, email)
// confirms delivery asynchronously.
func (s *Service) PushDeliveryUpdate(messageID string, status types.DeliveryStatus) error {
	if !status.Valid() {
		return fmt.Errorf("delivery update: unknown status %q", status)
	}
	s.hub.Broadcast("delivery:"+messageID, types.Frame{
		Type:      types.FrameDeliveryUpdate,
		MessageID: messageID,
		Status:    status,
		Timestamp: time.Now(),
	})
	return nil
}

// OnlineUsers returns the presence aggregate for a workspace.
func (s *Service) OnlineUsers(workspaceID string) []types.OnlineUser {
	return s.hub.OnlineUsers(workspaceID)
}

// SessionCount returns the number of connected sessions.
func (s *Service) SessionCount() int {
	return s.hub.SessionCount()
}

// Rooms returns active rooms with their member counts.
func (s *Service) Rooms() map[string]int {
	return s.hub.Rooms()
}
