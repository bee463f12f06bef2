package types

import "time"

// FrameType is the discriminator carried by every frame on the wire.
type FrameType string

// Server -> client frames.
const (
	FrameMessage          FrameType = "message"
	FrameMessageSent      FrameType = "message_sent"
	FrameMessageDelivered FrameType = "message_delivered"
	FrameMessageRead      FrameType = "message_read"
	FrameMessageFailed    FrameType = "message_failed"
	FrameTypingStart      FrameType = "typing_start"
	FrameTypingStop       FrameType = "typing_stop"
	FrameUserOnline       FrameType = "user_online"
	FrameUserOffline      FrameType = "user_offline"
	FramePresenceUpdate   FrameType = "presence_update"
	FrameOnlineUsers      FrameType = "online_users"
	FrameDeliveryUpdate   FrameType = "delivery_update"
	FrameError            FrameType = "error"
)

// Client -> server frames. typing_start and typing_stop flow both ways.
const (
	FrameSendMessage         FrameType = "send_message"
	FrameMarkAsRead          FrameType = "mark_as_read"
	FrameMarkAsDelivered     FrameType = "mark_as_delivered"
	FrameUpdatePresence      FrameType = "update_presence"
	FrameGetOnlineUsers      FrameType = "get_online_users"
	FrameJoinConversation    FrameType = "join_conversation"
	FrameLeaveConversation   FrameType = "leave_conversation"
	FrameJoinWorkspace       FrameType = "join_workspace"
	FrameSubscribeDelivery   FrameType = "subscribe_delivery_updates"
	FrameUnsubscribeDelivery FrameType = "unsubscribe_delivery_updates"
	FramePing                FrameType = "ping"
)

// Frame is the wire envelope for every message exchanged with the server.
// Fields are populated per Type; unused fields are omitted from the JSON.
type Frame struct {
	Type FrameType `json:"type"`

	Message    *Message `json:"message,omitempty"`
	MessageID  string   `json:"message_id,omitempty"`
	MessageIDs []string `json:"message_ids,omitempty"`

	ConversationID string `json:"conversation_id,omitempty"`
	WorkspaceID    string `json:"workspace_id,omitempty"`
	UserID         string `json:"user_id,omitempty"`

	Status   DeliveryStatus `json:"status,omitempty"`
	Presence PresenceStatus `json:"presence,omitempty"`

	User  *OnlineUser  `json:"user,omitempty"`
	Users []OnlineUser `json:"users,omitempty"`

	Error     string    `json:"error,omitempty"`
	Timestamp time.Time `json:"timestamp,omitzero"`
}
