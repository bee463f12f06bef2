package types

import "time"

// Direction tells whether a message was sent by the local user or received
// from a remote one.
type Direction string

const (
	DirectionInbound  Direction = "inbound"
	DirectionOutbound Direction = "outbound"
)

// Message is one chat message tracked by the session. Identity is ID:
// client-generated for outbound messages, server-assigned for inbound ones.
// Status is the only mutable field.
type Message struct {
	ID             string            `json:"id"`
	ConversationID string            `json:"conversation_id"`
	Content        string            `json:"content"`
	Channel        string            `json:"channel,omitempty"`
	Direction      Direction         `json:"direction"`
	Status         DeliveryStatus    `json:"status"`
	Timestamp      time.Time         `json:"timestamp"`
	Metadata       map[string]string `json:"metadata,omitempty"`
	Attachments    []Attachment      `json:"attachments,omitempty"`
	IsAutomated    bool              `json:"is_automated,omitempty"`
}

// Attachment is a file reference carried by a message.
type Attachment struct {
	ID       string `json:"id,omitempty"`
	Name     string `json:"name"`
	URL      string `json:"url"`
	MimeType string `json:"mime_type,omitempty"`
	Size     int64  `json:"size,omitempty"`
}

// TypingIndicator signals that a user started or stopped typing in a
// conversation. Indicators are never persisted; they only drive the
// per-conversation typing sets.
type TypingIndicator struct {
	UserID         string    `json:"user_id"`
	ConversationID string    `json:"conversation_id"`
	IsTyping       bool      `json:"is_typing"`
	Timestamp      time.Time `json:"timestamp"`
}

// PresenceStatus is a user's reported availability.
type PresenceStatus string

const (
	PresenceOnline PresenceStatus = "online"
	PresenceAway   PresenceStatus = "away"
	PresenceBusy   PresenceStatus = "busy"
)

// OnlineUser is the last-known presence of a user. Entries are keyed by ID
// and updated last-write-wins.
type OnlineUser struct {
	ID                  string         `json:"id"`
	Name                string         `json:"name,omitempty"`
	Email               string         `json:"email,omitempty"`
	Avatar              string         `json:"avatar,omitempty"`
	Status              PresenceStatus `json:"status"`
	LastSeen            time.Time      `json:"last_seen,omitempty"`
	CurrentConversation string         `json:"current_conversation,omitempty"`
}

// DeliveryUpdate is the event emitted whenever a message's delivery status
// changes, locally or from a server frame.
type DeliveryUpdate struct {
	MessageID string         `json:"message_id"`
	Status    DeliveryStatus `json:"status"`
	Timestamp time.Time      `json:"timestamp"`
}

// Conn abstracts a WebSocket connection for testability.
type Conn interface {
	WriteJSON(v any) error
	ReadJSON(v any) error
	Close() error
}
