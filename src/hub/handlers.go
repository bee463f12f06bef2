package hub

import "github.com/salesdeck/realtime/src/types"

// handleFrame applies one client frame. Every operation a session can send
// is handled here; unknown types are logged and dropped so a misbehaving
// client cannot take the hub loop down.
func (h *Hub) handleFrame(c *Client, f types.Frame) {
	switch f.Type {
	case types.FrameJoinConversation:
		if f.ConversationID != "" {
			h.subscribe(conversationRoom(f.ConversationID), c.ID)
		}
	case types.FrameLeaveConversation:
		h.unsubscribe(conversationRoom(f.ConversationID), c.ID)
	case types.FrameJoinWorkspace:
		if f.WorkspaceID != "" {
			h.subscribe(workspaceRoom(f.WorkspaceID), c.ID)
		}
	case types.FrameSubscribeDelivery:
		h.trackDelivery(c.ID, f.MessageIDs)
	case types.FrameUnsubscribeDelivery:
		h.untrackDelivery(c.ID, f.MessageIDs)

	case types.FrameSendMessage:
		h.handleSendMessage(c, f)
	case types.FrameMarkAsDelivered:
		h.handleMark(c, f, types.FrameMessageDelivered, types.StatusDelivered)
	case types.FrameMarkAsRead:
		h.handleMark(c, f, types.FrameMessageRead, types.StatusRead)

	case types.FrameTypingStart, types.FrameTypingStop:
		h.handleTyping(c, f)

	case types.FrameUpdatePresence:
		h.handleUpdatePresence(c, f)
	case types.FrameGetOnlineUsers:
		h.handleGetOnlineUsers(c, f)

	case types.FramePing:
		// Heartbeat; nothing to answer.

	default:
		h.logger.Warn().Str("conn_id", c.ID).Str("frame", string(f.Type)).
			Msg("unexpected frame dropped")
		h.sendTo(c.ID, types.Frame{
			Type:  types.FrameError,
			Error: "unexpected frame: " + string(f.Type),
		})
	}
}

// handleSendMessage accepts an outbound message, acknowledges it to the
// sender, and fans it out to the conversation room and delivery trackers.
// The client-generated id is kept so the sender can correlate the echo.
func (h *Hub) handleSendMessage(c *Client, f types.Frame) {
	if f.Message == nil || f.Message.ID == "" || f.Message.ConversationID == "" {
		h.sendTo(c.ID, types.Frame{Type: types.FrameError, Error: "send_message: missing message"})
		return
	}
	now := h.now()

	msg := *f.Message
	msg.Timestamp = now
	msg.Status = types.StatusSent

	h.sendTo(c.ID, types.Frame{
		Type:      types.FrameMessageSent,
		MessageID: msg.ID,
		Timestamp: now,
	})

	// Recipients see the message inbound and pending; their sessions
	// acknowledge delivery themselves with mark_as_delivered.
	out := msg
	out.Direction = types.DirectionInbound
	out.Status = types.StatusPending
	h.fanRoomExcept(conversationRoom(msg.ConversationID), types.Frame{
		Type:      types.FrameMessage,
		Message:   &out,
		Timestamp: now,
	}, c.ID, true)

	h.fanDelivery(msg.ID, types.Frame{
		Type:      types.FrameDeliveryUpdate,
		MessageID: msg.ID,
		Status:    types.StatusSent,
		Timestamp: now,
	}, true)
}

// handleMark turns a client acknowledgment into the authoritative
// message_delivered/message_read frame for everyone tracking the message.
func (h *Hub) handleMark(c *Client, f types.Frame, echo types.FrameType, status types.DeliveryStatus) {
	if f.MessageID == "" {
		return
	}
	now := h.now()
	h.fanDelivery(f.MessageID, types.Frame{
		Type:      echo,
		MessageID: f.MessageID,
		UserID:    c.UserID,
		Timestamp: now,
	}, true)
	h.fanDelivery(f.MessageID, types.Frame{
		Type:      types.FrameDeliveryUpdate,
		MessageID: f.MessageID,
		Status:    status,
		Timestamp: now,
	}, true)
}

// handleTyping relays a typing signal to the conversation room, stamped
// with the authenticated user id rather than whatever the client claimed.
func (h *Hub) handleTyping(c *Client, f types.Frame) {
	if f.ConversationID == "" {
		return
	}
	h.fanRoomExcept(conversationRoom(f.ConversationID), types.Frame{
		Type:           f.Type,
		ConversationID: f.ConversationID,
		UserID:         c.UserID,
		Timestamp:      h.now(),
	}, c.ID, true)
}

// handleUpdatePresence records the user's reported status and announces it
// to the workspace.
func (h *Hub) handleUpdatePresence(c *Client, f types.Frame) {
	if f.Presence == "" {
		return
	}
	now := h.now()

	h.mu.Lock()
	user, ok := h.presence[c.UserID]
	if !ok {
		user = types.OnlineUser{ID: c.UserID, Name: c.UserName}
	}
	user.Status = f.Presence
	user.LastSeen = now
	h.presence[c.UserID] = user
	h.mu.Unlock()

	h.fanRoom(workspaceRoom(c.WorkspaceID), types.Frame{
		Type:      types.FramePresenceUpdate,
		UserID:    c.UserID,
		User:      &user,
		Presence:  user.Status,
		Timestamp: now,
	}, true)
}

// handleGetOnlineUsers answers with the presence snapshot for the requested
// workspace (the caller's own when unspecified).
func (h *Hub) handleGetOnlineUsers(c *Client, f types.Frame) {
	workspaceID := f.WorkspaceID
	if workspaceID == "" {
		workspaceID = c.WorkspaceID
	}

	h.mu.RLock()
	users := make([]types.OnlineUser, 0, len(h.presence))
	for id, u := range h.presence {
		if workspaceID == "" || h.workspaces[id] == workspaceID {
			users = append(users, u)
		}
	}
	h.mu.RUnlock()

	h.sendTo(c.ID, types.Frame{
		Type:        types.FrameOnlineUsers,
		WorkspaceID: workspaceID,
		Users:       users,
		Timestamp:   h.now(),
	})
}
