package tests

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/salesdeck/realtime/src/hub"
	"github.com/salesdeck/realtime/src/types"
)

// mockConn implements types.Conn for testing without a real WebSocket.
type mockConn struct {
	mu       sync.Mutex
	written  []types.Frame
	readCh   chan types.Frame
	closed   bool
	closedCh chan struct{}
}

func newMockConn() *mockConn {
	return &mockConn{
		readCh:   make(chan types.Frame, 16),
		closedCh: make(chan struct{}),
	}
}

func (m *mockConn) WriteJSON(v any) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return errors.New("connection closed")
	}
	if f, ok := v.(types.Frame); ok {
		m.written = append(m.written, f)
	}
	return nil
}

func (m *mockConn) ReadJSON(v any) error {
	select {
	case f := <-m.readCh:
		if ptr, ok := v.(*types.Frame); ok {
			*ptr = f
		}
		return nil
	case <-m.closedCh:
		return errors.New("connection closed")
	}
}

func (m *mockConn) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.closed {
		m.closed = true
		close(m.closedCh)
	}
	return nil
}

func (m *mockConn) push(f types.Frame) { m.readCh <- f }

func (m *mockConn) sent(ft types.FrameType) []types.Frame {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []types.Frame
	for _, f := range m.written {
		if f.Type == ft {
			out = append(out, f)
		}
	}
	return out
}

// newTestHub creates a hub and starts its event loop in a goroutine.
func newTestHub(t *testing.T) *hub.Hub {
	t.Helper()
	h := hub.New(zerolog.Nop())
	go h.Run()
	t.Cleanup(h.Stop)
	return h
}

// connect registers an authenticated session and starts its pumps.
func connect(t *testing.T, h *hub.Hub, connID, userID, workspaceID string) *mockConn {
	t.Helper()
	return connectNamed(t, h, connID, userID, "", workspaceID)
}

// connectNamed is connect with a display name for presence announcements.
func connectNamed(t *testing.T, h *hub.Hub, connID, userID, userName, workspaceID string) *mockConn {
	t.Helper()
	conn := newMockConn()
	c := hub.NewClient(connID, userID, userName, workspaceID, conn, h)
	h.Register(c)
	go c.ReadPump()
	go c.WritePump()
	waitFor(t, func() bool {
		for _, id := range h.ConnectedSessions() {
			if id == connID {
				return true
			}
		}
		return false
	}, "client "+connID+" not registered")
	return conn
}

func waitFor(t *testing.T, cond func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal(msg)
}

func TestJoinConversationAndMessageFanOut(t *testing.T) {
	h := newTestHub(t)
	alice := connect(t, h, "conn-a", "alice", "w1")
	bob := connect(t, h, "conn-b", "bob", "w1")

	alice.push(types.Frame{Type: types.FrameJoinConversation, ConversationID: "c1"})
	bob.push(types.Frame{Type: types.FrameJoinConversation, ConversationID: "c1"})
	waitFor(t, func() bool { return h.Rooms()["conversation:c1"] == 2 }, "both clients in room")

	alice.push(types.Frame{Type: types.FrameSendMessage, Message: &types.Message{
		ID:             "m1",
		ConversationID: "c1",
		Content:        "hello bob",
		Direction:      types.DirectionOutbound,
		Status:         types.StatusPending,
	}})

	// Sender gets the ack, not a copy of their own message.
	waitFor(t, func() bool { return len(alice.sent(types.FrameMessageSent)) == 1 }, "sender ack")
	if acks := alice.sent(types.FrameMessageSent); acks[0].MessageID != "m1" {
		t.Fatalf("ack for wrong message: %q", acks[0].MessageID)
	}
	if got := alice.sent(types.FrameMessage); len(got) != 0 {
		t.Fatalf("sender received own message: %+v", got)
	}

	// Recipient sees the message inbound and pending.
	waitFor(t, func() bool { return len(bob.sent(types.FrameMessage)) == 1 }, "recipient copy")
	msg := bob.sent(types.FrameMessage)[0].Message
	if msg == nil || msg.ID != "m1" {
		t.Fatalf("unexpected message frame: %+v", msg)
	}
	if msg.Direction != types.DirectionInbound {
		t.Fatalf("recipient direction = %q, want inbound", msg.Direction)
	}
	if msg.Status != types.StatusPending {
		t.Fatalf("recipient status = %q, want pending", msg.Status)
	}
}

func TestLeaveConversationStopsDelivery(t *testing.T) {
	h := newTestHub(t)
	alice := connect(t, h, "conn-a", "alice", "w1")
	bob := connect(t, h, "conn-b", "bob", "w1")

	alice.push(types.Frame{Type: types.FrameJoinConversation, ConversationID: "c1"})
	bob.push(types.Frame{Type: types.FrameJoinConversation, ConversationID: "c1"})
	waitFor(t, func() bool { return h.Rooms()["conversation:c1"] == 2 }, "both clients in room")

	bob.push(types.Frame{Type: types.FrameLeaveConversation, ConversationID: "c1"})
	waitFor(t, func() bool { return h.Rooms()["conversation:c1"] == 1 }, "bob left room")

	alice.push(types.Frame{Type: types.FrameSendMessage, Message: &types.Message{
		ID: "m2", ConversationID: "c1", Content: "anyone there?",
	}})
	waitFor(t, func() bool { return len(alice.sent(types.FrameMessageSent)) == 1 }, "sender ack")

	if got := bob.sent(types.FrameMessage); len(got) != 0 {
		t.Fatalf("bob received message after leaving: %+v", got)
	}
}

func TestDeliveryTrackingFansAcknowledgments(t *testing.T) {
	h := newTestHub(t)
	alice := connect(t, h, "conn-a", "alice", "w1")
	bob := connect(t, h, "conn-b", "bob", "w1")

	alice.push(types.Frame{Type: types.FrameSubscribeDelivery, MessageIDs: []string{"m1"}})
	waitFor(t, func() bool { return h.TrackedMessages()["m1"] == 1 }, "delivery tracked")

	bob.push(types.Frame{Type: types.FrameMarkAsRead, MessageID: "m1"})

	waitFor(t, func() bool { return len(alice.sent(types.FrameMessageRead)) == 1 }, "read ack fanned")
	reads := alice.sent(types.FrameMessageRead)
	if reads[0].MessageID != "m1" || reads[0].UserID != "bob" {
		t.Fatalf("unexpected read frame: %+v", reads[0])
	}

	waitFor(t, func() bool { return len(alice.sent(types.FrameDeliveryUpdate)) == 1 }, "delivery update fanned")
	if upd := alice.sent(types.FrameDeliveryUpdate)[0]; upd.Status != types.StatusRead {
		t.Fatalf("delivery update status = %q, want read", upd.Status)
	}
}

func TestUnsubscribeDeliveryStopsUpdates(t *testing.T) {
	h := newTestHub(t)
	alice := connect(t, h, "conn-a", "alice", "w1")
	bob := connect(t, h, "conn-b", "bob", "w1")

	alice.push(types.Frame{Type: types.FrameSubscribeDelivery, MessageIDs: []string{"m1"}})
	waitFor(t, func() bool { return h.TrackedMessages()["m1"] == 1 }, "delivery tracked")
	alice.push(types.Frame{Type: types.FrameUnsubscribeDelivery, MessageIDs: []string{"m1"}})
	waitFor(t, func() bool { return h.TrackedMessages()["m1"] == 0 }, "delivery untracked")

	bob.push(types.Frame{Type: types.FrameMarkAsDelivered, MessageID: "m1"})
	// Fence on the hub loop: once bob's next frame is processed, the mark
	// before it has been handled too.
	bob.push(types.Frame{Type: types.FrameJoinConversation, ConversationID: "fence"})
	waitFor(t, func() bool { return h.Rooms()["conversation:fence"] == 1 }, "fence processed")

	if got := alice.sent(types.FrameMessageDelivered); len(got) != 0 {
		t.Fatalf("alice still received delivery frames: %+v", got)
	}
}

func TestTypingRelayStampsAuthenticatedUser(t *testing.T) {
	h := newTestHub(t)
	alice := connect(t, h, "conn-a", "alice", "w1")
	bob := connect(t, h, "conn-b", "bob", "w1")

	alice.push(types.Frame{Type: types.FrameJoinConversation, ConversationID: "c1"})
	bob.push(types.Frame{Type: types.FrameJoinConversation, ConversationID: "c1"})
	waitFor(t, func() bool { return h.Rooms()["conversation:c1"] == 2 }, "both clients in room")

	// The client claims to be someone else; the hub must not believe it.
	bob.push(types.Frame{Type: types.FrameTypingStart, ConversationID: "c1", UserID: "mallory"})

	waitFor(t, func() bool { return len(alice.sent(types.FrameTypingStart)) == 1 }, "typing relayed")
	f := alice.sent(types.FrameTypingStart)[0]
	if f.UserID != "bob" {
		t.Fatalf("typing stamped %q, want authenticated bob", f.UserID)
	}
	if got := bob.sent(types.FrameTypingStart); len(got) != 0 {
		t.Fatalf("typing echoed back to sender: %+v", got)
	}
}

func TestPresenceLifecycle(t *testing.T) {
	h := newTestHub(t)
	alice := connect(t, h, "conn-a", "alice", "w1")
	alice.push(types.Frame{Type: types.FrameJoinWorkspace, WorkspaceID: "w1"})
	waitFor(t, func() bool { return h.Rooms()["workspace:w1"] == 1 }, "alice in workspace room")

	// Bob coming online is announced to the workspace.
	bob := connect(t, h, "conn-b", "bob", "w1")
	waitFor(t, func() bool { return len(alice.sent(types.FrameUserOnline)) == 1 }, "user_online announced")
	if f := alice.sent(types.FrameUserOnline)[0]; f.UserID != "bob" || f.Presence != types.PresenceOnline {
		t.Fatalf("unexpected user_online: %+v", f)
	}

	// A presence change is announced as presence_update.
	bob.push(types.Frame{Type: types.FrameUpdatePresence, Presence: types.PresenceBusy})
	waitFor(t, func() bool { return len(alice.sent(types.FramePresenceUpdate)) == 1 }, "presence_update announced")
	if f := alice.sent(types.FramePresenceUpdate)[0]; f.Presence != types.PresenceBusy {
		t.Fatalf("presence_update status = %q, want busy", f.Presence)
	}

	// Bob's socket dying takes him offline.
	bob.Close()
	waitFor(t, func() bool { return len(alice.sent(types.FrameUserOffline)) == 1 }, "user_offline announced")
	if f := alice.sent(types.FrameUserOffline)[0]; f.UserID != "bob" {
		t.Fatalf("user_offline for %q, want bob", f.UserID)
	}
	waitFor(t, func() bool { return h.SessionCount() == 1 }, "bob unregistered")
}

func TestPresenceCarriesUserName(t *testing.T) {
	h := newTestHub(t)
	alice := connect(t, h, "conn-a", "alice", "w1")
	alice.push(types.Frame{Type: types.FrameJoinWorkspace, WorkspaceID: "w1"})
	waitFor(t, func() bool { return h.Rooms()["workspace:w1"] == 1 }, "alice in workspace room")

	bob := connectNamed(t, h, "conn-b", "bob", "Bob Maarten", "w1")

	waitFor(t, func() bool { return len(alice.sent(types.FrameUserOnline)) == 1 }, "user_online announced")
	online := alice.sent(types.FrameUserOnline)[0]
	if online.User == nil || online.User.Name != "Bob Maarten" {
		t.Fatalf("user_online lost the display name: %+v", online.User)
	}

	// The name survives a presence change and the snapshot query.
	bob.push(types.Frame{Type: types.FrameUpdatePresence, Presence: types.PresenceAway})
	waitFor(t, func() bool { return len(alice.sent(types.FramePresenceUpdate)) == 1 }, "presence_update announced")
	if upd := alice.sent(types.FramePresenceUpdate)[0]; upd.User == nil || upd.User.Name != "Bob Maarten" {
		t.Fatalf("presence_update lost the display name: %+v", upd.User)
	}

	alice.push(types.Frame{Type: types.FrameGetOnlineUsers, WorkspaceID: "w1"})
	waitFor(t, func() bool { return len(alice.sent(types.FrameOnlineUsers)) == 1 }, "snapshot answered")
	for _, u := range alice.sent(types.FrameOnlineUsers)[0].Users {
		if u.ID == "bob" && u.Name != "Bob Maarten" {
			t.Fatalf("snapshot entry lost the display name: %+v", u)
		}
	}
}

func TestSecondConnectionDoesNotReannounce(t *testing.T) {
	h := newTestHub(t)
	alice := connect(t, h, "conn-a", "alice", "w1")
	alice.push(types.Frame{Type: types.FrameJoinWorkspace, WorkspaceID: "w1"})
	waitFor(t, func() bool { return h.Rooms()["workspace:w1"] == 1 }, "alice in workspace room")

	// Two tabs for the same user: one user_online, and no user_offline
	// until the last socket is gone.
	bobTab1 := connect(t, h, "conn-b1", "bob", "w1")
	bobTab2 := connect(t, h, "conn-b2", "bob", "w1")
	waitFor(t, func() bool { return h.SessionCount() == 3 }, "all sockets registered")

	if got := alice.sent(types.FrameUserOnline); len(got) != 1 {
		t.Fatalf("user_online announced %d times, want 1", len(got))
	}

	bobTab1.Close()
	waitFor(t, func() bool { return h.SessionCount() == 2 }, "first tab unregistered")
	if got := alice.sent(types.FrameUserOffline); len(got) != 0 {
		t.Fatalf("user_offline with a live connection remaining: %+v", got)
	}

	bobTab2.Close()
	waitFor(t, func() bool { return len(alice.sent(types.FrameUserOffline)) == 1 }, "user_offline after last tab")
}

func TestGetOnlineUsersFiltersWorkspace(t *testing.T) {
	h := newTestHub(t)
	alice := connect(t, h, "conn-a", "alice", "w1")
	connect(t, h, "conn-b", "bob", "w1")
	connect(t, h, "conn-c", "carol", "w2")
	waitFor(t, func() bool { return h.SessionCount() == 3 }, "all registered")

	alice.push(types.Frame{Type: types.FrameGetOnlineUsers, WorkspaceID: "w1"})

	waitFor(t, func() bool { return len(alice.sent(types.FrameOnlineUsers)) == 1 }, "snapshot answered")
	snap := alice.sent(types.FrameOnlineUsers)[0]
	if len(snap.Users) != 2 {
		t.Fatalf("snapshot has %d users, want 2 (w1 only): %+v", len(snap.Users), snap.Users)
	}
	for _, u := range snap.Users {
		if u.ID == "carol" {
			t.Fatal("snapshot leaked a user from another workspace")
		}
	}
}

func TestUnknownFrameAnsweredWithError(t *testing.T) {
	h := newTestHub(t)
	alice := connect(t, h, "conn-a", "alice", "w1")

	alice.push(types.Frame{Type: "make_coffee"})

	waitFor(t, func() bool { return len(alice.sent(types.FrameError)) == 1 }, "error frame returned")
}

func TestSendMessageWithoutBodyRejected(t *testing.T) {
	h := newTestHub(t)
	alice := connect(t, h, "conn-a", "alice", "w1")

	alice.push(types.Frame{Type: types.FrameSendMessage})

	waitFor(t, func() bool { return len(alice.sent(types.FrameError)) == 1 }, "error frame returned")
	if got := alice.sent(types.FrameMessageSent); len(got) != 0 {
		t.Fatalf("invalid message acknowledged: %+v", got)
	}
}
