package typing

import (
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/salesdeck/realtime/src/dispatch"
	"github.com/salesdeck/realtime/src/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type wire struct {
	mu     sync.Mutex
	frames []types.Frame
}

func (w *wire) send(f types.Frame) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.frames = append(w.frames, f)
	return true
}

func (w *wire) last() (types.Frame, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if len(w.frames) == 0 {
		return types.Frame{}, false
	}
	return w.frames[len(w.frames)-1], true
}

func newTestCoordinator(ttl time.Duration) (*Coordinator, *wire, *dispatch.Dispatcher) {
	w := &wire{}
	d := dispatch.New()
	c := NewCoordinator("me", ttl, w.send, d, zerolog.Nop())
	return c, w, d
}

func TestOutboundFramesCarryLocalUser(t *testing.T) {
	c, w, _ := newTestCoordinator(time.Second)

	c.StartTyping("c1")
	f, ok := w.last()
	require.True(t, ok)
	assert.Equal(t, types.FrameTypingStart, f.Type)
	assert.Equal(t, "me", f.UserID)
	assert.Equal(t, "c1", f.ConversationID)

	c.StopTyping("c1")
	f, _ = w.last()
	assert.Equal(t, types.FrameTypingStop, f.Type)
}

func TestStartStopMembership(t *testing.T) {
	c, _, d := newTestCoordinator(time.Second)

	var starts, stops int
	d.OnTypingStart(func(types.TypingIndicator) { starts++ })
	d.OnTypingStop(func(types.TypingIndicator) { stops++ })

	c.ApplyStart(types.TypingIndicator{UserID: "u1", ConversationID: "c1"})
	c.ApplyStart(types.TypingIndicator{UserID: "u2", ConversationID: "c1"})
	assert.ElementsMatch(t, []string{"u1", "u2"}, c.TypingUsers("c1"))
	assert.Equal(t, 2, starts)

	c.ApplyStop(types.TypingIndicator{UserID: "u1", ConversationID: "c1"})
	assert.ElementsMatch(t, []string{"u2"}, c.TypingUsers("c1"))
	assert.Equal(t, 1, stops)
}

func TestRepeatStartRefreshesWithoutDuplicateEvent(t *testing.T) {
	c, _, d := newTestCoordinator(time.Second)

	var starts int
	d.OnTypingStart(func(types.TypingIndicator) { starts++ })

	c.ApplyStart(types.TypingIndicator{UserID: "u1", ConversationID: "c1"})
	c.ApplyStart(types.TypingIndicator{UserID: "u1", ConversationID: "c1"})

	assert.Equal(t, 1, starts)
	assert.Len(t, c.TypingUsers("c1"), 1)
}

func TestStopForUnknownUserIgnored(t *testing.T) {
	c, _, d := newTestCoordinator(time.Second)

	var stops int
	d.OnTypingStop(func(types.TypingIndicator) { stops++ })

	c.ApplyStop(types.TypingIndicator{UserID: "ghost", ConversationID: "c1"})
	assert.Equal(t, 0, stops)
}

func TestStaleEntryExpiresWithoutStopFrame(t *testing.T) {
	c, _, d := newTestCoordinator(60 * time.Millisecond)
	go c.Run()
	defer c.Stop()

	var mu sync.Mutex
	var expired []types.TypingIndicator
	d.OnTypingStop(func(ind types.TypingIndicator) {
		mu.Lock()
		defer mu.Unlock()
		expired = append(expired, ind)
	})

	c.ApplyStart(types.TypingIndicator{UserID: "u1", ConversationID: "c1"})

	assert.Eventually(t, func() bool {
		return len(c.TypingUsers("c1")) == 0
	}, time.Second, 10*time.Millisecond, "ghost typing indicator must expire")

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, expired, 1)
	assert.Equal(t, "u1", expired[0].UserID)
	assert.False(t, expired[0].IsTyping)
}

func TestResetClearsAllSetsSilently(t *testing.T) {
	c, _, d := newTestCoordinator(time.Second)

	var stops int
	d.OnTypingStop(func(types.TypingIndicator) { stops++ })

	c.ApplyStart(types.TypingIndicator{UserID: "u1", ConversationID: "c1"})
	c.ApplyStart(types.TypingIndicator{UserID: "u2", ConversationID: "c2"})
	c.Reset()

	assert.Empty(t, c.TypingUsers("c1"))
	assert.Empty(t, c.TypingUsers("c2"))
	assert.Equal(t, 0, stops)
}
