package bridge

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/salesdeck/realtime/src/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// mockBroadcastTarget records frames forwarded from the bridge.
type mockBroadcastTarget struct {
	rooms  []string
	frames []types.Frame
}

func (m *mockBroadcastTarget) BroadcastToLocal(room string, f types.Frame) {
	m.rooms = append(m.rooms, room)
	m.frames = append(m.frames, f)
}

func TestRedisEnvelopeRoundTrip(t *testing.T) {
	env := redisEnvelope{
		InstanceID: "node-1",
		Room:       "conversation:c1",
		Frame: types.Frame{
			Type: types.FrameMessage,
			Message: &types.Message{
				ID:             "m1",
				ConversationID: "c1",
				Content:        "hello",
				Direction:      types.DirectionInbound,
				Status:         types.StatusPending,
				Timestamp:      time.Now().Truncate(time.Second),
			},
		},
	}

	data, err := json.Marshal(env)
	require.NoError(t, err)

	var out redisEnvelope
	require.NoError(t, json.Unmarshal(data, &out))

	assert.Equal(t, "node-1", out.InstanceID)
	assert.Equal(t, "conversation:c1", out.Room)
	assert.Equal(t, types.FrameMessage, out.Frame.Type)
	require.NotNil(t, out.Frame.Message)
	assert.Equal(t, "m1", out.Frame.Message.ID)
	assert.Equal(t, "hello", out.Frame.Message.Content)
}

func TestHandleRedisMessageSkipsOwnInstance(t *testing.T) {
	target := &mockBroadcastTarget{}
	rb := NewRedisBridge(DefaultRedisConfig(), target, zerolog.Nop())

	own, err := json.Marshal(redisEnvelope{
		InstanceID: rb.instanceID,
		Room:       "conversation:c1",
		Frame:      types.Frame{Type: types.FrameTypingStart, UserID: "u1"},
	})
	require.NoError(t, err)
	other, err := json.Marshal(redisEnvelope{
		InstanceID: "some-other-node",
		Room:       "workspace:w1",
		Frame:      types.Frame{Type: types.FrameUserOnline, UserID: "u2"},
	})
	require.NoError(t, err)

	rb.handleRedisMessage(&redis.Message{Payload: string(own)})
	rb.handleRedisMessage(&redis.Message{Payload: string(other)})

	require.Len(t, target.frames, 1, "own events must not loop back")
	assert.Equal(t, "workspace:w1", target.rooms[0])
	assert.Equal(t, types.FrameUserOnline, target.frames[0].Type)
}

func TestHandleRedisMessageDropsGarbage(t *testing.T) {
	target := &mockBroadcastTarget{}
	rb := NewRedisBridge(DefaultRedisConfig(), target, zerolog.Nop())

	rb.handleRedisMessage(&redis.Message{Payload: "{not json"})
	assert.Empty(t, target.frames)
}

func TestDefaultRedisConfig(t *testing.T) {
	cfg := DefaultRedisConfig()
	assert.Equal(t, "localhost:6379", cfg.Addr)
	assert.Empty(t, cfg.Password)
	assert.Equal(t, 0, cfg.DB)
	assert.Equal(t, "realtime:ws:", cfg.Prefix)
}

func TestRedisConfigFromEnv(t *testing.T) {
	t.Setenv("REDIS_ADDR", "redis.example.com:6380")
	t.Setenv("REDIS_PASSWORD", "secret")
	t.Setenv("REDIS_DB", "3")
	t.Setenv("REDIS_WS_PREFIX", "test:ws:")

	cfg := RedisConfigFromEnv()
	assert.Equal(t, "redis.example.com:6380", cfg.Addr)
	assert.Equal(t, "secret", cfg.Password)
	assert.Equal(t, 3, cfg.DB)
	assert.Equal(t, "test:ws:", cfg.Prefix)
}

func TestRedisConfigFromEnvInvalidDB(t *testing.T) {
	t.Setenv("REDIS_DB", "not-a-number")

	cfg := RedisConfigFromEnv()
	assert.Equal(t, 0, cfg.DB)
}

func TestRedisBridgeAvailableFalseBeforeStart(t *testing.T) {
	rb := NewRedisBridge(DefaultRedisConfig(), &mockBroadcastTarget{}, zerolog.Nop())
	assert.False(t, rb.Available())
}

func TestRedisBridgeInstanceIDUnique(t *testing.T) {
	target := &mockBroadcastTarget{}
	b1 := NewRedisBridge(DefaultRedisConfig(), target, zerolog.Nop())
	b2 := NewRedisBridge(DefaultRedisConfig(), target, zerolog.Nop())
	assert.NotEqual(t, b1.instanceID, b2.instanceID)
}
