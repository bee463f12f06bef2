package providers

import (
	"testing"
	"time"

	"github.com/salesdeck/realtime/config"
	"github.com/stretchr/testify/assert"
)

func TestUpgraderUsesConfiguredBuffers(t *testing.T) {
	cfg := config.DefaultSocketConfig()
	cfg.ReadBufferSize = 4096
	cfg.WriteBufferSize = 2048

	u := newUpgrader(cfg)
	assert.Equal(t, 4096, u.ReadBufferSize)
	assert.Equal(t, 2048, u.WriteBufferSize)
}

func TestConnTimeoutsDerivedFromConfig(t *testing.T) {
	read, write := connTimeouts(config.DefaultSocketConfig())
	assert.Equal(t, 60*time.Second, read, "read deadline is two ping intervals")
	assert.Equal(t, 10*time.Second, write)

	cfg := config.DefaultSocketConfig()
	cfg.PingInterval = 5
	cfg.WriteTimeout = 2
	read, write = connTimeouts(cfg)
	assert.Equal(t, 10*time.Second, read)
	assert.Equal(t, 2*time.Second, write)
}
