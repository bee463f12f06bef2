package config

import (
	"os"
	"strconv"
)

// SocketConfig holds WebSocket server configuration.
type SocketConfig struct {
	MaxConnections  int `json:"max_connections"`
	PingInterval    int `json:"ping_interval_seconds"`
	WriteTimeout    int `json:"write_timeout_seconds"`
	ReadBufferSize  int `json:"read_buffer_size"`
	WriteBufferSize int `json:"write_buffer_size"`
}

// DefaultSocketConfig returns the default WebSocket server configuration.
func DefaultSocketConfig() *SocketConfig {
	return &SocketConfig{
		MaxConnections:  1000,
		PingInterval:    30,
		WriteTimeout:    10,
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
	}
}

// SocketConfigFromEnv loads server configuration from environment
// variables, falling back to defaults for missing values.
func SocketConfigFromEnv() *SocketConfig {
	cfg := DefaultSocketConfig()
	if v := envInt("REALTIME_MAX_CONNECTIONS"); v > 0 {
		cfg.MaxConnections = v
	}
	if v := envInt("REALTIME_PING_INTERVAL"); v > 0 {
		cfg.PingInterval = v
	}
	if v := envInt("REALTIME_WRITE_TIMEOUT"); v > 0 {
		cfg.WriteTimeout = v
	}
	return cfg
}

func envInt(key string) int {
	s := os.Getenv(key)
	if s == "" {
		return 0
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0
	}
	return n
}
