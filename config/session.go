package config

import (
	"os"
	"time"
)

// SessionConfig holds client session settings: where to connect, who is
// connecting, and the timing knobs for reconnection, heartbeat, typing
// staleness, and presence queries.
type SessionConfig struct {
	// URL is the messaging endpoint, e.g. "wss://host/ws".
	URL string
	// Token is the bearer token presented on the connection handshake.
	Token string
	// UserID identifies the local user.
	UserID string
	// UserName is the local user's display name, shown on presence
	// announcements. Optional.
	UserName string
	// WorkspaceID scopes presence and workspace rooms.
	WorkspaceID string

	// DialTimeout bounds a single connection attempt.
	DialTimeout time.Duration
	// ReconnectBase is the backoff base: attempt n waits
	// min(base*2^n, ReconnectCap) plus jitter.
	ReconnectBase time.Duration
	// ReconnectCap caps the backoff delay.
	ReconnectCap time.Duration
	// MaxReconnectAttempts is the number of consecutive failures after
	// which the session gives up and enters the error state.
	MaxReconnectAttempts int
	// HeartbeatInterval is the ping cadence while connected.
	HeartbeatInterval time.Duration
	// TypingTTL is the staleness window for remote typing indicators.
	TypingTTL time.Duration
	// PresenceWait bounds GetOnlineUsers.
	PresenceWait time.Duration
}

// DefaultSessionConfig returns a session configuration with the standard
// timing defaults.
func DefaultSessionConfig() *SessionConfig {
	return &SessionConfig{
		DialTimeout:          10 * time.Second,
		ReconnectBase:        time.Second,
		ReconnectCap:         30 * time.Second,
		MaxReconnectAttempts: 5,
		HeartbeatInterval:    30 * time.Second,
		TypingTTL:            10 * time.Second,
		PresenceWait:         5 * time.Second,
	}
}

// SessionConfigFromEnv loads session configuration from environment
// variables, falling back to defaults for any missing values.
func SessionConfigFromEnv() *SessionConfig {
	cfg := DefaultSessionConfig()
	if v := os.Getenv("REALTIME_URL"); v != "" {
		cfg.URL = v
	}
	if v := os.Getenv("REALTIME_TOKEN"); v != "" {
		cfg.Token = v
	}
	if v := os.Getenv("REALTIME_USER_ID"); v != "" {
		cfg.UserID = v
	}
	if v := os.Getenv("REALTIME_USER_NAME"); v != "" {
		cfg.UserName = v
	}
	if v := os.Getenv("REALTIME_WORKSPACE_ID"); v != "" {
		cfg.WorkspaceID = v
	}
	if v := envInt("REALTIME_MAX_RECONNECT_ATTEMPTS"); v > 0 {
		cfg.MaxReconnectAttempts = v
	}
	if v := envInt("REALTIME_RECONNECT_BASE_MS"); v > 0 {
		cfg.ReconnectBase = time.Duration(v) * time.Millisecond
	}
	if v := envInt("REALTIME_RECONNECT_CAP_MS"); v > 0 {
		cfg.ReconnectCap = time.Duration(v) * time.Millisecond
	}
	if v := envInt("REALTIME_HEARTBEAT_SECONDS"); v > 0 {
		cfg.HeartbeatInterval = time.Duration(v) * time.Second
	}
	return cfg
}

// Normalize fills zero timing fields with their defaults.
func (c *SessionConfig) Normalize() {
	d := DefaultSessionConfig()
	if c.DialTimeout <= 0 {
		c.DialTimeout = d.DialTimeout
	}
	if c.ReconnectBase <= 0 {
		c.ReconnectBase = d.ReconnectBase
	}
	if c.ReconnectCap <= 0 {
		c.ReconnectCap = d.ReconnectCap
	}
	if c.MaxReconnectAttempts <= 0 {
		c.MaxReconnectAttempts = d.MaxReconnectAttempts
	}
	if c.HeartbeatInterval <= 0 {
		c.HeartbeatInterval = d.HeartbeatInterval
	}
	if c.TypingTTL <= 0 {
		c.TypingTTL = d.TypingTTL
	}
	if c.PresenceWait <= 0 {
		c.PresenceWait = d.PresenceWait
	}
}
