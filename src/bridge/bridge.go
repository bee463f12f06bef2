package bridge

import "github.com/salesdeck/realtime/src/types"

// Bridge defines the interface for cross-instance event broadcasting.
// Implementations relay room frames between multiple server instances so a
// workspace's presence and message fan-out spans the whole fleet.
type Bridge interface {
	// Publish sends a room frame to all other instances via the bridge.
	Publish(room string, f types.Frame) error

	// Start begins listening for events from other instances.
	Start() error

	// Stop shuts down the bridge connection.
	Stop() error

	// Available reports whether the bridge is connected and operational.
	Available() bool
}

// BroadcastTarget is implemented by the Hub to receive events from the
// bridge.
type BroadcastTarget interface {
	BroadcastToLocal(room string, f types.Frame)
}
