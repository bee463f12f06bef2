package providers

import (
	"github.com/salesdeck/realtime/src/bridge"
	"github.com/salesdeck/realtime/src/hub"
	"github.com/salesdeck/realtime/src/types"
)

// Compile-time interface assertions.
var (
	_ bridge.BroadcastTarget = (*hub.Hub)(nil)
	_ hub.EventBridge        = (*bridge.RedisBridge)(nil)
	_ types.Conn             = (*fasthttpConn)(nil)
)
