package types

// ConnectionState is the connection lifecycle state machine. Exactly one
// value is current at a time, owned by the session.
type ConnectionState int

const (
	// StateDisconnected means no connection exists and none is being attempted.
	StateDisconnected ConnectionState = iota

	// StateConnecting means the first connection attempt is in flight.
	StateConnecting

	// StateConnected means the socket is open and frames are flowing.
	StateConnected

	// StateReconnecting means the connection dropped and a retry is scheduled
	// or in flight.
	StateReconnecting

	// StateError means retries are exhausted or the handshake was rejected.
	// Only an explicit Connect call leaves this state.
	StateError
)

func (s ConnectionState) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateReconnecting:
		return "reconnecting"
	case StateError:
		return "error"
	default:
		return "unknown"
	}
}

// StateChange is emitted on every connection state transition.
type StateChange struct {
	Old ConnectionState
	New ConnectionState
	// Err carries the cause for transitions into StateReconnecting or
	// StateError, nil otherwise.
	Err error
}
