package types

import (
	"errors"
	"fmt"
)

// ErrNotConnected is returned when an operation needs a live connection and
// the session does not have one.
var ErrNotConnected = errors.New("not connected")

// TransportError is a socket-level failure. The session recovers from it
// with a bounded reconnect loop.
type TransportError struct {
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("transport: %v", e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// AuthError is a rejected connection handshake. It is fatal: the session
// moves to the error state and does not retry on its own.
type AuthError struct {
	Reason string
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("auth rejected: %s", e.Reason)
}

// DeliveryError reports that one specific message failed server-side. It
// never affects connection state.
type DeliveryError struct {
	MessageID string
	Reason    string
}

func (e *DeliveryError) Error() string {
	return fmt.Sprintf("message %s failed: %s", e.MessageID, e.Reason)
}

// TimeoutError means a request/response operation exceeded its wait bound.
type TimeoutError struct {
	Op string
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("%s: timed out", e.Op)
}

// ProtocolError is a malformed or unexpected inbound frame. It is logged
// and dropped; it must never take the session down.
type ProtocolError struct {
	FrameType FrameType
	Detail    string
}

func (e *ProtocolError) Error() string {
	if e.Detail == "" {
		return fmt.Sprintf("protocol: unexpected frame %q", e.FrameType)
	}
	return fmt.Sprintf("protocol: frame %q: %s", e.FrameType, e.Detail)
}
