package types

// DeliveryStatus is the per-message delivery state. Transitions are
// monotonic in the order pending < sent < delivered < read; failed is
// reachable from any non-terminal state and is itself terminal. Frames may
// arrive out of order across a reconnect, so regressions are ignored rather
// than applied.
type DeliveryStatus string

const (
	StatusPending   DeliveryStatus = "pending"
	StatusSent      DeliveryStatus = "sent"
	StatusDelivered DeliveryStatus = "delivered"
	StatusRead      DeliveryStatus = "read"
	StatusFailed    DeliveryStatus = "failed"
)

// rank orders the forward progression. failed and unknown values have no
// rank; they are handled explicitly in CanAdvance.
func (s DeliveryStatus) rank() int {
	switch s {
	case StatusPending:
		return 0
	case StatusSent:
		return 1
	case StatusDelivered:
		return 2
	case StatusRead:
		return 3
	default:
		return -1
	}
}

// Valid reports whether s is one of the known delivery states.
func (s DeliveryStatus) Valid() bool {
	return s == StatusFailed || s.rank() >= 0
}

// Terminal reports whether no further transition is allowed from s.
func (s DeliveryStatus) Terminal() bool {
	return s == StatusRead || s == StatusFailed
}

// CanAdvance reports whether a transition from s to next is a legal forward
// move. Equal or backwards transitions return false.
func (s DeliveryStatus) CanAdvance(next DeliveryStatus) bool {
	if s.Terminal() || !next.Valid() {
		return false
	}
	if next == StatusFailed {
		return true
	}
	return next.rank() > s.rank()
}
