// Package dispatch fans typed session events out to independently
// subscribing consumers. Each event class keeps its own subscriber set;
// subscribing returns an unsubscribe func that removes exactly that
// subscriber. Dispatch iterates a snapshot of the set, so a callback may
// unsubscribe itself or any other callback mid-dispatch without skipping
// or breaking unrelated subscribers.
package dispatch

import (
	"sync"

	"github.com/salesdeck/realtime/src/types"
)

// subscribers is one event class's callback set. Registration order is
// preserved for dispatch.
type subscribers[T any] struct {
	mu       sync.Mutex
	nextID   int
	order    []int
	handlers map[int]func(T)
}

func (s *subscribers[T]) add(h func(T)) func() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.handlers == nil {
		s.handlers = make(map[int]func(T))
	}
	id := s.nextID
	s.nextID++
	s.handlers[id] = h
	s.order = append(s.order, id)

	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			defer s.mu.Unlock()
			delete(s.handlers, id)
			for i, v := range s.order {
				if v == id {
					s.order = append(s.order[:i], s.order[i+1:]...)
					break
				}
			}
		})
	}
}

func (s *subscribers[T]) emit(v T) {
	s.mu.Lock()
	snapshot := make([]func(T), 0, len(s.order))
	for _, id := range s.order {
		if h, ok := s.handlers[id]; ok {
			snapshot = append(snapshot, h)
		}
	}
	s.mu.Unlock()

	for _, h := range snapshot {
		h(v)
	}
}

func (s *subscribers[T]) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.handlers)
}

// Dispatcher routes session events to their subscribers. The zero value is
// ready to use.
type Dispatcher struct {
	message     subscribers[types.Message]
	typingStart subscribers[types.TypingIndicator]
	typingStop  subscribers[types.TypingIndicator]
	userOnline  subscribers[types.OnlineUser]
	userOffline subscribers[string]
	delivery    subscribers[types.DeliveryUpdate]
	state       subscribers[types.StateChange]
	errs        subscribers[error]
}

// New returns an empty dispatcher.
func New() *Dispatcher { return &Dispatcher{} }

// OnMessage subscribes to new messages. The returned func unsubscribes.
func (d *Dispatcher) OnMessage(h func(types.Message)) func() {
	return d.message.add(h)
}

// OnTypingStart subscribes to typing-start indicators.
func (d *Dispatcher) OnTypingStart(h func(types.TypingIndicator)) func() {
	return d.typingStart.add(h)
}

// OnTypingStop subscribes to typing-stop indicators, including the
// synthetic stops produced by staleness expiry.
func (d *Dispatcher) OnTypingStop(h func(types.TypingIndicator)) func() {
	return d.typingStop.add(h)
}

// OnUserOnline subscribes to presence upserts (user_online and
// presence_update frames).
func (d *Dispatcher) OnUserOnline(h func(types.OnlineUser)) func() {
	return d.userOnline.add(h)
}

// OnUserOffline subscribes to user departures. The callback receives the
// user id.
func (d *Dispatcher) OnUserOffline(h func(string)) func() {
	return d.userOffline.add(h)
}

// OnDeliveryUpdate subscribes to delivery status changes.
func (d *Dispatcher) OnDeliveryUpdate(h func(types.DeliveryUpdate)) func() {
	return d.delivery.add(h)
}

// OnStateChange subscribes to connection state transitions.
func (d *Dispatcher) OnStateChange(h func(types.StateChange)) func() {
	return d.state.add(h)
}

// OnError subscribes to non-fatal session errors (delivery failures,
// protocol errors, server error frames).
func (d *Dispatcher) OnError(h func(error)) func() {
	return d.errs.add(h)
}

// EmitMessage delivers a message event to all subscribers.
func (d *Dispatcher) EmitMessage(m types.Message) { d.message.emit(m) }

// EmitTypingStart delivers a typing-start event.
func (d *Dispatcher) EmitTypingStart(t types.TypingIndicator) { d.typingStart.emit(t) }

// EmitTypingStop delivers a typing-stop event.
func (d *Dispatcher) EmitTypingStop(t types.TypingIndicator) { d.typingStop.emit(t) }

// EmitUserOnline delivers a presence upsert event.
func (d *Dispatcher) EmitUserOnline(u types.OnlineUser) { d.userOnline.emit(u) }

// EmitUserOffline delivers a user departure event.
func (d *Dispatcher) EmitUserOffline(userID string) { d.userOffline.emit(userID) }

// EmitDeliveryUpdate delivers a delivery status change event.
func (d *Dispatcher) EmitDeliveryUpdate(u types.DeliveryUpdate) { d.delivery.emit(u) }

// EmitStateChange delivers a connection state transition event.
func (d *Dispatcher) EmitStateChange(c types.StateChange) { d.state.emit(c) }

// EmitError delivers a non-fatal error event.
func (d *Dispatcher) EmitError(err error) { d.errs.emit(err) }

// SubscriberCount reports the total number of live subscriptions across all
// event classes. Used to detect listener leaks in tests.
func (d *Dispatcher) SubscriberCount() int {
	return d.message.count() + d.typingStart.count() + d.typingStop.count() +
		d.userOnline.count() + d.userOffline.count() + d.delivery.count() +
		d.state.count() + d.errs.count()
}
