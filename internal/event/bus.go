package event

import (
	"errors"
	"log/slog"
	"sync"

	"github.com/google/uuid"
)

// Handler receives events published to a subscribed topic.
type Handler func(topic string, payload any)

// Wildcard subscribes a handler to every topic.
const Wildcard = "*"

// Bus errors.
var (
	// ErrNilHandler is returned when subscribing with a nil handler.
	ErrNilHandler = errors.New("event: handler is nil")

	// ErrNotSubscribed is returned when unsubscribing an unknown or
	// already-cancelled subscription.
	ErrNotSubscribed = errors.New("event: subscription not found")
)

// Subscription is the opaque reference returned by Subscribe. Holders
// pass it back to Unsubscribe to detach the handler.
type Subscription struct {
	id      string
	topic   string
	handler Handler
}

// ID returns the unique subscription identifier.
func (s *Subscription) ID() string { return s.id }

// Topic returns the subscribed topic.
func (s *Subscription) Topic() string { return s.topic }

// Bus is a synchronous topic-keyed event bus. Handlers for a topic run
// in subscription order; a panicking handler is isolated so the
// remaining handlers still run.
type Bus struct {
	mu   sync.RWMutex
	subs map[string][]*Subscription // topic -> ordered subscriptions
}

// NewBus creates an empty bus.
func NewBus() *Bus {
	return &Bus{
		subs: make(map[string][]*Subscription),
	}
}

// Subscribe attaches a handler to a topic and returns the subscription
// reference needed to detach it. The Wildcard topic receives every
// published event.
func (b *Bus) Subscribe(topic string, handler Handler) (*Subscription, error) {
	if handler == nil {
		return nil, ErrNilHandler
	}

	sub := &Subscription{
		id:      uuid.NewString(),
		topic:   topic,
		handler: handler,
	}

	b.mu.Lock()
	b.subs[topic] = append(b.subs[topic], sub)
	b.mu.Unlock()

	return sub, nil
}

// Unsubscribe detaches a subscription. Detaching twice returns
// ErrNotSubscribed.
func (b *Bus) Unsubscribe(sub *Subscription) error {
	if sub == nil {
		return ErrNotSubscribed
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	list := b.subs[sub.topic]
	for i, s := range list {
		if s.id == sub.id {
			b.subs[sub.topic] = append(list[:i], list[i+1:]...)
			if len(b.subs[sub.topic]) == 0 {
				delete(b.subs, sub.topic)
			}
			return nil
		}
	}
	return ErrNotSubscribed
}

// Publish delivers an event to the topic's subscribers and then to
// wildcard subscribers, synchronously, in subscription order.
func (b *Bus) Publish(topic string, payload any) {
	b.mu.RLock()
	handlers := make([]*Subscription, 0, len(b.subs[topic])+len(b.subs[Wildcard]))
	handlers = append(handlers, b.subs[topic]...)
	if topic != Wildcard {
		handlers = append(handlers, b.subs[Wildcard]...)
	}
	b.mu.RUnlock()

	for _, sub := range handlers {
		deliver(sub, topic, payload)
	}
}

// SubscriberCount returns the number of active subscriptions for a
// topic.
func (b *Bus) SubscriberCount(topic string) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs[topic])
}

// deliver invokes one handler, isolating panics so one bad subscriber
// cannot block delivery to the rest. The failure is logged, not lost.
func deliver(sub *Subscription, topic string, payload any) {
	defer func() {
		if r := recover(); r != nil {
			slog.Default().Warn("event handler panicked",
				"topic", topic, "subscription", sub.id, "panic", r)
		}
	}()
	sub.handler(topic, payload)
}
