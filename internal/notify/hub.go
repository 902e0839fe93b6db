// Package notify fans change events out to server-sent-event subscribers.
//
// Publishers call BroadcastAfterCommit; inside a transaction the event is
// held until the commit succeeds and dropped on rollback. Delivery is
// best effort: a subscriber that cannot keep up is disconnected.
package notify

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/ignite/person-registry/internal/pkg/logger"
	"github.com/ignite/person-registry/internal/pkg/txn"
)

// DefaultBufferSize is the per-subscriber queue length.
const DefaultBufferSize = 64

// Message is one event as delivered to subscribers.
type Message struct {
	Topic string
	Data  json.RawMessage
}

// Publisher forwards locally broadcast messages to other instances.
type Publisher interface {
	Publish(msg Message)
}

// Subscription is a registered subscriber. C is closed when the subscription
// ends, either through Close or because the hub dropped it.
type Subscription struct {
	C <-chan Message

	ch  chan Message
	hub *Hub
}

// Close unregisters the subscription. It is safe to call more than once.
func (s *Subscription) Close() {
	s.hub.remove(s)
}

// Hub tracks subscribers and delivers events to them.
type Hub struct {
	mu     sync.Mutex
	subs   map[*Subscription]struct{}
	buffer int

	relay Publisher
}

// NewHub creates a hub whose subscribers buffer up to buffer messages.
func NewHub(buffer int) *Hub {
	if buffer <= 0 {
		buffer = DefaultBufferSize
	}
	return &Hub{subs: make(map[*Subscription]struct{}), buffer: buffer}
}

// SetRelay makes every local broadcast also go to p.
func (h *Hub) SetRelay(p Publisher) {
	h.mu.Lock()
	h.relay = p
	h.mu.Unlock()
}

// Subscribe registers a new subscriber.
func (h *Hub) Subscribe() *Subscription {
	ch := make(chan Message, h.buffer)
	s := &Subscription{C: ch, ch: ch, hub: h}
	h.mu.Lock()
	h.subs[s] = struct{}{}
	n := len(h.subs)
	h.mu.Unlock()
	metricsSingleton().subscribers.Set(float64(n))
	return s
}

// SubscriberCount returns the number of live subscribers.
func (h *Hub) SubscriberCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs)
}

func (h *Hub) remove(s *Subscription) {
	h.mu.Lock()
	if _, ok := h.subs[s]; ok {
		delete(h.subs, s)
		close(s.ch)
	}
	n := len(h.subs)
	h.mu.Unlock()
	metricsSingleton().subscribers.Set(float64(n))
}

// BroadcastAfterCommit broadcasts once the transaction in ctx commits, or
// right away when ctx carries no transaction.
func (h *Hub) BroadcastAfterCommit(ctx context.Context, topic string, payload interface{}) {
	txn.AfterCommit(ctx, func(context.Context) {
		h.Broadcast(topic, payload)
	})
}

// Broadcast delivers payload to every subscriber and the relay. It never
// blocks on a subscriber and never fails; marshal errors are logged.
func (h *Hub) Broadcast(topic string, payload interface{}) {
	data, err := json.Marshal(payload)
	if err != nil {
		logger.Error("notify: marshal event", "component", "notify", "topic", topic, "error", err)
		return
	}
	msg := Message{Topic: topic, Data: data}
	h.deliver(msg)

	h.mu.Lock()
	relay := h.relay
	h.mu.Unlock()
	if relay != nil {
		relay.Publish(msg)
	}
}

// deliver sends msg to local subscribers only. Subscribers with a full
// queue are removed and their channel closed.
func (h *Hub) deliver(msg Message) {
	h.mu.Lock()
	dropped := 0
	for s := range h.subs {
		select {
		case s.ch <- msg:
		default:
			delete(h.subs, s)
			close(s.ch)
			dropped++
		}
	}
	n := len(h.subs)
	h.mu.Unlock()

	m := metricsSingleton()
	m.events.WithLabelValues(msg.Topic).Inc()
	if dropped > 0 {
		m.dropped.Add(float64(dropped))
		m.subscribers.Set(float64(n))
		logger.Warn("notify: dropped slow subscribers", "component", "notify", "topic", msg.Topic, "dropped", dropped)
	}
}
