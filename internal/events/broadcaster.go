package events

import (
	"sync"
	"time"

	"github.com/neo/battlearena/internal/logging"
	"github.com/neo/battlearena/internal/metrics"
	"github.com/neo/battlearena/internal/types"
)

// DefaultBuffer is the per-subscriber queue length used when Subscribe is
// given a non-positive size
const DefaultBuffer = 16

// Event is the envelope pushed to every subscriber
type Event struct {
	Type      types.EventType `json:"type"`
	Timestamp time.Time       `json:"timestamp"`
	Data      interface{}     `json:"data"`
}

// Publisher is what the orchestrator needs from the broadcaster
type Publisher interface {
	Publish(eventType types.EventType, data interface{})
}

// Broadcaster fans events out to live subscribers. Delivery is best effort:
// nothing is persisted or replayed, and a subscriber that cannot keep up is
// dropped.
type Broadcaster struct {
	mu     sync.RWMutex
	subs   map[uint64]*Subscription
	nextID uint64
	closed bool
	now    func() time.Time
}

// NewBroadcaster creates an empty broadcaster
func NewBroadcaster() *Broadcaster {
	return &Broadcaster{
		subs: make(map[uint64]*Subscription),
		now:  time.Now,
	}
}

// Subscription is a registered listener. Read from Events until it is
// closed, then stop.
type Subscription struct {
	id     uint64
	ch     chan Event
	parent *Broadcaster
	once   sync.Once
}

// Events returns the delivery channel. It is closed on Unsubscribe, when the
// subscriber is dropped, or when the broadcaster closes.
func (s *Subscription) Events() <-chan Event {
	return s.ch
}

// Unsubscribe removes the subscription. Safe to call more than once.
func (s *Subscription) Unsubscribe() {
	s.parent.remove(s.id)
}

// Subscribe registers a new listener with the given buffer size
func (b *Broadcaster) Subscribe(buffer int) *Subscription {
	if buffer <= 0 {
		buffer = DefaultBuffer
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	b.nextID++
	sub := &Subscription{
		id:     b.nextID,
		ch:     make(chan Event, buffer),
		parent: b,
	}
	if b.closed {
		sub.close()
		return sub
	}
	b.subs[sub.id] = sub
	metrics.EventSubscribers.Set(float64(len(b.subs)))
	return sub
}

// Publish sends an event to every subscriber without blocking
func (b *Broadcaster) Publish(eventType types.EventType, data interface{}) {
	event := Event{Type: eventType, Timestamp: b.now().UTC(), Data: data}

	var dropped []uint64
	b.mu.RLock()
	for id, sub := range b.subs {
		select {
		case sub.ch <- event:
		default:
			dropped = append(dropped, id)
		}
	}
	delivered := len(b.subs) - len(dropped)
	b.mu.RUnlock()

	for _, id := range dropped {
		metrics.EventsDropped.Inc()
		b.remove(id)
	}

	logging.LogBroadcastEvent(string(eventType), map[string]interface{}{
		"delivered": delivered,
		"dropped":   len(dropped),
	})
}

// SubscriberCount returns the number of live subscribers
func (b *Broadcaster) SubscriberCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}

// Close drops every subscriber; later subscriptions are closed immediately
func (b *Broadcaster) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.closed = true
	for id, sub := range b.subs {
		sub.close()
		delete(b.subs, id)
	}
	metrics.EventSubscribers.Set(0)
}

func (b *Broadcaster) remove(id uint64) {
	b.mu.Lock()
	defer b.mu.Unlock()

	sub, ok := b.subs[id]
	if !ok {
		return
	}
	delete(b.subs, id)
	sub.close()
	metrics.EventSubscribers.Set(float64(len(b.subs)))
}

func (s *Subscription) close() {
	s.once.Do(func() { close(s.ch) })
}

var _ Publisher = (*Broadcaster)(nil)
