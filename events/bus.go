// Package events defines the event variants observable by UI surfaces and
// the broadcast bus that distributes them.
//
// Delivery is best-effort: Publish never blocks, and when a
// subscriber's buffer is full its oldest buffered event is dropped to make
// room. Nothing in the daemon may depend on every subscriber observing
// every event.
package events

import (
	"log/slog"
	"sync"
	"sync/atomic"
)

// DefaultCapacity is the per-subscriber buffer size used when the
// configured capacity is zero or negative.
const DefaultCapacity = 100

// Bus is the process-wide broadcast channel. One Bus is created at startup
// and shared by reference with every component that publishes or
// subscribes.
type Bus struct {
	logger   *slog.Logger
	capacity int

	mu     sync.RWMutex
	subs   map[*Subscriber]struct{}
	closed bool

	dropped atomic.Uint64
}

// Subscriber is one receive handle onto the Bus. It observes only events
// published after Subscribe returned, in publish order.
type Subscriber struct {
	bus  *Bus
	ch   chan Event
	once sync.Once
}

// New creates a Bus with the given per-subscriber buffer capacity.
func New(logger *slog.Logger, capacity int) *Bus {
	if logger == nil {
		logger = slog.Default()
	}
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Bus{
		logger:   logger,
		capacity: capacity,
		subs:     make(map[*Subscriber]struct{}),
	}
}

// Publish delivers event to every current subscriber. It never blocks and
// never fails; with zero subscribers it is a no-op. A subscriber that has
// fallen capacity events behind loses its oldest buffered event.
func (b *Bus) Publish(event Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		return
	}

	for sub := range b.subs {
		select {
		case sub.ch <- event:
			continue
		default:
		}

		// Buffer full: evict the oldest entry and retry once. The
		// second send can still lose the race against a concurrent
		// publisher, in which case this event is the one dropped.
		select {
		case <-sub.ch:
		default:
		}
		select {
		case sub.ch <- event:
		default:
		}
		b.dropped.Add(1)
		b.logger.Debug("event bus dropped event for slow subscriber",
			"event_type", event.Type(),
		)
	}
}

// Subscribe returns a fresh receive handle. It never errors; subscribing
// to a closed Bus yields a handle whose channel is already closed.
func (b *Bus) Subscribe() *Subscriber {
	sub := &Subscriber{
		bus: b,
		ch:  make(chan Event, b.capacity),
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		close(sub.ch)
		return sub
	}
	b.subs[sub] = struct{}{}
	return sub
}

// SubscriberCount returns the number of attached subscribers.
func (b *Bus) SubscriberCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}

// Dropped returns the total number of events discarded because a
// subscriber lagged.
func (b *Bus) Dropped() uint64 {
	return b.dropped.Load()
}

// Close detaches every subscriber and closes their channels. Publish on a
// closed Bus is a no-op.
func (b *Bus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return
	}
	b.closed = true
	for sub := range b.subs {
		close(sub.ch)
	}
	b.subs = make(map[*Subscriber]struct{})
}

// Events returns the receive channel. The channel is closed when the
// subscriber or the Bus is closed.
func (s *Subscriber) Events() <-chan Event {
	return s.ch
}

// Close detaches the subscriber from the Bus and closes its channel.
// Safe to call more than once.
func (s *Subscriber) Close() {
	s.once.Do(func() {
		s.bus.mu.Lock()
		defer s.bus.mu.Unlock()

		if _, ok := s.bus.subs[s]; ok {
			delete(s.bus.subs, s)
			close(s.ch)
		}
	})
}
