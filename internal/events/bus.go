package events

import (
	"log/slog"
	"sync"

	"github.com/fjod/fresh_grocery/internal/domain"
)

// Publisher is what services need to announce domain events.
type Publisher interface {
	Publish(e domain.Event)
}

// Bus fans domain events out to in-process subscribers.
// Publish never blocks; a subscriber with a full buffer misses the event.
type Bus struct {
	mu     sync.RWMutex
	subs   map[int]*Subscription
	nextID int
	logger *slog.Logger
}

func NewBus(logger *slog.Logger) *Bus {
	if logger == nil {
		logger = slog.Default()
	}
	return &Bus{
		subs:   make(map[int]*Subscription),
		logger: logger,
	}
}

type Subscription struct {
	C <-chan domain.Event

	ch     chan domain.Event
	id     int
	bus    *Bus
	closed bool
}

func (b *Bus) Subscribe(buffer int) *Subscription {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.nextID++
	ch := make(chan domain.Event, buffer)
	s := &Subscription{C: ch, ch: ch, id: b.nextID, bus: b}
	b.subs[s.id] = s
	return s
}

// Close detaches the subscription and closes its channel. Safe to call twice.
func (s *Subscription) Close() {
	s.bus.mu.Lock()
	defer s.bus.mu.Unlock()

	if s.closed {
		return
	}
	s.closed = true
	delete(s.bus.subs, s.id)
	close(s.ch)
}

func (b *Bus) Publish(e domain.Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	for _, s := range b.subs {
		select {
		case s.ch <- e:
		default:
			b.logger.Warn("event dropped for slow subscriber", "subscriber", s.id, "type", e.Type)
		}
	}
}

func (b *Bus) Subscribers() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}
