package redundancy

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/voxalabs/storage-redundancy-engine/interfaces"
)

// EventType identifies what changed.
type EventType string

const (
	// EventHealthChanged fires when a provider's connection status moves.
	EventHealthChanged EventType = "health-changed"

	// EventStatisticsChanged fires after operations that alter the file or
	// replica population.
	EventStatisticsChanged EventType = "statistics-changed"

	// EventPrimaryChanged fires when the primary provider is reassigned.
	EventPrimaryChanged EventType = "primary-changed"

	// EventRedundancyChanged fires when the redundancy level is changed.
	EventRedundancyChanged EventType = "redundancy-changed"
)

// Event is one state change notification.
type Event struct {
	Type     EventType             `json:"type"`
	Provider interfaces.ProviderID `json:"provider,omitempty"`
	Filename string                `json:"filename,omitempty"`
	Detail   string                `json:"detail,omitempty"`
	Time     time.Time             `json:"time"`
}

const subscriberBuffer = 16

// Bus fans state change events out to subscribers. Publishing never blocks:
// a subscriber that stops draining loses events instead of stalling storage
// operations.
type Bus struct {
	log *slog.Logger

	mu     sync.Mutex
	nextID int
	subs   map[int]chan Event
}

// NewBus creates an event bus.
func NewBus(log *slog.Logger) *Bus {
	return &Bus{
		log:  log,
		subs: make(map[int]chan Event),
	}
}

// Subscribe registers a subscriber whose channel is closed when ctx ends.
func (b *Bus) Subscribe(ctx context.Context) <-chan Event {
	ch := make(chan Event, subscriberBuffer)

	b.mu.Lock()
	id := b.nextID
	b.nextID++
	b.subs[id] = ch
	b.mu.Unlock()

	go func() {
		<-ctx.Done()
		b.mu.Lock()
		delete(b.subs, id)
		b.mu.Unlock()
		close(ch)
	}()

	return ch
}

// Publish delivers an event to every subscriber that has buffer room.
func (b *Bus) Publish(evt Event) {
	if evt.Time.IsZero() {
		evt.Time = time.Now().UTC()
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	for id, ch := range b.subs {
		select {
		case ch <- evt:
		default:
			b.log.Debug("Dropped event for slow subscriber",
				slog.Int("subscriber", id),
				slog.String("type", string(evt.Type)))
		}
	}
}

// SubscriberCount reports how many subscribers are attached.
func (b *Bus) SubscriberCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs)
}
