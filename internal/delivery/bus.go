package delivery

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"github.com/oshokin/alarm-klaxon/internal/domain/alarm"
	"github.com/oshokin/alarm-klaxon/internal/logger"
)

// DefaultSubscriberBuffer is the channel capacity of a Bus subscriber.
const DefaultSubscriberBuffer = 256

// Bus fans outbound messages out to subscribers. A subscriber that falls
// behind is disconnected: its channel is closed after the messages it already
// holds, so it never sees a stream with gaps. Publishing never blocks.
type Bus struct {
	mu          sync.RWMutex
	subscribers map[string]chan alarm.Outbound
}

// NewBus creates an empty bus.
func NewBus() *Bus {
	return &Bus{
		subscribers: make(map[string]chan alarm.Outbound),
	}
}

// Publish implements Publisher.
func (b *Bus) Publish(ctx context.Context, msg alarm.Outbound) {
	logger.DebugKV(ctx, "Outbound message",
		"kind", msg.Kind.String(),
		"alarm_id", msg.AlarmID,
	)

	var lagging []string

	b.mu.RLock()

	for id, ch := range b.subscribers {
		select {
		case ch <- msg:
		default:
			lagging = append(lagging, id)
		}
	}

	b.mu.RUnlock()

	for _, id := range lagging {
		if b.remove(id) {
			logger.WarnKV(ctx, "Subscriber is too slow, disconnecting",
				"subscriber", id,
				"kind", msg.Kind.String(),
			)
		}
	}
}

// Subscribe registers a subscriber. The returned function unsubscribes and
// closes the channel. The channel is also closed when the subscriber falls behind.
func (b *Bus) Subscribe(buffer int) (<-chan alarm.Outbound, func()) {
	if buffer <= 0 {
		buffer = DefaultSubscriberBuffer
	}

	id := uuid.NewString()
	ch := make(chan alarm.Outbound, buffer)

	b.mu.Lock()
	b.subscribers[id] = ch
	b.mu.Unlock()

	return ch, func() {
		b.remove(id)
	}
}

// Subscribers returns the number of active subscribers.
func (b *Bus) Subscribers() int {
	b.mu.RLock()
	defer b.mu.RUnlock()

	return len(b.subscribers)
}

// remove unregisters id and closes its channel. It reports whether id was registered.
func (b *Bus) remove(id string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	ch, ok := b.subscribers[id]
	if !ok {
		return false
	}

	delete(b.subscribers, id)
	close(ch)

	return true
}
