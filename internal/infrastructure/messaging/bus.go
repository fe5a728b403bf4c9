// Package messaging provides the internal domain event bus and its
// websocket delivery subscriber. The engine publishes; how events reach
// clients is entirely a subscriber concern.
package messaging

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/PlanPulseHQ/planpulse-go/internal/domain/events"
	"github.com/PlanPulseHQ/planpulse-go/internal/infrastructure/observability/logging"
	"github.com/PlanPulseHQ/planpulse-go/internal/infrastructure/security"
)

// Bus fans domain events out to subscribers. Publish never blocks: a
// subscriber that cannot keep up loses events, logged and counted, rather
// than stalling the request path.
type Bus struct {
	mu          sync.RWMutex
	subscribers []chan events.DomainEvent
	logger      *logging.ChanneledLogger
	dropped     atomic.Int64
}

// NewBus creates an event bus.
func NewBus(logger *logging.ChanneledLogger) *Bus {
	return &Bus{logger: logger}
}

// Subscribe registers a new subscriber and returns its channel.
func (b *Bus) Subscribe(buffer int) chan events.DomainEvent {
	if buffer <= 0 {
		buffer = 64
	}
	ch := make(chan events.DomainEvent, buffer)

	b.mu.Lock()
	b.subscribers = append(b.subscribers, ch)
	b.mu.Unlock()

	b.logger.Events().Debug("Bus subscriber registered", "buffer", buffer)
	return ch
}

// Unsubscribe removes a subscriber and closes its channel.
func (b *Bus) Unsubscribe(ch chan events.DomainEvent) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for i, sub := range b.subscribers {
		if sub == ch {
			b.subscribers = append(b.subscribers[:i], b.subscribers[i+1:]...)
			close(ch)
			return
		}
	}
}

// Publish stamps and delivers an event to every subscriber, dropping on
// full buffers.
func (b *Bus) Publish(ev events.DomainEvent) {
	if ev.ID == "" {
		ev.ID = security.GenerateULID()
	}
	if ev.OccurredAt.IsZero() {
		ev.OccurredAt = time.Now().UTC()
	}

	b.mu.RLock()
	defer b.mu.RUnlock()

	for _, sub := range b.subscribers {
		select {
		case sub <- ev:
		default:
			b.dropped.Add(1)
			b.logger.Events().Warn("Subscriber buffer full, event dropped",
				"type", ev.Type,
				"tenantId", ev.TenantID)
		}
	}

	b.logger.Events().Debug("Domain event published",
		"type", ev.Type,
		"tenantId", ev.TenantID,
		"subscribers", len(b.subscribers))
}
