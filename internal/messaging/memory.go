package messaging

import (
	"context"
	"sync"

	"go.uber.org/zap"
)

// MemoryBus is the in-process Bus implementation. Handlers run synchronously
// in registration order; a failing handler is logged and does not stop the
// others or the publisher.
type MemoryBus struct {
	logger *zap.Logger

	mu       sync.RWMutex
	handlers map[EventType][]Handler
}

// NewMemoryBus creates an empty in-process bus.
func NewMemoryBus(logger *zap.Logger) *MemoryBus {
	return &MemoryBus{
		logger:   logger,
		handlers: make(map[EventType][]Handler),
	}
}

// Subscribe registers a handler for an event type.
func (b *MemoryBus) Subscribe(eventType EventType, handler Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers[eventType] = append(b.handlers[eventType], handler)
}

// Publish delivers the event to every subscriber of its type, at most once
// each.
func (b *MemoryBus) Publish(ctx context.Context, event Event) error {
	b.mu.RLock()
	handlers := b.handlers[event.Type]
	b.mu.RUnlock()

	for _, handler := range handlers {
		if err := handler(ctx, event); err != nil {
			b.logger.Error("event handler failed",
				zap.String("event_type", string(event.Type)),
				zap.String("event_id", event.ID.String()),
				zap.Error(err))
		}
	}
	return nil
}
