package messaging

import (
	"context"

	"go.uber.org/zap"
)

// MirroredBus delivers events in-process and forwards each one to a remote
// publisher such as Kafka. Subscriptions stay local. Remote publish failures
// are logged; local delivery already happened and is not rolled back.
type MirroredBus struct {
	local  *MemoryBus
	remote Bus
	logger *zap.Logger
}

// NewMirroredBus wraps the local bus with a remote forwarder.
func NewMirroredBus(local *MemoryBus, remote Bus, logger *zap.Logger) *MirroredBus {
	return &MirroredBus{local: local, remote: remote, logger: logger}
}

// Subscribe registers a local handler.
func (b *MirroredBus) Subscribe(eventType EventType, handler Handler) {
	b.local.Subscribe(eventType, handler)
}

// Publish delivers locally, then forwards to the remote publisher.
func (b *MirroredBus) Publish(ctx context.Context, event Event) error {
	if err := b.local.Publish(ctx, event); err != nil {
		return err
	}
	if err := b.remote.Publish(ctx, event); err != nil {
		b.logger.Error("failed to forward event to broker",
			zap.String("event_type", string(event.Type)),
			zap.String("event_id", event.ID.String()),
			zap.Error(err))
	}
	return nil
}
