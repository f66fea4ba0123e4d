package messaging

import (
	"context"
	"encoding/json"
	"time"

	"github.com/pkg/errors"
	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

// KafkaConfig contains configuration for the Kafka publisher.
type KafkaConfig struct {
	Brokers      []string      `json:"brokers"`
	Topic        string        `json:"topic"`
	WriteTimeout time.Duration `json:"write_timeout"`
	BatchTimeout time.Duration `json:"batch_timeout"`
	RequiredAcks int           `json:"required_acks"`
}

// DefaultKafkaConfig returns defaults suitable for request-path publishing.
func DefaultKafkaConfig() *KafkaConfig {
	return &KafkaConfig{
		Brokers:      []string{"localhost:9092"},
		Topic:        "compliance-events",
		WriteTimeout: 1 * time.Second,
		BatchTimeout: 10 * time.Millisecond,
		RequiredAcks: 1,
	}
}

// KafkaPublisher implements the publish side of Bus against a Kafka topic,
// keyed by workspace id so one workspace's events stay ordered. Subscribe is
// a no-op: consumers attach through their own consumer groups, not through
// this process.
type KafkaPublisher struct {
	writer *kafka.Writer
	logger *zap.Logger
}

// NewKafkaPublisher creates a publisher for the configured topic.
func NewKafkaPublisher(config *KafkaConfig, logger *zap.Logger) *KafkaPublisher {
	if config == nil {
		config = DefaultKafkaConfig()
	}
	writer := &kafka.Writer{
		Addr:         kafka.TCP(config.Brokers...),
		Topic:        config.Topic,
		Balancer:     &kafka.Hash{},
		WriteTimeout: config.WriteTimeout,
		BatchTimeout: config.BatchTimeout,
		RequiredAcks: kafka.RequiredAcks(config.RequiredAcks),
	}
	return &KafkaPublisher{writer: writer, logger: logger}
}

// Publish writes the event to the topic.
func (p *KafkaPublisher) Publish(ctx context.Context, event Event) error {
	value, err := json.Marshal(event)
	if err != nil {
		return errors.Wrap(err, "failed to encode event")
	}

	msg := kafka.Message{
		Key:   []byte(event.WorkspaceID.String()),
		Value: value,
		Headers: []kafka.Header{
			{Key: "event_type", Value: []byte(event.Type)},
		},
		Time: event.Timestamp,
	}
	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		return errors.Wrap(err, "failed to publish event")
	}

	p.logger.Debug("published event",
		zap.String("event_type", string(event.Type)),
		zap.String("event_id", event.ID.String()))
	return nil
}

// Subscribe is not supported on the Kafka publish side.
func (p *KafkaPublisher) Subscribe(EventType, Handler) {}

// Close flushes and closes the underlying writer.
func (p *KafkaPublisher) Close() error {
	return p.writer.Close()
}
