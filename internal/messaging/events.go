// Package messaging provides the typed event bus the engine publishes
// findings on, with an in-process implementation and a Kafka-backed
// publisher so delivery can move to a broker without engine changes.
package messaging

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// EventType classifies events on the bus.
type EventType string

const (
	// EventBreachDetected is emitted for findings of high or critical severity.
	EventBreachDetected EventType = "compliance.breach.detected"
	// EventSuspiciousActivity is emitted for findings below high severity.
	EventSuspiciousActivity EventType = "compliance.suspicious_activity"

	// Compliance-class events, differentiated by the computed action.
	EventComplianceViolation EventType = "compliance.violation"
	EventComplianceWarning   EventType = "compliance.warning"
	EventComplianceDetected  EventType = "compliance.detected"
)

// Event is the envelope published on the bus.
type Event struct {
	ID          uuid.UUID              `json:"id"`
	Type        EventType              `json:"type"`
	WorkspaceID uuid.UUID              `json:"workspace_id"`
	Timestamp   time.Time              `json:"timestamp"`
	Payload     map[string]interface{} `json:"payload,omitempty"`
}

// NewEvent builds an event envelope with a fresh id and timestamp.
func NewEvent(eventType EventType, workspaceID uuid.UUID, payload map[string]interface{}) Event {
	return Event{
		ID:          uuid.New(),
		Type:        eventType,
		WorkspaceID: workspaceID,
		Timestamp:   time.Now(),
		Payload:     payload,
	}
}

// Handler consumes one event. Handler errors are logged by the bus, never
// propagated to the publisher.
type Handler func(ctx context.Context, event Event) error

// Bus is the publish/subscribe surface injected into the engine and the
// notification collaborators. Delivery is at-most-once per subscriber.
type Bus interface {
	Publish(ctx context.Context, event Event) error
	Subscribe(eventType EventType, handler Handler)
}
