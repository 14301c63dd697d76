package messaging

import (
	"context"
	"time"
)

// Broker defines the interface for message brokers
type Broker interface {
	Publish(ctx context.Context, channel string, message interface{}) error
	Subscribe(ctx context.Context, channel string) (<-chan []byte, error)
	Close() error
}

// Publisher defines the interface for publishing messages
type Publisher interface {
	Publish(ctx context.Context, eventType string, payload interface{}) error
}

// Event types emitted by the scheduling service.
const (
	EventNotificationScheduled = "notification.scheduled"
	EventNotificationCancelled = "notification.cancelled"
	EventNotificationsCleared  = "notification.cleared"
	EventAuthorizationChanged  = "authorization.changed"
)

type Message struct {
	Type       string      `json:"type"`
	Payload    interface{} `json:"payload"`
	OccurredAt time.Time   `json:"occurred_at"`
}
