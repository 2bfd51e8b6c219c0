package store

import (
	"context"
	"time"
)

// Pub/sub channels carrying dispatch lifecycle events.
const (
	ChannelNotificationSent      = "notification.sent"
	ChannelTopicNotificationSent = "notification.topic.sent"
	ChannelBatchSent             = "notification.batch.sent"
	ChannelTopicSubscription     = "topic.subscription"
)

// StatusRecord is the persisted view of one dispatch outcome. Records are
// short-lived; readers observe them only within the status TTL.
type StatusRecord struct {
	NotificationID string    `json:"notification_id"`
	Status         string    `json:"status"`
	Type           string    `json:"type"`
	TargetCount    int       `json:"target_count"`
	SentCount      int       `json:"sent_count"`
	FailedCount    int       `json:"failed_count"`
	ErrorMessage   string    `json:"error_message,omitempty"`
	MessageID      string    `json:"message_id,omitempty"`
	Topic          string    `json:"topic,omitempty"`
	BatchID        string    `json:"batch_id,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
	DispatchedAt   time.Time `json:"dispatched_at"`
}

// StatusStore persists dispatch outcomes for later status lookups.
type StatusStore interface {
	SaveStatus(ctx context.Context, record StatusRecord, ttl time.Duration) error
	GetStatus(ctx context.Context, notificationID string) (*StatusRecord, error)
	DeleteStatus(ctx context.Context, notificationID string) error
}

// EventPublisher broadcasts dispatch lifecycle events to interested
// consumers. Publishing is best effort; a delivery outcome never depends on
// whether its event went out.
type EventPublisher interface {
	Publish(ctx context.Context, channel string, event any) error
}
