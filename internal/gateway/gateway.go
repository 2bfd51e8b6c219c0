package gateway

import (
	"context"
	"time"
)

// Message is the provider-neutral wire shape of one outbound notification.
type Message struct {
	Title       string
	Body        string
	Data        map[string]string
	Priority    string
	CollapseKey string
	TTL         *time.Duration
}

// SendResult holds provider metadata for a single accepted message.
type SendResult struct {
	MessageID string
}

// TargetError describes one failed recipient within a multicast call.
type TargetError struct {
	Index  int
	Token  string
	Reason string
}

// MulticastResult aggregates the per-token outcome of a fan-out call. The
// counts always satisfy SuccessCount+FailureCount == len(tokens sent).
type MulticastResult struct {
	SuccessCount int
	FailureCount int
	Errors       []TargetError
}

// TopicManagementResult reports a subscribe/unsubscribe outcome.
type TopicManagementResult struct {
	SuccessCount int
	FailureCount int
	Errors       []TargetError
}

// Gateway is the outbound push delivery port.
type Gateway interface {
	SendToDevice(ctx context.Context, token string, msg Message) (*SendResult, error)
	SendToMulticast(ctx context.Context, tokens []string, msg Message) (*MulticastResult, error)
	SendToTopic(ctx context.Context, topic string, msg Message) (*SendResult, error)
	SubscribeToTopic(ctx context.Context, topic string, tokens []string) (*TopicManagementResult, error)
	UnsubscribeFromTopic(ctx context.Context, topic string, tokens []string) (*TopicManagementResult, error)
}
