package domain

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Status represents the lifecycle state of a notification.
type Status string

const (
	StatusPending Status = "pending"
	StatusSent    Status = "sent"
	StatusFailed  Status = "failed"
)

func (s Status) String() string { return string(s) }

// scheduleGrace tolerates clock skew and processing delay when validating a
// scheduled delivery time.
const scheduleGrace = 5 * time.Minute

// MessageSpec carries the content and delivery options shared by both
// notification constructors.
type MessageSpec struct {
	Title       string
	Body        string
	Data        Payload
	Priority    Priority
	CollapseKey string
	TTL         *int
	ScheduledAt *time.Time
	ExpiresAt   *time.Time
}

// Notification is the aggregate root for one logical notification: content,
// targeting, delivery options, and mutable outcome counters. An instance is
// owned by a single dispatch; it is never shared across concurrent dispatches.
type Notification struct {
	ID   string
	Type NotificationType

	Title string
	Body  string
	Data  Payload

	// Exactly one of DeviceTokens/Topic is set on a valid notification.
	DeviceTokens *DeviceTokenCollection
	Topic        *Topic

	CreatedAt   time.Time
	ScheduledAt *time.Time
	ExpiresAt   *time.Time

	Priority    Priority
	CollapseKey string
	TTL         *int

	Status       Status
	SentCount    int
	FailedCount  int
	ErrorMessage string
}

// NewDeviceNotification builds a pending notification targeting a device
// token collection. Call Validate before dispatching.
func NewDeviceNotification(nt NotificationType, tokens *DeviceTokenCollection, spec MessageSpec) *Notification {
	n := newNotification(nt, spec)
	n.DeviceTokens = tokens
	return n
}

// NewTopicNotification builds a pending notification targeting a topic.
func NewTopicNotification(nt NotificationType, topic Topic, spec MessageSpec) *Notification {
	n := newNotification(nt, spec)
	n.Topic = &topic
	return n
}

func newNotification(nt NotificationType, spec MessageSpec) *Notification {
	priority := spec.Priority
	if priority == "" {
		priority = nt.Policy().DefaultPriority
	}

	data := spec.Data
	if data == nil {
		data = Payload{}
	}

	return &Notification{
		ID:          uuid.NewString(),
		Type:        nt,
		Title:       spec.Title,
		Body:        spec.Body,
		Data:        data,
		CreatedAt:   time.Now().UTC(),
		ScheduledAt: spec.ScheduledAt,
		ExpiresAt:   spec.ExpiresAt,
		Priority:    priority,
		CollapseKey: spec.CollapseKey,
		TTL:         spec.TTL,
		Status:      StatusPending,
	}
}

// Validate returns every violated invariant, never just the first.
func (n *Notification) Validate() []string {
	return n.validateAt(time.Now().UTC())
}

func (n *Notification) validateAt(now time.Time) []string {
	var violations []string

	if n.DeviceTokens == nil && n.Topic == nil {
		violations = append(violations, "notification must target either device tokens or a topic")
	}
	if n.DeviceTokens != nil && n.Topic != nil {
		violations = append(violations, "notification cannot target both device tokens and a topic")
	}

	policy := n.Type.Policy()
	if policy.RequiresTitle && n.Title == "" {
		violations = append(violations, fmt.Sprintf("notification type %q requires a title", n.Type.Value))
	}
	if policy.RequiresBody && n.Body == "" {
		violations = append(violations, fmt.Sprintf("notification type %q requires a body", n.Type.Value))
	}
	if !policy.SupportsData && len(n.Data) > 0 {
		violations = append(violations, fmt.Sprintf("notification type %q does not support custom data", n.Type.Value))
	}

	earliestScheduled := now.Truncate(time.Minute).Add(-scheduleGrace)
	if n.ScheduledAt != nil && n.ScheduledAt.Before(earliestScheduled) {
		violations = append(violations, "scheduled time cannot be in the past")
	}
	if n.ExpiresAt != nil && n.ExpiresAt.Before(now) {
		violations = append(violations, "expiration time cannot be in the past")
	}

	return violations
}

func (n *Notification) IsValid() bool {
	return len(n.Validate()) == 0
}

// TargetCount returns the number of logical targets. A topic counts as one
// even though it fans out to an unbounded subscriber set.
func (n *Notification) TargetCount() int {
	switch {
	case n.DeviceTokens != nil:
		return n.DeviceTokens.Count()
	case n.Topic != nil:
		return 1
	default:
		return 0
	}
}

// MarkSent records count successful sends. Only a pending notification
// transitions to sent; a failed status is never overwritten.
func (n *Notification) MarkSent(count int) {
	n.SentCount += count
	if n.Status == StatusPending {
		n.Status = StatusSent
	}
}

// MarkFailed records count failed sends and forces the failed status.
func (n *Notification) MarkFailed(message string, count int) {
	n.FailedCount += count
	n.ErrorMessage = message
	n.Status = StatusFailed
}
