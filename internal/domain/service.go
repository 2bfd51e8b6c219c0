package domain

import (
	"fmt"
	"strings"
	"time"
)

// DefaultMaxRetries bounds transient retry attempts per dispatch.
const DefaultMaxRetries = 3

// largePayloadBytes is the serialized size above which the cost estimate
// applies a surcharge.
const largePayloadBytes = 1000

// NewNotification assembles and validates a notification from a target and a
// message spec. All validation violations are reported together in a single
// error wrapping ErrValidation.
func NewNotification(nt NotificationType, target Target, spec MessageSpec) (*Notification, error) {
	if target.IsZero() {
		return nil, fmt.Errorf("%w: must specify either device tokens or a topic", ErrTargeting)
	}

	var n *Notification
	if topic, ok := target.Topic(); ok {
		n = NewTopicNotification(nt, topic, spec)
	} else {
		devices, _ := target.Devices()
		n = NewDeviceNotification(nt, devices, spec)
	}

	if violations := n.Validate(); len(violations) > 0 {
		return nil, fmt.Errorf("%w: %s", ErrValidation, strings.Join(violations, "; "))
	}

	return n, nil
}

// ShouldRetry reports whether a failed notification is worth another dispatch
// attempt: it must be in the failed state, have fewer failed sends than
// maxRetries, and must not have passed its expiration time.
func ShouldRetry(n *Notification, maxRetries int) bool {
	if n == nil {
		return false
	}
	if n.Status != StatusFailed {
		return false
	}
	if n.FailedCount >= maxRetries {
		return false
	}
	if n.ExpiresAt != nil && !n.ExpiresAt.After(time.Now().UTC()) {
		return false
	}
	return true
}

// EstimateDeliveryTime returns when the notification is expected to go out:
// its scheduled time if set, otherwise now truncated to the second.
func EstimateDeliveryTime(n *Notification, now time.Time) time.Time {
	if n.ScheduledAt != nil {
		return *n.ScheduledAt
	}
	return now.UTC().Truncate(time.Second)
}

// CostEstimate breaks down the relative cost of one dispatch in abstract
// units.
type CostEstimate struct {
	BaseUnits      float64
	TargetUnits    float64
	TargetCount    int
	DataSize       int
	PriorityFactor float64
	Multiplier     float64
	Total          float64
}

// CalculateCost estimates dispatch cost: one base unit plus one unit per
// hundred targets, scaled for high priority, the custom type, and large
// payloads.
func CalculateCost(n *Notification) CostEstimate {
	estimate := CostEstimate{
		BaseUnits:      1,
		TargetUnits:    float64(n.TargetCount()) / 100,
		TargetCount:    n.TargetCount(),
		DataSize:       n.Data.Size(),
		PriorityFactor: 1,
	}

	if n.Priority == PriorityHigh {
		estimate.PriorityFactor = 1.5
	}

	estimate.Multiplier = estimate.PriorityFactor
	if n.Type.Value == TypeCustom {
		estimate.Multiplier *= 1.2
	}
	if estimate.DataSize > largePayloadBytes {
		estimate.Multiplier *= 1.1
	}

	estimate.Total = (estimate.BaseUnits + estimate.TargetUnits) * estimate.Multiplier
	return estimate
}

// BatchSummary is a pure aggregation over a set of notifications, independent
// of any dispatch outcome.
type BatchSummary struct {
	Total          int
	Valid          int
	Invalid        int
	ByType         map[string]int
	DeviceTargeted int
	TopicTargeted  int
	TotalTargets   int
}

// SummarizeBatch counts notifications by validity, type, and targeting, and
// sums their logical targets. Nil entries are skipped.
func SummarizeBatch(notifications []*Notification) BatchSummary {
	summary := BatchSummary{ByType: make(map[string]int)}

	for _, n := range notifications {
		if n == nil {
			continue
		}
		summary.Total++
		if n.IsValid() {
			summary.Valid++
		} else {
			summary.Invalid++
		}
		summary.ByType[n.Type.Value]++
		switch {
		case n.DeviceTokens != nil:
			summary.DeviceTargeted++
		case n.Topic != nil:
			summary.TopicTargeted++
		}
		summary.TotalTargets += n.TargetCount()
	}

	return summary
}

// DispatchRollup aggregates per-item dispatch outcomes of a batch.
type DispatchRollup struct {
	Total      int
	Successful int
	Failed     int
	Partial    int
	SentCount  int
	FailCount  int
}

// SuccessRate returns the fraction of fully successful items, in [0, 1].
func (r DispatchRollup) SuccessRate() float64 {
	if r.Total == 0 {
		return 0
	}
	return float64(r.Successful) / float64(r.Total)
}

// RollupDispatches folds dispatched notifications into a batch rollup. Items
// that failed before a notification could be built are counted via the
// failedEarly argument.
func RollupDispatches(notifications []*Notification, failedEarly int) DispatchRollup {
	rollup := DispatchRollup{
		Total:  len(notifications) + failedEarly,
		Failed: failedEarly,
	}

	for _, n := range notifications {
		if n == nil {
			rollup.Failed++
			continue
		}
		rollup.SentCount += n.SentCount
		rollup.FailCount += n.FailedCount
		switch {
		case n.Status == StatusSent:
			rollup.Successful++
		case n.Status == StatusFailed && n.SentCount > 0:
			rollup.Partial++
		default:
			rollup.Failed++
		}
	}

	return rollup
}
