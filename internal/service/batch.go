package service

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/kursadbilgin/push-dispatch/internal/domain"
	"github.com/kursadbilgin/push-dispatch/internal/store"
)

const defaultMaxBatchSize = 100

// BatchCommand carries up to maxBatchSize independent send commands.
type BatchCommand struct {
	Items []SendCommand
}

// BatchItemResult is the outcome of one batch item, addressed by its input
// position.
type BatchItemResult struct {
	Index          int
	NotificationID string
	Status         Status
	SentCount      int
	FailedCount    int
	ErrorMessage   string
}

// BatchResult is the rollup of one batch dispatch. Items preserve input
// order.
type BatchResult struct {
	BatchID     string
	Total       int
	Successful  int
	Partial     int
	Failed      int
	SuccessRate float64
	Items       []BatchItemResult
}

// SendBatch dispatches every item independently: one malformed or failing
// item never aborts its siblings. Items run with bounded concurrency and
// results come back in input order.
func (s *DispatchService) SendBatch(ctx context.Context, cmd BatchCommand) (*BatchResult, error) {
	if ctx == nil {
		ctx = context.Background()
	}

	// One limiter token gates the whole batch; items are not re-checked.
	if err := s.allow(ctx, kindDevice); err != nil {
		return nil, err
	}

	if len(cmd.Items) == 0 {
		return nil, fmt.Errorf("%w: batch must include at least one notification", domain.ErrValidation)
	}
	if len(cmd.Items) > s.maxBatchSize {
		return nil, fmt.Errorf("%w: batch size exceeds %d", domain.ErrValidation, s.maxBatchSize)
	}

	batchID := uuid.NewString()
	s.metrics.ObserveBatchSize(len(cmd.Items))

	items := make([]BatchItemResult, len(cmd.Items))
	notifications := make([]*domain.Notification, len(cmd.Items))

	g, groupCtx := errgroup.WithContext(ctx)
	g.SetLimit(s.batchConcurrency)
	for i := range cmd.Items {
		i := i
		g.Go(func() error {
			items[i] = s.sendBatchItem(groupCtx, cmd.Items[i], i, batchID, &notifications[i])
			return nil
		})
	}
	// Item failures are captured in place, never returned.
	_ = g.Wait()

	dispatched := make([]*domain.Notification, 0, len(notifications))
	failedEarly := 0
	for _, n := range notifications {
		if n == nil {
			failedEarly++
			continue
		}
		dispatched = append(dispatched, n)
	}
	rollup := domain.RollupDispatches(dispatched, failedEarly)
	summary := domain.SummarizeBatch(dispatched)

	result := &BatchResult{
		BatchID:     batchID,
		Total:       rollup.Total,
		Successful:  rollup.Successful,
		Partial:     rollup.Partial,
		Failed:      rollup.Failed,
		SuccessRate: rollup.SuccessRate(),
		Items:       items,
	}

	s.publishBatchEvent(ctx, result)

	s.logger.Info("batch dispatched",
		zap.String("batchId", batchID),
		zap.Int("total", result.Total),
		zap.Int("successful", result.Successful),
		zap.Int("partial", result.Partial),
		zap.Int("failed", result.Failed),
		zap.Int("totalTargets", summary.TotalTargets),
	)

	return result, nil
}

func (s *DispatchService) sendBatchItem(
	ctx context.Context,
	cmd SendCommand,
	index int,
	batchID string,
	slot **domain.Notification,
) BatchItemResult {
	item := BatchItemResult{Index: index, Status: StatusFailed}

	notification, err := s.buildDeviceNotification(cmd)
	if err != nil {
		item.ErrorMessage = err.Error()
		return item
	}
	*slot = notification
	item.NotificationID = notification.ID

	dispatchResult, err := s.dispatch(ctx, notification, kindDevice, batchID)
	if err != nil {
		item.ErrorMessage = err.Error()
		return item
	}

	item.Status = dispatchResult.Status
	item.SentCount = dispatchResult.SentCount
	item.FailedCount = dispatchResult.FailedCount
	item.ErrorMessage = dispatchResult.ErrorMessage
	return item
}

func (s *DispatchService) publishBatchEvent(ctx context.Context, result *BatchResult) {
	if s.events == nil {
		return
	}

	event := map[string]any{
		"batch_id":     result.BatchID,
		"total":        result.Total,
		"successful":   result.Successful,
		"partial":      result.Partial,
		"failed":       result.Failed,
		"success_rate": result.SuccessRate,
	}

	err := s.events.Publish(ctx, store.ChannelBatchSent, event)
	s.metrics.IncEventPublished(store.ChannelBatchSent, err == nil)
	if err != nil {
		s.logger.Warn("failed to publish batch event",
			zap.String("batchId", result.BatchID),
			zap.Error(err),
		)
	}
}
