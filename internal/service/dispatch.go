package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/kursadbilgin/push-dispatch/internal/domain"
	"github.com/kursadbilgin/push-dispatch/internal/gateway"
	"github.com/kursadbilgin/push-dispatch/internal/observability"
	"github.com/kursadbilgin/push-dispatch/internal/ratelimit"
	"github.com/kursadbilgin/push-dispatch/internal/store"
)

const (
	defaultDispatchTimeout = 30 * time.Second
	defaultStatusTTL       = time.Hour

	// FCM caps message lifetime at four weeks.
	maxTTLSeconds = 2_419_200
)

// Dispatch kinds used for rate limiting and metrics labels.
const (
	kindDevice       = "device"
	kindTopic        = "topic"
	kindSubscription = "subscription"
)

// Status is the aggregate outcome of one dispatch.
type Status string

const (
	StatusSuccess Status = "success"
	StatusPartial Status = "partial"
	StatusFailed  Status = "failed"
)

// TokenInput is one raw device token with its platform as received from the
// caller.
type TokenInput struct {
	Token    string
	Platform string
}

// SendCommand describes a direct send to one or more device tokens.
type SendCommand struct {
	NotificationType string
	Title            string
	Body             string
	Data             domain.Payload
	Priority         string
	CollapseKey      string
	TTL              *int
	ScheduledAt      *time.Time
	ExpiresAt        *time.Time
	Tokens           []TokenInput
}

// TopicCommand describes a broadcast to every subscriber of a topic.
type TopicCommand struct {
	NotificationType string
	Title            string
	Body             string
	Data             domain.Payload
	Priority         string
	CollapseKey      string
	TTL              *int
	ScheduledAt      *time.Time
	ExpiresAt        *time.Time
	Topic            string
}

// DispatchResult is the caller-visible outcome of one dispatch.
type DispatchResult struct {
	NotificationID    string
	Status            Status
	TargetCount       int
	SentCount         int
	FailedCount       int
	MessageID         string
	ErrorMessage      string
	FailedTokens      []string
	EstimatedDelivery time.Time
	Cost              domain.CostEstimate
	DispatchedAt      time.Time
}

// DispatchService orchestrates notification delivery: it validates input,
// drives the gateway, persists the short-lived status record, and publishes
// lifecycle events.
type DispatchService struct {
	gateway  gateway.Gateway
	statuses store.StatusStore
	events   store.EventPublisher
	limiter  ratelimit.RateLimiter
	logger   *zap.Logger
	metrics  *observability.Metrics

	timeout          time.Duration
	statusTTL        time.Duration
	maxTokens        int
	maxBatchSize     int
	batchConcurrency int

	now func() time.Time
}

// DispatchConfig tunes a DispatchService. Zero values fall back to safe
// defaults.
type DispatchConfig struct {
	Timeout          time.Duration
	StatusTTL        time.Duration
	MaxTokens        int
	MaxBatchSize     int
	BatchConcurrency int
}

func NewDispatchService(
	gw gateway.Gateway,
	statuses store.StatusStore,
	events store.EventPublisher,
	limiter ratelimit.RateLimiter,
	logger *zap.Logger,
	metrics *observability.Metrics,
	cfg DispatchConfig,
) (*DispatchService, error) {
	if gw == nil {
		return nil, fmt.Errorf("gateway is required")
	}
	if statuses == nil {
		return nil, fmt.Errorf("status store is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultDispatchTimeout
	}
	if cfg.StatusTTL <= 0 {
		cfg.StatusTTL = defaultStatusTTL
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = domain.DefaultMaxTokens
	}
	if cfg.MaxBatchSize <= 0 {
		cfg.MaxBatchSize = defaultMaxBatchSize
	}
	if cfg.BatchConcurrency <= 0 {
		cfg.BatchConcurrency = 1
	}

	return &DispatchService{
		gateway:          gw,
		statuses:         statuses,
		events:           events,
		limiter:          limiter,
		logger:           logger,
		metrics:          metrics,
		timeout:          cfg.Timeout,
		statusTTL:        cfg.StatusTTL,
		maxTokens:        cfg.MaxTokens,
		maxBatchSize:     cfg.MaxBatchSize,
		batchConcurrency: cfg.BatchConcurrency,
		now:              time.Now,
	}, nil
}

// Send dispatches a notification to one or more device tokens.
func (s *DispatchService) Send(ctx context.Context, cmd SendCommand) (*DispatchResult, error) {
	if ctx == nil {
		ctx = context.Background()
	}

	if err := s.allow(ctx, kindDevice); err != nil {
		return nil, err
	}

	notification, err := s.buildDeviceNotification(cmd)
	if err != nil {
		return nil, err
	}

	return s.dispatch(ctx, notification, kindDevice, "")
}

// SendToTopic dispatches a notification to every subscriber of a topic.
func (s *DispatchService) SendToTopic(ctx context.Context, cmd TopicCommand) (*DispatchResult, error) {
	if ctx == nil {
		ctx = context.Background()
	}

	if err := s.allow(ctx, kindTopic); err != nil {
		return nil, err
	}

	topic, err := domain.NewTopic(cmd.Topic)
	if err != nil {
		return nil, err
	}

	nt, spec, err := buildTypeAndSpec(
		cmd.NotificationType, cmd.Priority, cmd.Title, cmd.Body, cmd.Data,
		cmd.CollapseKey, cmd.TTL, cmd.ScheduledAt, cmd.ExpiresAt,
	)
	if err != nil {
		return nil, err
	}

	notification, err := domain.NewNotification(nt, domain.TopicTarget(topic), spec)
	if err != nil {
		return nil, err
	}

	return s.dispatch(ctx, notification, kindTopic, "")
}

// Status looks up the persisted outcome of a previous dispatch.
func (s *DispatchService) Status(ctx context.Context, notificationID string) (*store.StatusRecord, error) {
	trimmed := strings.TrimSpace(notificationID)
	if trimmed == "" {
		return nil, fmt.Errorf("%w: notification id is required", domain.ErrValidation)
	}
	return s.statuses.GetStatus(ctx, trimmed)
}

func (s *DispatchService) allow(ctx context.Context, kind string) error {
	if s.limiter == nil {
		return nil
	}

	allowed, err := s.limiter.Allow(ctx, kind)
	if err != nil {
		s.logger.Warn("rate limiter unavailable, allowing dispatch",
			zap.String("kind", kind),
			zap.Error(err),
		)
		return nil
	}
	if !allowed {
		return fmt.Errorf("%w: %s dispatch limit exceeded", domain.ErrRateLimited, kind)
	}
	return nil
}

func (s *DispatchService) buildDeviceNotification(cmd SendCommand) (*domain.Notification, error) {
	if len(cmd.Tokens) == 0 {
		return nil, fmt.Errorf("%w: at least one device token is required", domain.ErrValidation)
	}

	tokens := make([]domain.DeviceToken, 0, len(cmd.Tokens))
	for _, input := range cmd.Tokens {
		token, err := domain.NewDeviceToken(input.Token, input.Platform)
		if err != nil {
			return nil, err
		}
		tokens = append(tokens, token)
	}

	collection, err := domain.NewDeviceTokenCollection(tokens, s.maxTokens)
	if err != nil {
		return nil, err
	}

	nt, spec, err := buildTypeAndSpec(
		cmd.NotificationType, cmd.Priority, cmd.Title, cmd.Body, cmd.Data,
		cmd.CollapseKey, cmd.TTL, cmd.ScheduledAt, cmd.ExpiresAt,
	)
	if err != nil {
		return nil, err
	}

	return domain.NewNotification(nt, domain.DeviceTarget(collection), spec)
}

func buildTypeAndSpec(
	typeValue, priority, title, body string,
	data domain.Payload,
	collapseKey string,
	ttl *int,
	scheduledAt, expiresAt *time.Time,
) (domain.NotificationType, domain.MessageSpec, error) {
	var parsedPriority domain.Priority
	if strings.TrimSpace(priority) != "" {
		var err error
		parsedPriority, err = domain.ParsePriorityFromString(priority)
		if err != nil {
			return domain.NotificationType{}, domain.MessageSpec{}, err
		}
	}

	nt, err := domain.NewNotificationType(typeValue, parsedPriority)
	if err != nil {
		return domain.NotificationType{}, domain.MessageSpec{}, err
	}

	if ttl != nil && (*ttl < 0 || *ttl > maxTTLSeconds) {
		return domain.NotificationType{}, domain.MessageSpec{}, fmt.Errorf(
			"%w: ttl must be between 0 and %d seconds", domain.ErrValidation, maxTTLSeconds,
		)
	}

	spec := domain.MessageSpec{
		Title:       strings.TrimSpace(title),
		Body:        strings.TrimSpace(body),
		Data:        data,
		Priority:    parsedPriority,
		CollapseKey: strings.TrimSpace(collapseKey),
		TTL:         ttl,
		ScheduledAt: scheduledAt,
		ExpiresAt:   expiresAt,
	}

	return nt, spec, nil
}

// dispatch drives a validated notification through the gateway, aggregates
// the outcome, persists the status record, and publishes the lifecycle
// event. Persistence and publishing never change an already-determined
// delivery outcome.
func (s *DispatchService) dispatch(ctx context.Context, n *domain.Notification, kind, batchID string) (*DispatchResult, error) {
	callCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	s.metrics.IncDispatchInFlight(kind)
	defer s.metrics.DecDispatchInFlight(kind)

	start := s.now()
	result := &DispatchResult{
		NotificationID:    n.ID,
		TargetCount:       n.TargetCount(),
		EstimatedDelivery: domain.EstimateDeliveryTime(n, start),
		Cost:              domain.CalculateCost(n),
	}

	switch {
	case n.Topic != nil:
		s.sendTopic(callCtx, n, result)
	case n.DeviceTokens.Count() == 1:
		s.sendSingle(callCtx, n, result)
	default:
		s.sendMulticast(callCtx, n, result)
	}

	result.DispatchedAt = s.now().UTC()
	result.SentCount = n.SentCount
	result.FailedCount = n.FailedCount
	result.ErrorMessage = n.ErrorMessage
	result.Status = aggregateStatus(n)

	s.metrics.ObserveDispatchDuration(kind, s.now().Sub(start))
	s.metrics.ObserveDispatchTargets(kind, result.TargetCount)
	s.metrics.IncDispatch(kind, string(result.Status))

	s.persistStatus(ctx, n, result, batchID)
	s.publishEvent(ctx, n, result, kind)

	log := observability.WithContextLogger(s.logger, ctx)
	log.Info("notification dispatched",
		zap.String("notificationId", n.ID),
		zap.String("kind", kind),
		zap.String("status", string(result.Status)),
		zap.Int("sent", result.SentCount),
		zap.Int("failed", result.FailedCount),
	)

	return result, nil
}

func (s *DispatchService) sendSingle(ctx context.Context, n *domain.Notification, result *DispatchResult) {
	token := n.DeviceTokens.Values()[0]

	sendResult, err := s.gateway.SendToDevice(ctx, token, messageFromNotification(n))
	if err != nil {
		n.MarkFailed(err.Error(), 1)
		result.FailedTokens = []string{token}
		return
	}

	n.MarkSent(1)
	result.MessageID = sendResult.MessageID
}

func (s *DispatchService) sendMulticast(ctx context.Context, n *domain.Notification, result *DispatchResult) {
	tokens := n.DeviceTokens.Values()

	multicast, err := s.gateway.SendToMulticast(ctx, tokens, messageFromNotification(n))
	if err != nil {
		n.MarkFailed(err.Error(), len(tokens))
		result.FailedTokens = tokens
		return
	}

	if multicast.SuccessCount > 0 {
		n.MarkSent(multicast.SuccessCount)
	}
	if multicast.FailureCount > 0 {
		message := "all devices failed"
		if multicast.SuccessCount > 0 {
			message = "some devices failed"
		}
		n.MarkFailed(message, multicast.FailureCount)
		for _, targetErr := range multicast.Errors {
			if targetErr.Token != "" {
				result.FailedTokens = append(result.FailedTokens, targetErr.Token)
			}
		}
	}
}

func (s *DispatchService) sendTopic(ctx context.Context, n *domain.Notification, result *DispatchResult) {
	sendResult, err := s.gateway.SendToTopic(ctx, n.Topic.Name, messageFromNotification(n))
	if err != nil {
		n.MarkFailed(err.Error(), 1)
		return
	}

	n.MarkSent(1)
	result.MessageID = sendResult.MessageID
}

// aggregateStatus folds per-target counters into the dispatch outcome. A
// multicast where nothing went out is failed, not partial.
func aggregateStatus(n *domain.Notification) Status {
	switch {
	case n.FailedCount == 0 && n.SentCount > 0:
		return StatusSuccess
	case n.SentCount > 0:
		return StatusPartial
	default:
		return StatusFailed
	}
}

func (s *DispatchService) persistStatus(ctx context.Context, n *domain.Notification, result *DispatchResult, batchID string) {
	record := store.StatusRecord{
		NotificationID: n.ID,
		Status:         string(result.Status),
		Type:           n.Type.Value,
		TargetCount:    result.TargetCount,
		SentCount:      result.SentCount,
		FailedCount:    result.FailedCount,
		ErrorMessage:   result.ErrorMessage,
		MessageID:      result.MessageID,
		CreatedAt:      n.CreatedAt,
		DispatchedAt:   result.DispatchedAt,
	}
	if n.Topic != nil {
		record.Topic = n.Topic.Name
	}
	record.BatchID = batchID

	if err := s.statuses.SaveStatus(ctx, record, s.statusTTL); err != nil {
		s.logger.Error("failed to persist dispatch status",
			zap.String("notificationId", n.ID),
			zap.Error(err),
		)
	}
}

func (s *DispatchService) publishEvent(ctx context.Context, n *domain.Notification, result *DispatchResult, kind string) {
	if s.events == nil {
		return
	}

	channel := store.ChannelNotificationSent
	if kind == kindTopic {
		channel = store.ChannelTopicNotificationSent
	}

	event := map[string]any{
		"notification_id": n.ID,
		"type":            n.Type.Value,
		"status":          string(result.Status),
		"target_count":    result.TargetCount,
		"sent_count":      result.SentCount,
		"failed_count":    result.FailedCount,
		"dispatched_at":   result.DispatchedAt,
	}
	if n.Topic != nil {
		event["topic"] = n.Topic.Name
	}

	err := s.events.Publish(ctx, channel, event)
	s.metrics.IncEventPublished(channel, err == nil)
	if err != nil {
		s.logger.Warn("failed to publish dispatch event",
			zap.String("notificationId", n.ID),
			zap.String("channel", channel),
			zap.Error(err),
		)
	}
}

func messageFromNotification(n *domain.Notification) gateway.Message {
	msg := gateway.Message{
		Title:       n.Title,
		Body:        n.Body,
		Data:        n.Data.StringMap(),
		Priority:    n.Priority.String(),
		CollapseKey: n.CollapseKey,
	}
	if n.TTL != nil {
		ttl := time.Duration(*n.TTL) * time.Second
		msg.TTL = &ttl
	}
	return msg
}
