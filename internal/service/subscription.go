package service

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/kursadbilgin/push-dispatch/internal/domain"
	"github.com/kursadbilgin/push-dispatch/internal/observability"
	"github.com/kursadbilgin/push-dispatch/internal/store"
)

// SubscriptionCommand names a topic and the raw tokens to manage.
type SubscriptionCommand struct {
	Topic  string
	Tokens []string
}

// SubscriptionResult reports a subscribe/unsubscribe outcome. FailedTokens
// lists the tokens the gateway rejected.
type SubscriptionResult struct {
	Topic        string
	Action       string
	SuccessCount int
	FailureCount int
	FailedTokens []string
	ErrorMessage string
}

// SubscribeToTopic subscribes device tokens to a topic. Duplicate tokens are
// deduplicated silently; subscribing an already-subscribed token is
// idempotent at the gateway.
func (s *DispatchService) SubscribeToTopic(ctx context.Context, cmd SubscriptionCommand) (*SubscriptionResult, error) {
	return s.manageSubscription(ctx, cmd, "subscribe")
}

// UnsubscribeFromTopic removes device tokens from a topic.
func (s *DispatchService) UnsubscribeFromTopic(ctx context.Context, cmd SubscriptionCommand) (*SubscriptionResult, error) {
	return s.manageSubscription(ctx, cmd, "unsubscribe")
}

func (s *DispatchService) manageSubscription(ctx context.Context, cmd SubscriptionCommand, action string) (*SubscriptionResult, error) {
	if ctx == nil {
		ctx = context.Background()
	}

	if err := s.allow(ctx, kindSubscription); err != nil {
		return nil, err
	}

	topic, err := domain.NewTopic(cmd.Topic)
	if err != nil {
		return nil, err
	}

	tokens, err := domain.NormalizeSubscriptionTokens(cmd.Tokens)
	if err != nil {
		return nil, err
	}

	callCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	result := &SubscriptionResult{Topic: topic.Name, Action: action}

	managed, err := s.callTopicManagement(callCtx, topic.Name, tokens, action == "subscribe")
	if err != nil {
		result.FailureCount = len(tokens)
		result.ErrorMessage = err.Error()
	} else {
		result.SuccessCount = managed.successCount
		result.FailureCount = managed.failureCount
		result.FailedTokens = managed.failedTokens
	}

	s.publishSubscriptionEvent(ctx, result)

	log := observability.WithContextLogger(s.logger, ctx)
	log.Info("topic subscription processed",
		zap.String("topic", topic.Name),
		zap.String("action", action),
		zap.Int("success", result.SuccessCount),
		zap.Int("failed", result.FailureCount),
	)

	return result, nil
}

type gatewayTopicResult struct {
	successCount int
	failureCount int
	failedTokens []string
}

func (s *DispatchService) callTopicManagement(ctx context.Context, topic string, tokens []string, subscribe bool) (*gatewayTopicResult, error) {
	call := s.gateway.UnsubscribeFromTopic
	if subscribe {
		call = s.gateway.SubscribeToTopic
	}

	resp, err := call(ctx, topic, tokens)
	if err != nil {
		return nil, err
	}

	result := &gatewayTopicResult{
		successCount: resp.SuccessCount,
		failureCount: resp.FailureCount,
	}
	for _, targetErr := range resp.Errors {
		if targetErr.Token != "" {
			result.failedTokens = append(result.failedTokens, targetErr.Token)
		}
	}

	return result, nil
}

func (s *DispatchService) publishSubscriptionEvent(ctx context.Context, result *SubscriptionResult) {
	if s.events == nil {
		return
	}

	event := map[string]any{
		"topic":         result.Topic,
		"action":        result.Action,
		"success_count": result.SuccessCount,
		"failure_count": result.FailureCount,
		"processed_at":  s.now().UTC().Format(time.RFC3339),
	}

	err := s.events.Publish(ctx, store.ChannelTopicSubscription, event)
	s.metrics.IncEventPublished(store.ChannelTopicSubscription, err == nil)
	if err != nil {
		s.logger.Warn("failed to publish subscription event",
			zap.String("topic", result.Topic),
			zap.String("action", result.Action),
			zap.Error(err),
		)
	}
}
