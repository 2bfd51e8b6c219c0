package handler

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/kursadbilgin/push-dispatch/internal/domain"
	"github.com/kursadbilgin/push-dispatch/internal/observability"
	"github.com/kursadbilgin/push-dispatch/internal/service"
	"github.com/kursadbilgin/push-dispatch/internal/store"
)

type DispatchService interface {
	Send(ctx context.Context, cmd service.SendCommand) (*service.DispatchResult, error)
	SendToTopic(ctx context.Context, cmd service.TopicCommand) (*service.DispatchResult, error)
	SendBatch(ctx context.Context, cmd service.BatchCommand) (*service.BatchResult, error)
	SubscribeToTopic(ctx context.Context, cmd service.SubscriptionCommand) (*service.SubscriptionResult, error)
	UnsubscribeFromTopic(ctx context.Context, cmd service.SubscriptionCommand) (*service.SubscriptionResult, error)
	Status(ctx context.Context, notificationID string) (*store.StatusRecord, error)
}

type NotificationHandler struct {
	service DispatchService
}

func NewNotificationHandler(service DispatchService) (*NotificationHandler, error) {
	if service == nil {
		return nil, fmt.Errorf("dispatch service is required")
	}
	return &NotificationHandler{service: service}, nil
}

func RegisterNotificationRoutes(router fiber.Router, service DispatchService) error {
	h, err := NewNotificationHandler(service)
	if err != nil {
		return err
	}

	v1 := router.Group("/v1")
	v1.Post("/notifications/send", h.SendNotification)
	v1.Post("/notifications/topic", h.SendTopicNotification)
	v1.Post("/notifications/batch", h.SendBatch)
	v1.Get("/notifications/:id/status", h.GetStatus)
	v1.Post("/topics/subscribe", h.SubscribeToTopic)
	v1.Post("/topics/unsubscribe", h.UnsubscribeFromTopic)

	return nil
}

type deviceTokenRequest struct {
	Token    string `json:"token"`
	Platform string `json:"platform"`
}

type sendRequest struct {
	DeviceTokens     []deviceTokenRequest `json:"device_tokens"`
	NotificationType string               `json:"notification_type"`
	Title            string               `json:"title"`
	Body             string               `json:"body"`
	Data             domain.Payload       `json:"data"`
	Priority         string               `json:"priority"`
	CollapseKey      string               `json:"collapse_key"`
	TTL              *int                 `json:"ttl"`
	ScheduledAt      *time.Time           `json:"scheduled_at"`
	ExpiresAt        *time.Time           `json:"expires_at"`
}

type topicSendRequest struct {
	Topic            string         `json:"topic"`
	NotificationType string         `json:"notification_type"`
	Title            string         `json:"title"`
	Body             string         `json:"body"`
	Data             domain.Payload `json:"data"`
	Priority         string         `json:"priority"`
	CollapseKey      string         `json:"collapse_key"`
	TTL              *int           `json:"ttl"`
	ScheduledAt      *time.Time     `json:"scheduled_at"`
	ExpiresAt        *time.Time     `json:"expires_at"`
}

type batchRequest struct {
	Notifications []sendRequest `json:"notifications"`
}

type subscriptionRequest struct {
	Topic        string   `json:"topic"`
	DeviceTokens []string `json:"device_tokens"`
}

type notificationResult struct {
	NotificationID string    `json:"notification_id"`
	Status         string    `json:"status"`
	SentCount      int       `json:"sent_count"`
	FailedCount    int       `json:"failed_count"`
	ErrorMessage   string    `json:"error_message,omitempty"`
	TargetCount    int       `json:"target_count"`
	FailedTokens   []string  `json:"failed_tokens,omitempty"`
	DeliveryTime   time.Time `json:"delivery_time"`
}

type sendResponse struct {
	Success          bool                 `json:"success"`
	NotificationID   string               `json:"notification_id"`
	Results          []notificationResult `json:"results"`
	TotalSent        int                  `json:"total_sent"`
	TotalFailed      int                  `json:"total_failed"`
	TotalTargets     int                  `json:"total_targets"`
	ProcessingTimeMS int64                `json:"processing_time_ms"`
	Message          string               `json:"message"`
}

type topicNotificationResponse struct {
	Success          bool   `json:"success"`
	NotificationID   string `json:"notification_id"`
	Topic            string `json:"topic"`
	MessageID        string `json:"message_id,omitempty"`
	ErrorMessage     string `json:"error_message,omitempty"`
	ProcessingTimeMS int64  `json:"processing_time_ms"`
	Message          string `json:"message"`
}

type batchItemResponse struct {
	Index          int    `json:"index"`
	Success        bool   `json:"success"`
	NotificationID string `json:"notification_id,omitempty"`
	Status         string `json:"status"`
	SentCount      int    `json:"sent_count"`
	FailedCount    int    `json:"failed_count"`
	ErrorMessage   string `json:"error_message,omitempty"`
}

type batchResponse struct {
	Success                 bool                `json:"success"`
	BatchID                 string              `json:"batch_id"`
	TotalNotifications      int                 `json:"total_notifications"`
	SuccessfulNotifications int                 `json:"successful_notifications"`
	FailedNotifications     int                 `json:"failed_notifications"`
	Results                 []batchItemResponse `json:"results"`
	ProcessingTimeMS        int64               `json:"processing_time_ms"`
	Message                 string              `json:"message"`
}

type subscriptionResponse struct {
	Success          bool     `json:"success"`
	Topic            string   `json:"topic"`
	Action           string   `json:"action"`
	SubscribedCount  int      `json:"subscribed_count"`
	FailedCount      int      `json:"failed_count"`
	FailedTokens     []string `json:"failed_tokens,omitempty"`
	ProcessingTimeMS int64    `json:"processing_time_ms"`
	Message          string   `json:"message"`
}

func (h *NotificationHandler) SendNotification(c *fiber.Ctx) error {
	var req sendRequest
	if err := c.BodyParser(&req); err != nil {
		return bodyParseError(err)
	}

	start := time.Now()
	result, err := h.service.Send(requestContext(c), sendCommandFromRequest(req))
	if err != nil {
		return toHTTPError(err)
	}

	return c.Status(fiber.StatusOK).JSON(toSendResponse(result, time.Since(start)))
}

func (h *NotificationHandler) SendTopicNotification(c *fiber.Ctx) error {
	var req topicSendRequest
	if err := c.BodyParser(&req); err != nil {
		return bodyParseError(err)
	}

	start := time.Now()
	result, err := h.service.SendToTopic(requestContext(c), service.TopicCommand{
		Topic:            req.Topic,
		NotificationType: req.NotificationType,
		Title:            req.Title,
		Body:             req.Body,
		Data:             req.Data,
		Priority:         req.Priority,
		CollapseKey:      req.CollapseKey,
		TTL:              req.TTL,
		ScheduledAt:      req.ScheduledAt,
		ExpiresAt:        req.ExpiresAt,
	})
	if err != nil {
		return toHTTPError(err)
	}

	message := fmt.Sprintf("Topic notification sent successfully to %s", req.Topic)
	if result.Status == service.StatusFailed {
		message = fmt.Sprintf("Topic notification to %s failed", req.Topic)
	}

	return c.Status(fiber.StatusOK).JSON(topicNotificationResponse{
		Success:          result.Status != service.StatusFailed,
		NotificationID:   result.NotificationID,
		Topic:            req.Topic,
		MessageID:        result.MessageID,
		ErrorMessage:     result.ErrorMessage,
		ProcessingTimeMS: time.Since(start).Milliseconds(),
		Message:          message,
	})
}

func (h *NotificationHandler) SendBatch(c *fiber.Ctx) error {
	var req batchRequest
	if err := c.BodyParser(&req); err != nil {
		return bodyParseError(err)
	}

	items := make([]service.SendCommand, 0, len(req.Notifications))
	for _, item := range req.Notifications {
		items = append(items, sendCommandFromRequest(item))
	}

	start := time.Now()
	result, err := h.service.SendBatch(requestContext(c), service.BatchCommand{Items: items})
	if err != nil {
		return toHTTPError(err)
	}

	results := make([]batchItemResponse, 0, len(result.Items))
	for _, item := range result.Items {
		results = append(results, batchItemResponse{
			Index:          item.Index,
			Success:        item.Status != service.StatusFailed,
			NotificationID: item.NotificationID,
			Status:         string(item.Status),
			SentCount:      item.SentCount,
			FailedCount:    item.FailedCount,
			ErrorMessage:   item.ErrorMessage,
		})
	}

	// Partials count as delivered notifications in the rollup.
	successful := result.Successful + result.Partial

	return c.Status(fiber.StatusOK).JSON(batchResponse{
		Success:                 result.Failed == 0,
		BatchID:                 result.BatchID,
		TotalNotifications:      result.Total,
		SuccessfulNotifications: successful,
		FailedNotifications:     result.Failed,
		Results:                 results,
		ProcessingTimeMS:        time.Since(start).Milliseconds(),
		Message: fmt.Sprintf(
			"Batch processing completed: %d successful, %d failed", successful, result.Failed,
		),
	})
}

func (h *NotificationHandler) GetStatus(c *fiber.Ctx) error {
	id := strings.TrimSpace(c.Params("id"))

	record, err := h.service.Status(requestContext(c), id)
	if err != nil {
		return toHTTPError(err)
	}

	return c.Status(fiber.StatusOK).JSON(record)
}

func (h *NotificationHandler) SubscribeToTopic(c *fiber.Ctx) error {
	return h.manageSubscription(c, h.service.SubscribeToTopic)
}

func (h *NotificationHandler) UnsubscribeFromTopic(c *fiber.Ctx) error {
	return h.manageSubscription(c, h.service.UnsubscribeFromTopic)
}

func (h *NotificationHandler) manageSubscription(
	c *fiber.Ctx,
	call func(ctx context.Context, cmd service.SubscriptionCommand) (*service.SubscriptionResult, error),
) error {
	var req subscriptionRequest
	if err := c.BodyParser(&req); err != nil {
		return bodyParseError(err)
	}

	start := time.Now()
	result, err := call(requestContext(c), service.SubscriptionCommand{
		Topic:  req.Topic,
		Tokens: req.DeviceTokens,
	})
	if err != nil {
		return toHTTPError(err)
	}

	success := result.ErrorMessage == ""
	message := fmt.Sprintf(
		"Successfully %sd %d tokens to topic %s", result.Action, result.SuccessCount, result.Topic,
	)
	if !success {
		message = fmt.Sprintf(
			"Failed to %s tokens to topic %s: %s", result.Action, result.Topic, result.ErrorMessage,
		)
	}

	return c.Status(fiber.StatusOK).JSON(subscriptionResponse{
		Success:          success,
		Topic:            result.Topic,
		Action:           result.Action,
		SubscribedCount:  result.SuccessCount,
		FailedCount:      result.FailureCount,
		FailedTokens:     result.FailedTokens,
		ProcessingTimeMS: time.Since(start).Milliseconds(),
		Message:          message,
	})
}

// requestContext tags the request context with the caller-supplied
// X-Request-ID so service logs can be correlated back to the request.
func requestContext(c *fiber.Ctx) context.Context {
	correlationID := strings.TrimSpace(c.Get(fiber.HeaderXRequestID))
	if correlationID == "" {
		return c.Context()
	}
	return observability.WithCorrelationID(c.Context(), correlationID)
}

func sendCommandFromRequest(req sendRequest) service.SendCommand {
	tokens := make([]service.TokenInput, 0, len(req.DeviceTokens))
	for _, token := range req.DeviceTokens {
		tokens = append(tokens, service.TokenInput{Token: token.Token, Platform: token.Platform})
	}

	return service.SendCommand{
		NotificationType: req.NotificationType,
		Title:            req.Title,
		Body:             req.Body,
		Data:             req.Data,
		Priority:         req.Priority,
		CollapseKey:      req.CollapseKey,
		TTL:              req.TTL,
		ScheduledAt:      req.ScheduledAt,
		ExpiresAt:        req.ExpiresAt,
		Tokens:           tokens,
	}
}

func toSendResponse(result *service.DispatchResult, elapsed time.Duration) sendResponse {
	var message string
	switch result.Status {
	case service.StatusSuccess:
		message = fmt.Sprintf("Notification sent successfully to %d devices", result.SentCount)
	case service.StatusPartial:
		message = fmt.Sprintf("Notification sent to %d of %d devices", result.SentCount, result.TargetCount)
	default:
		message = "Notification dispatch failed"
	}

	return sendResponse{
		Success:        result.Status != service.StatusFailed,
		NotificationID: result.NotificationID,
		Results: []notificationResult{{
			NotificationID: result.NotificationID,
			Status:         string(result.Status),
			SentCount:      result.SentCount,
			FailedCount:    result.FailedCount,
			ErrorMessage:   result.ErrorMessage,
			TargetCount:    result.TargetCount,
			FailedTokens:   result.FailedTokens,
			DeliveryTime:   result.EstimatedDelivery,
		}},
		TotalSent:        result.SentCount,
		TotalFailed:      result.FailedCount,
		TotalTargets:     result.TargetCount,
		ProcessingTimeMS: elapsed.Milliseconds(),
		Message:          message,
	}
}

func bodyParseError(err error) error {
	// Payload decoding surfaces typed validation errors (unsupported array
	// values); keep those messages.
	if errors.Is(err, domain.ErrValidation) {
		return fiber.NewError(fiber.StatusBadRequest, err.Error())
	}
	return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
}

func toHTTPError(err error) error {
	switch {
	case errors.Is(err, domain.ErrValidation):
		return fiber.NewError(fiber.StatusBadRequest, err.Error())
	case errors.Is(err, domain.ErrNotFound):
		return fiber.NewError(fiber.StatusNotFound, err.Error())
	case errors.Is(err, domain.ErrRateLimited):
		return fiber.NewError(fiber.StatusTooManyRequests, err.Error())
	default:
		return err
	}
}
