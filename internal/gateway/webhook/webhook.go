package webhook

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/google/uuid"

	"github.com/kursadbilgin/push-dispatch/internal/gateway"
)

const defaultTimeout = 10 * time.Second

type webhookRequest struct {
	Operation string            `json:"operation"`
	Token     string            `json:"token,omitempty"`
	Tokens    []string          `json:"tokens,omitempty"`
	Topic     string            `json:"topic,omitempty"`
	Title     string            `json:"title,omitempty"`
	Body      string            `json:"body,omitempty"`
	Data      map[string]string `json:"data,omitempty"`
	Priority  string            `json:"priority,omitempty"`
}

// Gateway mirrors every delivery operation to a webhook.site-compatible
// endpoint. It stands in for the real push provider in development and
// integration environments where no Firebase project is configured.
type Gateway struct {
	client   *resty.Client
	endpoint string
}

func New(endpoint string) (*Gateway, error) {
	client := resty.New()
	client.SetTimeout(defaultTimeout)
	client.SetRetryCount(0)

	return NewWithClient(endpoint, client)
}

func NewWithClient(endpoint string, client *resty.Client) (*Gateway, error) {
	trimmedEndpoint := strings.TrimSpace(endpoint)
	if trimmedEndpoint == "" {
		return nil, fmt.Errorf("webhook endpoint is required")
	}
	if _, err := url.ParseRequestURI(trimmedEndpoint); err != nil {
		return nil, fmt.Errorf("invalid webhook endpoint: %w", err)
	}
	if client == nil {
		return nil, fmt.Errorf("resty client is required")
	}

	if client.GetClient().Timeout == 0 {
		client.SetTimeout(defaultTimeout)
	}
	client.SetRetryCount(0)

	return &Gateway{
		client:   client,
		endpoint: trimmedEndpoint,
	}, nil
}

func (g *Gateway) SendToDevice(ctx context.Context, token string, msg gateway.Message) (*gateway.SendResult, error) {
	req := requestFromMessage("send_to_device", msg)
	req.Token = token
	return g.post(ctx, req)
}

// SendToMulticast posts the whole fan-out as one request. The endpoint either
// accepts everything or nothing; per-token failures do not occur here.
func (g *Gateway) SendToMulticast(ctx context.Context, tokens []string, msg gateway.Message) (*gateway.MulticastResult, error) {
	req := requestFromMessage("send_to_multicast", msg)
	req.Tokens = tokens

	if _, err := g.post(ctx, req); err != nil {
		return nil, err
	}
	return &gateway.MulticastResult{SuccessCount: len(tokens)}, nil
}

func (g *Gateway) SendToTopic(ctx context.Context, topic string, msg gateway.Message) (*gateway.SendResult, error) {
	req := requestFromMessage("send_to_topic", msg)
	req.Topic = topic
	return g.post(ctx, req)
}

func (g *Gateway) SubscribeToTopic(ctx context.Context, topic string, tokens []string) (*gateway.TopicManagementResult, error) {
	return g.manageTopic(ctx, "subscribe_to_topic", topic, tokens)
}

func (g *Gateway) UnsubscribeFromTopic(ctx context.Context, topic string, tokens []string) (*gateway.TopicManagementResult, error) {
	return g.manageTopic(ctx, "unsubscribe_from_topic", topic, tokens)
}

func (g *Gateway) manageTopic(ctx context.Context, operation, topic string, tokens []string) (*gateway.TopicManagementResult, error) {
	req := webhookRequest{
		Operation: operation,
		Topic:     topic,
		Tokens:    tokens,
	}
	if _, err := g.post(ctx, req); err != nil {
		return nil, err
	}
	return &gateway.TopicManagementResult{SuccessCount: len(tokens)}, nil
}

func (g *Gateway) post(ctx context.Context, req webhookRequest) (*gateway.SendResult, error) {
	if g == nil || g.client == nil {
		return nil, fmt.Errorf("gateway is not initialized")
	}

	response, err := g.client.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/json").
		SetBody(req).
		Post(g.endpoint)
	if err != nil {
		return nil, &gateway.Error{
			Message:   "webhook request failed",
			Transient: !errors.Is(err, context.Canceled),
			Cause:     err,
		}
	}
	if response == nil {
		return nil, &gateway.Error{
			Message:   "webhook returned empty response",
			Transient: true,
		}
	}

	statusCode := response.StatusCode()
	if statusCode >= http.StatusOK && statusCode < http.StatusMultipleChoices {
		return &gateway.SendResult{MessageID: messageID(response)}, nil
	}

	responseBody := strings.TrimSpace(response.String())
	return nil, &gateway.Error{
		StatusCode: statusCode,
		Message:    statusErrorMessage(statusCode, responseBody),
		Transient:  isTransientHTTPStatus(statusCode),
	}
}

func requestFromMessage(operation string, msg gateway.Message) webhookRequest {
	return webhookRequest{
		Operation: operation,
		Title:     msg.Title,
		Body:      msg.Body,
		Data:      msg.Data,
		Priority:  msg.Priority,
	}
}

func isTransientHTTPStatus(statusCode int) bool {
	return statusCode == http.StatusTooManyRequests || (statusCode >= http.StatusInternalServerError && statusCode <= 599)
}

func statusErrorMessage(statusCode int, body string) string {
	base := fmt.Sprintf("webhook returned status %d", statusCode)
	if body == "" {
		return base
	}
	return fmt.Sprintf("%s: %s", base, body)
}

func messageID(response *resty.Response) string {
	for _, key := range []string{"X-Request-ID", "X-Request-Id", "X-Correlation-ID", "X-Correlation-Id"} {
		if value := strings.TrimSpace(response.Header().Get(key)); value != "" {
			return value
		}
	}
	return uuid.NewString()
}
