package fcm

import (
	"context"
	"fmt"

	firebase "firebase.google.com/go/v4"
	"firebase.google.com/go/v4/messaging"
	"google.golang.org/api/option"

	"github.com/kursadbilgin/push-dispatch/internal/gateway"
)

// messagingClient is the subset of the Firebase messaging API the gateway
// uses. The concrete *messaging.Client satisfies it; tests substitute a fake.
type messagingClient interface {
	Send(ctx context.Context, msg *messaging.Message) (string, error)
	SendEachForMulticast(ctx context.Context, msg *messaging.MulticastMessage) (*messaging.BatchResponse, error)
	SubscribeToTopic(ctx context.Context, tokens []string, topic string) (*messaging.TopicManagementResponse, error)
	UnsubscribeFromTopic(ctx context.Context, tokens []string, topic string) (*messaging.TopicManagementResponse, error)
}

// Gateway delivers notifications through Firebase Cloud Messaging.
type Gateway struct {
	client messagingClient
}

// New initializes the Firebase app from service account credentials and
// returns an FCM-backed gateway.
func New(ctx context.Context, projectID string, credentialsJSON []byte) (*Gateway, error) {
	config := &firebase.Config{ProjectID: projectID}

	var opts []option.ClientOption
	if len(credentialsJSON) > 0 {
		opts = append(opts, option.WithCredentialsJSON(credentialsJSON))
	}

	app, err := firebase.NewApp(ctx, config, opts...)
	if err != nil {
		return nil, fmt.Errorf("initialize firebase app: %w", err)
	}

	client, err := app.Messaging(ctx)
	if err != nil {
		return nil, fmt.Errorf("initialize messaging client: %w", err)
	}

	return &Gateway{client: client}, nil
}

func newWithClient(client messagingClient) *Gateway {
	return &Gateway{client: client}
}

func (g *Gateway) SendToDevice(ctx context.Context, token string, msg gateway.Message) (*gateway.SendResult, error) {
	fcmMsg := buildMessage(msg)
	fcmMsg.Token = token

	messageID, err := g.client.Send(ctx, fcmMsg)
	if err != nil {
		return nil, classify(err)
	}

	return &gateway.SendResult{MessageID: messageID}, nil
}

func (g *Gateway) SendToMulticast(ctx context.Context, tokens []string, msg gateway.Message) (*gateway.MulticastResult, error) {
	multicast := &messaging.MulticastMessage{
		Tokens:       tokens,
		Data:         msg.Data,
		Notification: buildNotification(msg),
		Android:      buildAndroidConfig(msg),
		APNS:         buildAPNSConfig(msg),
	}

	batch, err := g.client.SendEachForMulticast(ctx, multicast)
	if err != nil {
		return nil, classify(err)
	}

	result := &gateway.MulticastResult{
		SuccessCount: batch.SuccessCount,
		FailureCount: batch.FailureCount,
	}
	for idx, resp := range batch.Responses {
		if resp.Success {
			continue
		}
		targetErr := gateway.TargetError{Index: idx, Reason: "send failed"}
		if idx < len(tokens) {
			targetErr.Token = tokens[idx]
		}
		if resp.Error != nil {
			targetErr.Reason = resp.Error.Error()
		}
		result.Errors = append(result.Errors, targetErr)
	}

	return result, nil
}

func (g *Gateway) SendToTopic(ctx context.Context, topic string, msg gateway.Message) (*gateway.SendResult, error) {
	fcmMsg := buildMessage(msg)
	fcmMsg.Topic = topic

	messageID, err := g.client.Send(ctx, fcmMsg)
	if err != nil {
		return nil, classify(err)
	}

	return &gateway.SendResult{MessageID: messageID}, nil
}

func (g *Gateway) SubscribeToTopic(ctx context.Context, topic string, tokens []string) (*gateway.TopicManagementResult, error) {
	resp, err := g.client.SubscribeToTopic(ctx, tokens, topic)
	if err != nil {
		return nil, classify(err)
	}
	return topicManagementResult(resp, tokens), nil
}

func (g *Gateway) UnsubscribeFromTopic(ctx context.Context, topic string, tokens []string) (*gateway.TopicManagementResult, error) {
	resp, err := g.client.UnsubscribeFromTopic(ctx, tokens, topic)
	if err != nil {
		return nil, classify(err)
	}
	return topicManagementResult(resp, tokens), nil
}

func topicManagementResult(resp *messaging.TopicManagementResponse, tokens []string) *gateway.TopicManagementResult {
	result := &gateway.TopicManagementResult{
		SuccessCount: resp.SuccessCount,
		FailureCount: resp.FailureCount,
	}
	for _, errInfo := range resp.Errors {
		targetErr := gateway.TargetError{Index: errInfo.Index, Reason: errInfo.Reason}
		if errInfo.Index >= 0 && errInfo.Index < len(tokens) {
			targetErr.Token = tokens[errInfo.Index]
		}
		result.Errors = append(result.Errors, targetErr)
	}
	return result
}

func buildMessage(msg gateway.Message) *messaging.Message {
	return &messaging.Message{
		Data:         msg.Data,
		Notification: buildNotification(msg),
		Android:      buildAndroidConfig(msg),
		APNS:         buildAPNSConfig(msg),
	}
}

func buildNotification(msg gateway.Message) *messaging.Notification {
	if msg.Title == "" && msg.Body == "" {
		return nil
	}
	return &messaging.Notification{
		Title: msg.Title,
		Body:  msg.Body,
	}
}

func buildAndroidConfig(msg gateway.Message) *messaging.AndroidConfig {
	config := &messaging.AndroidConfig{
		CollapseKey: msg.CollapseKey,
		TTL:         msg.TTL,
	}
	// FCM only accepts "high" or "normal" on the Android transport.
	if msg.Priority == "high" {
		config.Priority = "high"
	} else if msg.Priority != "" {
		config.Priority = "normal"
	}
	return config
}

func buildAPNSConfig(msg gateway.Message) *messaging.APNSConfig {
	if msg.Priority == "" {
		return nil
	}
	apnsPriority := "5"
	if msg.Priority == "high" {
		apnsPriority = "10"
	}
	return &messaging.APNSConfig{
		Headers: map[string]string{"apns-priority": apnsPriority},
	}
}

func classify(err error) error {
	if err == nil {
		return nil
	}
	if messaging.IsInvalidArgument(err) || messaging.IsRegistrationTokenNotRegistered(err) {
		return &gateway.Error{Message: "fcm rejected message", Transient: false, Cause: err}
	}
	if messaging.IsUnavailable(err) || messaging.IsInternal(err) || messaging.IsQuotaExceeded(err) {
		return &gateway.Error{Message: "fcm transport failed", Transient: true, Cause: err}
	}
	return &gateway.Error{Message: "fcm send failed", Transient: true, Cause: err}
}
