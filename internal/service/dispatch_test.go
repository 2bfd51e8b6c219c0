package service

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/kursadbilgin/push-dispatch/internal/domain"
	"github.com/kursadbilgin/push-dispatch/internal/gateway"
	"github.com/kursadbilgin/push-dispatch/internal/store"
)

type fakeGateway struct {
	sendToDeviceFn    func(ctx context.Context, token string, msg gateway.Message) (*gateway.SendResult, error)
	sendToMulticastFn func(ctx context.Context, tokens []string, msg gateway.Message) (*gateway.MulticastResult, error)
	sendToTopicFn     func(ctx context.Context, topic string, msg gateway.Message) (*gateway.SendResult, error)
	subscribeFn       func(ctx context.Context, topic string, tokens []string) (*gateway.TopicManagementResult, error)
	unsubscribeFn     func(ctx context.Context, topic string, tokens []string) (*gateway.TopicManagementResult, error)
}

func (f *fakeGateway) SendToDevice(ctx context.Context, token string, msg gateway.Message) (*gateway.SendResult, error) {
	if f.sendToDeviceFn == nil {
		return &gateway.SendResult{MessageID: "msg-1"}, nil
	}
	return f.sendToDeviceFn(ctx, token, msg)
}

func (f *fakeGateway) SendToMulticast(ctx context.Context, tokens []string, msg gateway.Message) (*gateway.MulticastResult, error) {
	if f.sendToMulticastFn == nil {
		return &gateway.MulticastResult{SuccessCount: len(tokens)}, nil
	}
	return f.sendToMulticastFn(ctx, tokens, msg)
}

func (f *fakeGateway) SendToTopic(ctx context.Context, topic string, msg gateway.Message) (*gateway.SendResult, error) {
	if f.sendToTopicFn == nil {
		return &gateway.SendResult{MessageID: "topic-msg-1"}, nil
	}
	return f.sendToTopicFn(ctx, topic, msg)
}

func (f *fakeGateway) SubscribeToTopic(ctx context.Context, topic string, tokens []string) (*gateway.TopicManagementResult, error) {
	if f.subscribeFn == nil {
		return &gateway.TopicManagementResult{SuccessCount: len(tokens)}, nil
	}
	return f.subscribeFn(ctx, topic, tokens)
}

func (f *fakeGateway) UnsubscribeFromTopic(ctx context.Context, topic string, tokens []string) (*gateway.TopicManagementResult, error) {
	if f.unsubscribeFn == nil {
		return &gateway.TopicManagementResult{SuccessCount: len(tokens)}, nil
	}
	return f.unsubscribeFn(ctx, topic, tokens)
}

type fakeStatusStore struct {
	mu      sync.Mutex
	saved   []store.StatusRecord
	savedAt []time.Duration
	saveErr error
	getFn   func(ctx context.Context, notificationID string) (*store.StatusRecord, error)
}

func (f *fakeStatusStore) SaveStatus(_ context.Context, record store.StatusRecord, ttl time.Duration) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.saveErr != nil {
		return f.saveErr
	}
	f.saved = append(f.saved, record)
	f.savedAt = append(f.savedAt, ttl)
	return nil
}

func (f *fakeStatusStore) GetStatus(ctx context.Context, notificationID string) (*store.StatusRecord, error) {
	if f.getFn == nil {
		return nil, domain.ErrNotFound
	}
	return f.getFn(ctx, notificationID)
}

func (f *fakeStatusStore) DeleteStatus(context.Context, string) error { return nil }

func (f *fakeStatusStore) lastSaved(t *testing.T) store.StatusRecord {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.saved) == 0 {
		t.Fatal("no status record was saved")
	}
	return f.saved[len(f.saved)-1]
}

type publishedEvent struct {
	channel string
	event   any
}

type fakePublisher struct {
	mu         sync.Mutex
	published  []publishedEvent
	publishErr error
}

func (f *fakePublisher) Publish(_ context.Context, channel string, event any) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.publishErr != nil {
		return f.publishErr
	}
	f.published = append(f.published, publishedEvent{channel: channel, event: event})
	return nil
}

type fakeLimiter struct {
	allowed  bool
	allowErr error
	kinds    []string
}

func (f *fakeLimiter) Allow(_ context.Context, kind string) (bool, error) {
	f.kinds = append(f.kinds, kind)
	return f.allowed, f.allowErr
}

func (f *fakeLimiter) Wait(context.Context, string) error { return nil }

func testToken(suffix string) string {
	return strings.Repeat("x", 32) + suffix
}

func newTestService(t *testing.T, gw *fakeGateway, statuses *fakeStatusStore, events *fakePublisher) *DispatchService {
	t.Helper()

	svc, err := NewDispatchService(gw, statuses, events, nil, zap.NewNop(), nil, DispatchConfig{})
	if err != nil {
		t.Fatalf("NewDispatchService() error = %v", err)
	}
	return svc
}

func singleTokenCommand() SendCommand {
	return SendCommand{
		NotificationType: "alert",
		Title:            "hello",
		Body:             "world",
		Tokens:           []TokenInput{{Token: testToken("a"), Platform: "android"}},
	}
}

func TestSendSingleDeviceSuccess(t *testing.T) {
	t.Parallel()

	statuses := &fakeStatusStore{}
	events := &fakePublisher{}
	gw := &fakeGateway{
		sendToDeviceFn: func(_ context.Context, token string, msg gateway.Message) (*gateway.SendResult, error) {
			if token != testToken("a") {
				t.Errorf("token = %q", token)
			}
			if msg.Title != "hello" || msg.Priority != "high" {
				t.Errorf("message = %+v", msg)
			}
			return &gateway.SendResult{MessageID: "msg-42"}, nil
		},
	}
	svc := newTestService(t, gw, statuses, events)

	result, err := svc.Send(context.Background(), singleTokenCommand())
	if err != nil {
		t.Fatalf("Send() error = %v", err)
	}

	if result.Status != StatusSuccess {
		t.Errorf("Status = %q, want success", result.Status)
	}
	if result.SentCount != 1 || result.FailedCount != 0 {
		t.Errorf("counts = %d/%d, want 1/0", result.SentCount, result.FailedCount)
	}
	if result.MessageID != "msg-42" {
		t.Errorf("MessageID = %q", result.MessageID)
	}
	if result.NotificationID == "" {
		t.Error("NotificationID is empty")
	}

	record := statuses.lastSaved(t)
	if record.Status != "success" || record.SentCount != 1 {
		t.Errorf("saved record = %+v", record)
	}
	if len(events.published) != 1 || events.published[0].channel != store.ChannelNotificationSent {
		t.Errorf("published = %+v", events.published)
	}
}

func TestSendSingleDeviceFailure(t *testing.T) {
	t.Parallel()

	statuses := &fakeStatusStore{}
	gw := &fakeGateway{
		sendToDeviceFn: func(context.Context, string, gateway.Message) (*gateway.SendResult, error) {
			return nil, &gateway.Error{Message: "token rejected", Transient: false}
		},
	}
	svc := newTestService(t, gw, statuses, &fakePublisher{})

	result, err := svc.Send(context.Background(), singleTokenCommand())
	if err != nil {
		t.Fatalf("Send() error = %v", err)
	}

	if result.Status != StatusFailed {
		t.Errorf("Status = %q, want failed", result.Status)
	}
	if result.SentCount != 0 || result.FailedCount != 1 {
		t.Errorf("counts = %d/%d, want 0/1", result.SentCount, result.FailedCount)
	}
	if len(result.FailedTokens) != 1 {
		t.Errorf("FailedTokens = %v", result.FailedTokens)
	}
	if result.ErrorMessage == "" {
		t.Error("ErrorMessage is empty")
	}
}

func TestSendMulticastPartial(t *testing.T) {
	t.Parallel()

	statuses := &fakeStatusStore{}
	gw := &fakeGateway{
		sendToMulticastFn: func(_ context.Context, tokens []string, _ gateway.Message) (*gateway.MulticastResult, error) {
			if len(tokens) != 5 {
				t.Errorf("tokens = %d, want 5", len(tokens))
			}
			return &gateway.MulticastResult{
				SuccessCount: 3,
				FailureCount: 2,
				Errors: []gateway.TargetError{
					{Index: 1, Token: tokens[1], Reason: "unregistered"},
					{Index: 4, Token: tokens[4], Reason: "invalid"},
				},
			}, nil
		},
	}
	svc := newTestService(t, gw, statuses, &fakePublisher{})

	cmd := singleTokenCommand()
	cmd.Tokens = nil
	for _, suffix := range []string{"a", "b", "c", "d", "e"} {
		cmd.Tokens = append(cmd.Tokens, TokenInput{Token: testToken(suffix), Platform: "ios"})
	}

	result, err := svc.Send(context.Background(), cmd)
	if err != nil {
		t.Fatalf("Send() error = %v", err)
	}

	if result.Status != StatusPartial {
		t.Errorf("Status = %q, want partial", result.Status)
	}
	if result.SentCount != 3 || result.FailedCount != 2 {
		t.Errorf("counts = %d/%d, want 3/2", result.SentCount, result.FailedCount)
	}
	if len(result.FailedTokens) != 2 {
		t.Errorf("FailedTokens = %v", result.FailedTokens)
	}

	record := statuses.lastSaved(t)
	if record.Status != "partial" {
		t.Errorf("saved status = %q, want partial", record.Status)
	}
}

func TestSendMulticastAllFailedIsFailed(t *testing.T) {
	t.Parallel()

	gw := &fakeGateway{
		sendToMulticastFn: func(_ context.Context, tokens []string, _ gateway.Message) (*gateway.MulticastResult, error) {
			errs := make([]gateway.TargetError, len(tokens))
			for i, token := range tokens {
				errs[i] = gateway.TargetError{Index: i, Token: token, Reason: "unregistered"}
			}
			return &gateway.MulticastResult{FailureCount: len(tokens), Errors: errs}, nil
		},
	}
	svc := newTestService(t, gw, &fakeStatusStore{}, &fakePublisher{})

	cmd := singleTokenCommand()
	cmd.Tokens = []TokenInput{
		{Token: testToken("a"), Platform: "android"},
		{Token: testToken("b"), Platform: "android"},
	}

	result, err := svc.Send(context.Background(), cmd)
	if err != nil {
		t.Fatalf("Send() error = %v", err)
	}

	if result.Status != StatusFailed {
		t.Errorf("Status = %q, want failed when nothing was delivered", result.Status)
	}
	if result.SentCount != 0 || result.FailedCount != 2 {
		t.Errorf("counts = %d/%d, want 0/2", result.SentCount, result.FailedCount)
	}
}

func TestSendToTopicSuccess(t *testing.T) {
	t.Parallel()

	statuses := &fakeStatusStore{}
	events := &fakePublisher{}
	gw := &fakeGateway{
		sendToTopicFn: func(_ context.Context, topic string, _ gateway.Message) (*gateway.SendResult, error) {
			if topic != "news-updates" {
				t.Errorf("topic = %q", topic)
			}
			return &gateway.SendResult{MessageID: "topic-msg-9"}, nil
		},
	}
	svc := newTestService(t, gw, statuses, events)

	result, err := svc.SendToTopic(context.Background(), TopicCommand{
		NotificationType: "alert",
		Title:            "breaking",
		Body:             "news",
		Topic:            "news-updates",
	})
	if err != nil {
		t.Fatalf("SendToTopic() error = %v", err)
	}

	if result.Status != StatusSuccess || result.TargetCount != 1 {
		t.Errorf("result = %+v", result)
	}

	record := statuses.lastSaved(t)
	if record.Topic != "news-updates" {
		t.Errorf("saved topic = %q", record.Topic)
	}
	if len(events.published) != 1 || events.published[0].channel != store.ChannelTopicNotificationSent {
		t.Errorf("published = %+v", events.published)
	}
}

func TestSendValidationFailures(t *testing.T) {
	t.Parallel()

	svc := newTestService(t, &fakeGateway{}, &fakeStatusStore{}, &fakePublisher{})

	testCases := []struct {
		name string
		cmd  SendCommand
	}{
		{name: "no tokens", cmd: SendCommand{NotificationType: "alert", Title: "t", Body: "b"}},
		{
			name: "short token",
			cmd: SendCommand{
				NotificationType: "alert", Title: "t", Body: "b",
				Tokens: []TokenInput{{Token: "short", Platform: "android"}},
			},
		},
		{
			name: "bad platform",
			cmd: SendCommand{
				NotificationType: "alert", Title: "t", Body: "b",
				Tokens: []TokenInput{{Token: testToken("a"), Platform: "windows"}},
			},
		},
		{
			name: "alert without title",
			cmd: SendCommand{
				NotificationType: "alert", Body: "b",
				Tokens: []TokenInput{{Token: testToken("a"), Platform: "android"}},
			},
		},
		{
			name: "duplicate tokens",
			cmd: SendCommand{
				NotificationType: "alert", Title: "t", Body: "b",
				Tokens: []TokenInput{
					{Token: testToken("a"), Platform: "android"},
					{Token: testToken("a"), Platform: "ios"},
				},
			},
		},
		{
			name: "negative ttl",
			cmd: func() SendCommand {
				cmd := singleTokenCommand()
				ttl := -1
				cmd.TTL = &ttl
				return cmd
			}(),
		},
		{
			name: "ttl above ceiling",
			cmd: func() SendCommand {
				cmd := singleTokenCommand()
				ttl := maxTTLSeconds + 1
				cmd.TTL = &ttl
				return cmd
			}(),
		},
	}

	for _, tc := range testCases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			_, err := svc.Send(context.Background(), tc.cmd)
			if !errors.Is(err, domain.ErrValidation) {
				t.Fatalf("Send() error = %v, want ErrValidation", err)
			}
		})
	}
}

func TestSendAlertMissingTitleAndBodyReportsBoth(t *testing.T) {
	t.Parallel()

	svc := newTestService(t, &fakeGateway{}, &fakeStatusStore{}, &fakePublisher{})

	cmd := SendCommand{
		NotificationType: "alert",
		Tokens:           []TokenInput{{Token: testToken("a"), Platform: "android"}},
	}

	_, err := svc.Send(context.Background(), cmd)
	if !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("Send() error = %v, want ErrValidation", err)
	}
	if !strings.Contains(err.Error(), "requires a title") || !strings.Contains(err.Error(), "requires a body") {
		t.Errorf("error = %q, want both violations reported", err)
	}
}

func TestSendStoreFailureDoesNotChangeOutcome(t *testing.T) {
	t.Parallel()

	statuses := &fakeStatusStore{saveErr: errors.New("redis down")}
	events := &fakePublisher{}
	svc := newTestService(t, &fakeGateway{}, statuses, events)

	result, err := svc.Send(context.Background(), singleTokenCommand())
	if err != nil {
		t.Fatalf("Send() error = %v", err)
	}
	if result.Status != StatusSuccess {
		t.Errorf("Status = %q, want success despite store failure", result.Status)
	}
	// Publishing still happens after a failed persist.
	if len(events.published) != 1 {
		t.Errorf("published = %+v", events.published)
	}
}

func TestSendPublishFailureDoesNotChangeOutcome(t *testing.T) {
	t.Parallel()

	events := &fakePublisher{publishErr: errors.New("pubsub down")}
	svc := newTestService(t, &fakeGateway{}, &fakeStatusStore{}, events)

	result, err := svc.Send(context.Background(), singleTokenCommand())
	if err != nil {
		t.Fatalf("Send() error = %v", err)
	}
	if result.Status != StatusSuccess {
		t.Errorf("Status = %q, want success despite publish failure", result.Status)
	}
}

func TestSendPersistsBeforePublishing(t *testing.T) {
	t.Parallel()

	var mu sync.Mutex
	var order []string

	statuses := &orderedStatusStore{record: func() {
		mu.Lock()
		order = append(order, "persist")
		mu.Unlock()
	}}
	events := &orderedPublisher{record: func() {
		mu.Lock()
		order = append(order, "publish")
		mu.Unlock()
	}}

	svc, err := NewDispatchService(&fakeGateway{}, statuses, events, nil, zap.NewNop(), nil, DispatchConfig{})
	if err != nil {
		t.Fatalf("NewDispatchService() error = %v", err)
	}

	if _, err := svc.Send(context.Background(), singleTokenCommand()); err != nil {
		t.Fatalf("Send() error = %v", err)
	}

	if len(order) != 2 || order[0] != "persist" || order[1] != "publish" {
		t.Fatalf("order = %v, want [persist publish]", order)
	}
}

type orderedStatusStore struct {
	record func()
}

func (o *orderedStatusStore) SaveStatus(context.Context, store.StatusRecord, time.Duration) error {
	o.record()
	return nil
}

func (o *orderedStatusStore) GetStatus(context.Context, string) (*store.StatusRecord, error) {
	return nil, domain.ErrNotFound
}

func (o *orderedStatusStore) DeleteStatus(context.Context, string) error { return nil }

type orderedPublisher struct {
	record func()
}

func (o *orderedPublisher) Publish(context.Context, string, any) error {
	o.record()
	return nil
}

func TestSendRateLimited(t *testing.T) {
	t.Parallel()

	limiter := &fakeLimiter{allowed: false}
	svc, err := NewDispatchService(&fakeGateway{}, &fakeStatusStore{}, &fakePublisher{}, limiter, zap.NewNop(), nil, DispatchConfig{})
	if err != nil {
		t.Fatalf("NewDispatchService() error = %v", err)
	}

	_, err = svc.Send(context.Background(), singleTokenCommand())
	if !errors.Is(err, domain.ErrRateLimited) {
		t.Fatalf("Send() error = %v, want ErrRateLimited", err)
	}
	if len(limiter.kinds) != 1 || limiter.kinds[0] != "device" {
		t.Errorf("limiter kinds = %v", limiter.kinds)
	}
}

func TestSendRateLimiterErrorFailsOpen(t *testing.T) {
	t.Parallel()

	limiter := &fakeLimiter{allowErr: errors.New("redis down")}
	svc, err := NewDispatchService(&fakeGateway{}, &fakeStatusStore{}, &fakePublisher{}, limiter, zap.NewNop(), nil, DispatchConfig{})
	if err != nil {
		t.Fatalf("NewDispatchService() error = %v", err)
	}

	result, err := svc.Send(context.Background(), singleTokenCommand())
	if err != nil {
		t.Fatalf("Send() error = %v, want dispatch to proceed", err)
	}
	if result.Status != StatusSuccess {
		t.Errorf("Status = %q", result.Status)
	}
}

func TestStatusLookup(t *testing.T) {
	t.Parallel()

	statuses := &fakeStatusStore{
		getFn: func(_ context.Context, notificationID string) (*store.StatusRecord, error) {
			if notificationID != "n-1" {
				return nil, domain.ErrNotFound
			}
			return &store.StatusRecord{NotificationID: "n-1", Status: "success"}, nil
		},
	}
	svc := newTestService(t, &fakeGateway{}, statuses, &fakePublisher{})

	record, err := svc.Status(context.Background(), "n-1")
	if err != nil {
		t.Fatalf("Status() error = %v", err)
	}
	if record.Status != "success" {
		t.Errorf("record = %+v", record)
	}

	if _, err := svc.Status(context.Background(), "missing"); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("Status(missing) error = %v, want ErrNotFound", err)
	}
	if _, err := svc.Status(context.Background(), "  "); !errors.Is(err, domain.ErrValidation) {
		t.Errorf("Status(blank) error = %v, want ErrValidation", err)
	}
}
