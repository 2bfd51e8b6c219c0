package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/kursadbilgin/push-dispatch/internal/domain"
)

const statusKeyPrefix = "notification:"

// RedisStore persists dispatch statuses and publishes lifecycle events on a
// single Redis instance.
type RedisStore struct {
	client *redis.Client
}

func NewRedisStore(client *redis.Client) (*RedisStore, error) {
	if client == nil {
		return nil, fmt.Errorf("redis client is required")
	}
	return &RedisStore{client: client}, nil
}

func statusKey(notificationID string) string {
	return statusKeyPrefix + notificationID
}

func (s *RedisStore) SaveStatus(ctx context.Context, record StatusRecord, ttl time.Duration) error {
	if record.NotificationID == "" {
		return fmt.Errorf("notification id is required")
	}
	if ttl <= 0 {
		return fmt.Errorf("status ttl must be positive")
	}

	encoded, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("failed to encode status record: %w", err)
	}

	if err := s.client.Set(ctx, statusKey(record.NotificationID), encoded, ttl).Err(); err != nil {
		return fmt.Errorf("failed to save status: %w", err)
	}

	return nil
}

func (s *RedisStore) GetStatus(ctx context.Context, notificationID string) (*StatusRecord, error) {
	raw, err := s.client.Get(ctx, statusKey(notificationID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("%w: notification %s", domain.ErrNotFound, notificationID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load status: %w", err)
	}

	var record StatusRecord
	if err := json.Unmarshal(raw, &record); err != nil {
		return nil, fmt.Errorf("failed to decode status record: %w", err)
	}

	return &record, nil
}

func (s *RedisStore) DeleteStatus(ctx context.Context, notificationID string) error {
	if err := s.client.Del(ctx, statusKey(notificationID)).Err(); err != nil {
		return fmt.Errorf("failed to delete status: %w", err)
	}
	return nil
}

// StatusExists reports whether a status record is still live without
// decoding it.
func (s *RedisStore) StatusExists(ctx context.Context, notificationID string) (bool, error) {
	count, err := s.client.Exists(ctx, statusKey(notificationID)).Result()
	if err != nil {
		return false, fmt.Errorf("failed to check status: %w", err)
	}
	return count > 0, nil
}

// IncrCounter atomically increments a named counter and returns the new
// value.
func (s *RedisStore) IncrCounter(ctx context.Context, name string) (int64, error) {
	value, err := s.client.Incr(ctx, name).Result()
	if err != nil {
		return 0, fmt.Errorf("failed to increment %s: %w", name, err)
	}
	return value, nil
}

func (s *RedisStore) Publish(ctx context.Context, channel string, event any) error {
	encoded, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to encode event: %w", err)
	}

	if err := s.client.Publish(ctx, channel, encoded).Err(); err != nil {
		return fmt.Errorf("failed to publish to %s: %w", channel, err)
	}

	return nil
}

// Ping reports store reachability for readiness checks.
func (s *RedisStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}
