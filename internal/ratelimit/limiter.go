package ratelimit

import "context"

// RateLimiter controls dispatch throughput per dispatch kind.
type RateLimiter interface {
	Allow(ctx context.Context, kind string) (bool, error)
	Wait(ctx context.Context, kind string) error
}
