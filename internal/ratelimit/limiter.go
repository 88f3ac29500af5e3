package ratelimit

import "context"

// RateLimiter controls publisher call throughput per platform key.
type RateLimiter interface {
	Allow(ctx context.Context, key string) (bool, error)
	Wait(ctx context.Context, key string) error
}
