package ratelimit

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"golang.org/x/time/rate"
)

const defaultLocalLimitPerSec = 10

var _ RateLimiter = (*LocalRateLimiter)(nil)

// LocalRateLimiter is an in-process token bucket per key, used when no
// distributed limiter is configured.
type LocalRateLimiter struct {
	limitPerSec int

	mu       sync.Mutex
	limiters map[string]*rate.Limiter
}

func NewLocalRateLimiter(limitPerSec int) *LocalRateLimiter {
	if limitPerSec <= 0 {
		limitPerSec = defaultLocalLimitPerSec
	}
	return &LocalRateLimiter{
		limitPerSec: limitPerSec,
		limiters:    make(map[string]*rate.Limiter),
	}
}

func (l *LocalRateLimiter) Allow(ctx context.Context, key string) (bool, error) {
	limiter, err := l.limiterFor(key)
	if err != nil {
		return false, err
	}
	return limiter.Allow(), nil
}

func (l *LocalRateLimiter) Wait(ctx context.Context, key string) error {
	limiter, err := l.limiterFor(key)
	if err != nil {
		return err
	}
	if ctx == nil {
		ctx = context.Background()
	}
	return limiter.Wait(ctx)
}

func (l *LocalRateLimiter) limiterFor(key string) (*rate.Limiter, error) {
	normalized := strings.ToLower(strings.TrimSpace(key))
	if normalized == "" {
		return nil, fmt.Errorf("rate limit key is required")
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	limiter, ok := l.limiters[normalized]
	if !ok {
		limiter = rate.NewLimiter(rate.Limit(l.limitPerSec), l.limitPerSec)
		l.limiters[normalized] = limiter
	}
	return limiter, nil
}
