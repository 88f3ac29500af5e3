package redis

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/kursadbilgin/publish-engine/internal/ratelimit"
	goredis "github.com/redis/go-redis/v9"
)

const (
	defaultLimitPerSec = 10
	limiterWindow      = time.Second
	limiterKeyPrefix   = "publish:ratelimit:"
)

// reserveScript keeps one sorted-set entry per admitted call, scored by its
// time in ms. ARGV: now, window start, window ms, limit, member. It admits the
// call and returns 0 while fewer than limit calls are inside the window,
// otherwise it returns the ms until the oldest one leaves.
var reserveScript = goredis.NewScript(`
redis.call("ZREMRANGEBYSCORE", KEYS[1], "-inf", ARGV[2])
if redis.call("ZCARD", KEYS[1]) < tonumber(ARGV[4]) then
  redis.call("ZADD", KEYS[1], ARGV[1], ARGV[5])
  redis.call("PEXPIRE", KEYS[1], ARGV[3])
  return 0
end
local oldest = redis.call("ZRANGE", KEYS[1], 0, 0, "WITHSCORES")
return tonumber(oldest[2]) + tonumber(ARGV[3]) - tonumber(ARGV[1])
`)

var _ ratelimit.RateLimiter = (*RedisRateLimiter)(nil)

// RedisRateLimiter shares a sliding one-second window per platform key across
// every engine instance.
type RedisRateLimiter struct {
	client *goredis.Client
	limit  int
	now    func() time.Time
	sleep  func(ctx context.Context, d time.Duration) error
}

func NewRedisRateLimiter(client *goredis.Client, limitPerSec int) (*RedisRateLimiter, error) {
	return newRedisRateLimiter(client, limitPerSec, time.Now, sleepWithContext)
}

func newRedisRateLimiter(
	client *goredis.Client,
	limitPerSec int,
	nowFn func() time.Time,
	sleepFn func(ctx context.Context, d time.Duration) error,
) (*RedisRateLimiter, error) {
	if client == nil {
		return nil, fmt.Errorf("redis client is required")
	}
	if limitPerSec <= 0 {
		limitPerSec = defaultLimitPerSec
	}
	if nowFn == nil {
		nowFn = time.Now
	}
	if sleepFn == nil {
		sleepFn = sleepWithContext
	}

	return &RedisRateLimiter{
		client: client,
		limit:  limitPerSec,
		now:    nowFn,
		sleep:  sleepFn,
	}, nil
}

func (r *RedisRateLimiter) Allow(ctx context.Context, key string) (bool, error) {
	wait, err := r.reserve(ctx, key)
	if err != nil {
		return false, err
	}
	return wait == 0, nil
}

// Wait blocks until the key admits a call or ctx ends.
func (r *RedisRateLimiter) Wait(ctx context.Context, key string) error {
	if ctx == nil {
		ctx = context.Background()
	}

	for {
		wait, err := r.reserve(ctx, key)
		if err != nil {
			return err
		}
		if wait == 0 {
			return nil
		}
		if err := r.sleep(ctx, wait); err != nil {
			return err
		}
	}
}

// reserve admits a call and returns 0, or returns how long until a slot frees.
func (r *RedisRateLimiter) reserve(ctx context.Context, key string) (time.Duration, error) {
	if r == nil || r.client == nil {
		return 0, fmt.Errorf("rate limiter is not initialized")
	}
	normalized := strings.ToLower(strings.TrimSpace(key))
	if normalized == "" {
		return 0, fmt.Errorf("rate limit key is required")
	}
	if ctx == nil {
		ctx = context.Background()
	}

	nowMs := r.now().UTC().UnixMilli()
	windowMs := limiterWindow.Milliseconds()
	waitMs, err := reserveScript.Run(ctx, r.client,
		[]string{limiterKeyPrefix + normalized},
		nowMs,
		nowMs-windowMs,
		windowMs,
		r.limit,
		uuid.NewString(),
	).Int64()
	if err != nil {
		return 0, fmt.Errorf("failed to evaluate rate limit: %w", err)
	}

	wait := time.Duration(waitMs) * time.Millisecond
	if wait > limiterWindow {
		// Clock skew between instances.
		wait = limiterWindow
	}
	return wait, nil
}

func sleepWithContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
