package redis

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/kursadbilgin/publish-engine/internal/queue"
	goredis "github.com/redis/go-redis/v9"
)

const defaultDelayQueueKey = "publish:retry:scheduled"

// popDueScript removes and returns up to ARGV[2] members scored at or below ARGV[1].
var popDueScript = goredis.NewScript(`
local due = redis.call("ZRANGEBYSCORE", KEYS[1], "-inf", ARGV[1], "LIMIT", 0, ARGV[2])
if #due > 0 then
  redis.call("ZREM", KEYS[1], unpack(due))
end
return due
`)

var _ queue.DelayQueue = (*RedisDelayQueue)(nil)

// RedisDelayQueue is a sorted-set DelayQueue scored by due time in milliseconds.
type RedisDelayQueue struct {
	client *goredis.Client
	key    string
	script *goredis.Script
}

func NewRedisDelayQueue(client *goredis.Client, key string) (*RedisDelayQueue, error) {
	if client == nil {
		return nil, fmt.Errorf("redis client is required")
	}
	if strings.TrimSpace(key) == "" {
		key = defaultDelayQueueKey
	}

	return &RedisDelayQueue{
		client: client,
		key:    key,
		script: popDueScript,
	}, nil
}

func (q *RedisDelayQueue) Schedule(ctx context.Context, publicationID string, at time.Time) error {
	id := strings.TrimSpace(publicationID)
	if id == "" {
		return fmt.Errorf("publication id is required")
	}

	err := q.client.ZAdd(ctx, q.key, goredis.Z{
		Score:  float64(at.UnixMilli()),
		Member: id,
	}).Err()
	if err != nil {
		return fmt.Errorf("failed to schedule retry: %w", err)
	}
	return nil
}

func (q *RedisDelayQueue) PopDue(ctx context.Context, now time.Time, limit int) ([]string, error) {
	if limit <= 0 {
		return nil, nil
	}

	ids, err := q.script.Run(ctx, q.client, []string{q.key}, now.UnixMilli(), limit).StringSlice()
	if err != nil {
		if err == goredis.Nil {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to pop due retries: %w", err)
	}
	return ids, nil
}

func (q *RedisDelayQueue) Remove(ctx context.Context, publicationID string) error {
	if err := q.client.ZRem(ctx, q.key, publicationID).Err(); err != nil {
		return fmt.Errorf("failed to remove scheduled retry: %w", err)
	}
	return nil
}
