package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
)

// slidingWindowScript prunes, counts and conditionally records in one round
// trip. A rejected attempt is not recorded.
var slidingWindowScript = redis.NewScript(`
	local key = KEYS[1]
	local counter_key = KEYS[2]
	local now = tonumber(ARGV[1])
	local window_start = tonumber(ARGV[2])
	local limit = tonumber(ARGV[3])
	local window_ms = tonumber(ARGV[4])

	redis.call('ZREMRANGEBYSCORE', key, '-inf', '(' .. window_start)

	if redis.call('ZCARD', key) >= limit then
		return 0
	end

	local counter = redis.call('INCR', counter_key)
	redis.call('ZADD', key, now, now .. ':' .. counter)
	redis.call('PEXPIRE', key, window_ms)
	redis.call('PEXPIRE', counter_key, window_ms)
	return 1
`)

func (c *Client) AdmitSlidingWindow(ctx context.Context, key string, window time.Duration, max int) (bool, error) {
	now := time.Now()
	allowed, err := slidingWindowScript.Run(ctx, c.rdb, []string{key, key + ":counter"},
		now.UnixMilli(),
		now.Add(-window).UnixMilli(),
		max,
		window.Milliseconds(),
	).Int()
	if err != nil {
		return false, fmt.Errorf("run rate limit script: %w", err)
	}
	return allowed == 1, nil
}

// DeletePrefix removes every key starting with prefix.
func (c *Client) DeletePrefix(ctx context.Context, prefix string) error {
	iter := c.rdb.Scan(ctx, 0, prefix+"*", 100).Iterator()
	var keys []string
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return fmt.Errorf("scan %s: %w", prefix, err)
	}
	if len(keys) == 0 {
		return nil
	}
	return c.rdb.Del(ctx, keys...).Err()
}
