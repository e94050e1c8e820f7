// Package sweeplock serializes sweep invocations across instances so
// overlapping cron triggers cannot double-process the same due records.
package sweeplock

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const redisKey = "payouts:sweep:lease"

// Locker guards one sweep at a time. Acquire returns false when another
// holder has the lease; the caller should skip the sweep, not wait.
type Locker interface {
	Acquire(ctx context.Context) (release func(), acquired bool, err error)
}

// RedisLocker implements Locker with a SETNX lease. The TTL bounds how
// long a crashed holder can block sweeps.
type RedisLocker struct {
	client redis.Cmdable
	ttl    time.Duration
}

func NewRedisLocker(client redis.Cmdable, ttl time.Duration) *RedisLocker {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &RedisLocker{client: client, ttl: ttl}
}

func (l *RedisLocker) Acquire(ctx context.Context) (func(), bool, error) {
	token := uuid.NewString()
	ok, err := l.client.SetNX(ctx, redisKey, token, l.ttl).Result()
	if err != nil {
		return nil, false, fmt.Errorf("acquire sweep lease: %w", err)
	}
	if !ok {
		return nil, false, nil
	}

	release := func() {
		// Only delete our own lease; an expired lease may have been
		// re-acquired by another holder.
		script := redis.NewScript(`
			if redis.call("GET", KEYS[1]) == ARGV[1] then
				return redis.call("DEL", KEYS[1])
			end
			return 0
		`)
		if err := script.Run(context.Background(), l.client, []string{redisKey}, token).Err(); err != nil && err != redis.Nil {
			zap.L().Warn("release sweep lease failed", zap.Error(err))
		}
	}
	return release, true, nil
}

// NoopLocker always grants the lease. Used in tests and single-instance
// runs without Redis.
type NoopLocker struct{}

func (NoopLocker) Acquire(ctx context.Context) (func(), bool, error) {
	return func() {}, true, nil
}
