package storage

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	idempotencyKeyPrefix  = "idem:"
	attemptKeyPrefix      = "attempts:"
	defaultIdempotencyTTL = 24 * time.Hour
	defaultMaxAttempts    = 5
	defaultAttemptWindow  = 15 * time.Minute
)

// attemptScript counts an attempt and starts the window on the first one,
// so a burst of attempts cannot keep extending the lockout.
var attemptScript = redis.NewScript(`
local key = KEYS[1]
local window = tonumber(ARGV[1])

local count = redis.call('INCR', key)
if count == 1 then
	redis.call('PEXPIRE', key, window)
end

return count
`)

type RedisAdapter struct {
	client         *redis.Client
	idempotencyTTL time.Duration
	maxAttempts    int
	attemptWindow  time.Duration
}

type RedisOption func(*RedisAdapter)

func WithIdempotencyTTL(d time.Duration) RedisOption {
	return func(r *RedisAdapter) {
		if d > 0 {
			r.idempotencyTTL = d
		}
	}
}

// WithAttemptPolicy caps attempts per key within window.
func WithAttemptPolicy(maxAttempts int, window time.Duration) RedisOption {
	return func(r *RedisAdapter) {
		if maxAttempts > 0 {
			r.maxAttempts = maxAttempts
		}
		if window > 0 {
			r.attemptWindow = window
		}
	}
}

func NewRedisAdapter(client *redis.Client, opts ...RedisOption) *RedisAdapter {
	r := &RedisAdapter{
		client:         client,
		idempotencyTTL: defaultIdempotencyTTL,
		maxAttempts:    defaultMaxAttempts,
		attemptWindow:  defaultAttemptWindow,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func (r *RedisAdapter) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

func (r *RedisAdapter) Acquire(ctx context.Context, key string) (bool, error) {
	ok, err := r.client.SetNX(ctx, idempotencyKeyPrefix+key, 1, r.idempotencyTTL).Result()
	if err != nil {
		return false, err
	}

	return ok, nil
}

func (r *RedisAdapter) Release(ctx context.Context, key string) error {
	return r.client.Del(ctx, idempotencyKeyPrefix+key).Err()
}

// Attempt counts every try, including the one that turns out correct.
// Callers reset the key on success.
func (r *RedisAdapter) Attempt(ctx context.Context, key string) (int, bool, error) {
	window := r.attemptWindow.Milliseconds()
	count, err := attemptScript.Run(ctx, r.client, []string{attemptKeyPrefix + key}, window).Int()
	if err != nil {
		return 0, false, err
	}

	return count, count <= r.maxAttempts, nil
}

func (r *RedisAdapter) Reset(ctx context.Context, key string) error {
	return r.client.Del(ctx, attemptKeyPrefix+key).Err()
}
