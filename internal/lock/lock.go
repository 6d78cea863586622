package lock

import (
	"context"
	"fmt"
	"time"

	"btcpay-bridge/internal/logger"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Locker serializes work on one key across processes.
type Locker interface {
	// TryLock returns ok=false without error when the key is held elsewhere.
	TryLock(ctx context.Context, key string, ttl time.Duration) (token string, ok bool, err error)
	Unlock(ctx context.Context, key, token string) error
}

// Client is the subset of *redis.Client the locker needs.
type Client interface {
	SetNX(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.BoolCmd
	Eval(ctx context.Context, script string, keys []string, args ...interface{}) *redis.Cmd
}

// Deletes the key only while it still holds our token.
const unlockScript = `
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`

const keyPrefix = "btcpay:lock:"

type redisLocker struct {
	client Client
}

func NewRedisLocker(client Client) Locker {
	return &redisLocker{client: client}
}

func (l *redisLocker) TryLock(ctx context.Context, key string, ttl time.Duration) (string, bool, error) {
	token := uuid.NewString()

	acquired, err := l.client.SetNX(ctx, keyPrefix+key, token, ttl).Result()
	if err != nil {
		return "", false, fmt.Errorf("failed to acquire lock %s: %w", key, err)
	}
	if !acquired {
		logger.FromCtx(ctx).Info("Lock held elsewhere", zap.String("lock_key", key))
		return "", false, nil
	}

	return token, true, nil
}

func (l *redisLocker) Unlock(ctx context.Context, key, token string) error {
	released, err := l.client.Eval(ctx, unlockScript, []string{keyPrefix + key}, token).Int64()
	if err != nil {
		return fmt.Errorf("failed to release lock %s: %w", key, err)
	}
	if released == 0 {
		logger.FromCtx(ctx).Warn("Lock expired before release", zap.String("lock_key", key))
	}
	return nil
}

// Nop always acquires. Used when no Redis is configured.
type Nop struct{}

func (Nop) TryLock(context.Context, string, time.Duration) (string, bool, error) {
	return "", true, nil
}

func (Nop) Unlock(context.Context, string, string) error { return nil }
