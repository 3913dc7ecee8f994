package persistence

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"reply_tracker/core/port/out"
	"reply_tracker/pkg/logger"
)

// RunLockKey is the Redis key prefix for stage locks.
const RunLockKey = "lock:run:"

const releaseTimeout = 3 * time.Second

// releaseScript deletes the key only while it still holds our token.
const releaseScript = `
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0`

// LockClient is the go-redis surface the run lock needs.
type LockClient interface {
	Eval(ctx context.Context, script string, keys []string, args ...any) *redis.Cmd
	SetNX(ctx context.Context, key string, value any, expiration time.Duration) *redis.BoolCmd
}

// RedisRunLock implements out.RunLock with SET NX and a token-checked delete.
type RedisRunLock struct {
	client LockClient
}

var _ out.RunLock = (*RedisRunLock)(nil)

func NewRedisRunLock(client LockClient) *RedisRunLock {
	return &RedisRunLock{client: client}
}

func (l *RedisRunLock) TryLock(ctx context.Context, stage string, ttl time.Duration) (func(), bool, error) {
	key := RunLockKey + stage
	token := uuid.NewString()

	ok, err := l.client.SetNX(ctx, key, token, ttl).Result()
	if err != nil {
		return nil, false, wrapDBError("acquire run lock", err)
	}
	if !ok {
		return nil, false, nil
	}

	release := func() {
		ctx, cancel := context.WithTimeout(context.Background(), releaseTimeout)
		defer cancel()
		if err := l.client.Eval(ctx, releaseScript, []string{key}, token).Err(); err != nil && err != redis.Nil {
			logger.WithError(err).WithField("stage", stage).Warn("failed to release run lock")
		}
	}
	return release, true, nil
}
