package lock

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"metarepo/internal/model"
)

// releaseScript deletes the lock only if it still holds our token, so a
// holder whose lease expired cannot release someone else's lock.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// Redis is a lease lock shared by every process using the same server.
type Redis struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
	wait   time.Duration
	retry  time.Duration
	log    *zap.Logger
}

var _ Locker = (*Redis)(nil)

// NewRedis returns a lock whose leases expire after ttl and whose
// acquisition gives up after wait.
func NewRedis(client *redis.Client, prefix string, ttl, wait time.Duration, log *zap.Logger) *Redis {
	return &Redis{client: client, prefix: prefix, ttl: ttl, wait: wait, retry: 25 * time.Millisecond, log: log.With(zap.String("component", "lock"))}
}

func (r *Redis) Lock(ctx context.Context, key string) (func(), error) {
	redisKey := r.prefix + key
	token := uuid.NewString()
	deadline := time.Now().Add(r.wait)

	for {
		ok, err := r.client.SetNX(ctx, redisKey, token, r.ttl).Result()
		if err != nil {
			return nil, fmt.Errorf("%w: acquire lock: %w", model.ErrStorage, err)
		}
		if ok {
			break
		}
		if time.Now().After(deadline) {
			return nil, fmt.Errorf("%w: document %s is being updated", model.ErrConflict, key)
		}
		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("%w: document %s is being updated: %w", model.ErrConflict, key, ctx.Err())
		case <-time.After(r.retry):
		}
	}

	return func() {
		// The request context may already be cancelled; release regardless.
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if err := releaseScript.Run(ctx, r.client, []string{redisKey}, token).Err(); err != nil && !errors.Is(err, redis.Nil) {
			r.log.Warn("release lock failed", zap.String("key", redisKey), zap.Error(err))
		}
	}, nil
}
