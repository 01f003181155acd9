package redis

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/ndmx/upscale/internal/domain/enrollment"
)

// releaseScript deletes the lock only if it still holds our token.
var releaseScript = redis.NewScript(`
if redis.call('GET', KEYS[1]) == ARGV[1] then
  return redis.call('DEL', KEYS[1])
end
return 0
`)

// Locker implements enrollment.Locker with SET NX PX and a token-checked
// release, so confirmations for one reference run one at a time across
// server instances.
type Locker struct {
	client   redis.UniversalClient
	ttl      time.Duration
	interval time.Duration
	logger   *slog.Logger
}

var _ enrollment.Locker = (*Locker)(nil)

// NewLocker creates a distributed locker.
func NewLocker(cache *Cache, ttl time.Duration, logger *slog.Logger) *Locker {
	if ttl <= 0 {
		ttl = TTLDistributedLock
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Locker{client: cache.Client(), ttl: ttl, interval: 25 * time.Millisecond, logger: logger}
}

// Lock polls until the key is acquired or ctx is done.
func (l *Locker) Lock(ctx context.Context, key string) (func(), error) {
	redisKey := LockKey(key)
	token := uuid.NewString()

	ticker := time.NewTicker(l.interval)
	defer ticker.Stop()

	for {
		ok, err := l.client.SetNX(ctx, redisKey, token, l.ttl).Result()
		if err != nil {
			return nil, fmt.Errorf("acquire lock %s: %w", key, err)
		}
		if ok {
			return func() { l.release(redisKey, token) }, nil
		}

		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("acquire lock %s: %w", key, ctx.Err())
		case <-ticker.C:
		}
	}
}

func (l *Locker) release(key, token string) {
	// The caller's context may already be cancelled; release anyway.
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	if err := releaseScript.Run(ctx, l.client, []string{key}, token).Err(); err != nil && !errors.Is(err, redis.Nil) {
		l.logger.Warn("failed to release lock", "key", key, "error", err)
	}
}
