package redisclient

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

var (
	ErrLockNotAcquired = errors.New("surgery lock not acquired")
)

// Locker guards the write path per surgery so a user-initiated write and a
// concurrent write for the same record cannot interleave.
type Locker interface {
	WithSurgeryLock(ctx context.Context, surgeryID uuid.UUID, fn func(ctx context.Context) error) error
}

type redisSurgeryLocker struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisSurgeryLocker creates a locker that uses a per surgery Redis key
func NewRedisSurgeryLocker(client *redis.Client, ttl time.Duration) Locker {
	return &redisSurgeryLocker{
		client: client,
		ttl:    ttl,
	}
}

func (l *redisSurgeryLocker) WithSurgeryLock(ctx context.Context, surgeryID uuid.UUID, fn func(ctx context.Context) error) error {
	key := fmt.Sprintf("lock:surgery:%s", surgeryID.String())
	token := uuid.NewString()

	ok, err := l.client.SetNX(ctx, key, token, l.ttl).Result()
	if err != nil {
		return fmt.Errorf("acquire surgery lock: %w", err)
	}
	if !ok {
		return ErrLockNotAcquired
	}

	defer func() {
		_ = l.release(ctx, key, token)
	}()

	ctxWithTimeout, cancel := context.WithTimeout(ctx, l.ttl)
	defer cancel()

	return fn(ctxWithTimeout)
}

var unlockScript = redis.NewScript(`
local val = redis.call("GET", KEYS[1])
if val == ARGV[1] then
  return redis.call("DEL", KEYS[1])
else
  return 0
end
`)

func (l *redisSurgeryLocker) release(ctx context.Context, key, token string) error {
	_, err := unlockScript.Run(ctx, l.client, []string{key}, token).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return fmt.Errorf("release surgery lock: %w", err)
	}
	return nil
}
