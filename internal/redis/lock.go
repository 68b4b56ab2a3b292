package redisclient

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

var ErrLockNotAcquired = errors.New("booking lock not acquired")

// DayLocker serializes booking mutations for one (hospital, date) pair
// across service instances. It satisfies the scheduling.Locker
// interface.
type DayLocker struct {
	client *redis.Client
	ttl    time.Duration
}

func NewDayLocker(client *redis.Client, ttl time.Duration) *DayLocker {
	return &DayLocker{client: client, ttl: ttl}
}

func (l *DayLocker) WithDayLock(ctx context.Context, hospitalID, date string, fn func(ctx context.Context) error) error {
	key := fmt.Sprintf("lock:booking:%s:%s", hospitalID, date)
	token := uuid.NewString()

	ok, err := l.client.SetNX(ctx, key, token, l.ttl).Result()
	if err != nil {
		return fmt.Errorf("acquire booking lock: %w", err)
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

func (l *DayLocker) release(ctx context.Context, key, token string) error {
	_, err := unlockScript.Run(ctx, l.client, []string{key}, token).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return fmt.Errorf("release booking lock: %w", err)
	}
	return nil
}
