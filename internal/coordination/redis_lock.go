package coordination

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/yantianqi1/write-agent/internal/coreerr"
)

// ErrLockNotAcquired is returned when a Redis lock cannot be obtained.
var ErrLockNotAcquired = errors.New("lock not acquired")

const redisKeyPrefix = "storyagent:lock:"

// defaultLockTTL bounds how long a Redis lock survives a holder that dies
// without releasing it (the lock then simply expires rather than wedging
// the key forever).
const defaultLockTTL = 30 * time.Second

// RedisLock backs the per-session and per-generation mutexes with Redis
// SET-NX, for scale-out across multiple engine processes. The in-process
// KeyedLock remains the default; RedisLock is opted into via
// config.CoordinationConfig.Backend == "redis".
type RedisLock struct {
	client *redis.Client
}

// NewRedisLock wraps an existing Redis client.
func NewRedisLock(client *redis.Client) *RedisLock {
	return &RedisLock{client: client}
}

// heldLock represents one acquired Redis lock, identified by a value only
// its holder knows, so Release never drops a lock it does not own.
type heldLock struct {
	client *redis.Client
	key    string
	value  string
}

// Acquire attempts to take key's lock once, returning ErrLockNotAcquired if
// it is already held.
func (r *RedisLock) Acquire(ctx context.Context, key string, ttl time.Duration) (*heldLock, error) {
	lockKey := redisKeyPrefix + key
	value := fmt.Sprintf("%d", time.Now().UnixNano())

	ok, err := r.client.SetNX(ctx, lockKey, value, ttl).Result()
	if err != nil {
		return nil, coreerr.Wrap(coreerr.Storage, err, "acquiring redis lock")
	}
	if !ok {
		return nil, ErrLockNotAcquired
	}
	return &heldLock{client: r.client, key: lockKey, value: value}, nil
}

// WithLock blocks (with exponential backoff) until key's lock is acquired
// or ctx is cancelled, runs fn while holding it, and releases it afterward.
func (r *RedisLock) WithLock(ctx context.Context, key string, ttl time.Duration, fn func() error) error {
	unlock, err := r.lockWithTTL(ctx, key, ttl)
	if err != nil {
		return err
	}
	defer unlock()
	return fn()
}

// Lock implements the Locker interface session.Service and
// GenerationCoordinator's Queue mode depend on, using defaultLockTTL.
func (r *RedisLock) Lock(ctx context.Context, key string) (unlock func(), err error) {
	return r.lockWithTTL(ctx, key, defaultLockTTL)
}

// lockWithTTL blocks (with exponential backoff) until key's lock is
// acquired or ctx is cancelled, returning a function that releases it.
func (r *RedisLock) lockWithTTL(ctx context.Context, key string, ttl time.Duration) (func(), error) {
	backoff := 10 * time.Millisecond
	for {
		lock, err := r.Acquire(ctx, key, ttl)
		if err == nil {
			return func() { lock.release(ctx) }, nil
		}
		if !errors.Is(err, ErrLockNotAcquired) {
			return nil, err
		}

		select {
		case <-ctx.Done():
			return nil, coreerr.Wrap(coreerr.Cancelled, ctx.Err(), "waiting for redis lock")
		case <-time.After(backoff):
			backoff *= 2
			if backoff > time.Second {
				backoff = time.Second
			}
		}
	}
}

// release deletes the lock key only if it still holds the value this
// holder set, via a compare-and-delete Lua script, so a concurrent holder
// that acquired the key after this lock's TTL expired is never evicted.
func (l *heldLock) release(ctx context.Context) error {
	script := redis.NewScript(`
		if redis.call("get", KEYS[1]) == ARGV[1] then
			return redis.call("del", KEYS[1])
		else
			return 0
		end
	`)
	_, err := script.Run(ctx, l.client, []string{l.key}, l.value).Result()
	if err != nil {
		return coreerr.Wrap(coreerr.Storage, err, "releasing redis lock")
	}
	return nil
}
