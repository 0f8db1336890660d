package redis

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/Ramsey-B/fern/pkg/tracing"
)

const defaultKeyPrefix = "fern:lock:"

var (
	// ErrLockNotAcquired means another replica owns the key
	ErrLockNotAcquired = errors.New("lock not acquired")
	// ErrLockNotHeld means the token no longer matches, usually because the TTL lapsed
	ErrLockNotHeld = errors.New("lock not held")
)

// Both scripts act only when KEYS[1] still holds our token.
var (
	unlockIfOwner = redis.NewScript(`
if redis.call("get", KEYS[1]) ~= ARGV[1] then
	return 0
end
return redis.call("del", KEYS[1])
`)
	renewIfOwner = redis.NewScript(`
if redis.call("get", KEYS[1]) ~= ARGV[1] then
	return 0
end
return redis.call("pexpire", KEYS[1], ARGV[2])
`)
)

// Locker hands out single-owner locks keyed under a shared prefix
type Locker struct {
	client *Client
	prefix string
}

func NewLocker(client *Client, keyPrefix string) *Locker {
	if keyPrefix == "" {
		keyPrefix = defaultKeyPrefix
	}
	return &Locker{client: client, prefix: keyPrefix}
}

// Lock is one ownership of a key, identified by a random token
type Lock struct {
	client *Client
	key    string
	token  string
	ttl    time.Duration
}

// Acquire takes key without waiting
func (l *Locker) Acquire(ctx context.Context, key string, ttl time.Duration) (*Lock, error) {
	lock := &Lock{
		client: l.client,
		key:    l.prefix + key,
		token:  uuid.NewString(),
		ttl:    ttl,
	}

	ok, err := l.client.rdb.SetNX(ctx, lock.key, lock.token, ttl).Result()
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrLockNotAcquired
	}

	lock.client.logger.WithContext(ctx).WithFields(lock.fields()).Debug("Lock acquired")
	return lock, nil
}

func (lock *Lock) Release(ctx context.Context) error {
	if err := lock.ifOwner(ctx, unlockIfOwner, lock.token); err != nil {
		return err
	}
	lock.client.logger.WithContext(ctx).WithFields(lock.fields()).Debug("Lock released")
	return nil
}

// Extend resets the TTL
func (lock *Lock) Extend(ctx context.Context, ttl time.Duration) error {
	if err := lock.ifOwner(ctx, renewIfOwner, lock.token, ttl.Milliseconds()); err != nil {
		return err
	}
	lock.ttl = ttl
	return nil
}

func (lock *Lock) ifOwner(ctx context.Context, script *redis.Script, args ...any) error {
	n, err := script.Run(ctx, lock.client.rdb, []string{lock.key}, args...).Int64()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrLockNotHeld
	}
	return nil
}

func (lock *Lock) fields() map[string]any {
	return map[string]any{
		"lock_key": lock.key,
		"ttl_ms":   lock.ttl.Milliseconds(),
	}
}

// renew keeps the lock alive at half its TTL until stop closes. It gives up
// on the first failed extension.
func (lock *Lock) renew(ctx context.Context, stop <-chan struct{}) {
	ticker := time.NewTicker(lock.ttl / 2)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := lock.Extend(ctx, lock.ttl); err != nil {
				lock.client.logger.WithContext(ctx).WithError(err).WithFields(lock.fields()).Warn("Failed to extend lock")
				return
			}
		}
	}
}

// WithLock runs fn while owning key
func (l *Locker) WithLock(ctx context.Context, key string, ttl time.Duration, fn func(ctx context.Context) error) error {
	ctx, span := tracing.StartSpan(ctx, "redis.Locker.WithLock")
	defer span.End()

	lock, err := l.Acquire(ctx, key, ttl)
	if err != nil {
		if errors.Is(err, ErrLockNotAcquired) {
			return err
		}
		return tracing.RecordError(span, err)
	}

	stop := make(chan struct{})
	renewed := make(chan struct{})
	go func() {
		defer close(renewed)
		lock.renew(ctx, stop)
	}()

	defer func() {
		close(stop)
		<-renewed
		if err := lock.Release(context.WithoutCancel(ctx)); err != nil {
			lock.client.logger.WithContext(ctx).WithError(err).WithFields(lock.fields()).Warn("Failed to release lock")
		}
	}()

	return fn(ctx)
}
