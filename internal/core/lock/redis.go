package lock

import (
	"context"
	"fmt"
	"time"

	"github.com/go-redsync/redsync/v4"
	"github.com/go-redsync/redsync/v4/redis/goredis/v9"
	"github.com/redis/go-redis/v9"
)

// RedisOptions configures the distributed locker.
type RedisOptions struct {
	// Prefix is prepended to every key, e.g. "ledger:account:".
	Prefix string
	// Expiry bounds how long a crashed holder can block an account.
	Expiry time.Duration
	// Tries and RetryDelay bound how long Acquire polls before giving up.
	Tries      int
	RetryDelay time.Duration
}

func DefaultRedisOptions() RedisOptions {
	return RedisOptions{
		Prefix:     "ledger:account:",
		Expiry:     10 * time.Second,
		Tries:      64,
		RetryDelay: 25 * time.Millisecond,
	}
}

// RedisLocker is a Locker backed by redsync, for deployments that run more
// than one engine process against the same store.
type RedisLocker struct {
	rs   *redsync.Redsync
	opts RedisOptions
}

var _ Locker = (*RedisLocker)(nil)

func NewRedisLocker(client redis.UniversalClient, opts RedisOptions) *RedisLocker {
	def := DefaultRedisOptions()
	if opts.Expiry <= 0 {
		opts.Expiry = def.Expiry
	}
	if opts.Tries < 1 {
		opts.Tries = def.Tries
	}
	if opts.RetryDelay <= 0 {
		opts.RetryDelay = def.RetryDelay
	}

	return &RedisLocker{
		rs:   redsync.New(goredis.NewPool(client)),
		opts: opts,
	}
}

func (l *RedisLocker) Acquire(ctx context.Context, key string) (Handle, error) {
	mutex := l.rs.NewMutex(l.opts.Prefix+key,
		redsync.WithExpiry(l.opts.Expiry),
		redsync.WithTries(l.opts.Tries),
		redsync.WithRetryDelay(l.opts.RetryDelay),
	)

	if err := mutex.LockContext(ctx); err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrNotAcquired, key, err)
	}
	return &redisHandle{mutex: mutex}, nil
}

type redisHandle struct {
	mutex *redsync.Mutex
}

func (h *redisHandle) Release(ctx context.Context) error {
	ok, err := h.mutex.UnlockContext(ctx)
	if err != nil {
		return fmt.Errorf("unlock %s: %w", h.mutex.Name(), err)
	}
	if !ok {
		return ErrNotHeld
	}
	return nil
}
