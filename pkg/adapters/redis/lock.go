package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aretw0/keel/pkg/ports"
	"github.com/google/uuid"
	backend "github.com/redis/go-redis/v9"
)

var (
	// ErrLockAcquire is returned when the lock cannot be acquired.
	ErrLockAcquire = errors.New("failed to acquire distributed lock")

	// ErrLockLost is returned when a lease no longer owns its key.
	ErrLockLost = errors.New("distributed lock lost")
)

const (
	releaseScript = `
		if redis.call("get", KEYS[1]) == ARGV[1] then
			return redis.call("del", KEYS[1])
		else
			return 0
		end
	`
	refreshScript = `
		if redis.call("get", KEYS[1]) == ARGV[1] then
			return redis.call("pexpire", KEYS[1], ARGV[2])
		else
			return 0
		end
	`
)

// Locker implements ports.DistributedLocker using Redis.
type Locker struct {
	client *backend.Client
	prefix string
	poll   time.Duration
}

var _ ports.DistributedLocker = (*Locker)(nil)

// NewLocker creates a new Redis locker. Keys are stored as <prefix>lock:<key>.
func NewLocker(client *backend.Client, prefix string) *Locker {
	return &Locker{
		client: client,
		prefix: prefix,
		poll:   100 * time.Millisecond,
	}
}

// Lease is a held lock.
type Lease struct {
	locker *Locker
	key    string
	token  string
	ttl    time.Duration
}

// Key returns the Redis key of the lease.
func (l *Lease) Key() string { return l.key }

// Refresh extends the lease by its TTL. It fails with ErrLockLost when the key
// expired or was taken by another owner.
func (l *Lease) Refresh(ctx context.Context) error {
	n, err := l.locker.client.Eval(ctx, refreshScript, []string{l.key}, l.token, l.ttl.Milliseconds()).Int()
	if err != nil {
		return fmt.Errorf("redis error refreshing lock: %w", err)
	}
	if n == 0 {
		return ErrLockLost
	}
	return nil
}

// Release deletes the key if the lease still owns it.
func (l *Lease) Release(ctx context.Context) error {
	return l.locker.client.Eval(ctx, releaseScript, []string{l.key}, l.token).Err()
}

// Acquire takes the lock for key using SET NX PX with a random token, polling
// until it succeeds or ctx is done.
func (l *Locker) Acquire(ctx context.Context, key string, ttl time.Duration) (*Lease, error) {
	lease := &Lease{
		locker: l,
		key:    l.prefix + "lock:" + key,
		token:  uuid.NewString(),
		ttl:    ttl,
	}

	ticker := time.NewTicker(l.poll)
	defer ticker.Stop()

	for {
		ok, err := l.client.SetNX(ctx, lease.key, lease.token, ttl).Result()
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return nil, ctxErr
			}
			return nil, fmt.Errorf("redis error acquiring lock: %w", err)
		}
		if ok {
			return lease, nil
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}
}

// Lock acquires a distributed lock for the given key.
func (l *Locker) Lock(ctx context.Context, key string, ttl time.Duration) (ports.UnlockFunc, error) {
	lease, err := l.Acquire(ctx, key, ttl)
	if err != nil {
		return nil, err
	}
	return lease.Release, nil
}
