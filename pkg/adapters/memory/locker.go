// Package memory provides an in-process ports.DistributedLocker.
//
// It serializes holders within one process only. Modules fall back to it when no
// shared backend such as Redis is configured.
package memory

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/aretw0/keel/pkg/ports"
)

// ErrNotHeld is returned when unlocking a lock that expired or was already released.
var ErrNotHeld = errors.New("lock not held")

// lockEntry holds the semaphore of a key and the number of goroutines using it.
type lockEntry struct {
	sem   chan struct{}
	refs  int
	owner uint64
	timer *time.Timer
}

// Locker implements ports.DistributedLocker in memory. Unused entries are
// dropped by reference counting. Safe for concurrent use.
type Locker struct {
	mu    sync.Mutex
	locks map[string]*lockEntry
	next  uint64
}

var _ ports.DistributedLocker = (*Locker)(nil)

// NewLocker creates a locker without any held keys.
func NewLocker() *Locker {
	return &Locker{locks: make(map[string]*lockEntry)}
}

// acquire gets or creates the entry for key and increments its reference count.
func (l *Locker) acquire(key string) *lockEntry {
	l.mu.Lock()
	defer l.mu.Unlock()

	entry, ok := l.locks[key]
	if !ok {
		entry = &lockEntry{sem: make(chan struct{}, 1)}
		l.locks[key] = entry
	}
	entry.refs++
	return entry
}

// release decrements the reference count and deletes the entry when it reaches zero.
// The caller must hold l.mu.
func (l *Locker) release(key string, entry *lockEntry) {
	entry.refs--
	if entry.refs <= 0 && l.locks[key] == entry {
		delete(l.locks, key)
	}
}

// Lock blocks until key is free or ctx is done. The lock expires after ttl unless
// it is released first.
func (l *Locker) Lock(ctx context.Context, key string, ttl time.Duration) (ports.UnlockFunc, error) {
	entry := l.acquire(key)

	select {
	case entry.sem <- struct{}{}:
	case <-ctx.Done():
		l.mu.Lock()
		l.release(key, entry)
		l.mu.Unlock()
		return nil, ctx.Err()
	}

	l.mu.Lock()
	l.next++
	owner := l.next
	entry.owner = owner
	entry.timer = time.AfterFunc(ttl, func() { l.unlock(key, entry, owner) })
	l.mu.Unlock()

	return func(context.Context) error {
		if !l.unlock(key, entry, owner) {
			return ErrNotHeld
		}
		return nil
	}, nil
}

// unlock frees the entry if owner still holds it.
func (l *Locker) unlock(key string, entry *lockEntry, owner uint64) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	if entry.owner != owner {
		return false
	}
	entry.owner = 0
	entry.timer.Stop()
	<-entry.sem
	l.release(key, entry)
	return true
}

// Held reports whether key is currently locked.
func (l *Locker) Held(key string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	entry, ok := l.locks[key]
	return ok && entry.owner != 0
}

// Len returns the number of keys that are held or waited on.
func (l *Locker) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.locks)
}
