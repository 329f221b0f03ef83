package ports

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// RunLockerContract runs a suite of tests to verify that a DistributedLocker
// implementation adheres to the defined interface contract.
// newLocker must return lockers that contend on the same backend.
func RunLockerContract(t *testing.T, newLocker func() DistributedLocker) {
	ctx := context.Background()
	key := "contract-" + time.Now().Format("20060102150405.000000")

	t.Run("Lock and Unlock", func(t *testing.T) {
		locker := newLocker()

		unlock, err := locker.Lock(ctx, key, 5*time.Second)
		require.NoError(t, err, "Lock should not return error")
		require.NotNil(t, unlock)

		assert.NoError(t, unlock(ctx), "Unlock should not return error")
	})

	t.Run("Contention blocks until context is done", func(t *testing.T) {
		holder, waiter := newLocker(), newLocker()

		unlock, err := holder.Lock(ctx, key, 5*time.Second)
		require.NoError(t, err)
		defer unlock(ctx)

		waitCtx, cancel := context.WithTimeout(ctx, 300*time.Millisecond)
		defer cancel()

		_, err = waiter.Lock(waitCtx, key, 5*time.Second)
		assert.ErrorIs(t, err, context.DeadlineExceeded)
	})

	t.Run("Released lock can be reacquired", func(t *testing.T) {
		first, second := newLocker(), newLocker()

		unlock, err := first.Lock(ctx, key, 5*time.Second)
		require.NoError(t, err)
		require.NoError(t, unlock(ctx))

		lockCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
		defer cancel()

		unlock2, err := second.Lock(lockCtx, key, 5*time.Second)
		require.NoError(t, err)
		assert.NoError(t, unlock2(ctx))
	})
}
