package registry_test

import (
	"context"
	"sync"
	"testing"

	"github.com/aretw0/keel/internal/idgen"
	"github.com/aretw0/keel/pkg/domain"
	"github.com/aretw0/keel/pkg/registry"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// recorder builds actions that append their name to a shared log.
type recorder struct {
	mu  sync.Mutex
	log []string
}

func (r *recorder) action(name string) domain.Action {
	return func(ctx context.Context) error {
		r.mu.Lock()
		defer r.mu.Unlock()
		r.log = append(r.log, name)
		return nil
	}
}

func runAll(t *testing.T, actions []domain.Action) {
	t.Helper()
	for _, a := range actions {
		require.NoError(t, a(context.Background()))
	}
}

func TestActions_RegistrationOrder(t *testing.T) {
	rec := &recorder{}
	reg := registry.NewActions()

	reg.Register(rec.action("a"))
	reg.Register(rec.action("b"))
	reg.Register(rec.action("c"))

	runAll(t, reg.Snapshot())
	assert.Equal(t, []string{"a", "b", "c"}, rec.log)
	assert.Equal(t, 3, reg.Len())
}

func TestActions_DeregisterRemovesFromIteration(t *testing.T) {
	rec := &recorder{}
	reg := registry.NewActions()

	reg.Register(rec.action("a"))
	id := reg.Register(rec.action("b"))
	reg.Register(rec.action("c"))
	reg.Deregister(id)

	runAll(t, reg.Snapshot())
	assert.Equal(t, []string{"a", "c"}, rec.log)
	assert.False(t, reg.Has(id))
}

func TestActions_DeregisterUnknownIsNoop(t *testing.T) {
	reg := registry.NewActions()
	reg.Register(func(ctx context.Context) error { return nil })

	reg.Deregister("does-not-exist")
	reg.Deregister("does-not-exist")

	assert.Equal(t, 1, reg.Len())
}

func TestActions_RegisterDeregisterRoundTrip(t *testing.T) {
	reg := registry.NewActions(registry.WithGenerator(idgen.NewSequence("t")))
	reg.Register(func(ctx context.Context) error { return nil })
	reg.Register(func(ctx context.Context) error { return nil })
	before := reg.IDs()

	id := reg.Register(func(ctx context.Context) error { return nil })
	reg.Deregister(id)

	assert.Equal(t, before, reg.IDs())
	assert.Len(t, reg.Snapshot(), len(before))
}

func TestActions_HandlesAreNeverReused(t *testing.T) {
	reg := registry.NewActions()
	first := reg.Register(func(ctx context.Context) error { return nil })
	reg.Deregister(first)
	second := reg.Register(func(ctx context.Context) error { return nil })

	assert.NotEqual(t, first, second)
}

func TestActions_SnapshotIsolatedFromLaterMutation(t *testing.T) {
	rec := &recorder{}
	reg := registry.NewActions()
	id := reg.Register(rec.action("a"))

	snap := reg.Snapshot()
	reg.Register(rec.action("late"))
	reg.Deregister(id)

	runAll(t, snap)
	assert.Equal(t, []string{"a"}, rec.log)
}

func TestActions_ReentrantRegistration(t *testing.T) {
	reg := registry.NewActions()
	var inner domain.ActionID
	reg.Register(func(ctx context.Context) error {
		// Registering from inside an executing action must not deadlock.
		inner = reg.Register(func(ctx context.Context) error { return nil })
		return nil
	})

	runAll(t, reg.Snapshot())
	assert.True(t, reg.Has(inner))
	assert.Equal(t, 2, reg.Len())
}
