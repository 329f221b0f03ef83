package events

import (
	"errors"
	"testing"

	"github.com/aretw0/keel/pkg/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBus_DeliversInSubscriptionOrder(t *testing.T) {
	bus := NewBus(nil)
	var got []string

	bus.Subscribe(domain.EventReady, func(domain.Event) { got = append(got, "first") })
	bus.Subscribe(domain.EventReady, func(domain.Event) { got = append(got, "second") })
	bus.Subscribe(domain.EventRunning, func(domain.Event) { got = append(got, "other") })

	bus.Publish(domain.NewEvent(domain.EventReady, nil))
	assert.Equal(t, []string{"first", "second"}, got)
}

func TestBus_Unsubscribe(t *testing.T) {
	bus := NewBus(nil)
	calls := 0
	unsubscribe := bus.Subscribe(domain.EventShutdown, func(domain.Event) { calls++ })

	bus.Publish(domain.NewEvent(domain.EventShutdown, nil))
	unsubscribe()
	unsubscribe()
	bus.Publish(domain.NewEvent(domain.EventShutdown, nil))

	assert.Equal(t, 1, calls)
	assert.Equal(t, 0, bus.Count(domain.EventShutdown))
}

func TestBus_CarriesError(t *testing.T) {
	bus := NewBus(nil)
	boom := errors.New("boom")
	var got error
	bus.Subscribe(domain.EventError, func(e domain.Event) { got = e.Err })

	bus.Publish(domain.NewEvent(domain.EventError, boom))
	assert.Same(t, boom, got)
}

func TestBus_HandlerPanicGoesToFaultCallback(t *testing.T) {
	var fault *domain.FaultError
	bus := NewBus(func(f *domain.FaultError) { fault = f })
	reached := false

	bus.Subscribe(domain.EventReady, func(domain.Event) { panic("handler blew up") })
	bus.Subscribe(domain.EventReady, func(domain.Event) { reached = true })

	bus.Publish(domain.NewEvent(domain.EventReady, nil))

	require.NotNil(t, fault)
	assert.Equal(t, "handler blew up", fault.Value)
	assert.True(t, reached, "later handlers still run")
}

func TestBus_SubscribeDuringPublish(t *testing.T) {
	bus := NewBus(nil)
	late := 0
	bus.Subscribe(domain.EventReady, func(domain.Event) {
		bus.Subscribe(domain.EventReady, func(domain.Event) { late++ })
	})

	bus.Publish(domain.NewEvent(domain.EventReady, nil))
	assert.Equal(t, 0, late, "handlers added during a publish wait for the next one")
}
