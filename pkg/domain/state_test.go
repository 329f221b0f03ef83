package domain_test

import (
	"testing"

	"github.com/aretw0/keel/pkg/domain"
	"github.com/stretchr/testify/assert"
)

func TestState_HappyPathTransitions(t *testing.T) {
	states := domain.States()
	for i := 0; i < len(states)-1; i++ {
		from, to := states[i], states[i+1]
		assert.True(t, from.CanTransition(to), "%s -> %s", from, to)
	}
}

func TestState_ShutdownFromAnyLiveState(t *testing.T) {
	for _, s := range domain.States() {
		if s.IsFinal() {
			assert.False(t, s.CanTransition(domain.StateShuttingDown), s.String())
			continue
		}
		assert.True(t, s.CanTransition(domain.StateShuttingDown), s.String())
	}
}

func TestState_IllegalTransitions(t *testing.T) {
	assert.False(t, domain.StateConstructing.CanTransition(domain.StateReady))
	assert.False(t, domain.StateReady.CanTransition(domain.StateRunning))
	assert.False(t, domain.StateTerminated.CanTransition(domain.StateReady))
	assert.False(t, domain.StateRunning.CanTransition(domain.StateReady))
}

func TestState_String(t *testing.T) {
	assert.Equal(t, "ready", domain.StateReady.String())
	assert.Equal(t, "shutting_down", domain.StateShuttingDown.String())
	assert.Equal(t, "unknown", domain.State(99).String())
}
