package observability

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/aretw0/keel/pkg/domain"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetrics_RecordsThroughHooks(t *testing.T) {
	reg := prometheus.NewRegistry()
	m, err := NewMetrics(reg)
	require.NoError(t, err)

	hooks := m.Hooks()
	ctx := context.Background()

	hooks.OnStateChange(ctx, &domain.StateEvent{From: domain.StateRunningLaunchActions, To: domain.StateReady})
	hooks.OnActionDone(ctx, &domain.ActionEvent{Phase: domain.PhaseLaunch})
	hooks.OnActionDone(ctx, &domain.ActionEvent{Phase: domain.PhaseLaunch, Err: errors.New("x")})
	hooks.OnPhaseEnd(ctx, &domain.PhaseEvent{Phase: domain.PhaseLaunch, Duration: time.Millisecond})
	hooks.OnShutdown(ctx, nil)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.State.WithLabelValues("ready")))
	assert.Equal(t, 0.0, testutil.ToFloat64(m.State.WithLabelValues("constructing")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Actions.WithLabelValues("launch", "success")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Actions.WithLabelValues("launch", "failure")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Shutdowns.WithLabelValues("clean")))
	assert.Equal(t, 1, testutil.CollectAndCount(m.PhaseDuration))
}

func TestMetrics_DuplicateRegistrationFails(t *testing.T) {
	reg := prometheus.NewRegistry()
	_, err := NewMetrics(reg)
	require.NoError(t, err)

	_, err = NewMetrics(reg)
	assert.Error(t, err)
}

func TestReason(t *testing.T) {
	assert.Equal(t, "clean", Reason(nil))
	assert.Equal(t, "fault", Reason(&domain.FaultError{Value: "x"}))
	assert.Equal(t, "action", Reason(&domain.ActionError{Err: errors.New("x")}))
	assert.Equal(t, "module", Reason(&domain.ModuleResolutionError{Module: "x"}))
	assert.Equal(t, "error", Reason(errors.New("x")))
}
