package observability

import (
	"context"
	"errors"

	"github.com/aretw0/keel/pkg/domain"
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the controller collectors.
type Metrics struct {
	PhaseDuration *prometheus.HistogramVec
	Actions       *prometheus.CounterVec
	State         *prometheus.GaugeVec
	Shutdowns     *prometheus.CounterVec
}

// NewMetrics creates the collectors and registers them on reg.
// A nil reg leaves them unregistered.
func NewMetrics(reg prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		PhaseDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "keel_phase_duration_seconds",
				Help:    "Duration of lifecycle phases",
				Buckets: prometheus.ExponentialBuckets(0.001, 4, 10),
			},
			[]string{"phase", "outcome"},
		),
		Actions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "keel_actions_total",
				Help: "Total number of executed phase actions",
			},
			[]string{"phase", "outcome"},
		),
		State: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "keel_state",
				Help: "Current controller state (1 for the active state)",
			},
			[]string{"state"},
		),
		Shutdowns: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "keel_shutdowns_total",
				Help: "Shutdowns by reason",
			},
			[]string{"reason"},
		),
	}

	if reg != nil {
		for _, c := range []prometheus.Collector{m.PhaseDuration, m.Actions, m.State, m.Shutdowns} {
			if err := reg.Register(c); err != nil {
				return nil, err
			}
		}
	}

	m.setState(domain.StateConstructing)
	return m, nil
}

// Hooks returns lifecycle hooks that record into m.
func (m *Metrics) Hooks() domain.LifecycleHooks {
	return domain.LifecycleHooks{
		OnStateChange: func(_ context.Context, e *domain.StateEvent) {
			m.setState(e.To)
		},
		OnPhaseEnd: func(_ context.Context, e *domain.PhaseEvent) {
			m.PhaseDuration.WithLabelValues(string(e.Phase), outcome(e.Err)).Observe(e.Duration.Seconds())
		},
		OnActionDone: func(_ context.Context, e *domain.ActionEvent) {
			m.Actions.WithLabelValues(string(e.Phase), outcome(e.Err)).Inc()
		},
		OnShutdown: func(_ context.Context, err error) {
			m.Shutdowns.WithLabelValues(Reason(err)).Inc()
		},
	}
}

func (m *Metrics) setState(current domain.State) {
	for _, s := range domain.States() {
		v := 0.0
		if s == current {
			v = 1
		}
		m.State.WithLabelValues(s.String()).Set(v)
	}
}

func outcome(err error) string {
	if err != nil {
		return "failure"
	}
	return "success"
}

// Reason classifies the error that triggered a shutdown.
func Reason(err error) string {
	switch {
	case err == nil:
		return "clean"
	case errors.Is(err, domain.ErrFault):
		return "fault"
	case errors.Is(err, domain.ErrAction):
		return "action"
	case errors.Is(err, domain.ErrModuleResolution), errors.Is(err, domain.ErrModuleInitialization):
		return "module"
	}
	return "error"
}
