package testutils

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"
	"testing"
	"time"

	"github.com/aretw0/keel/internal/logging"
	"github.com/aretw0/keel/internal/sequence"
	"github.com/aretw0/keel/pkg/config"
	"github.com/aretw0/keel/pkg/domain"
	"github.com/aretw0/keel/pkg/ports"
	"github.com/aretw0/keel/pkg/registry"
	"github.com/stretchr/testify/require"
)

// FakeHost implements ports.Host without any process side effects.
// Tests drive the phases explicitly with RunPhase.
type FakeHost struct {
	Launch   *registry.Actions
	Run      *registry.Actions
	Shutdown *registry.Actions

	Modules map[string]any

	cfg    *config.Snapshot
	logger *slog.Logger

	mu     sync.Mutex
	errors []error
	faults []error
}

var _ ports.Host = (*FakeHost)(nil)

// NewFakeHost creates a host whose configuration is built from values.
func NewFakeHost(values map[string]any) *FakeHost {
	loader := config.NewLoader()
	loader.AddConfig(values)
	return &FakeHost{
		Launch:   registry.NewActions(),
		Run:      registry.NewActions(),
		Shutdown: registry.NewActions(),
		Modules:  make(map[string]any),
		cfg:      loader.Snapshot(),
		logger:   logging.NewNop(),
	}
}

func (h *FakeHost) RegisterLaunchAction(a domain.Action) domain.ActionID {
	return h.Launch.Register(a)
}

func (h *FakeHost) RegisterRunAction(a domain.Action) domain.ActionID {
	return h.Run.Register(a)
}

func (h *FakeHost) RegisterShutdownAction(a domain.Action) domain.ActionID {
	return h.Shutdown.Register(a)
}

func (h *FakeHost) DeregisterLaunchAction(id domain.ActionID)   { h.Launch.Deregister(id) }
func (h *FakeHost) DeregisterRunAction(id domain.ActionID)      { h.Run.Deregister(id) }
func (h *FakeHost) DeregisterShutdownAction(id domain.ActionID) { h.Shutdown.Deregister(id) }

func (h *FakeHost) Config() *config.Snapshot { return h.cfg }
func (h *FakeHost) Logger() *slog.Logger     { return h.logger }

func (h *FakeHost) Module(name string) (any, error) {
	if m, ok := h.Modules[name]; ok {
		return m, nil
	}
	return nil, &domain.LookupError{Module: name}
}

func (h *FakeHost) EmitError(err error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.errors = append(h.errors, err)
}

func (h *FakeHost) Go(fn func()) {
	go func() {
		defer func() {
			if r := recover(); r != nil {
				h.mu.Lock()
				h.faults = append(h.faults, &domain.FaultError{Value: r, Stack: debug.Stack()})
				h.mu.Unlock()
			}
		}()
		fn()
	}()
}

// Errors returns the errors emitted so far.
func (h *FakeHost) Errors() []error {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]error(nil), h.errors...)
}

// Faults returns the panics recovered by Go so far.
func (h *FakeHost) Faults() []error {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]error(nil), h.faults...)
}

// RunPhase executes the registered actions of a phase.
func (h *FakeHost) RunPhase(ctx context.Context, phase domain.Phase) error {
	var reg *registry.Actions
	switch phase {
	case domain.PhaseLaunch:
		reg = h.Launch
	case domain.PhaseRun:
		reg = h.Run
	case domain.PhaseShutdown:
		reg = h.Shutdown
	default:
		return fmt.Errorf("unknown phase %s", phase)
	}
	opts := []sequence.Option{sequence.ForPhase(phase)}
	if phase == domain.PhaseShutdown {
		opts = append(opts, sequence.ContinueOnError())
	}
	return sequence.RunSync(ctx, reg.Snapshot(), opts...)
}

// WaitFor polls cond until it holds or the timeout expires, failing the test.
func WaitFor(t *testing.T, timeout time.Duration, cond func() bool, msg string) {
	t.Helper()
	require.Eventually(t, cond, timeout, 5*time.Millisecond, msg)
}
