package domain

import "context"

// ActionID is the opaque handle returned when an action is registered.
type ActionID string

// Action is a unit of asynchronous work executed by a phase.
// Returning nil reports success, any other value reports failure.
// The context is cancelled when the phase is abandoned by a forced shutdown.
type Action func(ctx context.Context) error

// Phase identifies one of the three ordered action registries.
type Phase string

const (
	PhaseLaunch   Phase = "launch"
	PhaseRun      Phase = "run"
	PhaseShutdown Phase = "shutdown"
)

// Phases lists the phases in execution order.
var Phases = []Phase{PhaseLaunch, PhaseRun, PhaseShutdown}
