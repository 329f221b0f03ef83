package domain

// State is the position of the controller in its lifecycle.
type State int

const (
	StateConstructing State = iota
	StateLoadingModules
	StateRunningLaunchActions
	StateReady
	StateRunningRunActions
	StateRunning
	StateShuttingDown
	StateTerminated
)

var stateNames = map[State]string{
	StateConstructing:         "constructing",
	StateLoadingModules:       "loading_modules",
	StateRunningLaunchActions: "running_launch_actions",
	StateReady:                "ready",
	StateRunningRunActions:    "running_run_actions",
	StateRunning:              "running",
	StateShuttingDown:         "shutting_down",
	StateTerminated:           "terminated",
}

// String returns the snake_case name of the state.
func (s State) String() string {
	if name, ok := stateNames[s]; ok {
		return name
	}
	return "unknown"
}

// States returns every state in lifecycle order.
func States() []State {
	return []State{
		StateConstructing,
		StateLoadingModules,
		StateRunningLaunchActions,
		StateReady,
		StateRunningRunActions,
		StateRunning,
		StateShuttingDown,
		StateTerminated,
	}
}

// IsFinal reports whether the controller can no longer leave the state through
// a regular transition (only shutdown remains).
func (s State) IsFinal() bool {
	return s == StateShuttingDown || s == StateTerminated
}

// CanTransition reports whether moving from s to next is a legal edge of the
// lifecycle. Shutdown is reachable from every state that is not already final.
func (s State) CanTransition(next State) bool {
	if next == StateShuttingDown {
		return !s.IsFinal()
	}
	switch s {
	case StateConstructing:
		return next == StateLoadingModules
	case StateLoadingModules:
		return next == StateRunningLaunchActions
	case StateRunningLaunchActions:
		return next == StateReady
	case StateReady:
		return next == StateRunningRunActions
	case StateRunningRunActions:
		return next == StateRunning
	case StateShuttingDown:
		return next == StateTerminated
	}
	return false
}
