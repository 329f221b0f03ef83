package domain

import (
	"context"
	"time"
)

// EventType defines the category of a controller notification.
type EventType string

const (
	EventReady    EventType = "ready"
	EventRunning  EventType = "running"
	EventShutdown EventType = "shutdown"
	EventError    EventType = "error"
)

// Event is a notification emitted by the controller.
type Event struct {
	Timestamp time.Time `json:"timestamp"`
	Type      EventType `json:"type"`
	// Err is set for EventError, and for EventShutdown when an error triggered it.
	Err error `json:"-"`
}

// NewEvent stamps an event with the current time.
func NewEvent(t EventType, err error) Event {
	return Event{Timestamp: time.Now(), Type: t, Err: err}
}

// PhaseEvent describes the start or end of a phase.
type PhaseEvent struct {
	Phase    Phase
	Actions  int
	Duration time.Duration
	Err      error
}

// ActionEvent describes the outcome of a single action within a phase.
type ActionEvent struct {
	Phase    Phase
	Index    int
	Duration time.Duration
	Err      error
}

// StateEvent describes a state transition.
type StateEvent struct {
	From State
	To   State
}

// LifecycleHooks defines callbacks for controller observability.
// Hooks are observational only and never change control flow.
type LifecycleHooks struct {
	OnStateChange func(context.Context, *StateEvent)
	OnPhaseStart  func(context.Context, *PhaseEvent)
	OnPhaseEnd    func(context.Context, *PhaseEvent)
	OnActionDone  func(context.Context, *ActionEvent)
	OnShutdown    func(context.Context, error)
}

// Merge returns hooks that call h first and then other, for every callback set
// on either side.
func (h LifecycleHooks) Merge(other LifecycleHooks) LifecycleHooks {
	return LifecycleHooks{
		OnStateChange: chain(h.OnStateChange, other.OnStateChange),
		OnPhaseStart:  chain(h.OnPhaseStart, other.OnPhaseStart),
		OnPhaseEnd:    chain(h.OnPhaseEnd, other.OnPhaseEnd),
		OnActionDone:  chain(h.OnActionDone, other.OnActionDone),
		OnShutdown:    chain(h.OnShutdown, other.OnShutdown),
	}
}

func chain[T any](a, b func(context.Context, T)) func(context.Context, T) {
	if a == nil {
		return b
	}
	if b == nil {
		return a
	}
	return func(ctx context.Context, v T) {
		a(ctx, v)
		b(ctx, v)
	}
}
