package ports

import (
	"log/slog"

	"github.com/aretw0/keel/pkg/config"
	"github.com/aretw0/keel/pkg/domain"
)

// ActionRegistrar is the part of the controller that accepts phase actions.
// Every method is safe to call from module factories and from running actions.
type ActionRegistrar interface {
	RegisterLaunchAction(action domain.Action) domain.ActionID
	RegisterRunAction(action domain.Action) domain.ActionID
	RegisterShutdownAction(action domain.Action) domain.ActionID

	DeregisterLaunchAction(id domain.ActionID)
	DeregisterRunAction(id domain.ActionID)
	DeregisterShutdownAction(id domain.ActionID)
}

// Host is the view of the controller handed to module factories.
type Host interface {
	ActionRegistrar

	// Config returns the immutable configuration snapshot.
	Config() *config.Snapshot

	// Logger returns the controller logger.
	Logger() *slog.Logger

	// Module returns a module loaded before the caller, or a *domain.LookupError.
	Module(name string) (any, error)

	// EmitError reports a collaborator failure; it triggers shutdown.
	EmitError(err error)

	// Go runs fn on a new goroutine whose panics trigger shutdown.
	Go(fn func())
}

// Notifier is implemented by hosts that publish lifecycle events.
type Notifier interface {
	On(t domain.EventType, handler func(domain.Event)) (unsubscribe func())
}
