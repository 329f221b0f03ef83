package domain

import (
	"errors"
	"fmt"
	"log/slog"
)

// Sentinels matched by the typed errors below, for use with errors.Is.
var (
	// ErrConfiguration is returned when required input (the application directory) is missing
	// or the configuration cannot be assembled.
	ErrConfiguration = errors.New("configuration error")

	// ErrModuleResolution is returned when a configured module name has no factory.
	ErrModuleResolution = errors.New("module resolution error")

	// ErrModuleInitialization is returned when a module factory fails or panics.
	ErrModuleInitialization = errors.New("module initialization error")

	// ErrNotReady is returned when Run is called outside the ready state.
	ErrNotReady = errors.New("not ready")

	// ErrModuleNotLoaded is returned when asking for a module that is not loaded.
	ErrModuleNotLoaded = errors.New("module not loaded")

	// ErrAction is matched by every failure reported by a registered action.
	ErrAction = errors.New("action failed")

	// ErrFault is matched by recovered panics.
	ErrFault = errors.New("uncaught fault")
)

// ConfigurationError reports missing or invalid configuration input.
type ConfigurationError struct {
	Reason string
	Err    error
}

func (e *ConfigurationError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("configuration error: %s: %v", e.Reason, e.Err)
	}
	return "configuration error: " + e.Reason
}

func (e *ConfigurationError) Unwrap() error        { return e.Err }
func (e *ConfigurationError) Is(target error) bool { return target == ErrConfiguration }

// ModuleResolutionError reports a module name without a registered factory.
type ModuleResolutionError struct {
	Module string
}

func (e *ModuleResolutionError) Error() string {
	return fmt.Sprintf("module resolution error: unknown module %q", e.Module)
}

func (e *ModuleResolutionError) Is(target error) bool { return target == ErrModuleResolution }

// ModuleInitializationError reports a module factory that failed.
type ModuleInitializationError struct {
	Module string
	Err    error
}

func (e *ModuleInitializationError) Error() string {
	return fmt.Sprintf("module initialization error: %s: %v", e.Module, e.Err)
}

func (e *ModuleInitializationError) Unwrap() error        { return e.Err }
func (e *ModuleInitializationError) Is(target error) bool { return target == ErrModuleInitialization }

// LifecycleError reports an operation invoked in the wrong state.
type LifecycleError struct {
	Op    string
	State State
	Err   error
}

func (e *LifecycleError) Error() string {
	return fmt.Sprintf("lifecycle error: %s in state %s: %v", e.Op, e.State, e.Err)
}

func (e *LifecycleError) Unwrap() error { return e.Err }

// LookupError reports a request for a module that was never loaded.
type LookupError struct {
	Module string
}

func (e *LookupError) Error() string {
	return fmt.Sprintf("lookup error: module %q is not loaded", e.Module)
}

func (e *LookupError) Is(target error) bool { return target == ErrModuleNotLoaded }

// ActionError wraps the failure reported by an action of a phase.
type ActionError struct {
	Phase Phase
	Index int
	Err   error
}

func (e *ActionError) Error() string {
	return fmt.Sprintf("%s action #%d failed: %v", e.Phase, e.Index, e.Err)
}

func (e *ActionError) Unwrap() error        { return e.Err }
func (e *ActionError) Is(target error) bool { return target == ErrAction }

// FaultError is a recovered panic together with the stack it was raised on.
type FaultError struct {
	Value any
	Stack []byte
}

func (e *FaultError) Error() string {
	return fmt.Sprintf("uncaught fault: %v", e.Value)
}

// Unwrap exposes the panic value when it was itself an error.
func (e *FaultError) Unwrap() error {
	if err, ok := e.Value.(error); ok {
		return err
	}
	return nil
}

func (e *FaultError) Is(target error) bool { return target == ErrFault }

// LogValue renders the fault with its stack.
func (e *FaultError) LogValue() slog.Value {
	return slog.GroupValue(
		slog.String("fault", fmt.Sprint(e.Value)),
		slog.String("stack", string(e.Stack)),
	)
}
