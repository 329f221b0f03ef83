// Package sequence executes the actions of one phase strictly one at a time,
// in order, reporting a single terminal result.
package sequence

import (
	"context"
	"errors"
	"runtime/debug"
	"time"

	"github.com/aretw0/keel/pkg/domain"
)

// Observer is notified after each action completes.
type Observer func(ctx context.Context, evt *domain.ActionEvent)

type config struct {
	phase           domain.Phase
	continueOnError bool
	observer        Observer
}

// Option configures a run.
type Option func(*config)

// ForPhase labels errors and events with the given phase.
func ForPhase(p domain.Phase) Option {
	return func(c *config) {
		c.phase = p
	}
}

// ContinueOnError keeps executing after a failed action. Failures are joined and
// reported at the end. Cancellation of the context still stops the run.
func ContinueOnError() Option {
	return func(c *config) {
		c.continueOnError = true
	}
}

// WithObserver registers a callback invoked after every action.
func WithObserver(o Observer) Option {
	return func(c *config) {
		c.observer = o
	}
}

// Run executes actions in a new goroutine and returns a channel that receives
// exactly one value (nil on success) before being closed.
func Run(ctx context.Context, actions []domain.Action, opts ...Option) <-chan error {
	done := make(chan error, 1)
	go func() {
		defer close(done)
		done <- RunSync(ctx, actions, opts...)
	}()
	return done
}

// RunSync executes actions on the calling goroutine.
//
// Action N+1 is started only after action N returned. The first failure stops the
// run unless ContinueOnError is set. A cancelled context stops the run before the
// next action starts, abandoning the remaining ones.
func RunSync(ctx context.Context, actions []domain.Action, opts ...Option) error {
	cfg := config{}
	for _, opt := range opts {
		opt(&cfg)
	}

	var failures []error
	for i, action := range actions {
		if err := ctx.Err(); err != nil {
			return errors.Join(append(failures, err)...)
		}

		start := time.Now()
		err := invoke(ctx, action)
		if err != nil {
			err = &domain.ActionError{Phase: cfg.phase, Index: i, Err: err}
		}

		if cfg.observer != nil {
			cfg.observer(ctx, &domain.ActionEvent{
				Phase:    cfg.phase,
				Index:    i,
				Duration: time.Since(start),
				Err:      err,
			})
		}

		if err == nil {
			continue
		}
		if !cfg.continueOnError {
			return err
		}
		failures = append(failures, err)
	}

	return errors.Join(failures...)
}

// invoke calls the action and converts a panic into a FaultError.
func invoke(ctx context.Context, action domain.Action) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &domain.FaultError{Value: r, Stack: debug.Stack()}
		}
	}()
	if action == nil {
		return nil
	}
	return action(ctx)
}
