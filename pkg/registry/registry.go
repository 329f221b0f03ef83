// Package registry provides the ordered action registries used by each lifecycle phase.
package registry

import (
	"sync"

	"github.com/aretw0/keel/internal/idgen"
	"github.com/aretw0/keel/pkg/domain"
)

// Actions is an ordered collection of actions keyed by handle.
// Iteration order is registration order. It is safe for concurrent use, including
// registration from inside an executing action.
type Actions struct {
	mu      sync.RWMutex
	order   []domain.ActionID
	actions map[domain.ActionID]domain.Action
	ids     idgen.Generator
}

// Option configures an Actions registry.
type Option func(*Actions)

// WithGenerator overrides the handle generator.
func WithGenerator(g idgen.Generator) Option {
	return func(a *Actions) {
		a.ids = g
	}
}

// NewActions creates a new empty registry.
func NewActions(opts ...Option) *Actions {
	a := &Actions{
		actions: make(map[domain.ActionID]domain.Action),
		ids:     idgen.Default,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Register stores the action under a freshly generated handle and returns it.
func (a *Actions) Register(action domain.Action) domain.ActionID {
	id := a.ids.Next()

	a.mu.Lock()
	defer a.mu.Unlock()
	a.actions[id] = action
	a.order = append(a.order, id)
	return id
}

// Deregister removes the action with the given handle.
// Unknown handles are ignored.
func (a *Actions) Deregister(id domain.ActionID) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if _, ok := a.actions[id]; !ok {
		return
	}
	delete(a.actions, id)
	for i, existing := range a.order {
		if existing == id {
			a.order = append(a.order[:i:i], a.order[i+1:]...)
			break
		}
	}
}

// Snapshot returns the registered actions in registration order, as they are at
// the moment of the call. Later changes to the registry do not affect the result.
func (a *Actions) Snapshot() []domain.Action {
	a.mu.RLock()
	defer a.mu.RUnlock()

	out := make([]domain.Action, 0, len(a.order))
	for _, id := range a.order {
		out = append(out, a.actions[id])
	}
	return out
}

// IDs returns the registered handles in registration order.
func (a *Actions) IDs() []domain.ActionID {
	a.mu.RLock()
	defer a.mu.RUnlock()

	out := make([]domain.ActionID, len(a.order))
	copy(out, a.order)
	return out
}

// Len returns the number of registered actions.
func (a *Actions) Len() int {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return len(a.order)
}

// Has reports whether the handle is registered.
func (a *Actions) Has(id domain.ActionID) bool {
	a.mu.RLock()
	defer a.mu.RUnlock()
	_, ok := a.actions[id]
	return ok
}
