// Package idgen issues the opaque handles returned by action registration.
package idgen

import (
	"fmt"
	"sync/atomic"

	"github.com/aretw0/keel/pkg/domain"
	"github.com/google/uuid"
)

// Generator returns a handle distinct from every handle it returned before.
type Generator interface {
	Next() domain.ActionID
}

// UUID generates random (v4) handles.
type UUID struct{}

// Next returns a new random handle.
func (UUID) Next() domain.ActionID {
	return domain.ActionID(uuid.NewString())
}

// Default is the process-wide generator used when none is injected.
var Default Generator = UUID{}

// Next returns a handle from the default generator.
func Next() domain.ActionID {
	return Default.Next()
}

// Sequence produces predictable handles (prefix-1, prefix-2, ...), useful in tests.
type Sequence struct {
	prefix string
	n      atomic.Uint64
}

// NewSequence creates a Sequence with the given prefix.
func NewSequence(prefix string) *Sequence {
	return &Sequence{prefix: prefix}
}

// Next returns the next handle in the sequence.
func (s *Sequence) Next() domain.ActionID {
	return domain.ActionID(fmt.Sprintf("%s-%d", s.prefix, s.n.Add(1)))
}
