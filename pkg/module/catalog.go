// Package module resolves configured module names to factories and instantiates them.
//
// Modules are registered statically in a Catalog by the host application; nothing is
// looked up by path at runtime.
package module

import (
	"sort"
	"sync"

	"github.com/aretw0/keel/pkg/ports"
)

// Instance is an opaque module value. Other modules retrieve it by name and assert
// it to the type they expect.
type Instance = any

// Factory constructs a module. It typically registers launch, run and shutdown
// actions on the host before returning.
type Factory func(host ports.Host) (Instance, error)

// Entry describes a registered module.
type Entry struct {
	Name        string
	Factory     Factory
	Description string
}

// EntryOption configures a catalog entry.
type EntryOption func(*Entry)

// WithDescription attaches a markdown description shown by `keel modules`.
func WithDescription(markdown string) EntryOption {
	return func(e *Entry) {
		e.Description = markdown
	}
}

// Catalog maps module names to factories.
type Catalog struct {
	mu      sync.RWMutex
	entries map[string]Entry
}

// NewCatalog creates a new empty catalog.
func NewCatalog() *Catalog {
	return &Catalog{
		entries: make(map[string]Entry),
	}
}

// Register adds a factory to the catalog.
// If a module with the same name exists, it is overwritten.
func (c *Catalog) Register(name string, factory Factory, opts ...EntryOption) {
	entry := Entry{Name: name, Factory: factory}
	for _, opt := range opts {
		opt(&entry)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[name] = entry
}

// Lookup returns the factory registered under name.
func (c *Catalog) Lookup(name string) (Factory, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	entry, ok := c.entries[name]
	if !ok || entry.Factory == nil {
		return nil, false
	}
	return entry.Factory, true
}

// Names returns the registered module names, sorted.
func (c *Catalog) Names() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()

	names := make([]string, 0, len(c.entries))
	for name := range c.entries {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Entries returns every entry, sorted by name.
func (c *Catalog) Entries() []Entry {
	names := c.Names()

	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]Entry, 0, len(names))
	for _, name := range names {
		out = append(out, c.entries[name])
	}
	return out
}
