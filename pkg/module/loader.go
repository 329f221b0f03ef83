package module

import (
	"fmt"
	"log/slog"
	"runtime/debug"

	"github.com/aretw0/keel/internal/logging"
	"github.com/aretw0/keel/pkg/domain"
	"github.com/aretw0/keel/pkg/ports"
)

// Set holds loaded module instances in load order.
type Set struct {
	order     []string
	instances map[string]Instance
}

// NewSet creates an empty set.
func NewSet() *Set {
	return &Set{instances: make(map[string]Instance)}
}

// Get returns the instance loaded under name.
func (s *Set) Get(name string) (Instance, bool) {
	inst, ok := s.instances[name]
	return inst, ok
}

// Names returns the loaded module names in load order.
func (s *Set) Names() []string {
	return append([]string(nil), s.order...)
}

// Len returns the number of loaded modules.
func (s *Set) Len() int {
	return len(s.order)
}

func (s *Set) add(name string, inst Instance) {
	s.order = append(s.order, name)
	s.instances[name] = inst
}

// Loader instantiates modules from a catalog.
type Loader struct {
	catalog *Catalog
	logger  *slog.Logger
	loaded  *Set
}

// NewLoader creates a loader writing into an empty Set.
func NewLoader(catalog *Catalog, logger *slog.Logger) *Loader {
	if catalog == nil {
		catalog = NewCatalog()
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Loader{catalog: catalog, logger: logger, loaded: NewSet()}
}

// Loaded returns the set being filled. Instances become visible as soon as their
// factory returns, so a factory can look up the modules loaded before it.
func (l *Loader) Loaded() *Set {
	return l.loaded
}

// LoadAll resolves and constructs each named module, in order.
//
// The first failure stops loading: the remaining names are not attempted and the
// error is a *domain.ModuleResolutionError or *domain.ModuleInitializationError.
// A name listed twice is loaded once.
func (l *Loader) LoadAll(names []string, host ports.Host) (*Set, error) {
	l.logger.Info("loading modules", "count", len(names))

	for _, name := range names {
		if _, dup := l.loaded.Get(name); dup {
			l.logger.Warn("module listed twice, skipping", "module", name)
			continue
		}

		factory, ok := l.catalog.Lookup(name)
		if name == "" || !ok {
			return l.loaded, &domain.ModuleResolutionError{Module: name}
		}

		inst, err := construct(factory, host)
		if err != nil {
			return l.loaded, &domain.ModuleInitializationError{Module: name, Err: err}
		}

		l.loaded.add(name, inst)
		l.logger.Info(fmt.Sprintf("loaded module [%s]", name))
	}

	l.logger.Info("modules loaded")
	return l.loaded, nil
}

// LoadAll is a convenience wrapper around Loader.LoadAll.
func LoadAll(catalog *Catalog, names []string, host ports.Host, logger *slog.Logger) (*Set, error) {
	return NewLoader(catalog, logger).LoadAll(names, host)
}

func construct(factory Factory, host ports.Host) (inst Instance, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &domain.FaultError{Value: r, Stack: debug.Stack()}
		}
	}()
	return factory(host)
}
