package keel

import (
	"log/slog"
	"os"

	"github.com/aretw0/keel/internal/signals"
	"github.com/aretw0/keel/pkg/config"
	"github.com/aretw0/keel/pkg/domain"
	"github.com/aretw0/keel/pkg/module"
	"github.com/prometheus/client_golang/prometheus"
)

// Option defines a functional option for configuring the Controller.
type Option func(*options)

type options struct {
	configFile string
	overrides  map[string]any
	envPrefix  string
	catalog    *module.Catalog
	logger     *slog.Logger
	hooks      domain.LifecycleHooks
	exit       func(int)
	metrics    *prometheus.Registry
	signalOpts []signals.Option

	launch   []domain.Action
	run      []domain.Action
	shutdown []domain.Action
	handlers []handler
}

type handler struct {
	event domain.EventType
	fn    func(domain.Event)
}

func defaultOptions() options {
	return options{
		envPrefix: config.DefaultEnvPrefix,
		catalog:   module.NewCatalog(),
		exit:      os.Exit,
	}
}

// WithConfigFile merges a YAML, JSON or TOML file into the configuration.
// A missing or unreadable file makes New fail with a ConfigurationError.
func WithConfigFile(path string) Option {
	return func(o *options) {
		o.configFile = path
	}
}

// WithOverrides sets values that take precedence over the file and the environment.
// Nested maps address nested keys. Repeated calls are merged.
func WithOverrides(values map[string]any) Option {
	return func(o *options) {
		if o.overrides == nil {
			o.overrides = make(map[string]any, len(values))
		}
		for k, v := range values {
			o.overrides[k] = v
		}
	}
}

// WithEnvPrefix changes the environment prefix (default "KEEL").
// It also names the exit suppression flag, <PREFIX>_NO_EXIT.
func WithEnvPrefix(prefix string) Option {
	return func(o *options) {
		o.envPrefix = prefix
	}
}

// WithCatalog sets the factories the configured module names resolve against.
func WithCatalog(c *module.Catalog) Option {
	return func(o *options) {
		o.catalog = c
	}
}

// WithLogger sets a custom structured logger for the controller.
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

// WithLifecycleHooks registers observability hooks. Repeated calls are merged.
func WithLifecycleHooks(hooks domain.LifecycleHooks) Option {
	return func(o *options) {
		o.hooks = o.hooks.Merge(hooks)
	}
}

// WithMetrics records controller metrics on reg and exposes it through Gatherer.
func WithMetrics(reg *prometheus.Registry) Option {
	return func(o *options) {
		o.metrics = reg
	}
}

// WithExitFunc replaces os.Exit as the final step of shutdown.
func WithExitFunc(exit func(code int)) Option {
	return func(o *options) {
		o.exit = exit
	}
}

// WithSignalSource delivers the signals received on ch instead of the process signals.
func WithSignalSource(ch <-chan os.Signal) Option {
	return func(o *options) {
		o.signalOpts = append(o.signalOpts, signals.WithSource(ch), signals.WithoutOS())
	}
}

// WithHandler subscribes fn to events of type t before the launch phase is
// scheduled. Use it for EventReady: a subscription made with On after New returns
// may miss the notification.
func WithHandler(t domain.EventType, fn func(domain.Event)) Option {
	return func(o *options) {
		o.handlers = append(o.handlers, handler{event: t, fn: fn})
	}
}

// WithLaunchAction registers a launch action before any module is loaded.
func WithLaunchAction(action domain.Action) Option {
	return func(o *options) {
		o.launch = append(o.launch, action)
	}
}

// WithRunAction registers a run action before any module is loaded.
func WithRunAction(action domain.Action) Option {
	return func(o *options) {
		o.run = append(o.run, action)
	}
}

// WithShutdownAction registers a shutdown action before any module is loaded.
func WithShutdownAction(action domain.Action) Option {
	return func(o *options) {
		o.shutdown = append(o.shutdown, action)
	}
}
