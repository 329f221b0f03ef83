package keel

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"runtime/debug"
	"sync"
	"time"

	"github.com/aretw0/keel/internal/events"
	"github.com/aretw0/keel/internal/logging"
	"github.com/aretw0/keel/internal/sequence"
	"github.com/aretw0/keel/internal/signals"
	"github.com/aretw0/keel/pkg/config"
	"github.com/aretw0/keel/pkg/domain"
	"github.com/aretw0/keel/pkg/module"
	"github.com/aretw0/keel/pkg/observability"
	"github.com/aretw0/keel/pkg/ports"
	"github.com/aretw0/keel/pkg/registry"
	"github.com/prometheus/client_golang/prometheus"
)

// Controller orchestrates the launch, run and shutdown phases of an application.
type Controller struct {
	Name string

	cfg      *config.Snapshot
	logger   *slog.Logger
	hooks    domain.LifecycleHooks
	gatherer prometheus.Gatherer
	exit     func(int)
	noExit   bool

	launch   *registry.Actions
	run      *registry.Actions
	shutdown *registry.Actions

	modules *module.Set
	bus     *events.Bus
	signals *signals.Manager

	// phaseCtx is cancelled when shutdown starts, abandoning the in-flight phase.
	phaseCtx    context.Context
	cancelPhase context.CancelFunc

	mu           sync.Mutex
	state        domain.State
	shuttingDown bool
	exitCode     int
	onFault      func(*domain.FaultError)
	unsubscribe  func()

	ready chan struct{}
	done  chan struct{}
}

var _ ports.Host = (*Controller)(nil)

// New creates a controller for the application rooted at appDir.
//
// It assembles the configuration, installs the signal and fault handlers, loads the
// configured modules and schedules the launch phase. A module failure removes the
// handlers again and is returned; the controller must not be used afterwards.
//
// The launch phase may start as soon as New returns. Launch actions and EventReady
// subscriptions therefore belong in module factories or in WithLaunchAction and
// WithHandler; made on the returned controller they can miss the launch.
func New(appDir string, opts ...Option) (*Controller, error) {
	if appDir == "" {
		return nil, &domain.ConfigurationError{Reason: "application directory is required"}
	}

	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}

	absDir, err := filepath.Abs(appDir)
	if err != nil {
		return nil, &domain.ConfigurationError{Reason: "invalid application directory", Err: err}
	}

	cfg, err := loadConfig(absDir, &o)
	if err != nil {
		return nil, err
	}

	if o.metrics != nil {
		m, err := observability.NewMetrics(o.metrics)
		if err != nil {
			return nil, &domain.ConfigurationError{Reason: "registering metrics", Err: err}
		}
		o.hooks = o.hooks.Merge(m.Hooks())
	}

	if o.logger == nil {
		o.logger = logging.NewNop()
	}

	c := &Controller{
		Name:     filepath.Base(absDir),
		cfg:      cfg,
		hooks:    o.hooks,
		exit:     o.exit,
		noExit:   os.Getenv(o.envPrefix+"_NO_EXIT") != "",
		launch:   registry.NewActions(),
		run:      registry.NewActions(),
		shutdown: registry.NewActions(),
		ready:    make(chan struct{}),
		done:     make(chan struct{}),
	}
	c.logger = o.logger.With("app", c.Name)
	if o.metrics != nil {
		c.gatherer = o.metrics
	}
	c.phaseCtx, c.cancelPhase = context.WithCancel(context.Background())

	for _, a := range o.launch {
		c.launch.Register(a)
	}
	for _, a := range o.run {
		c.run.Register(a)
	}
	for _, a := range o.shutdown {
		c.shutdown.Register(a)
	}

	c.bus = events.NewBus(c.handleFault)
	c.unsubscribe = c.bus.Subscribe(domain.EventError, func(evt domain.Event) {
		err := evt.Err
		if err == nil {
			err = errors.New("error event without cause")
		}
		c.Shutdown(err)
	})
	for _, h := range o.handlers {
		c.bus.Subscribe(h.event, h.fn)
	}
	c.signals = signals.NewManager(c.handleSignal, o.signalOpts...)
	c.signals.Start()
	c.mu.Lock()
	c.onFault = func(f *domain.FaultError) { c.Shutdown(f) }
	c.mu.Unlock()

	c.transition(domain.StateConstructing, domain.StateLoadingModules)
	loader := module.NewLoader(o.catalog, c.logger)
	c.modules = loader.Loaded()
	if _, err := loader.LoadAll(cfg.Modules(), c); err != nil {
		c.logger.Error("loading modules failed", "err", err)
		c.removeHandlers()
		c.cancelPhase()
		return nil, err
	}

	go c.launchPhase()
	return c, nil
}

// LoadConfig assembles the configuration New would use for appDir, without
// creating a controller. Only the configuration options are taken into account.
func LoadConfig(appDir string, opts ...Option) (*config.Snapshot, error) {
	if appDir == "" {
		return nil, &domain.ConfigurationError{Reason: "application directory is required"}
	}
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	absDir, err := filepath.Abs(appDir)
	if err != nil {
		return nil, &domain.ConfigurationError{Reason: "invalid application directory", Err: err}
	}
	return loadConfig(absDir, &o)
}

func loadConfig(appDir string, o *options) (*config.Snapshot, error) {
	loader := config.NewLoader()
	if o.configFile != "" {
		if err := loader.AddFile(o.configFile); err != nil {
			return nil, &domain.ConfigurationError{Reason: "reading config file", Err: err}
		}
	}
	loader.AddEnv(o.envPrefix)

	overrides := make(map[string]any, len(o.overrides)+1)
	for k, v := range o.overrides {
		overrides[k] = v
	}
	overrides[config.KeyAppDir] = appDir
	loader.AddConfig(overrides)

	return loader.Snapshot(), nil
}

// Run starts the run phase. It fails with a *domain.LifecycleError unless the
// controller is ready. The phase runs in the background: on success the controller
// becomes running and emits EventRunning, on failure it shuts down.
func (c *Controller) Run() error {
	if !c.transition(domain.StateReady, domain.StateRunningRunActions) {
		return &domain.LifecycleError{Op: "run", State: c.State(), Err: domain.ErrNotReady}
	}

	go func() {
		if err := c.runPhase(c.phaseCtx, domain.PhaseRun, c.run); err != nil {
			c.Shutdown(err)
			return
		}
		if !c.transition(domain.StateRunningRunActions, domain.StateRunning) {
			return
		}
		c.logger.Info("running")
		c.bus.Publish(domain.NewEvent(domain.EventRunning, nil))
	}()
	return nil
}

// Shutdown starts the shutdown sequence and returns immediately.
//
// Only the first call has an effect. A non-nil err is logged and makes the exit
// code 1. Use Wait or Done to observe termination.
func (c *Controller) Shutdown(err error) {
	c.mu.Lock()
	if c.shuttingDown {
		c.mu.Unlock()
		c.logger.Debug("shutdown already in progress", "err", err)
		return
	}
	c.shuttingDown = true
	from := c.state
	c.state = domain.StateShuttingDown
	c.mu.Unlock()

	c.stateChanged(from, domain.StateShuttingDown)
	c.cancelPhase()

	go c.terminate(err)
}

func (c *Controller) terminate(cause error) {
	c.logger.Info("shutting down!")
	c.logCause(cause)
	c.bus.Publish(domain.NewEvent(domain.EventShutdown, cause))
	if c.hooks.OnShutdown != nil {
		c.hooks.OnShutdown(context.Background(), cause)
	}

	err := c.runPhase(context.Background(), domain.PhaseShutdown, c.shutdown, sequence.ContinueOnError())
	if err != nil {
		c.logger.Error("shutdown actions failed", "err", err)
	}

	c.removeHandlers()

	code := 0
	if cause != nil {
		code = 1
	}

	c.mu.Lock()
	c.exitCode = code
	c.state = domain.StateTerminated
	c.mu.Unlock()
	c.stateChanged(domain.StateShuttingDown, domain.StateTerminated)

	close(c.done)

	if c.noExit {
		c.logger.Debug("exit suppressed", "code", code)
		return
	}
	c.exit(code)
}

func (c *Controller) logCause(err error) {
	if err == nil {
		return
	}

	var fault *domain.FaultError
	if errors.As(err, &fault) {
		c.logger.Error("uncaught fault", "fault", fault)
		return
	}
	if lv, ok := err.(slog.LogValuer); ok {
		c.logger.Error("shutdown triggered by error", "err", lv)
		return
	}
	c.logger.Error("shutdown triggered by error", "err", err.Error())
}

// Wait blocks until the controller terminated and returns its exit code.
func (c *Controller) Wait() int {
	<-c.done
	return c.ExitCode()
}

func (c *Controller) launchPhase() {
	if !c.transition(domain.StateLoadingModules, domain.StateRunningLaunchActions) {
		return
	}

	if err := c.runPhase(c.phaseCtx, domain.PhaseLaunch, c.launch); err != nil {
		c.Shutdown(err)
		return
	}

	if !c.transition(domain.StateRunningLaunchActions, domain.StateReady) {
		return
	}
	close(c.ready)
	c.logger.Info("ready")
	c.bus.Publish(domain.NewEvent(domain.EventReady, nil))
}

// runPhase executes a snapshot of the registry taken when the phase starts.
func (c *Controller) runPhase(ctx context.Context, phase domain.Phase, reg *registry.Actions, opts ...sequence.Option) error {
	actions := reg.Snapshot()
	if c.hooks.OnPhaseStart != nil {
		c.hooks.OnPhaseStart(ctx, &domain.PhaseEvent{Phase: phase, Actions: len(actions)})
	}

	start := time.Now()
	opts = append(opts, sequence.ForPhase(phase))
	if c.hooks.OnActionDone != nil {
		opts = append(opts, sequence.WithObserver(c.hooks.OnActionDone))
	}
	err := sequence.RunSync(ctx, actions, opts...)

	if c.hooks.OnPhaseEnd != nil {
		c.hooks.OnPhaseEnd(ctx, &domain.PhaseEvent{
			Phase:    phase,
			Actions:  len(actions),
			Duration: time.Since(start),
			Err:      err,
		})
	}
	c.logger.Debug("phase finished", "phase", phase, "actions", len(actions), "err", err)
	return err
}

// transition moves from one state to the next, reporting false when the controller
// is no longer in from (typically because shutdown started meanwhile).
func (c *Controller) transition(from, to domain.State) bool {
	c.mu.Lock()
	if c.state != from || !from.CanTransition(to) {
		c.mu.Unlock()
		return false
	}
	c.state = to
	c.mu.Unlock()

	c.stateChanged(from, to)
	return true
}

func (c *Controller) stateChanged(from, to domain.State) {
	if c.hooks.OnStateChange != nil {
		c.hooks.OnStateChange(context.Background(), &domain.StateEvent{From: from, To: to})
	}
}

func (c *Controller) handleSignal(sig os.Signal) {
	c.logger.Info("got SIGINT/SIGTERM, triggering shutdown", "signal", sig.String())
	c.Shutdown(nil)
}

// handleFault routes a recovered panic to the installed fault handler.
func (c *Controller) handleFault(f *domain.FaultError) {
	c.mu.Lock()
	h := c.onFault
	c.mu.Unlock()

	if h == nil {
		c.logger.Error("uncaught fault after shutdown", "fault", f)
		return
	}
	h(f)
}

func (c *Controller) removeHandlers() {
	c.signals.Stop()

	c.mu.Lock()
	c.onFault = nil
	unsubscribe := c.unsubscribe
	c.mu.Unlock()

	if unsubscribe != nil {
		unsubscribe()
	}
}

// Go runs fn on a new goroutine. A panic in fn shuts the controller down with a
// *domain.FaultError; once shutdown removed the fault handler the panic crashes
// the process.
func (c *Controller) Go(fn func()) {
	go func() {
		defer func() {
			r := recover()
			if r == nil {
				return
			}
			c.mu.Lock()
			h := c.onFault
			c.mu.Unlock()
			if h == nil {
				panic(r)
			}
			h(&domain.FaultError{Value: r, Stack: debug.Stack()})
		}()
		fn()
	}()
}

// Module returns the module loaded under name, or a *domain.LookupError.
func (c *Controller) Module(name string) (any, error) {
	if inst, ok := c.modules.Get(name); ok {
		return inst, nil
	}
	return nil, &domain.LookupError{Module: name}
}

// Modules returns the loaded module names in load order.
func (c *Controller) Modules() []string {
	return c.modules.Names()
}

// RegisterLaunchAction appends action to the launch phase. Only actions registered
// before the phase takes its snapshot run, i.e. from module factories or options.
func (c *Controller) RegisterLaunchAction(action domain.Action) domain.ActionID {
	id := c.launch.Register(action)
	if st := c.State(); st != domain.StateConstructing && st != domain.StateLoadingModules {
		c.logger.Warn("launch action registered after launch started, it may not run", "id", id, "state", st)
	}
	return id
}

func (c *Controller) RegisterRunAction(action domain.Action) domain.ActionID {
	return c.run.Register(action)
}

func (c *Controller) RegisterShutdownAction(action domain.Action) domain.ActionID {
	return c.shutdown.Register(action)
}

func (c *Controller) DeregisterLaunchAction(id domain.ActionID) {
	c.launch.Deregister(id)
}

func (c *Controller) DeregisterRunAction(id domain.ActionID) {
	c.run.Deregister(id)
}

func (c *Controller) DeregisterShutdownAction(id domain.ActionID) {
	c.shutdown.Deregister(id)
}

// On subscribes handler to events of type t. Events published before the call are
// not replayed; subscribe to EventReady with WithHandler.
func (c *Controller) On(t domain.EventType, handler func(domain.Event)) (unsubscribe func()) {
	return c.bus.Subscribe(t, handler)
}

// Emit publishes evt to the subscribers of its type. Emitting EventError shuts
// the controller down.
func (c *Controller) Emit(evt domain.Event) {
	if evt.Timestamp.IsZero() {
		evt.Timestamp = time.Now()
	}
	c.bus.Publish(evt)
}

// EmitError emits EventError carrying err.
func (c *Controller) EmitError(err error) {
	c.bus.Publish(domain.NewEvent(domain.EventError, err))
}

// State returns the current lifecycle state.
func (c *Controller) State() domain.State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Ready is closed once the launch phase succeeded.
func (c *Controller) Ready() <-chan struct{} { return c.ready }

// Done is closed once the controller terminated.
func (c *Controller) Done() <-chan struct{} { return c.done }

// ExitCode returns the exit code chosen by shutdown (0 until terminated).
func (c *Controller) ExitCode() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.exitCode
}

func (c *Controller) Config() *config.Snapshot { return c.cfg }
func (c *Controller) Logger() *slog.Logger     { return c.logger }

// Gatherer returns the metrics registry set with WithMetrics, or nil.
func (c *Controller) Gatherer() prometheus.Gatherer { return c.gatherer }
