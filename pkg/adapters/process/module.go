// Package process provides the process module: it runs external programs as part
// of the application lifecycle.
//
// Launch commands run to completion before the application is ready, one after the
// other, and a failure aborts the launch. Run commands are started by the run
// phase and stay up until shutdown; one exiting on its own is reported as an
// error, which shuts the application down.
package process

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/aretw0/keel/pkg/adapters/memory"
	"github.com/aretw0/keel/pkg/module"
	"github.com/aretw0/keel/pkg/ports"
)

// Name is the catalog name of the module.
const Name = "process"

// Description is rendered by `keel modules`.
const Description = "Runs external commands: `launch` commands to completion before the application is ready, `run` commands supervised until shutdown. Configured under `process.commands`."

// lockerSource is implemented by modules that share a ports.DistributedLocker.
type lockerSource interface {
	DistributedLocker() ports.DistributedLocker
}

// Module supervises the configured commands.
type Module struct {
	cfg    Config
	app    string
	host   ports.Host
	logger *slog.Logger
	locker ports.DistributedLocker

	mu       sync.Mutex
	running  map[string]*child
	stopping bool
}

type child struct {
	cmd    *exec.Cmd
	cancel context.CancelFunc
	done   chan struct{}
	err    error
}

// Factory builds the module for a host. It is the catalog entry for Name.
func Factory(host ports.Host) (module.Instance, error) {
	return New(host)
}

// Register adds the module to a catalog.
func Register(c *module.Catalog) {
	c.Register(Name, Factory, module.WithDescription(Description))
}

// New decodes the "process" configuration and registers one launch action per
// launch command, plus a run and a shutdown action when run commands exist.
//
// Exclusive commands lock through the redis module when it was loaded before this
// one, and through an in-process locker otherwise.
func New(host ports.Host) (*Module, error) {
	cfg := DefaultConfig()
	if err := host.Config().Decode(Name, &cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	appDir := host.Config().AppDir()
	cfg.normalize(appDir)

	m := &Module{
		cfg:     cfg,
		app:     filepath.Base(appDir),
		host:    host,
		logger:  host.Logger().With("module", Name),
		locker:  memory.NewLocker(),
		running: make(map[string]*child),
	}
	if inst, err := host.Module("redis"); err == nil {
		if src, ok := inst.(lockerSource); ok {
			m.locker = src.DistributedLocker()
		}
	}

	var supervised bool
	for _, cmd := range cfg.Commands {
		if cmd.Phase == PhaseLaunch {
			host.RegisterLaunchAction(m.launchAction(cmd))
		} else {
			supervised = true
		}
	}
	if supervised {
		host.RegisterRunAction(m.start)
		host.RegisterShutdownAction(m.stop)
	}
	return m, nil
}

// Config returns the effective configuration.
func (m *Module) Config() Config {
	return m.cfg
}

// Running returns the names of the run commands that are still up, sorted.
func (m *Module) Running() []string {
	m.mu.Lock()
	defer m.mu.Unlock()

	names := make([]string, 0, len(m.running))
	for name, c := range m.running {
		select {
		case <-c.done:
		default:
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names
}

func (m *Module) command(ctx context.Context, def Command, logger *slog.Logger) (*exec.Cmd, *lineWriter) {
	cmd := exec.CommandContext(ctx, def.Command, def.Args...)
	cmd.Dir = def.Dir
	cmd.Env = append(os.Environ(), "KEEL_APP="+m.app)
	for k, v := range def.Env {
		cmd.Env = append(cmd.Env, k+"="+v)
	}

	// Cancellation asks the program to stop and kills it after StopTimeout.
	cmd.Cancel = func() error { return cmd.Process.Signal(os.Interrupt) }
	cmd.WaitDelay = m.cfg.StopTimeout

	stderr := newLineWriter(logger, "stderr", slog.LevelWarn)
	cmd.Stdout = newLineWriter(logger, "stdout", slog.LevelInfo)
	cmd.Stderr = stderr
	return cmd, stderr
}

func (m *Module) launchAction(def Command) func(context.Context) error {
	return func(ctx context.Context) error {
		if def.Exclusive {
			unlock, err := m.locker.Lock(ctx, m.app+":"+def.Name, m.cfg.LockTTL)
			if err != nil {
				return fmt.Errorf("process %s: lock: %w", def.Name, err)
			}
			defer func() {
				if err := unlock(context.Background()); err != nil {
					m.logger.Warn("failed to release lock (will expire via TTL)", "process", def.Name, "err", err)
				}
			}()
		}
		return m.runToCompletion(ctx, def)
	}
}

func (m *Module) runToCompletion(ctx context.Context, def Command) error {
	logger := m.logger.With("process", def.Name)
	cmd, stderr := m.command(ctx, def, logger)

	start := time.Now()
	err := cmd.Run()
	stderr.Flush()
	cmd.Stdout.(*lineWriter).Flush()
	if err != nil {
		if last := stderr.Last(); last != "" {
			return fmt.Errorf("process %s: %w: %s", def.Name, err, last)
		}
		return fmt.Errorf("process %s: %w", def.Name, err)
	}
	logger.Info("process completed", "duration", time.Since(start))
	return nil
}

// start is the run action: it starts every run command and watches it on a
// guarded goroutine.
func (m *Module) start(ctx context.Context) error {
	for _, def := range m.cfg.Commands {
		if def.Phase != PhaseRun {
			continue
		}
		if err := m.spawn(def); err != nil {
			return err
		}
	}
	return nil
}

func (m *Module) spawn(def Command) error {
	logger := m.logger.With("process", def.Name)

	// The run phase context ends with the phase, so children get their own.
	ctx, cancel := context.WithCancel(context.Background())
	cmd, _ := m.command(ctx, def, logger)
	if err := cmd.Start(); err != nil {
		cancel()
		return fmt.Errorf("process %s: %w", def.Name, err)
	}

	c := &child{cmd: cmd, cancel: cancel, done: make(chan struct{})}
	m.mu.Lock()
	m.running[def.Name] = c
	m.mu.Unlock()

	logger.Info("process started", "pid", cmd.Process.Pid)
	m.host.Go(func() { m.wait(def.Name, c, logger) })
	return nil
}

func (m *Module) wait(name string, c *child, logger *slog.Logger) {
	c.err = c.cmd.Wait()
	c.cmd.Stdout.(*lineWriter).Flush()
	c.cmd.Stderr.(*lineWriter).Flush()
	close(c.done)

	m.mu.Lock()
	stopping := m.stopping
	m.mu.Unlock()

	if stopping {
		logger.Info("process stopped")
		return
	}

	err := c.err
	if err == nil {
		err = errors.New("exited")
	}
	logger.Error("process exited unexpectedly", "err", err)
	m.host.EmitError(fmt.Errorf("process %s: %w", name, err))
}

// stop is the shutdown action: it interrupts every run command and waits for
// them, killing those still up after StopTimeout.
func (m *Module) stop(ctx context.Context) error {
	m.mu.Lock()
	m.stopping = true
	children := make([]*child, 0, len(m.running))
	for _, c := range m.running {
		children = append(children, c)
	}
	m.mu.Unlock()

	for _, c := range children {
		c.cancel()
	}

	var errs []error
	for _, c := range children {
		select {
		case <-c.done:
		case <-ctx.Done():
			errs = append(errs, ctx.Err())
		}
	}
	return errors.Join(errs...)
}
