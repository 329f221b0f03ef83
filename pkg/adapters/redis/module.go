// Package redis provides the Redis module: a shared client for other modules and
// an optional fleet-wide lock so that a single instance of an application runs.
package redis

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"github.com/aretw0/keel/pkg/module"
	"github.com/aretw0/keel/pkg/ports"
	"github.com/go-playground/validator/v10"
	backend "github.com/redis/go-redis/v9"
)

// Name is the catalog name of the module.
const Name = "redis"

// Description is rendered by `keel modules`.
const Description = "Connects to Redis during launch and, with `redis.lock`, holds a lock so only one instance of the application runs. Configured under `redis`."

// Config configures the Redis module. It is read from the "redis" configuration key.
type Config struct {
	Addr     string `mapstructure:"addr" validate:"required,hostname_port"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db" validate:"min=0"`
	Prefix   string `mapstructure:"prefix"`

	// Lock makes launch fail unless this instance holds <prefix>lock:<app>.
	Lock     bool          `mapstructure:"lock"`
	LockTTL  time.Duration `mapstructure:"lock_ttl" validate:"min=1ms"`
	LockWait time.Duration `mapstructure:"lock_wait" validate:"min=0"`
}

// DefaultConfig returns the configuration used for unset keys.
func DefaultConfig() Config {
	return Config{
		Prefix:   "keel:",
		LockTTL:  30 * time.Second,
		LockWait: 10 * time.Second,
	}
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Module owns the Redis client.
type Module struct {
	cfg    Config
	app    string
	host   ports.Host
	logger *slog.Logger
	client *backend.Client
	locker *Locker

	mu    sync.Mutex
	lease *Lease
	stop  chan struct{}
}

// Factory builds the module for a host. It is the catalog entry for Name.
func Factory(host ports.Host) (module.Instance, error) {
	return New(host)
}

// Register adds the module to a catalog.
func Register(c *module.Catalog) {
	c.Register(Name, Factory, module.WithDescription(Description))
}

// New creates the client and registers the launch and shutdown actions.
// No connection is made before the launch phase.
func New(host ports.Host) (*Module, error) {
	cfg := DefaultConfig()
	if err := host.Config().Decode(Name, &cfg); err != nil {
		return nil, err
	}
	if err := validate.Struct(&cfg); err != nil {
		return nil, fmt.Errorf("invalid redis config: %w", err)
	}

	client := backend.NewClient(&backend.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	m := &Module{
		cfg:    cfg,
		app:    filepath.Base(host.Config().AppDir()),
		host:   host,
		logger: host.Logger().With("module", Name),
		client: client,
		locker: NewLocker(client, cfg.Prefix),
		stop:   make(chan struct{}),
	}

	host.RegisterLaunchAction(m.connect)
	host.RegisterShutdownAction(m.close)
	return m, nil
}

// Client returns the shared client.
func (m *Module) Client() *backend.Client {
	return m.client
}

// Locker returns a locker sharing the module's client and prefix.
func (m *Module) Locker() *Locker {
	return m.locker
}

// DistributedLocker exposes the locker to modules that only need the port.
func (m *Module) DistributedLocker() ports.DistributedLocker {
	return m.locker
}

// Key prefixes name with the configured prefix.
func (m *Module) Key(name string) string {
	return m.cfg.Prefix + name
}

func (m *Module) connect(ctx context.Context) error {
	if err := m.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis ping %s: %w", m.cfg.Addr, err)
	}
	m.logger.Info("connected", "addr", m.cfg.Addr)

	if !m.cfg.Lock {
		return nil
	}

	waitCtx, cancel := context.WithTimeout(ctx, m.cfg.LockWait)
	defer cancel()

	lease, err := m.locker.Acquire(waitCtx, m.app, m.cfg.LockTTL)
	if err != nil {
		return fmt.Errorf("%w for %s: %w", ErrLockAcquire, m.app, err)
	}

	m.mu.Lock()
	m.lease = lease
	m.mu.Unlock()

	m.logger.Info("instance lock acquired", "key", lease.Key(), "ttl", m.cfg.LockTTL)
	m.host.Go(func() { m.keepAlive(lease) })
	return nil
}

// keepAlive refreshes the lease every third of its TTL until close. Losing the
// lease is reported to the host, which shuts the application down.
func (m *Module) keepAlive(lease *Lease) {
	ticker := time.NewTicker(m.cfg.LockTTL / 3)
	defer ticker.Stop()

	for {
		select {
		case <-m.stop:
			return
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), m.cfg.LockTTL/3)
			err := lease.Refresh(ctx)
			cancel()
			if err != nil {
				m.logger.Error("instance lock refresh failed", "key", lease.Key(), "err", err)
				m.host.EmitError(err)
				return
			}
		}
	}
}

func (m *Module) close(ctx context.Context) error {
	m.mu.Lock()
	lease := m.lease
	m.lease = nil
	select {
	case <-m.stop:
	default:
		close(m.stop)
	}
	m.mu.Unlock()

	var errs []error
	if lease != nil {
		if err := lease.Release(ctx); err != nil {
			errs = append(errs, fmt.Errorf("release lock: %w", err))
		} else {
			m.logger.Info("instance lock released", "key", lease.Key())
		}
	}
	if err := m.client.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close client: %w", err))
	}
	return errors.Join(errs...)
}
