// Package http provides the HTTP server module.
//
// The module listens during the run phase and stops gracefully during shutdown.
// Other modules mount their routes with RegisterController from their factory.
package http

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"syscall"
	"time"

	"github.com/aretw0/keel/pkg/domain"
	"github.com/aretw0/keel/pkg/module"
	"github.com/aretw0/keel/pkg/ports"
	"github.com/go-chi/chi/v5"
)

// Name is the catalog name of the module.
const Name = "http"

// Description is rendered by `keel modules`.
const Description = "Serves `/health`, `/info`, `/events`, `/graph` and `/metrics`, static assets and routes mounted by other modules. Configured under `http`."

// Module is the HTTP server module.
type Module struct {
	cfg     Config
	host    ports.Host
	logger  *slog.Logger
	router  chi.Router
	streams *StreamManager

	mu     sync.Mutex
	server *http.Server
	addr   string
	unsub  []func()
}

// Factory builds the module for a host. It is the catalog entry for Name.
func Factory(host ports.Host) (module.Instance, error) {
	return New(host)
}

// Register adds the module to a catalog.
func Register(c *module.Catalog) {
	c.Register(Name, Factory, module.WithDescription(Description))
}

// New decodes the "http" configuration, builds the router and registers the
// run and shutdown actions on host.
func New(host ports.Host) (*Module, error) {
	cfg := DefaultConfig()
	if err := host.Config().Decode(Name, &cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	cfg.resolveAssets(host.Config().AppDir())

	logger := host.Logger().With("module", Name)
	m := &Module{
		cfg:     cfg,
		host:    host,
		logger:  logger,
		streams: NewStreamManager(logger),
	}
	m.router = m.newRouter()

	if n, ok := host.(ports.Notifier); ok {
		for _, t := range []domain.EventType{domain.EventReady, domain.EventRunning, domain.EventShutdown, domain.EventError} {
			m.unsub = append(m.unsub, n.On(t, m.streams.Publish))
		}
	}

	host.RegisterRunAction(m.start)
	host.RegisterShutdownAction(m.stop)
	return m, nil
}

// Config returns the effective configuration.
func (m *Module) Config() Config {
	return m.cfg
}

// Handler returns the router serving every request.
func (m *Module) Handler() http.Handler {
	return m.router
}

// RegisterController mounts a group of routes under root. It must be called
// before the run phase starts.
func (m *Module) RegisterController(root string, mount func(r chi.Router)) {
	m.router.Route(root, mount)
	m.logger.Debug("registered controller", "root", root)
}

// Addr returns the bound address, or "" before the server listens.
func (m *Module) Addr() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.addr
}

// start is the run action: it binds the listener and serves on a guarded goroutine.
func (m *Module) start(ctx context.Context) error {
	address := m.cfg.Address()

	var lc net.ListenConfig
	ln, err := lc.Listen(ctx, "tcp", address)
	if err != nil {
		if errors.Is(err, syscall.EADDRINUSE) {
			m.logger.Error("address already in use", "addr", address)
			m.host.EmitError(err)
		}
		return fmt.Errorf("listen on %s: %w", address, err)
	}

	server := &http.Server{
		Handler:           m.router,
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return context.Background() },
	}

	m.mu.Lock()
	m.server = server
	m.addr = ln.Addr().String()
	m.mu.Unlock()

	m.host.Go(func() {
		if err := server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			m.logger.Error("server failed", "err", err)
			m.host.EmitError(err)
		}
	})

	m.logger.Info("listening", "addr", ln.Addr().String())
	return nil
}

// stop is the shutdown action: it disconnects event streams, then drains the
// server within the shutdown timeout and closes it if draining fails.
func (m *Module) stop(ctx context.Context) error {
	for _, unsub := range m.unsub {
		unsub()
	}
	m.streams.Close()

	m.mu.Lock()
	server := m.server
	m.mu.Unlock()
	if server == nil {
		return nil
	}

	ctx, cancel := context.WithTimeout(ctx, m.cfg.ShutdownTimeout)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		m.logger.Warn("graceful shutdown failed, closing", "err", err)
		return server.Close()
	}
	m.logger.Info("server stopped")
	return nil
}
