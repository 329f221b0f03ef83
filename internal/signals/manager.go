// Package signals forwards process termination signals to a handler.
package signals

import (
	"os"
	"os/signal"
	"sync"
	"syscall"
)

// Handled lists the signals the manager listens for.
var Handled = []os.Signal{os.Interrupt, syscall.SIGTERM}

// Manager owns the registration of SIGINT/SIGTERM for one controller.
// It is installed by Start and removed by Stop; between the two, every received
// signal is passed to the handler.
type Manager struct {
	handler func(os.Signal)
	source  <-chan os.Signal
	useOS   bool

	osCh        chan os.Signal
	stop        chan struct{}
	done        chan struct{}
	mu          sync.Mutex
	state       int // 0 new, 1 started, 2 stopped
	dispatching bool
}

// Option configures a Manager.
type Option func(*Manager)

// WithSource adds a channel whose values are handled like OS signals.
func WithSource(ch <-chan os.Signal) Option {
	return func(m *Manager) {
		m.source = ch
	}
}

// WithoutOS disables signal.Notify, leaving only the injected source.
func WithoutOS() Option {
	return func(m *Manager) {
		m.useOS = false
	}
}

// NewManager creates a stopped manager.
func NewManager(handler func(os.Signal), opts ...Option) *Manager {
	m := &Manager{
		handler: handler,
		useOS:   true,
		stop:    make(chan struct{}),
		done:    make(chan struct{}),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Start installs the handler. Calling it more than once has no effect.
func (m *Manager) Start() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state != 0 {
		return
	}
	m.state = 1

	if m.useOS {
		m.osCh = make(chan os.Signal, 1)
		signal.Notify(m.osCh, Handled...)
	}
	go m.loop()
}

// Stop removes the handler and waits for the listener to exit, unless a handler
// call is in progress. It is safe to call Stop from inside the handler; Done then
// reports when the listener is gone.
func (m *Manager) Stop() {
	m.mu.Lock()
	if m.state != 1 {
		m.state = 2
		m.mu.Unlock()
		return
	}
	m.state = 2
	if m.osCh != nil {
		signal.Stop(m.osCh)
	}
	close(m.stop)
	wait := !m.dispatching
	m.mu.Unlock()

	if wait {
		<-m.done
	}
}

// Done is closed once the listener goroutine has exited.
func (m *Manager) Done() <-chan struct{} {
	return m.done
}

// Active reports whether the handler is currently installed.
func (m *Manager) Active() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state == 1
}

func (m *Manager) loop() {
	defer close(m.done)
	for {
		var sig os.Signal
		select {
		case <-m.stop:
			return
		case sig = <-m.osCh:
		case s, ok := <-m.source:
			if !ok {
				// Closed source: keep serving OS signals only.
				m.source = nil
				continue
			}
			sig = s
		}

		// A signal racing with Stop is dropped.
		m.mu.Lock()
		if m.state != 1 {
			m.mu.Unlock()
			return
		}
		m.dispatching = true
		m.mu.Unlock()

		if m.handler != nil {
			m.handler(sig)
		}

		m.mu.Lock()
		m.dispatching = false
		m.mu.Unlock()
	}
}
