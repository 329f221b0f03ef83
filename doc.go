/*
Package keel coordinates the lifecycle of a long-running process.

A Controller owns three ordered action registries (launch, run and shutdown), loads the
modules named in its configuration and drives the application through a fixed sequence
of states:

	constructing → loading_modules → running_launch_actions → ready →
	running_run_actions → running → shutting_down → terminated

Every state can jump directly to shutting_down. Process signals (SIGINT, SIGTERM),
panics in goroutines started with Controller.Go, and error events emitted on the
controller all funnel into Controller.Shutdown, which runs exactly once.

# Actions

An action is a func(context.Context) error. Its return is its single completion. The
actions of a phase run strictly one after the other in registration order, and the
first failure of the launch or run phase triggers shutdown. Shutdown actions always
run to the end; their failures are logged. Each phase executes the actions registered
when it started: an action registered by another action of the same phase waits for
the next phase that uses that registry (or is never run).

# Usage

	catalog := module.NewCatalog()
	catalog.Register("http", httpadapter.Factory)

	ctrl, err := keel.New("./app",
		keel.WithCatalog(catalog),
		keel.WithOverrides(map[string]any{"modules": []string{"http"}}),
	)
	if err != nil {
		log.Fatal(err)
	}

	select {
	case <-ctrl.Ready():
	case <-ctrl.Done():
		os.Exit(ctrl.ExitCode())
	}
	if err := ctrl.Run(); err != nil {
		log.Fatal(err)
	}
	os.Exit(ctrl.Wait())

The controller calls os.Exit at the end of shutdown unless KEEL_NO_EXIT is set or
another exit function is injected with WithExitFunc.
*/
package keel
