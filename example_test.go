package keel_test

import (
	"context"
	"fmt"
	"log"
	"os"

	"github.com/aretw0/keel"
	"github.com/aretw0/keel/pkg/domain"
	"github.com/aretw0/keel/pkg/module"
	"github.com/aretw0/keel/pkg/ports"
)

type clock struct{ ticks int }

// ExampleNew shows a module registering actions for each phase from its factory.
func ExampleNew() {
	catalog := module.NewCatalog()
	catalog.Register("clock", func(host ports.Host) (module.Instance, error) {
		c := &clock{}
		host.RegisterLaunchAction(func(context.Context) error {
			fmt.Println("launch: clock")
			return nil
		})
		host.RegisterRunAction(func(context.Context) error {
			c.ticks++
			fmt.Println("run: clock ticked", c.ticks)
			return nil
		})
		host.RegisterShutdownAction(func(context.Context) error {
			fmt.Println("shutdown: clock stopped")
			return nil
		})
		return c, nil
	})

	exited := make(chan int, 1)
	ctrl, err := keel.New(os.TempDir(),
		keel.WithCatalog(catalog),
		keel.WithOverrides(map[string]any{"modules": []string{"clock"}}),
		keel.WithSignalSource(make(chan os.Signal)),
		keel.WithExitFunc(func(code int) { exited <- code }),
	)
	if err != nil {
		log.Fatal(err)
	}

	<-ctrl.Ready()
	running := make(chan struct{})
	ctrl.On(domain.EventRunning, func(domain.Event) { close(running) })
	if err := ctrl.Run(); err != nil {
		log.Fatal(err)
	}
	<-running

	ctrl.Shutdown(nil)
	fmt.Println("exit", <-exited)

	// Output:
	// launch: clock
	// run: clock ticked 1
	// shutdown: clock stopped
	// exit 0
}
