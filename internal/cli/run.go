package cli

import (
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/aretw0/keel"
	"github.com/aretw0/keel/internal/presentation/graph"
	"github.com/aretw0/keel/internal/presentation/tui"
	"github.com/aretw0/keel/pkg/config"
	"github.com/aretw0/keel/pkg/module"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

// RunOptions holds the flags shared by the commands.
type RunOptions struct {
	Dir        string
	ConfigFile string
	Sets       []string
	LogLevel   string
	LogFormat  string
	Quiet      bool
	Debug      bool

	// Catalog defaults to Builtin().
	Catalog *module.Catalog
	// Extra is appended to the controller options.
	Extra []keel.Option
}

func (o RunOptions) configOptions() ([]keel.Option, error) {
	overrides, err := ParseSets(o.Sets)
	if err != nil {
		return nil, err
	}
	var opts []keel.Option
	if file := findConfigFile(o.Dir, o.ConfigFile); file != "" {
		opts = append(opts, keel.WithConfigFile(file))
	}
	if len(overrides) > 0 {
		opts = append(opts, keel.WithOverrides(overrides))
	}
	return opts, nil
}

// Run starts an application and blocks until it terminated, returning its exit code.
// Logs and the banner go to w.
func Run(opts RunOptions, w io.Writer) (int, error) {
	if opts.Debug {
		opts.LogLevel = "debug"
	}
	logger, err := createLogger(opts, w)
	if err != nil {
		return 1, err
	}

	ctrlOpts, err := opts.configOptions()
	if err != nil {
		return 1, err
	}

	catalog := opts.Catalog
	if catalog == nil {
		catalog = Builtin()
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	ctrlOpts = append(ctrlOpts,
		keel.WithCatalog(catalog),
		keel.WithLogger(logger),
		keel.WithMetrics(reg),
		// The command exits with the code returned by Wait.
		keel.WithExitFunc(func(int) {}),
	)
	if opts.Debug {
		ctrlOpts = append(ctrlOpts, keel.WithLifecycleHooks(createDebugHooks(logger)))
	}
	ctrlOpts = append(ctrlOpts, opts.Extra...)

	// The banner goes out before New, which may start logging from the launch phase.
	if !opts.Quiet {
		tui.PrintBanner(w, appName(opts.Dir), keel.Version)
	}

	ctrl, err := keel.New(opts.Dir, ctrlOpts...)
	if err != nil {
		return 1, err
	}

	select {
	case <-ctrl.Ready():
	case <-ctrl.Done():
		return ctrl.ExitCode(), nil
	}

	if err := ctrl.Run(); err != nil {
		ctrl.Shutdown(err)
	}
	return ctrl.Wait(), nil
}

// appName mirrors the controller name: the base name of the absolute app directory.
func appName(dir string) string {
	if abs, err := filepath.Abs(dir); err == nil {
		return filepath.Base(abs)
	}
	return filepath.Base(dir)
}

// PrintConfig writes the merged configuration of the application as YAML.
func PrintConfig(opts RunOptions, w io.Writer) error {
	cfgOpts, err := opts.configOptions()
	if err != nil {
		return err
	}
	snapshot, err := keel.LoadConfig(opts.Dir, cfgOpts...)
	if err != nil {
		return err
	}
	return writeYAML(snapshot, w)
}

func writeYAML(s *config.Snapshot, w io.Writer) error {
	out, err := s.YAML()
	if err != nil {
		return fmt.Errorf("encoding config: %w", err)
	}
	_, err = w.Write(out)
	return err
}

// ListModules writes the catalog as markdown, rendered when w is a terminal.
func ListModules(catalog *module.Catalog, w io.Writer) error {
	if catalog == nil {
		catalog = Builtin()
	}

	var sb strings.Builder
	sb.WriteString("# Modules\n\n")
	for _, e := range catalog.Entries() {
		sb.WriteString(fmt.Sprintf("## %s\n\n", e.Name))
		if e.Description != "" {
			sb.WriteString(e.Description + "\n\n")
		}
	}

	out, err := tui.NewRenderer(w)(sb.String())
	if err != nil {
		return err
	}
	_, err = io.WriteString(w, out)
	return err
}

// PrintGraph writes the lifecycle diagram in Mermaid syntax.
func PrintGraph(w io.Writer) error {
	_, err := io.WriteString(w, graph.GenerateMermaid(nil))
	return err
}
