package cli

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/aretw0/keel/internal/logging"
	"github.com/aretw0/keel/pkg/adapters/http"
	"github.com/aretw0/keel/pkg/adapters/process"
	"github.com/aretw0/keel/pkg/adapters/redis"
	"github.com/aretw0/keel/pkg/domain"
	"github.com/aretw0/keel/pkg/module"
)

// configNames are looked up in the application directory when no file is given.
var configNames = []string{"keel.yaml", "keel.yml", "keel.json", "keel.toml"}

// Builtin returns the catalog of modules shipped with keel.
func Builtin() *module.Catalog {
	c := module.NewCatalog()
	http.Register(c)
	process.Register(c)
	redis.Register(c)
	return c
}

// createLogger configures the application logger. Quiet mode only keeps errors.
func createLogger(opts RunOptions, w io.Writer) (*slog.Logger, error) {
	level, err := logging.ParseLevel(opts.LogLevel)
	if err != nil {
		return nil, err
	}
	if opts.Quiet && level < slog.LevelError {
		level = slog.LevelError
	}
	format, err := logging.ParseFormat(opts.LogFormat)
	if err != nil {
		return nil, err
	}
	return logging.New(level, format, w), nil
}

// findConfigFile returns the explicit file, or the first conventional config
// file present in dir, or "".
func findConfigFile(dir, explicit string) string {
	if explicit != "" {
		return explicit
	}
	for _, name := range configNames {
		path := filepath.Join(dir, name)
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}
	return ""
}

// ParseSets turns "a.b=c" assignments into a nested override map.
// Values stay strings; the configuration decoder converts them as needed.
func ParseSets(sets []string) (map[string]any, error) {
	out := make(map[string]any)
	for _, set := range sets {
		key, value, ok := strings.Cut(set, "=")
		key = strings.TrimSpace(key)
		if !ok || key == "" {
			return nil, fmt.Errorf("invalid --set %q: expected key=value", set)
		}

		parts := strings.Split(key, ".")
		node := out
		for _, part := range parts[:len(parts)-1] {
			child, ok := node[part].(map[string]any)
			if !ok {
				child = make(map[string]any)
				node[part] = child
			}
			node = child
		}
		node[parts[len(parts)-1]] = value
	}
	return out, nil
}

func createDebugHooks(logger *slog.Logger) domain.LifecycleHooks {
	return domain.LifecycleHooks{
		OnStateChange: func(ctx context.Context, e *domain.StateEvent) {
			logger.Debug("state changed", "from", e.From, "to", e.To)
		},
		OnPhaseStart: func(ctx context.Context, e *domain.PhaseEvent) {
			logger.Debug("phase started", "phase", e.Phase, "actions", e.Actions)
		},
		OnPhaseEnd: func(ctx context.Context, e *domain.PhaseEvent) {
			if e.Err != nil {
				logger.Debug("phase failed", "phase", e.Phase, "duration", e.Duration, "err", e.Err)
			} else {
				logger.Debug("phase completed", "phase", e.Phase, "duration", e.Duration)
			}
		},
		OnActionDone: func(ctx context.Context, e *domain.ActionEvent) {
			logger.Debug("action done", "phase", e.Phase, "index", e.Index, "duration", e.Duration, "err", e.Err)
		},
	}
}
