package config

import (
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/spf13/viper"
)

const (
	// KeyAppDir holds the application directory given to the controller.
	KeyAppDir = "app_dir"
	// KeyModules holds the ordered list of module names to load.
	KeyModules = "modules"
)

// DefaultEnvPrefix is the environment prefix used by the controller.
const DefaultEnvPrefix = "KEEL"

// Loader accumulates configuration layers.
type Loader struct {
	v     *viper.Viper
	files []string
}

// NewLoader creates a loader with the built-in defaults.
func NewLoader() *Loader {
	v := viper.New()
	v.SetDefault(KeyModules, []string{})
	return &Loader{v: v}
}

// SetDefault sets the lowest-precedence value for key.
func (l *Loader) SetDefault(key string, value any) {
	l.v.SetDefault(key, value)
}

// AddFile merges a configuration file. The format is chosen by extension.
func (l *Loader) AddFile(path string) error {
	if _, err := os.Stat(path); err != nil {
		return fmt.Errorf("config file %s: %w", path, err)
	}

	l.v.SetConfigFile(path)
	if err := l.v.MergeInConfig(); err != nil {
		return fmt.Errorf("failed to read config file %s: %w", path, err)
	}
	l.files = append(l.files, path)
	return nil
}

// AddEnv binds every environment variable starting with prefix + "_".
func (l *Loader) AddEnv(prefix string) {
	if prefix == "" {
		prefix = DefaultEnvPrefix
	}
	prefix = strings.ToUpper(prefix)

	l.v.SetEnvPrefix(prefix)
	l.v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	l.v.AutomaticEnv()

	// AutomaticEnv only resolves keys viper already knows about. Bind the rest
	// explicitly so env-only keys show up in the snapshot.
	for _, kv := range os.Environ() {
		name, _, _ := strings.Cut(kv, "=")
		rest, ok := strings.CutPrefix(name, prefix+"_")
		if !ok || rest == "" {
			continue
		}
		_ = l.v.BindEnv(EnvKey(rest), name)
	}
}

// AddConfig merges explicit overrides. Nested maps are flattened so that a partial
// map only shadows the leaves it names.
func (l *Loader) AddConfig(values map[string]any) {
	for key, value := range flatten("", values) {
		l.v.Set(key, value)
	}
}

// Files returns the configuration files merged so far.
func (l *Loader) Files() []string {
	return append([]string(nil), l.files...)
}

// Snapshot freezes the merged configuration.
func (l *Loader) Snapshot() *Snapshot {
	return newSnapshot(l.v.AllSettings())
}

// EnvKey converts the part of an environment variable name after the prefix into a
// configuration key: HTTP_PORT -> http.port, HTTP_SHUTDOWN__TIMEOUT -> http.shutdown_timeout.
func EnvKey(name string) string {
	const placeholder = "\x00"
	key := strings.ToLower(name)
	key = strings.ReplaceAll(key, "__", placeholder)
	key = strings.ReplaceAll(key, "_", ".")
	return strings.ReplaceAll(key, placeholder, "_")
}

func flatten(prefix string, values map[string]any) map[string]any {
	out := make(map[string]any)
	keys := make([]string, 0, len(values))
	for k := range values {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, k := range keys {
		full := k
		if prefix != "" {
			full = prefix + "." + k
		}
		if nested, ok := values[k].(map[string]any); ok && len(nested) > 0 {
			for nk, nv := range flatten(full, nested) {
				out[nk] = nv
			}
			continue
		}
		out[full] = values[k]
	}
	return out
}
