package config

import (
	"fmt"
	"reflect"
	"sort"
	"strings"
	"time"

	"github.com/mitchellh/mapstructure"
	"gopkg.in/yaml.v3"
)

// Snapshot is a read-only view over merged configuration.
// Every accessor returns copies, so callers cannot mutate it.
type Snapshot struct {
	data map[string]any
}

func newSnapshot(data map[string]any) *Snapshot {
	return &Snapshot{data: cloneMap(data)}
}

// Empty returns a snapshot without any keys.
func Empty() *Snapshot {
	return &Snapshot{data: map[string]any{}}
}

// Has reports whether key is set.
func (s *Snapshot) Has(key string) bool {
	_, ok := s.lookup(key)
	return ok
}

// Get returns a copy of the value at key, or nil.
func (s *Snapshot) Get(key string) any {
	v, _ := s.lookup(key)
	return cloneValue(v)
}

// String returns the value at key formatted as a string, or "".
func (s *Snapshot) String(key string) string {
	v, ok := s.lookup(key)
	if !ok || v == nil {
		return ""
	}
	return fmt.Sprint(v)
}

// Int returns the value at key as an int, or def when missing or not numeric.
func (s *Snapshot) Int(key string, def int) int {
	var out int
	if err := s.decodeValue(key, &out); err != nil {
		return def
	}
	return out
}

// Bool returns the value at key as a bool, or def when missing.
func (s *Snapshot) Bool(key string, def bool) bool {
	var out bool
	if err := s.decodeValue(key, &out); err != nil {
		return def
	}
	return out
}

// Duration returns the value at key as a time.Duration, or def when missing.
func (s *Snapshot) Duration(key string, def time.Duration) time.Duration {
	var out time.Duration
	if err := s.decodeValue(key, &out); err != nil {
		return def
	}
	return out
}

// StringSlice returns the value at key as a list. A comma separated string is split.
func (s *Snapshot) StringSlice(key string) []string {
	var out []string
	if err := s.decodeValue(key, &out); err != nil {
		return nil
	}
	cleaned := out[:0]
	for _, item := range out {
		if item = strings.TrimSpace(item); item != "" {
			cleaned = append(cleaned, item)
		}
	}
	return cleaned
}

// AppDir returns the application directory.
func (s *Snapshot) AppDir() string {
	return s.String(KeyAppDir)
}

// Modules returns the ordered list of module names to load.
func (s *Snapshot) Modules() []string {
	return s.StringSlice(KeyModules)
}

// Sub returns the subtree at key as its own snapshot. Missing keys yield an empty one.
func (s *Snapshot) Sub(key string) *Snapshot {
	v, ok := s.lookup(key)
	if !ok {
		return Empty()
	}
	m, ok := v.(map[string]any)
	if !ok {
		return Empty()
	}
	return newSnapshot(m)
}

// Decode decodes the subtree at key (or everything when key is "") into out,
// which must be a pointer. Struct fields use `mapstructure` tags.
func (s *Snapshot) Decode(key string, out any) error {
	var input any = s.data
	if key != "" {
		v, ok := s.lookup(key)
		if !ok {
			return nil
		}
		input = v
	}
	return decode(cloneValue(input), out)
}

// Keys returns every leaf key in dotted form, sorted.
func (s *Snapshot) Keys() []string {
	var keys []string
	var walk func(prefix string, m map[string]any)
	walk = func(prefix string, m map[string]any) {
		for k, v := range m {
			full := k
			if prefix != "" {
				full = prefix + "." + k
			}
			if nested, ok := v.(map[string]any); ok && len(nested) > 0 {
				walk(full, nested)
				continue
			}
			keys = append(keys, full)
		}
	}
	walk("", s.data)
	sort.Strings(keys)
	return keys
}

// Map returns a deep copy of the whole configuration.
func (s *Snapshot) Map() map[string]any {
	return cloneMap(s.data)
}

// YAML renders the configuration as a YAML document.
func (s *Snapshot) YAML() ([]byte, error) {
	return yaml.Marshal(s.data)
}

func (s *Snapshot) lookup(key string) (any, bool) {
	if s == nil {
		return nil, false
	}
	var cur any = s.data
	for _, part := range strings.Split(strings.ToLower(key), ".") {
		m, ok := cur.(map[string]any)
		if !ok {
			return nil, false
		}
		cur, ok = m[part]
		if !ok {
			return nil, false
		}
	}
	return cur, true
}

func (s *Snapshot) decodeValue(key string, out any) error {
	v, ok := s.lookup(key)
	if !ok || v == nil {
		return fmt.Errorf("key %s not set", key)
	}
	return decode(cloneValue(v), out)
}

func decode(input, out any) error {
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           out,
		WeaklyTypedInput: true,
		TagName:          "mapstructure",
		DecodeHook: mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToSliceHookFunc(","),
		),
	})
	if err != nil {
		return fmt.Errorf("failed to create decoder: %w", err)
	}
	if err := dec.Decode(input); err != nil {
		return fmt.Errorf("failed to decode config: %w", err)
	}
	return nil
}

func cloneMap(m map[string]any) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = cloneValue(v)
	}
	return out
}

func cloneValue(v any) any {
	switch t := v.(type) {
	case map[string]any:
		return cloneMap(t)
	case []any:
		out := make([]any, len(t))
		for i, item := range t {
			out[i] = cloneValue(item)
		}
		return out
	case []string:
		return append([]string(nil), t...)
	}

	rv := reflect.ValueOf(v)
	if rv.Kind() == reflect.Slice && !rv.IsNil() {
		out := reflect.MakeSlice(rv.Type(), rv.Len(), rv.Len())
		reflect.Copy(out, rv)
		return out.Interface()
	}
	return v
}
