package process

import (
	"fmt"
	"path/filepath"
	"time"

	"github.com/go-playground/validator/v10"
)

// Phases a command can run in.
const (
	// PhaseLaunch commands run to completion before the application is ready.
	PhaseLaunch = "launch"
	// PhaseRun commands are started by the run phase and stopped at shutdown.
	PhaseRun = "run"
)

// Command describes an external program.
type Command struct {
	Name    string            `mapstructure:"name" validate:"required"`
	Command string            `mapstructure:"command" validate:"required"`
	Args    []string          `mapstructure:"args"`
	Env     map[string]string `mapstructure:"env"`
	Dir     string            `mapstructure:"dir"`
	Phase   string            `mapstructure:"phase" validate:"omitempty,oneof=launch run"`

	// Exclusive launch commands hold a lock named after the command while they
	// run, so replicas run them one at a time.
	Exclusive bool `mapstructure:"exclusive"`
}

// Config configures the process module. It is read from the "process" configuration key.
type Config struct {
	Commands    []Command     `mapstructure:"commands" validate:"dive"`
	StopTimeout time.Duration `mapstructure:"stop_timeout" validate:"gt=0"`
	LockTTL     time.Duration `mapstructure:"lock_ttl" validate:"min=1ms"`
}

// DefaultConfig returns the configuration used for unset keys.
func DefaultConfig() Config {
	return Config{
		StopTimeout: 5 * time.Second,
		LockTTL:     time.Minute,
	}
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate checks the configuration and rejects duplicate command names.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("invalid process config: %w", err)
	}
	seen := make(map[string]bool, len(c.Commands))
	for _, cmd := range c.Commands {
		if seen[cmd.Name] {
			return fmt.Errorf("invalid process config: duplicate command %q", cmd.Name)
		}
		seen[cmd.Name] = true
	}
	return nil
}

// normalize defaults the phase and resolves relative working directories against appDir.
func (c *Config) normalize(appDir string) {
	for i := range c.Commands {
		cmd := &c.Commands[i]
		if cmd.Phase == "" {
			cmd.Phase = PhaseRun
		}
		switch {
		case cmd.Dir == "":
			cmd.Dir = appDir
		case !filepath.IsAbs(cmd.Dir):
			cmd.Dir = filepath.Join(appDir, cmd.Dir)
		}
	}
}
