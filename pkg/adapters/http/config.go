package http

import (
	"fmt"
	"net"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
)

// Config configures the HTTP module. It is read from the "http" configuration key.
type Config struct {
	// Host is the interface to bind. Default: 0.0.0.0
	Host string `mapstructure:"host" validate:"required,hostname|ip"`

	// Port is the TCP port. 0 picks a free port. Default: 3000
	Port int `mapstructure:"port" validate:"min=0,max=65535"`

	// Assets maps a URI prefix to a directory served as static files.
	// Relative directories are resolved against the application directory.
	Assets map[string]string `mapstructure:"assets" validate:"dive,keys,startswith=/,endkeys,required"`

	// ShutdownTimeout bounds the graceful shutdown. Default: 5s
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout" validate:"min=0"`

	// Metrics exposes /metrics. Default: true
	Metrics bool `mapstructure:"metrics"`

	// CORS adds permissive cross-origin headers. Default: false
	CORS bool `mapstructure:"cors"`
}

// DefaultConfig returns the configuration used for unset keys.
func DefaultConfig() Config {
	return Config{
		Host:            "0.0.0.0",
		Port:            3000,
		ShutdownTimeout: 5 * time.Second,
		Metrics:         true,
	}
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate checks the configuration.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("invalid http config: %w", err)
	}
	return nil
}

// Address returns host:port.
func (c *Config) Address() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}

// resolveAssets makes asset directories absolute and normalises the URI prefixes.
func (c *Config) resolveAssets(appDir string) {
	if len(c.Assets) == 0 {
		return
	}
	resolved := make(map[string]string, len(c.Assets))
	for uri, dir := range c.Assets {
		if !filepath.IsAbs(dir) {
			dir = filepath.Join(appDir, dir)
		}
		uri = strings.TrimSuffix(uri, "/")
		resolved[uri] = dir
	}
	c.Assets = resolved
}
