package gateway

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/appforgehq/appforge/internal/config"
)

const (
	// DefaultAddr binds to loopback so exposing the gateway to a network
	// is an explicit choice.
	DefaultAddr = "127.0.0.1:8911"

	// DefaultShutdownTimeout bounds how long in-flight requests may run
	// after a stop signal. Build streams can be long, so this only caps
	// the drain, it does not wait for runs to finish.
	DefaultShutdownTimeout = 10 * time.Second
)

// Config sizes the HTTP gateway. It is derived from the environment and
// optionally overridden, field by field, from a YAML file.
type Config struct {
	// Addr is the listen address, host:port.
	Addr string `yaml:"addr"`
	// Token is the bearer token every request except /healthz must carry.
	// The gateway refuses to start without one.
	Token string `yaml:"token"`
	// Origins lists origins allowed to call the gateway from a browser.
	// Empty denies all cross-origin callers.
	Origins []string `yaml:"origins"`
	// ShutdownTimeout is how long Serve waits for in-flight requests
	// after its context is cancelled.
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// Default returns the built-in gateway configuration. It does not pass
// Validate until a token is set.
func Default() Config {
	return Config{
		Addr:            DefaultAddr,
		ShutdownTimeout: DefaultShutdownTimeout,
	}
}

// FromEnv derives a gateway configuration from parsed process
// configuration.
func FromEnv(env *config.Config) Config {
	cfg := Default()
	if env.HTTPAddr != "" {
		cfg.Addr = env.HTTPAddr
	}
	cfg.Token = env.HTTPToken
	cfg.Origins = env.HTTPOrigins
	return cfg
}

// Parse overlays YAML data on base and validates the result. Fields
// absent from the file keep their base values.
func Parse(data []byte, base Config) (*Config, error) {
	cfg := base
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parsing gateway config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Load reads a YAML config file and overlays it on base.
func Load(path string, base Config) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading gateway config: %w", err)
	}
	return Parse(data, base)
}

// Validate reports the first unusable setting.
func (c *Config) Validate() error {
	if c.Addr == "" {
		return fmt.Errorf("addr is required")
	}
	if c.Token == "" {
		return fmt.Errorf("an access token is required: set APPFORGE_HTTP_TOKEN or the token key in the config file")
	}
	if c.ShutdownTimeout <= 0 {
		return fmt.Errorf("shutdown_timeout must be positive, got %v", c.ShutdownTimeout)
	}
	return nil
}
