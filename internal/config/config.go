// Package config loads process configuration from the environment.
//
// All variables share the APPFORGE_ prefix. Credentials are required only by
// commands that talk to the platform; Parse itself never fails on absent
// values so that commands like "version" work unconfigured.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
)

// Config carries everything the client needs to reach a tenant.
type Config struct {
	// Host is the tenant management host, e.g. "acme.appforge.dev".
	Host string `env:"HOST"`
	// Username and Password authenticate against the federated pool.
	Username string `env:"USERNAME"`
	Password string `env:"PASSWORD,unset"`
	// Environment optionally selects a stage within the tenant.
	Environment string `env:"ENVIRONMENT"`

	// IdentityHost serves the OIDC discovery document.
	IdentityHost string `env:"IDENTITY_HOST" envDefault:"id.appforge.dev"`
	// LoginHost serves the hosted sign-in config and token exchange.
	LoginHost string `env:"LOGIN_HOST" envDefault:"login.appforge.dev"`

	LogLevel string `env:"LOG_LEVEL" envDefault:"info"`

	// TokenTTLFallback is used when the token endpoint omits expires_in.
	TokenTTLFallback time.Duration `env:"TOKEN_TTL_FALLBACK" envDefault:"3600s"`
	// TokenBuffer is subtracted from a token's lifetime before reuse.
	TokenBuffer time.Duration `env:"TOKEN_BUFFER" envDefault:"300s"`

	// HistoryPath overrides the default run-history database location.
	HistoryPath string `env:"HISTORY_PATH"`

	// HTTP gateway settings, used by serve-http only. A gateway config file
	// overrides these per field.
	HTTPAddr    string   `env:"HTTP_ADDR" envDefault:"127.0.0.1:8911"`
	HTTPToken   string   `env:"HTTP_TOKEN"`
	HTTPOrigins []string `env:"HTTP_ORIGINS" envSeparator:","`
}

// ConfigurationError reports a required variable that was absent or malformed.
type ConfigurationError struct {
	Name   string
	Reason string
}

func (e *ConfigurationError) Error() string {
	if e.Reason != "" {
		return fmt.Sprintf("configuration %s: %s", e.Name, e.Reason)
	}
	return fmt.Sprintf("configuration %s is required", e.Name)
}

// Parse reads configuration from environ, which callers normally pass as
// os.Environ(). Injecting environ keeps tests free of process-global state.
func Parse(environ []string) (*Config, error) {
	var cfg Config
	err := env.ParseWithOptions(&cfg, env.Options{
		Environment: env.ToMap(environ),
		Prefix:      "APPFORGE_",
	})
	if err != nil {
		return nil, fmt.Errorf("parse environment: %w", err)
	}
	cfg.Host = strings.TrimSpace(cfg.Host)
	cfg.Username = strings.TrimSpace(cfg.Username)
	return &cfg, nil
}

// ValidateCredentials checks the variables every platform-facing command
// needs. The returned error names the first missing variable.
func (c *Config) ValidateCredentials() error {
	switch {
	case c.Host == "":
		return &ConfigurationError{Name: "APPFORGE_HOST"}
	case strings.Contains(c.Host, "://"):
		return &ConfigurationError{Name: "APPFORGE_HOST", Reason: "must be a bare hostname, not a URL"}
	case c.Username == "":
		return &ConfigurationError{Name: "APPFORGE_USERNAME"}
	case c.Password == "":
		return &ConfigurationError{Name: "APPFORGE_PASSWORD"}
	}
	return nil
}
