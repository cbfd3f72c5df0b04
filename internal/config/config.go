package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joeshaw/envdecode"
)

// Duration is a time.Duration that unmarshals from "30s"-style strings in
// both TOML and environment variables.
type Duration time.Duration

// UnmarshalText implements encoding.TextUnmarshaler for TOML decoding.
func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	*d = Duration(v)
	return nil
}

// Decode implements envdecode.Decoder for environment overrides.
func (d *Duration) Decode(s string) error {
	return d.UnmarshalText([]byte(s))
}

// Std returns the value as a time.Duration.
func (d Duration) Std() time.Duration { return time.Duration(d) }

// Config holds the skbridge configuration. Values are loaded from a TOML
// file, then overridden by SKBRIDGE_* environment variables.
type Config struct {
	SourceKit SourceKitConfig `toml:"sourcekit"`
	Logging   LoggingConfig   `toml:"logging"`
}

// SourceKitConfig configures the backend service connection.
type SourceKitConfig struct {
	// ServicePath is the path of the backend library/service binary.
	ServicePath string `toml:"service_path" env:"SKBRIDGE_SERVICE_PATH"`

	// ClientPlugin and ServicePlugin are optional plugin paths loaded into
	// the backend.
	ClientPlugin  string `toml:"client_plugin" env:"SKBRIDGE_CLIENT_PLUGIN"`
	ServicePlugin string `toml:"service_plugin" env:"SKBRIDGE_SERVICE_PLUGIN"`

	// RequestTimeout bounds each request end to end.
	RequestTimeout Duration `toml:"request_timeout" env:"SKBRIDGE_REQUEST_TIMEOUT"`

	// RestartTimeout bounds how long the backend may stay silent before it
	// is presumed wedged and crashed for recovery.
	RestartTimeout Duration `toml:"restart_timeout" env:"SKBRIDGE_RESTART_TIMEOUT"`

	// MaxRestarts caps automatic respawns of a crashing backend.
	MaxRestarts int `toml:"max_restarts" env:"SKBRIDGE_MAX_RESTARTS"`
}

// LoggingConfig configures structured logging.
type LoggingConfig struct {
	// Level is one of debug, info, warn, error.
	Level string `toml:"level" env:"SKBRIDGE_LOG_LEVEL"`

	// Format is "text" or "json".
	Format string `toml:"format" env:"SKBRIDGE_LOG_FORMAT"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		SourceKit: SourceKitConfig{
			RequestTimeout: Duration(30 * time.Second),
			RestartTimeout: Duration(2 * time.Minute),
			MaxRestarts:    5,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// Load builds the configuration: defaults, then the TOML file at path (if
// path is empty or the file does not exist, the file layer is skipped), then
// environment variable overrides.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		if _, err := toml.DecodeFile(path, cfg); err != nil {
			if !errors.Is(err, os.ErrNotExist) {
				return nil, fmt.Errorf("load config %s: %w", path, err)
			}
		}
	}

	// envdecode errors only on malformed values; absent variables keep the
	// file/default values.
	if err := envdecode.Decode(cfg); err != nil && !errors.Is(err, envdecode.ErrNoTargetFieldsAreSet) {
		return nil, fmt.Errorf("environment overrides: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the configuration for contradictions.
func (c *Config) Validate() error {
	if c.SourceKit.RequestTimeout <= 0 {
		return &ValidationError{Field: "sourcekit.request_timeout", Reason: "must be positive"}
	}
	if c.SourceKit.RestartTimeout <= 0 {
		return &ValidationError{Field: "sourcekit.restart_timeout", Reason: "must be positive"}
	}
	if c.SourceKit.MaxRestarts < 0 {
		return &ValidationError{Field: "sourcekit.max_restarts", Reason: "must not be negative"}
	}
	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return &ValidationError{Field: "logging.level", Reason: fmt.Sprintf("unknown level %q", c.Logging.Level)}
	}
	switch c.Logging.Format {
	case "text", "json":
	default:
		return &ValidationError{Field: "logging.format", Reason: fmt.Sprintf("unknown format %q", c.Logging.Format)}
	}
	return nil
}
