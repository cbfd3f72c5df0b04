package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDefault(t *testing.T) {
	cfg := Default()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config invalid: %v", err)
	}
	if cfg.SourceKit.RequestTimeout.Std() != 30*time.Second {
		t.Errorf("request timeout: %v", cfg.SourceKit.RequestTimeout)
	}
	if cfg.Logging.Level != "info" {
		t.Errorf("log level: %s", cfg.Logging.Level)
	}
}

func TestLoadFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "skbridge.toml")
	content := `
[sourcekit]
service_path = "/usr/lib/sourcekitd"
request_timeout = "45s"
max_restarts = 3

[logging]
level = "debug"
format = "json"
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.SourceKit.ServicePath != "/usr/lib/sourcekitd" {
		t.Errorf("service path: %s", cfg.SourceKit.ServicePath)
	}
	if cfg.SourceKit.RequestTimeout.Std() != 45*time.Second {
		t.Errorf("request timeout: %v", cfg.SourceKit.RequestTimeout)
	}
	if cfg.SourceKit.MaxRestarts != 3 {
		t.Errorf("max restarts: %d", cfg.SourceKit.MaxRestarts)
	}
	// Unset file values keep defaults.
	if cfg.SourceKit.RestartTimeout.Std() != 2*time.Minute {
		t.Errorf("restart timeout: %v", cfg.SourceKit.RestartTimeout)
	}
	if cfg.Logging.Level != "debug" || cfg.Logging.Format != "json" {
		t.Errorf("logging: %+v", cfg.Logging)
	}
}

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.toml"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.SourceKit.RequestTimeout != Default().SourceKit.RequestTimeout {
		t.Errorf("defaults not applied: %+v", cfg.SourceKit)
	}
}

func TestEnvironmentOverrides(t *testing.T) {
	t.Setenv("SKBRIDGE_LOG_LEVEL", "warn")
	t.Setenv("SKBRIDGE_REQUEST_TIMEOUT", "10s")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Logging.Level != "warn" {
		t.Errorf("env level override: %s", cfg.Logging.Level)
	}
	if cfg.SourceKit.RequestTimeout.Std() != 10*time.Second {
		t.Errorf("env timeout override: %v", cfg.SourceKit.RequestTimeout)
	}
}

func TestValidateRejectsBadValues(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		field  string
	}{
		{"zero request timeout", func(c *Config) { c.SourceKit.RequestTimeout = 0 }, "sourcekit.request_timeout"},
		{"negative restarts", func(c *Config) { c.SourceKit.MaxRestarts = -1 }, "sourcekit.max_restarts"},
		{"bad level", func(c *Config) { c.Logging.Level = "loud" }, "logging.level"},
		{"bad format", func(c *Config) { c.Logging.Format = "xml" }, "logging.format"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			err := cfg.Validate()
			var verr *ValidationError
			if !errors.As(err, &verr) || verr.Field != tt.field {
				t.Fatalf("got %v, want ValidationError on %s", err, tt.field)
			}
		})
	}
}
