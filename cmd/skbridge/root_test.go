package main

import (
	"testing"
	"time"

	"github.com/dshills/skbridge/internal/config"
)

func TestRequestTimeoutFallsBackToConfig(t *testing.T) {
	cfg := config.Default()
	cfg.SourceKit.RequestTimeout = config.Duration(45 * time.Second)
	state := &rootState{cfg: cfg}

	if got := state.requestTimeout(0); got != 45*time.Second {
		t.Errorf("zero flag: got %v, want the configured timeout", got)
	}
	if got := state.requestTimeout(10 * time.Second); got != 10*time.Second {
		t.Errorf("explicit flag: got %v, want the flag value", got)
	}
}

func TestRespawnConfigFromConfiguration(t *testing.T) {
	cfg := config.Default()
	cfg.SourceKit.MaxRestarts = 2
	state := &rootState{cfg: cfg}

	respawn := state.respawnConfig()
	if respawn.MaxRestarts != 2 {
		t.Errorf("MaxRestarts: got %d, want 2", respawn.MaxRestarts)
	}
	if respawn.InitialBackoff <= 0 {
		t.Errorf("backoff defaults lost: %+v", respawn)
	}
}
