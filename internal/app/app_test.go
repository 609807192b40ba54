package app

import (
	"testing"

	"github.com/rs/zerolog"

	"accountability-call-service/internal/config"
)

func TestApplication_Lifecycle(t *testing.T) {
	cfg := &config.Configuration{
		Observability: config.ObservabilityConfig{LogLevel: "warn", LogFormat: "json"},
	}
	a := New(cfg)

	if zerolog.GlobalLevel() != zerolog.WarnLevel {
		t.Errorf("expected warn level, got %s", zerolog.GlobalLevel())
	}
	if a.Ready() {
		t.Error("expected application not ready before Start")
	}

	if err := a.Start(); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	if !a.Ready() {
		t.Error("expected application ready after Start")
	}
	if a.StartupTime.IsZero() {
		t.Error("expected startup time to be set")
	}

	a.Shutdown()
	if a.Ready() {
		t.Error("expected application not ready after Shutdown")
	}
}

func TestApplication_NilConfigUsesDefaults(t *testing.T) {
	New(nil)
	if zerolog.GlobalLevel() != zerolog.InfoLevel {
		t.Errorf("expected info level, got %s", zerolog.GlobalLevel())
	}
}
