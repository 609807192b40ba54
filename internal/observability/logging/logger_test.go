package logging

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/rs/zerolog"
)

func TestInitWithWriter_JSON(t *testing.T) {
	var buf bytes.Buffer
	InitWithWriter(Config{Level: "debug", Format: "json"}, &buf)
	defer zerolog.SetGlobalLevel(zerolog.InfoLevel)

	l := WithSegment("goggins-room", "seg-1")
	l.Debug().Msg("hello")

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("expected JSON log line, got %q: %v", buf.String(), err)
	}
	if entry["room"] != "goggins-room" {
		t.Errorf("expected room field, got %v", entry["room"])
	}
	if entry["segmentId"] != "seg-1" {
		t.Errorf("expected segmentId field, got %v", entry["segmentId"])
	}
	if entry["message"] != "hello" {
		t.Errorf("expected message 'hello', got %v", entry["message"])
	}
}

func TestInitWithWriter_InvalidLevelFallsBackToInfo(t *testing.T) {
	var buf bytes.Buffer
	InitWithWriter(Config{Level: "loud"}, &buf)

	if zerolog.GlobalLevel() != zerolog.InfoLevel {
		t.Errorf("expected info level, got %s", zerolog.GlobalLevel())
	}

	l := WithComponent("test")
	l.Debug().Msg("hidden")
	if buf.Len() != 0 {
		t.Errorf("expected debug line to be filtered, got %q", buf.String())
	}
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	if cfg.Level != "info" {
		t.Errorf("expected default level 'info', got %s", cfg.Level)
	}
	if cfg.Format != "json" {
		t.Errorf("expected default format 'json', got %s", cfg.Format)
	}
}
