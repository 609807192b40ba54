package config

import (
	"os"
	"reflect"
	"testing"
	"time"
)

var allVars = []string{
	"SERVICE_PRINCIPAL", "GRPC_PORT", "HTTP_PORT", "METRICS_PORT",
	"LIVEKIT_URL", "LIVEKIT_API_KEY", "LIVEKIT_API_SECRET", "LIVEKIT_AGENT_NAME",
	"LIVEKIT_ROOM", "LIVEKIT_OBSERVER_IDENTITY", "LIVEKIT_ROSTER_REFRESH",
	"TOKEN_DEFAULT_ROOM", "TOKEN_TTL", "CORS_ALLOWED_ORIGINS",
	"KAFKA_ENABLED", "KAFKA_BROKERS", "KAFKA_TOPIC_PARTIAL", "KAFKA_TOPIC_FINAL",
	"KAFKA_TOPIC_AGENT_STATE", "KAFKA_PRINCIPAL",
	"SOURCE_PROVIDER", "SOURCE_MOCK_INTERVAL",
	"STT_AUDIO_PATH", "STT_LANGUAGE_CODE", "STT_SAMPLE_RATE_HZ", "STT_INTERIM_RESULTS",
	"STT_AUDIO_ENCODING", "STT_SPEAKER_IDENTITY",
	"SESSION_MAX_EVENTS", "SESSION_MAX_PARTIALS",
	"LOG_LEVEL", "LOG_FORMAT",
}

func clearEnv(t *testing.T) {
	t.Helper()
	for _, v := range allVars {
		if old, ok := os.LookupEnv(v); ok {
			os.Unsetenv(v)
			t.Cleanup(func() { os.Setenv(v, old) })
		}
	}
}

func TestLoad_Defaults(t *testing.T) {
	clearEnv(t)

	cfg := Load()

	// Service defaults
	if cfg.Service.Principal != "svc-accountability-call" {
		t.Errorf("expected default principal 'svc-accountability-call', got %s", cfg.Service.Principal)
	}
	if cfg.Service.GRPCPort != "50051" || cfg.Service.HTTPPort != "8080" || cfg.Service.MetricsPort != "9090" {
		t.Errorf("unexpected default ports: %+v", cfg.Service)
	}

	// LiveKit and token defaults
	if cfg.LiveKit.Room != "goggins-room" {
		t.Errorf("expected default room 'goggins-room', got %s", cfg.LiveKit.Room)
	}
	if cfg.LiveKit.ObserverIdentity != "transcript-observer" {
		t.Errorf("expected default observer identity, got %s", cfg.LiveKit.ObserverIdentity)
	}
	if cfg.LiveKit.RosterRefresh != time.Second {
		t.Errorf("expected default roster refresh 1s, got %v", cfg.LiveKit.RosterRefresh)
	}
	if cfg.Token.DefaultRoom != "goggins-room" || cfg.Token.TTL != time.Hour {
		t.Errorf("unexpected token defaults: %+v", cfg.Token)
	}
	wantOrigins := []string{"http://localhost:3000", "http://127.0.0.1:3000"}
	if !reflect.DeepEqual(cfg.Token.AllowedOrigins, wantOrigins) {
		t.Errorf("expected origins %v, got %v", wantOrigins, cfg.Token.AllowedOrigins)
	}

	// Kafka defaults
	if cfg.Kafka.Enabled {
		t.Error("expected Kafka disabled by default")
	}
	if cfg.Kafka.TopicPartial != "call.transcript.partial" ||
		cfg.Kafka.TopicFinal != "call.transcript.final" ||
		cfg.Kafka.TopicAgentState != "call.agent.state" {
		t.Errorf("unexpected default topics: %+v", cfg.Kafka)
	}

	// Source and STT defaults
	if cfg.Source.Provider != "mock" {
		t.Errorf("expected default source 'mock', got %s", cfg.Source.Provider)
	}
	if cfg.Source.MockInterval != 400*time.Millisecond {
		t.Errorf("expected default mock interval 400ms, got %v", cfg.Source.MockInterval)
	}
	if cfg.STT.LanguageCode != "en-US" || cfg.STT.SampleRateHz != 16000 || cfg.STT.AudioEncoding != "LINEAR16" {
		t.Errorf("unexpected STT defaults: %+v", cfg.STT)
	}
	if cfg.STT.SpeakerIdentity != "user" || !cfg.STT.InterimResults {
		t.Errorf("unexpected STT defaults: %+v", cfg.STT)
	}

	// Session limits defaults
	if cfg.Session.MaxEvents != 1000 {
		t.Errorf("expected default max events 1000, got %d", cfg.Session.MaxEvents)
	}
	if cfg.Session.MaxPartials != 500 {
		t.Errorf("expected default max partials 500, got %d", cfg.Session.MaxPartials)
	}

	// Observability defaults
	if cfg.Observability.LogLevel != "info" || cfg.Observability.LogFormat != "json" {
		t.Errorf("unexpected observability defaults: %+v", cfg.Observability)
	}
}

func TestLoad_CustomValues(t *testing.T) {
	clearEnv(t)
	t.Setenv("SERVICE_PRINCIPAL", "custom-principal")
	t.Setenv("HTTP_PORT", "9000")
	t.Setenv("LIVEKIT_URL", "wss://lk.example")
	t.Setenv("LIVEKIT_ROOM", "team.daily")
	t.Setenv("LIVEKIT_ROSTER_REFRESH", "250ms")
	t.Setenv("TOKEN_TTL", "15m")
	t.Setenv("CORS_ALLOWED_ORIGINS", "https://app.example, ,https://admin.example")
	t.Setenv("KAFKA_ENABLED", "true")
	t.Setenv("KAFKA_BROKERS", "kafka-1:9092,kafka-2:9092")
	t.Setenv("KAFKA_PRINCIPAL", "svc-kafka")
	t.Setenv("SOURCE_PROVIDER", "LiveKit")
	t.Setenv("STT_SAMPLE_RATE_HZ", "8000")
	t.Setenv("SESSION_MAX_PARTIALS", "50")
	t.Setenv("LOG_LEVEL", "debug")

	cfg := Load()

	if cfg.Service.Principal != "custom-principal" {
		t.Errorf("expected principal 'custom-principal', got %s", cfg.Service.Principal)
	}
	if cfg.Service.HTTPPort != "9000" {
		t.Errorf("expected HTTP port '9000', got %s", cfg.Service.HTTPPort)
	}
	if cfg.LiveKit.URL != "wss://lk.example" || cfg.LiveKit.Room != "team.daily" {
		t.Errorf("unexpected LiveKit config: %+v", cfg.LiveKit)
	}
	if cfg.LiveKit.RosterRefresh != 250*time.Millisecond {
		t.Errorf("expected roster refresh 250ms, got %v", cfg.LiveKit.RosterRefresh)
	}
	if cfg.Token.TTL != 15*time.Minute {
		t.Errorf("expected token TTL 15m, got %v", cfg.Token.TTL)
	}
	if !reflect.DeepEqual(cfg.Token.AllowedOrigins, []string{"https://app.example", "https://admin.example"}) {
		t.Errorf("unexpected origins %v", cfg.Token.AllowedOrigins)
	}
	if !cfg.Kafka.Enabled || !reflect.DeepEqual(cfg.Kafka.Brokers, []string{"kafka-1:9092", "kafka-2:9092"}) {
		t.Errorf("unexpected Kafka config: %+v", cfg.Kafka)
	}
	if cfg.Kafka.Principal != "svc-kafka" {
		t.Errorf("expected Kafka principal 'svc-kafka', got %s", cfg.Kafka.Principal)
	}
	if cfg.Source.Provider != "livekit" {
		t.Errorf("expected provider to be lowercased, got %s", cfg.Source.Provider)
	}
	if cfg.STT.SampleRateHz != 8000 {
		t.Errorf("expected sample rate 8000, got %d", cfg.STT.SampleRateHz)
	}
	if cfg.Session.MaxPartials != 50 {
		t.Errorf("expected max partials 50, got %d", cfg.Session.MaxPartials)
	}
	if cfg.Observability.LogLevel != "debug" {
		t.Errorf("expected log level 'debug', got %s", cfg.Observability.LogLevel)
	}
}

func TestLoad_InvalidValues_FallbackToDefaults(t *testing.T) {
	clearEnv(t)
	t.Setenv("STT_SAMPLE_RATE_HZ", "not-a-number")
	t.Setenv("STT_INTERIM_RESULTS", "invalid")
	t.Setenv("SESSION_MAX_EVENTS", "invalid")
	t.Setenv("TOKEN_TTL", "forever")
	t.Setenv("SOURCE_MOCK_INTERVAL", "soon")

	cfg := Load()

	// Should fall back to defaults on parse errors
	if cfg.STT.SampleRateHz != 16000 {
		t.Errorf("expected default sample rate on invalid input, got %d", cfg.STT.SampleRateHz)
	}
	if cfg.STT.InterimResults != true {
		t.Errorf("expected default interim results on invalid input, got %v", cfg.STT.InterimResults)
	}
	if cfg.Session.MaxEvents != 1000 {
		t.Errorf("expected default max events on invalid input, got %d", cfg.Session.MaxEvents)
	}
	if cfg.Token.TTL != time.Hour {
		t.Errorf("expected default TTL on invalid input, got %v", cfg.Token.TTL)
	}
	if cfg.Source.MockInterval != 400*time.Millisecond {
		t.Errorf("expected default mock interval on invalid input, got %v", cfg.Source.MockInterval)
	}
}

func TestLoad_KafkaPrincipal_FallsBackToServicePrincipal(t *testing.T) {
	clearEnv(t)
	t.Setenv("SERVICE_PRINCIPAL", "my-service")

	cfg := Load()

	if cfg.Kafka.Principal != "my-service" {
		t.Errorf("expected Kafka principal to fall back to service principal, got %s", cfg.Kafka.Principal)
	}
}

func TestEnvOrDefaultBool(t *testing.T) {
	tests := []struct {
		name     string
		envValue string
		def      bool
		expected bool
	}{
		{"true string", "true", false, true},
		{"false string", "false", true, false},
		{"1", "1", false, true},
		{"0", "0", true, false},
		{"TRUE uppercase", "TRUE", false, true},
		{"invalid", "invalid", true, true},
		{"empty", "", true, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			key := "TEST_BOOL_VAR"
			if tt.envValue != "" {
				os.Setenv(key, tt.envValue)
			} else {
				os.Unsetenv(key)
			}
			defer os.Unsetenv(key)

			got := envOrDefaultBool(key, tt.def)
			if got != tt.expected {
				t.Errorf("envOrDefaultBool(%s, %v) = %v, want %v", tt.envValue, tt.def, got, tt.expected)
			}
		})
	}
}

func TestEnvOrDefaultList(t *testing.T) {
	t.Setenv("TEST_LIST_VAR", " , ")
	if got := envOrDefaultList("TEST_LIST_VAR", []string{"x"}); !reflect.DeepEqual(got, []string{"x"}) {
		t.Errorf("expected default for blank list, got %v", got)
	}
}
