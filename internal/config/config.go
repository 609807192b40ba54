// Package config loads service configuration from the environment. An optional
// .env file in the working directory is read first; variables already set in
// the environment take precedence.
package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
)

// Configuration is the complete service configuration.
type Configuration struct {
	Service       ServiceConfig
	LiveKit       LiveKitConfig
	Token         TokenConfig
	Kafka         KafkaConfig
	Source        SourceConfig
	STT           STTConfig
	Session       SessionConfig
	Observability ObservabilityConfig
}

// ServiceConfig holds listener and identity settings.
type ServiceConfig struct {
	Principal   string
	GRPCPort    string
	HTTPPort    string
	MetricsPort string
}

// LiveKitConfig holds LiveKit server credentials and the observed room.
type LiveKitConfig struct {
	URL              string
	APIKey           string
	APISecret        string
	AgentName        string
	Room             string
	ObserverIdentity string
	RosterRefresh    time.Duration
}

// TokenConfig holds token endpoint settings.
type TokenConfig struct {
	DefaultRoom    string
	TTL            time.Duration
	AllowedOrigins []string
}

// KafkaConfig holds event publishing settings.
type KafkaConfig struct {
	Enabled         bool
	Brokers         []string
	TopicPartial    string
	TopicFinal      string
	TopicAgentState string
	Principal       string
}

// SourceConfig selects the snapshot producer: mock, livekit, google or none.
type SourceConfig struct {
	Provider     string
	MockInterval time.Duration
}

// STTConfig holds Google Speech-to-Text replay settings.
type STTConfig struct {
	AudioPath       string
	LanguageCode    string
	SampleRateHz    int
	InterimResults  bool
	AudioEncoding   string
	SpeakerIdentity string
}

// SessionConfig bounds per-room state.
type SessionConfig struct {
	MaxEvents   int
	MaxPartials int
}

// ObservabilityConfig holds logging settings.
type ObservabilityConfig struct {
	LogLevel  string
	LogFormat string
}

// Load reads configuration from .env and the environment. Values that fail to
// parse fall back to their defaults.
func Load() *Configuration {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		log.Warn().Err(err).Msg("Failed to load .env file")
	}

	principal := envOrDefault("SERVICE_PRINCIPAL", "svc-accountability-call")
	room := envOrDefault("LIVEKIT_ROOM", "goggins-room")

	return &Configuration{
		Service: ServiceConfig{
			Principal:   principal,
			GRPCPort:    envOrDefault("GRPC_PORT", "50051"),
			HTTPPort:    envOrDefault("HTTP_PORT", "8080"),
			MetricsPort: envOrDefault("METRICS_PORT", "9090"),
		},
		LiveKit: LiveKitConfig{
			URL:              os.Getenv("LIVEKIT_URL"),
			APIKey:           os.Getenv("LIVEKIT_API_KEY"),
			APISecret:        os.Getenv("LIVEKIT_API_SECRET"),
			AgentName:        os.Getenv("LIVEKIT_AGENT_NAME"),
			Room:             room,
			ObserverIdentity: envOrDefault("LIVEKIT_OBSERVER_IDENTITY", "transcript-observer"),
			RosterRefresh:    envOrDefaultDuration("LIVEKIT_ROSTER_REFRESH", time.Second),
		},
		Token: TokenConfig{
			DefaultRoom:    envOrDefault("TOKEN_DEFAULT_ROOM", "goggins-room"),
			TTL:            envOrDefaultDuration("TOKEN_TTL", time.Hour),
			AllowedOrigins: envOrDefaultList("CORS_ALLOWED_ORIGINS", []string{"http://localhost:3000", "http://127.0.0.1:3000"}),
		},
		Kafka: KafkaConfig{
			Enabled:         envOrDefaultBool("KAFKA_ENABLED", false),
			Brokers:         envOrDefaultList("KAFKA_BROKERS", nil),
			TopicPartial:    envOrDefault("KAFKA_TOPIC_PARTIAL", "call.transcript.partial"),
			TopicFinal:      envOrDefault("KAFKA_TOPIC_FINAL", "call.transcript.final"),
			TopicAgentState: envOrDefault("KAFKA_TOPIC_AGENT_STATE", "call.agent.state"),
			Principal:       envOrDefault("KAFKA_PRINCIPAL", principal),
		},
		Source: SourceConfig{
			Provider:     strings.ToLower(envOrDefault("SOURCE_PROVIDER", "mock")),
			MockInterval: envOrDefaultDuration("SOURCE_MOCK_INTERVAL", 400*time.Millisecond),
		},
		STT: STTConfig{
			AudioPath:       os.Getenv("STT_AUDIO_PATH"),
			LanguageCode:    envOrDefault("STT_LANGUAGE_CODE", "en-US"),
			SampleRateHz:    envOrDefaultInt("STT_SAMPLE_RATE_HZ", 16000),
			InterimResults:  envOrDefaultBool("STT_INTERIM_RESULTS", true),
			AudioEncoding:   envOrDefault("STT_AUDIO_ENCODING", "LINEAR16"),
			SpeakerIdentity: envOrDefault("STT_SPEAKER_IDENTITY", "user"),
		},
		Session: SessionConfig{
			MaxEvents:   envOrDefaultInt("SESSION_MAX_EVENTS", 1000),
			MaxPartials: envOrDefaultInt("SESSION_MAX_PARTIALS", 500),
		},
		Observability: ObservabilityConfig{
			LogLevel:  envOrDefault("LOG_LEVEL", "info"),
			LogFormat: envOrDefault("LOG_FORMAT", "json"),
		},
	}
}

func envOrDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func envOrDefaultInt(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		log.Warn().Str("key", key).Str("value", v).Msg("Invalid integer, using default")
		return def
	}
	return n
}

func envOrDefaultBool(key string, def bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def
	}
	return b
}

func envOrDefaultDuration(key string, def time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		log.Warn().Str("key", key).Str("value", v).Msg("Invalid duration, using default")
		return def
	}
	return d
}

// envOrDefaultList splits a comma-separated value, dropping blank entries.
func envOrDefaultList(key string, def []string) []string {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	var out []string
	for _, item := range strings.Split(v, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	if len(out) == 0 {
		return def
	}
	return out
}
