// Package logging provides structured logging with zerolog.
package logging

import (
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Config holds logging configuration.
type Config struct {
	Level      string // debug, info, warn, error
	Format     string // json, console
	TimeFormat string // RFC3339, Unix, etc.
}

// DefaultConfig returns the default logging configuration.
func DefaultConfig() Config {
	return Config{
		Level:      "info",
		Format:     "json",
		TimeFormat: time.RFC3339,
	}
}

// Init initializes the global zerolog logger.
func Init(cfg Config) {
	InitWithWriter(cfg, os.Stdout)
}

// InitWithWriter initializes the global logger writing to out.
func InitWithWriter(cfg Config, out io.Writer) {
	if cfg.TimeFormat == "" {
		cfg.TimeFormat = time.RFC3339
	}
	zerolog.TimeFieldFormat = cfg.TimeFormat

	level, err := zerolog.ParseLevel(cfg.Level)
	if err != nil || cfg.Level == "" {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	output := out
	if cfg.Format == "console" {
		output = zerolog.ConsoleWriter{
			Out:        out,
			TimeFormat: time.Kitchen,
		}
	}

	log.Logger = zerolog.New(output).
		With().
		Timestamp().
		Caller().
		Logger()
}

// Logger returns the global logger.
func Logger() zerolog.Logger {
	return log.Logger
}

// WithComponent returns a logger with a component tag.
func WithComponent(component string) zerolog.Logger {
	return log.With().
		Str("component", component).
		Logger()
}

// WithRoom returns a logger with room context.
func WithRoom(room string) zerolog.Logger {
	return log.With().
		Str("room", room).
		Logger()
}

// WithSegment returns a logger with segment context.
func WithSegment(room, segmentId string) zerolog.Logger {
	return log.With().
		Str("room", room).
		Str("segmentId", segmentId).
		Logger()
}

// WithParticipant returns a logger with participant context.
func WithParticipant(room, identity string) zerolog.Logger {
	return log.With().
		Str("room", room).
		Str("participant", identity).
		Logger()
}
