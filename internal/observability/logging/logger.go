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

// DefaultConfig returns sensible default logging configuration.
func DefaultConfig() Config {
	return Config{
		Level:      "info",
		Format:     "json",
		TimeFormat: time.RFC3339,
	}
}

// Init initializes the global zerolog logger.
func Init(cfg Config) {
	if cfg.TimeFormat != "" {
		zerolog.TimeFieldFormat = cfg.TimeFormat
	}

	level, err := zerolog.ParseLevel(cfg.Level)
	if err != nil || cfg.Level == "" {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	var output io.Writer = os.Stdout
	if cfg.Format == "console" {
		output = zerolog.ConsoleWriter{
			Out:        os.Stdout,
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

// WithSession returns a logger with recording session context.
func WithSession(deviceId, sessionId string) zerolog.Logger {
	return log.With().
		Str("component", "recorder").
		Str("deviceId", deviceId).
		Str("sessionId", sessionId).
		Logger()
}

// WithStream returns a logger with recognition stream context.
func WithStream(streamId, provider string) zerolog.Logger {
	return log.With().
		Str("component", "uplink").
		Str("streamId", streamId).
		Str("sttProvider", provider).
		Logger()
}

// WithUtterance returns a logger with utterance context.
func WithUtterance(streamId, utteranceId string) zerolog.Logger {
	return log.With().
		Str("component", "router").
		Str("streamId", streamId).
		Str("utteranceId", utteranceId).
		Logger()
}
