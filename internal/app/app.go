package app

import (
	"context"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"voice-command-pipeline/internal/config"
	"voice-command-pipeline/internal/events"
	"voice-command-pipeline/internal/observability/logging"
	"voice-command-pipeline/internal/service/pipeline"
)

// Pipeline is the listening pipeline the application drives.
type Pipeline interface {
	Start(ctx context.Context) error
	Stop() error
	Listening() bool
	Status() pipeline.Status
}

// Application holds process-wide state for the service.
type Application struct {
	StartupTime time.Time
	Logger      zerolog.Logger
	Cfg         *config.Config
	Bus         *events.Bus
	Pipeline    Pipeline
}

// New constructs a new Application from the provided configuration.
func New(cfg *config.Config, bus *events.Bus, p Pipeline) *Application {
	a := &Application{
		Cfg:      cfg,
		Bus:      bus,
		Pipeline: p,
	}
	a.setupLogger()

	appLogger := a.Logger.With().
		Str("method", "New").
		Logger()

	appLogger.Info().Msg("Voice command pipeline application created")
	return a
}

// setupLogger configures zerolog for the service. ZEROLOG_LOG_LEVEL and
// ENV=dev override the configured level and format.
func (a *Application) setupLogger() {
	lc := logging.DefaultConfig()
	if a.Cfg != nil {
		if a.Cfg.Observability.LogLevel != "" {
			lc.Level = a.Cfg.Observability.LogLevel
		}
		if a.Cfg.Observability.LogFormat != "" {
			lc.Format = a.Cfg.Observability.LogFormat
		}
	}
	if envLevel := os.Getenv("ZEROLOG_LOG_LEVEL"); envLevel != "" {
		if _, err := zerolog.ParseLevel(strings.ToLower(envLevel)); err == nil {
			lc.Level = strings.ToLower(envLevel)
		}
	}
	if os.Getenv("ENV") == "dev" {
		lc.Format = "console"
	}
	logging.Init(lc)

	service := "svc-voice-pipeline"
	if a.Cfg != nil && a.Cfg.Service.Name != "" {
		service = a.Cfg.Service.Name
	}
	a.Logger = log.With().
		Str("service", service).
		Str("component", "application").
		Logger()

	a.Logger.Info().
		Str("logLevel", zerolog.GlobalLevel().String()).
		Str("logFormat", lc.Format).
		Str("environment", os.Getenv("ENV")).
		Msg("Logger setup completed")
}

// Start records the startup time and begins listening. A pipeline that
// fails to start leaves the service up with the failure in its status.
func (a *Application) Start(ctx context.Context) error {
	startLogger := a.Logger.With().
		Str("method", "Start").
		Logger()

	a.StartupTime = time.Now().UTC()
	startLogger.Info().
		Time("startupTime", a.StartupTime).
		Msg("Voice command pipeline starting")

	if a.Pipeline == nil {
		return nil
	}
	if err := a.Pipeline.Start(ctx); err != nil {
		startLogger.Error().Err(err).Msg("Pipeline failed to start")
		return err
	}
	return nil
}

// Ready reports whether the pipeline is listening.
func (a *Application) Ready() bool {
	return a.Pipeline != nil && a.Pipeline.Listening()
}

// Shutdown performs a best-effort cleanup before process exit.
func (a *Application) Shutdown() {
	shutdownLogger := a.Logger.With().
		Str("method", "Shutdown").
		Logger()

	shutdownLogger.Info().Msg("Voice command pipeline shutting down")
	if a.Pipeline == nil {
		return
	}
	if err := a.Pipeline.Stop(); err != nil {
		shutdownLogger.Warn().Err(err).Msg("Pipeline stop reported errors")
	}
}
