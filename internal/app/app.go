package app

import (
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"accountability-call-service/internal/config"
	"accountability-call-service/internal/observability/logging"
)

// ServiceName identifies the service in logs.
const ServiceName = "accountability-call-service"

// Application holds process-wide state for the service.
type Application struct {
	StartupTime time.Time
	Logger      zerolog.Logger
	Cfg         *config.Configuration

	ready atomic.Bool
}

// New constructs a new Application from the provided configuration.
func New(cfg *config.Configuration) *Application {
	a := &Application{
		Cfg: cfg,
	}
	a.setupLogger()

	appLogger := a.Logger.With().
		Str("method", "New").
		Logger()

	appLogger.Info().Msg("Accountability call service application created")
	return a
}

// setupLogger configures the global zerolog logger and derives the
// application logger from it.
func (a *Application) setupLogger() {
	logCfg := logging.DefaultConfig()
	if a.Cfg != nil {
		logCfg.Level = a.Cfg.Observability.LogLevel
		logCfg.Format = a.Cfg.Observability.LogFormat
	}
	logging.Init(logCfg)

	a.Logger = logging.WithComponent("application").With().
		Str("service", ServiceName).
		Logger()

	a.Logger.Info().
		Str("logLevel", zerolog.GlobalLevel().String()).
		Str("logFormat", logCfg.Format).
		Msg("Logger setup completed")
}

// Start performs any startup work required before serving traffic and marks
// the service ready.
func (a *Application) Start() error {
	startLogger := a.Logger.With().
		Str("method", "Start").
		Logger()

	a.StartupTime = time.Now().UTC()
	a.ready.Store(true)
	startLogger.Info().
		Time("startupTime", a.StartupTime).
		Msg("Accountability call service starting")

	return nil
}

// Ready reports whether the service is accepting traffic.
func (a *Application) Ready() bool {
	return a.ready.Load()
}

// Shutdown marks the service not ready so load balancers drain it.
func (a *Application) Shutdown() {
	shutdownLogger := a.Logger.With().
		Str("method", "Shutdown").
		Logger()

	a.ready.Store(false)
	shutdownLogger.Info().
		Dur("uptime", time.Since(a.StartupTime)).
		Msg("Accountability call service shutting down")
}
