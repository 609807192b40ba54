package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	"google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"

	grpcapi "accountability-call-service/internal/api/grpc"
	"accountability-call-service/internal/app"
	"accountability-call-service/internal/config"
	"accountability-call-service/internal/events"
	httpapi "accountability-call-service/internal/http"
	"accountability-call-service/internal/observability"
	"accountability-call-service/internal/observability/metrics"
	"accountability-call-service/internal/schema"
	"accountability-call-service/internal/service/broadcast"
	"accountability-call-service/internal/service/session"
	"accountability-call-service/internal/service/source"
	googlesource "accountability-call-service/internal/service/source/google"
	livekitsource "accountability-call-service/internal/service/source/livekit"
	mocksource "accountability-call-service/internal/service/source/mock"
	"accountability-call-service/internal/token"
)

const shutdownTimeout = 10 * time.Second

func main() {
	cfg := config.Load()
	application := app.New(cfg)
	logger := application.Logger
	m := metrics.DefaultMetrics

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Kafka publisher with one topic per event type
	publisher := events.New(&events.Config{
		Enabled:         cfg.Kafka.Enabled,
		Brokers:         cfg.Kafka.Brokers,
		TopicPartial:    cfg.Kafka.TopicPartial,
		TopicFinal:      cfg.Kafka.TopicFinal,
		TopicAgentState: cfg.Kafka.TopicAgentState,
		Principal:       cfg.Kafka.Principal,
		Metrics:         m,
	})
	defer publisher.Close()

	hubCtx, stopHub := context.WithCancel(context.Background())
	defer stopHub()
	hub := broadcast.NewHub(broadcast.Options{AllowedOrigins: cfg.Token.AllowedOrigins, Metrics: m})
	go hub.Run(hubCtx)

	sessions := session.NewManager(session.Options{
		MaxPartials: cfg.Session.MaxPartials,
		Publisher:   publisher,
		Broadcaster: hub,
		Validator:   schema.New(),
		Metrics:     m,
	})

	issuer := token.NewIssuer(token.Config{
		APIKey:      cfg.LiveKit.APIKey,
		APISecret:   cfg.LiveKit.APISecret,
		ServerURL:   cfg.LiveKit.URL,
		DefaultRoom: cfg.Token.DefaultRoom,
		AgentName:   cfg.LiveKit.AgentName,
		TTL:         cfg.Token.TTL,
	}, m)

	// gRPC
	lis, err := net.Listen("tcp", ":"+cfg.Service.GRPCPort)
	if err != nil {
		logger.Fatal().Err(err).Str("port", cfg.Service.GRPCPort).Msg("Failed to listen")
	}
	grpcServer := grpc.NewServer(
		grpc.UnaryInterceptor(observability.UnaryServerInterceptor(m)),
		grpc.StreamInterceptor(observability.StreamServerInterceptor(m)),
	)
	healthServer := health.NewServer()
	grpc_health_v1.RegisterHealthServer(grpcServer, healthServer)
	grpcapi.Register(grpcServer, sessions)
	// Enable gRPC reflection for debugging tools like grpcurl
	reflection.Register(grpcServer)

	// HTTP
	httpServer := &http.Server{
		Addr: ":" + cfg.Service.HTTPPort,
		Handler: httpapi.NewRouter(httpapi.Dependencies{
			Tokens:         issuer,
			Views:          sessions,
			Live:           hub,
			AllowedOrigins: cfg.Token.AllowedOrigins,
			Ready:          application.Ready,
		}),
		ReadHeaderTimeout: 5 * time.Second,
	}
	obsServer := observability.NewServer(":"+cfg.Service.MetricsPort, prometheus.DefaultGatherer, application.Ready)

	if err := application.Start(); err != nil {
		logger.Fatal().Err(err).Msg("Failed to start application")
	}
	obsServer.Start()

	go func() {
		logger.Info().Str("port", cfg.Service.GRPCPort).Msg("gRPC server started")
		if err := grpcServer.Serve(lis); err != nil {
			logger.Error().Err(err).Msg("gRPC serve failed")
		}
	}()
	go func() {
		logger.Info().Str("port", cfg.Service.HTTPPort).Msg("HTTP server started")
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error().Err(err).Msg("HTTP serve failed")
		}
	}()
	healthServer.SetServingStatus("", grpc_health_v1.HealthCheckResponse_SERVING)
	healthServer.SetServingStatus(grpcapi.ServiceName, grpc_health_v1.HealthCheckResponse_SERVING)

	src, err := newSource(cfg, issuer, m)
	if err != nil {
		logger.Error().Err(err).Str("provider", cfg.Source.Provider).Msg("Snapshot source not configured")
	}
	if src != nil {
		if err := src.Start(ctx, sessions); err != nil {
			m.RecordSourceError(cfg.Source.Provider)
			logger.Error().Err(err).Str("provider", cfg.Source.Provider).Msg("Failed to start snapshot source")
			src = nil
		}
	}

	<-ctx.Done()
	shutdown(logger, application, src, sessions, healthServer, grpcServer, httpServer, obsServer)
	stopHub()
}

// newSource builds the configured snapshot source. "none" returns nil: the
// service then only applies snapshots pushed over gRPC.
func newSource(cfg *config.Configuration, issuer *token.Issuer, m *metrics.Metrics) (source.Source, error) {
	switch cfg.Source.Provider {
	case "none", "":
		return nil, nil
	case "mock":
		mc := mocksource.DefaultConfig(cfg.LiveKit.Room)
		mc.Interval = cfg.Source.MockInterval
		mc.MaxEvents = cfg.Session.MaxEvents
		return mocksource.New(mc), nil
	case "livekit":
		if cfg.LiveKit.URL == "" {
			return nil, errors.New("LIVEKIT_URL must be set for the livekit source")
		}
		return livekitsource.New(livekitsource.Config{
			URL:              cfg.LiveKit.URL,
			APIKey:           cfg.LiveKit.APIKey,
			APISecret:        cfg.LiveKit.APISecret,
			Room:             cfg.LiveKit.Room,
			ObserverIdentity: cfg.LiveKit.ObserverIdentity,
			RosterRefresh:    cfg.LiveKit.RosterRefresh,
			MaxEvents:        cfg.Session.MaxEvents,
		}, issuer, m), nil
	case "google":
		if cfg.STT.AudioPath == "" {
			return nil, errors.New("STT_AUDIO_PATH must be set for the google source")
		}
		gc := googlesource.DefaultConfig()
		gc.Room = cfg.LiveKit.Room
		gc.AudioPath = cfg.STT.AudioPath
		gc.LanguageCode = cfg.STT.LanguageCode
		gc.SampleRateHz = int32(cfg.STT.SampleRateHz)
		gc.InterimResults = cfg.STT.InterimResults
		gc.AudioEncoding = cfg.STT.AudioEncoding
		gc.SpeakerIdentity = cfg.STT.SpeakerIdentity
		gc.MaxEvents = cfg.Session.MaxEvents
		return googlesource.New(gc, m), nil
	default:
		return nil, fmt.Errorf("unknown source provider %q", cfg.Source.Provider)
	}
}

func shutdown(
	logger zerolog.Logger,
	application *app.Application,
	src source.Source,
	sessions *session.Manager,
	healthServer *health.Server,
	grpcServer *grpc.Server,
	httpServer *http.Server,
	obsServer *observability.Server,
) {
	application.Shutdown()
	healthServer.SetServingStatus("", grpc_health_v1.HealthCheckResponse_NOT_SERVING)

	if src != nil {
		if err := src.Close(); err != nil {
			logger.Error().Err(err).Msg("Failed to close snapshot source")
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := httpServer.Shutdown(ctx); err != nil {
		logger.Error().Err(err).Msg("HTTP shutdown failed")
	}
	grpcServer.GracefulStop()

	// Sessions close after the transports so no snapshot arrives mid-close.
	sessions.CloseAll()

	if err := obsServer.Shutdown(ctx); err != nil {
		logger.Error().Err(err).Msg("Observability shutdown failed")
	}
	logger.Info().Msg("Shutdown complete")
}
