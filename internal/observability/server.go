package observability

import (
	"context"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"
)

// ReadyFunc reports whether the service can take traffic.
type ReadyFunc func() bool

// Server provides HTTP endpoints for observability.
type Server struct {
	server *http.Server
	addr   string
}

// NewServer creates a new observability HTTP server. A nil gatherer serves the
// default registry; a nil ready func always reports ready.
func NewServer(addr string, gatherer prometheus.Gatherer, ready ReadyFunc) *Server {
	return &Server{
		addr: addr,
		server: &http.Server{
			Addr:         addr,
			Handler:      Handler(gatherer, ready),
			ReadTimeout:  5 * time.Second,
			WriteTimeout: 10 * time.Second,
			IdleTimeout:  60 * time.Second,
		},
	}
}

// Handler returns the /metrics, /healthz and /readyz routes.
func Handler(gatherer prometheus.Gatherer, ready ReadyFunc) http.Handler {
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	mux := http.NewServeMux()

	mux.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))

	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})

	mux.HandleFunc("/readyz", func(w http.ResponseWriter, r *http.Request) {
		if ready != nil && !ready() {
			w.WriteHeader(http.StatusServiceUnavailable)
			w.Write([]byte("not ready"))
			return
		}
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ready"))
	})

	return mux
}

// Start starts the HTTP server in a goroutine.
func (s *Server) Start() {
	go func() {
		log.Info().Str("addr", s.addr).Msg("Starting observability HTTP server")
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error().Err(err).Msg("Observability HTTP server error")
		}
	}()
}

// Shutdown gracefully shuts down the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	log.Info().Msg("Shutting down observability HTTP server")
	return s.server.Shutdown(ctx)
}
