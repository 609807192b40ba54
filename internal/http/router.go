package http

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rs/zerolog/log"

	"accountability-call-service/internal/service/session"
	"accountability-call-service/internal/token"
	"accountability-call-service/internal/transcript"
)

const maxTokenBody = 1 << 16

// TokenIssuer issues participant tokens. *token.Issuer satisfies it.
type TokenIssuer interface {
	ParseRequest(body []byte) (token.Request, error)
	Issue(req token.Request) (token.Response, error)
}

// Views reads room views. *session.Manager satisfies it.
type Views interface {
	View(room string) (session.View, bool)
}

// LiveServer streams room views over websockets. *broadcast.Hub satisfies it.
type LiveServer interface {
	Serve(w http.ResponseWriter, r *http.Request, room string, initial any) error
}

// Dependencies are the handlers' collaborators.
type Dependencies struct {
	Tokens         TokenIssuer
	Views          Views
	Live           LiveServer
	AllowedOrigins []string
	Ready          func() bool
}

// NewRouter constructs the HTTP router for the service.
func NewRouter(deps Dependencies) http.Handler {
	r := chi.NewRouter()

	// Basic middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: deps.AllowedOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type"},
		MaxAge:         300,
	}))

	// Health endpoints
	r.Get("/v1/liveness", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	r.Get("/v1/readiness", func(w http.ResponseWriter, _ *http.Request) {
		if deps.Ready != nil && !deps.Ready() {
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte("not ready"))
			return
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ready"))
	})
	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	tokenHandler := handleToken(deps.Tokens)
	r.Post("/token", tokenHandler)

	// API routes
	r.Route("/v1", func(r chi.Router) {
		r.Post("/token", tokenHandler)
		r.Get("/rooms/{room}/transcript", handleTranscript(deps.Views))
		r.Get("/rooms/{room}/live", handleLive(deps.Views, deps.Live))
	})

	return r
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Error().Err(err).Msg("Failed to write response")
	}
}

func writeError(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, map[string]string{"error": msg})
}

func handleToken(issuer TokenIssuer) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxTokenBody))
		if err != nil {
			writeError(w, http.StatusBadRequest, token.ErrInvalidBody.Error())
			return
		}

		req, err := issuer.ParseRequest(body)
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}

		resp, err := issuer.Issue(req)
		switch {
		case errors.Is(err, token.ErrMissingCredentials):
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		case err != nil:
			log.Error().Err(err).Str("room", req.Room).Msg("Token generation error")
			writeError(w, http.StatusInternalServerError, "Internal server error")
			return
		}
		writeJSON(w, http.StatusOK, resp)
	}
}

func handleTranscript(views Views) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		room := chi.URLParam(r, "room")
		view, ok := views.View(room)
		if !ok {
			writeError(w, http.StatusNotFound, "room not found")
			return
		}
		writeJSON(w, http.StatusOK, view)
	}
}

// emptyView is sent to live clients of a room nothing has been observed in yet.
func emptyView(room string) session.View {
	return session.View{
		Room:            room,
		ConnectionState: session.ConnectionConnecting,
		AgentState:      string(transcript.StateListening),
		Segments:        []session.AttributedSegment{},
	}
}

func handleLive(views Views, live LiveServer) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		room := chi.URLParam(r, "room")
		initial, ok := views.View(room)
		if !ok {
			initial = emptyView(room)
		}
		if err := live.Serve(w, r, room, initial); err != nil {
			log.Debug().Err(err).Str("room", room).Msg("Live connection ended")
		}
	}
}
