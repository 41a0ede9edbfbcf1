package api

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/rs/cors"

	"github.com/dgnsrekt/ttsclient/internal/config"
	"github.com/dgnsrekt/ttsclient/internal/queue"
	"github.com/dgnsrekt/ttsclient/internal/tts"
)

// Speaker is the part of the requester the API drives.
type Speaker interface {
	Enqueue(text, gender string, cb queue.Callback) (*queue.Request, error)
	SetLanguage(preset string) error
	Voice() tts.VoiceSettings
	Pending() int
	InFlight() bool
	Clear() int
}

// Server handles HTTP API requests.
type Server struct {
	cfg     *config.Config
	logger  *slog.Logger
	server  *http.Server
	speaker Speaker
	handler http.Handler
}

// New creates a new API server. metrics may be nil to disable /metrics.
func New(cfg *config.Config, logger *slog.Logger, speaker Speaker, metrics http.Handler) *Server {
	s := &Server{
		cfg:     cfg,
		logger:  logger.With("component", "api"),
		speaker: speaker,
	}

	r := mux.NewRouter()
	r.HandleFunc("/v1/healthz", s.handleHealthz).Methods(http.MethodGet)
	r.HandleFunc("/v1/status", s.handleStatus).Methods(http.MethodGet)
	r.HandleFunc("/v1/speak", s.withAuth(s.handleSpeak)).Methods(http.MethodPost)
	r.HandleFunc("/v1/voice", s.withAuth(s.handleVoice)).Methods(http.MethodPut)
	r.HandleFunc("/v1/queue", s.withAuth(s.handleClear)).Methods(http.MethodDelete)
	if metrics != nil {
		r.Handle("/metrics", metrics).Methods(http.MethodGet)
	}

	c := cors.New(cors.Options{
		AllowedOrigins: cfg.HTTP.CORSOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions},
		AllowedHeaders: []string{"Authorization", "Content-Type"},
	})
	s.handler = c.Handler(r)

	s.server = &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.HTTP.Port),
		Handler:      s.handler,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return s
}

// Handler returns the routed handler, including CORS.
func (s *Server) Handler() http.Handler {
	return s.handler
}

// Start begins listening for HTTP requests.
func (s *Server) Start() error {
	s.logger.Info("starting HTTP server", "addr", s.server.Addr)
	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("http server error: %w", err)
	}
	return nil
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down HTTP server")
	return s.server.Shutdown(ctx)
}
