// Package http provides the HTTP server and API wiring for aura.
package http

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/adapters/humachi"
	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/auralabs/aura/internal/config"
	"github.com/auralabs/aura/internal/events"
	"github.com/auralabs/aura/internal/http/middleware"
	"github.com/auralabs/aura/internal/models"
)

// Server is the HTTP server. It binds to loopback by default; aura is a
// local tool, not a network service.
type Server struct {
	cfg        config.ServerConfig
	router     *chi.Mux
	api        huma.API
	httpServer *http.Server
	logger     *slog.Logger
}

// NewServer creates the server with its middleware chain and huma API.
func NewServer(cfg config.ServerConfig, logger *slog.Logger, version string) *Server {
	if version == "" {
		version = "dev"
	}

	router := chi.NewRouter()
	router.Use(chimiddleware.RealIP)
	router.Use(middleware.CorrelationID)
	router.Use(middleware.Logging(logger))
	router.Use(middleware.Recovery(logger))
	router.Use(middleware.CORS(cfg.CORSOrigins))

	humaConfig := huma.DefaultConfig("aura API", version)
	humaConfig.Info.Description = "Local video generation studio: brief to narrated video."

	api := humachi.New(router, humaConfig)

	return &Server{
		cfg:    cfg,
		router: router,
		api:    api,
		logger: logger,
	}
}

// API returns the huma API for registering operations.
func (s *Server) API() huma.API {
	return s.api
}

// Router returns the chi router for raw routes.
func (s *Server) Router() *chi.Mux {
	return s.router
}

// RegisterEventStream mounts the SSE endpoint. It bypasses huma: SSE needs
// direct control of the response writer and flushing.
func (s *Server) RegisterEventStream(streamer *events.Streamer) {
	s.router.Get("/api/v1/jobs/{id}/events", func(w http.ResponseWriter, r *http.Request) {
		id, err := models.ParseULID(chi.URLParam(r, "id"))
		if err != nil {
			http.Error(w, "job not found", http.StatusNotFound)
			return
		}
		streamer.StreamJob(w, r, id)
	})
}

// Start runs the listener until Shutdown. http.ErrServerClosed is not an
// error.
func (s *Server) Start() error {
	s.httpServer = &http.Server{
		Addr:         s.cfg.Address(),
		Handler:      s.router,
		ReadTimeout:  s.cfg.ReadTimeout,
		WriteTimeout: s.cfg.WriteTimeout,
	}

	s.logger.Info("starting HTTP server", slog.String("address", s.cfg.Address()))

	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("starting server: %w", err)
	}
	return nil
}

// Shutdown stops accepting connections and drains in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}

	shutdownCtx, cancel := context.WithTimeout(ctx, s.cfg.ShutdownTimeout)
	defer cancel()

	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutting down server: %w", err)
	}

	s.logger.Info("HTTP server stopped")
	return nil
}
