package rest

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"marketplace-offer-service/internal/config"

	"github.com/rs/zerolog"
)

// Server owns the HTTP listener serving the REST and WebSocket routes
type Server struct {
	httpServer *http.Server
	logger     zerolog.Logger
}

type ServerParams struct {
	Config  *config.Config
	Handler http.Handler
	Logger  zerolog.Logger
}

func NewServer(params ServerParams) *Server {
	httpServer := &http.Server{
		Addr:              params.Config.Address(),
		Handler:           params.Handler,
		ReadHeaderTimeout: 15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	return &Server{
		httpServer: httpServer,
		logger:     params.Logger.With().Str("component", "http_server").Logger(),
	}
}

// Start serves until Stop is called
func (s *Server) Start() error {
	s.logger.Info().Str("addr", s.httpServer.Addr).Msg("Starting HTTP server")

	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("failed to start HTTP server: %w", err)
	}

	return nil
}

// Stop gracefully stops the HTTP server
func (s *Server) Stop(ctx context.Context) error {
	s.logger.Info().Msg("Stopping HTTP server...")

	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("failed to shutdown HTTP server: %w", err)
	}

	s.logger.Info().Msg("HTTP server stopped")
	return nil
}
