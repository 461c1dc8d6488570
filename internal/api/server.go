// Package api serves the HTTP control surface: a trigger endpoint that
// schedules a prediction cycle in the background, read endpoints over the
// persisted rows, health, and Prometheus metrics.
package api

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"polymarket-pred/internal/model"
	"polymarket-pred/internal/pipeline"
	"polymarket-pred/internal/store"
)

// Server is the HTTP API over the runner and the store.
type Server struct {
	runner   *pipeline.Runner
	store    *store.Store
	ensemble *model.Ensemble
	logger   *slog.Logger

	httpServer *http.Server
	started    time.Time
}

// NewServer creates the API server on the given port.
func NewServer(port int, runner *pipeline.Runner, st *store.Store, ensemble *model.Ensemble, logger *slog.Logger) *Server {
	s := &Server{
		runner:   runner,
		store:    st,
		ensemble: ensemble,
		logger:   logger.With("component", "api"),
		started:  time.Now(),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("POST /predictions/generate", s.handleGenerate)
	mux.HandleFunc("GET /markets", s.handleMarkets)
	mux.HandleFunc("GET /predictions", s.handlePredictions)
	mux.HandleFunc("GET /signals", s.handleSignals)
	mux.HandleFunc("GET /trades", s.handleTrades)
	mux.HandleFunc("GET /portfolio/latest", s.handlePortfolioLatest)
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.Handle("GET /metrics", promhttp.Handler())

	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf(":%d", port),
		Handler:      mux,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
	}
	return s
}

// Handler exposes the mux for tests.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// Start serves until the listener closes. Blocks.
func (s *Server) Start() error {
	s.logger.Info("http server listening", "addr", s.httpServer.Addr)
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("http server: %w", err)
	}
	return nil
}

// Stop shuts the server down gracefully.
func (s *Server) Stop(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}
