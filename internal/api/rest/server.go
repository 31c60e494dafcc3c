package rest

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/meridianrisk/raf-engine/internal/infrastructure/config"
)

// Server is the HTTP front of the appetite engine.
type Server struct {
	cfg        *config.ServerConfig
	httpServer *http.Server
	logger     *zap.Logger
}

// NewServer wires the handler into routes and builds the HTTP server.
// registry may be nil to disable the /metrics endpoint.
func NewServer(cfg *config.ServerConfig, handler *Handler, registry *prometheus.Registry, logger *zap.Logger) *Server {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /healthz", handler.handleHealthz)
	if registry != nil {
		mux.Handle("GET /metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
	}

	mux.HandleFunc("POST /api/v1/organizations/{id}/recalculate", handler.handleTriggerRecalc)
	mux.HandleFunc("GET /api/v1/organizations/{id}/recalc-runs/latest", handler.handleLatestRun)
	mux.HandleFunc("GET /api/v1/tolerances/{id}/status", handler.handleToleranceStatus)
	mux.HandleFunc("GET /api/v1/tolerances/{id}/breaches", handler.handleListBreaches)
	mux.HandleFunc("POST /api/v1/kris/{id}/observations", handler.handleRecordObservation)

	mux.HandleFunc("POST /api/v1/kris", handler.handleCreateKRI)
	mux.HandleFunc("PUT /api/v1/kris/{id}/enabled", handler.handleSetKRIEnabled)
	mux.HandleFunc("GET /api/v1/kris/{id}/observations", handler.handleListObservations)
	mux.HandleFunc("POST /api/v1/tolerances", handler.handleCreateTolerance)
	mux.HandleFunc("PUT /api/v1/controls/{id}/dime", handler.handleScoreControl)

	root := withRecovery(withRequestLogging(mux, logger), logger)

	return &Server{
		cfg: cfg,
		httpServer: &http.Server{
			Addr:         fmt.Sprintf(":%d", cfg.Port),
			Handler:      root,
			ReadTimeout:  cfg.ReadTimeout,
			WriteTimeout: cfg.WriteTimeout,
		},
		logger: logger,
	}
}

// Start serves until the context is cancelled, then shuts down gracefully.
func (s *Server) Start(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("HTTP server listening", zap.String("addr", s.httpServer.Addr))
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout)
	defer cancel()

	s.logger.Info("shutting down HTTP server")
	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}
	return nil
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func withRequestLogging(next http.Handler, logger *zap.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}

		next.ServeHTTP(rec, r)

		logger.Info("request handled",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", rec.status),
			zap.Duration("duration", time.Since(start)))
	})
}

func withRecovery(next http.Handler, logger *zap.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if recovered := recover(); recovered != nil {
				logger.Error("panic in handler",
					zap.String("path", r.URL.Path),
					zap.Any("panic", recovered))
				http.Error(w, `{"error":{"code":"INTERNAL_ERROR","message":"internal server error"}}`,
					http.StatusInternalServerError)
			}
		}()
		next.ServeHTTP(w, r)
	})
}
