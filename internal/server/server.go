// Package server provides the HTTP server for the dashboard API.
package server

import (
	"context"
	"fmt"
	"net/http"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/devrev/prboard/internal/config"
	apierrors "github.com/devrev/prboard/internal/errors"
	"github.com/devrev/prboard/internal/handler"
	"github.com/devrev/prboard/internal/health"
	"github.com/devrev/prboard/internal/metrics"
	"github.com/devrev/prboard/internal/middleware"
	"github.com/devrev/prboard/internal/notify"
	"github.com/devrev/prboard/internal/service"
	"github.com/devrev/prboard/internal/store"
)

// Server represents the HTTP server.
type Server struct {
	router       *mux.Router
	httpServer   *http.Server
	handlers     *handler.Handlers
	healthCheck  *health.HealthChecker
	errorHandler *apierrors.Handler
	metrics      *metrics.Metrics
	logger       *zap.Logger
	cfg          *config.Config
}

// NewServer creates a new HTTP server.
func NewServer(
	cfg *config.Config,
	pulls *service.PullService,
	visits *service.VisitService,
	notifications *notify.RingNotifier,
	kv store.KeyValueStore,
	m *metrics.Metrics,
	logger *zap.Logger,
) *Server {
	router := mux.NewRouter()
	errorHandler := apierrors.NewHandler(logger)
	handlers := handler.NewHandlers(pulls, visits, notifications, errorHandler, logger, cfg.Server.RequestTimeout, cfg.Enrichment.MaxItems)
	healthCheck := health.NewHealthChecker(kv, logger)

	httpServer := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	return &Server{
		router:       router,
		httpServer:   httpServer,
		handlers:     handlers,
		healthCheck:  healthCheck,
		errorHandler: errorHandler,
		metrics:      m,
		logger:       logger,
		cfg:          cfg,
	}
}

// SetupRoutes configures all HTTP routes.
func (s *Server) SetupRoutes() {
	// Setup middleware chain
	middlewareChain := []func(http.Handler) http.Handler{
		middleware.Recovery(s.logger),
		middleware.RequestID,
		middleware.Logging(s.logger, s.metrics),
		middleware.CORS([]string{"*"}),
	}

	// Add rate limiter if enabled
	if s.cfg.RateLimiter.Enabled {
		rateLimiter := middleware.NewRateLimiter(
			s.cfg.RateLimiter.RequestsPerSecond,
			s.cfg.RateLimiter.BurstSize,
			s.logger,
		)
		middlewareChain = append(middlewareChain, rateLimiter.Limit)
	}

	// Apply middleware to router
	chain := middleware.Chain(middlewareChain...)
	s.router.Use(func(next http.Handler) http.Handler {
		return chain(next)
	})

	// Health check endpoints
	s.router.HandleFunc("/health/live", s.healthCheck.LivenessHandler).Methods(http.MethodGet)
	s.router.HandleFunc("/health/ready", s.healthCheck.ReadinessHandler).Methods(http.MethodGet)

	// API v1 routes
	v1 := s.router.PathPrefix("/v1").Subrouter()

	// Pull request listings
	v1.HandleFunc("/pulls", s.handlers.ListPulls).Methods(http.MethodGet)
	v1.HandleFunc("/pulls/page", s.handlers.ListPullsPage).Methods(http.MethodGet)

	// Per-repository data
	v1.HandleFunc("/repos", s.handlers.ListRepos).Methods(http.MethodGet)
	v1.HandleFunc("/repos/{owner}/{repo}/branches", s.handlers.ListBranches).Methods(http.MethodGet)
	v1.HandleFunc("/repos/{owner}/{repo}/pulls/{number}/activity", s.handlers.PullActivity).Methods(http.MethodGet)

	// Write operations against the provider
	v1.HandleFunc("/branches", s.handlers.CreateBranches).Methods(http.MethodPost)
	v1.HandleFunc("/repos/{owner}/{repo}/pulls", s.handlers.CreatePull).Methods(http.MethodPost)

	// Cache administration
	v1.HandleFunc("/cache/clear", s.handlers.ClearCache).Methods(http.MethodPost)
	v1.HandleFunc("/cache/stats", s.handlers.CacheStats).Methods(http.MethodGet)
	v1.HandleFunc("/cache/compression", s.handlers.SetCompression).Methods(http.MethodPut)
	v1.HandleFunc("/cache/ttl/{category}", s.handlers.SetTTL).Methods(http.MethodPut)

	// Notifications surfaced to the UI
	v1.HandleFunc("/notifications", s.handlers.ListNotifications).Methods(http.MethodGet)

	// Visit tracking and favorites
	v1.HandleFunc("/visits/{id}", s.handlers.RecordVisit).Methods(http.MethodPut)
	v1.HandleFunc("/visits/{id}", s.handlers.GetVisit).Methods(http.MethodGet)
	v1.HandleFunc("/favorites", s.handlers.ListFavorites).Methods(http.MethodGet)
	v1.HandleFunc("/favorites", s.handlers.SetFavorites).Methods(http.MethodPut)

	// Not found handler
	s.router.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := r.Header.Get("X-Request-ID")
		s.errorHandler.WriteErrorResponse(w, http.StatusNotFound, apierrors.ErrorCodeInvalidRequest, "endpoint not found", requestID)
	})

	// Method not allowed handler
	s.router.MethodNotAllowedHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := r.Header.Get("X-Request-ID")
		s.errorHandler.WriteErrorResponse(w, http.StatusMethodNotAllowed, apierrors.ErrorCodeInvalidRequest, "method not allowed", requestID)
	})
}

// Start starts the HTTP server.
func (s *Server) Start() error {
	s.logger.Info("starting HTTP server",
		zap.Int("port", s.cfg.Server.Port),
	)

	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("failed to start HTTP server: %w", err)
	}
	return nil
}

// Shutdown gracefully shuts down the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down HTTP server")
	return s.httpServer.Shutdown(ctx)
}

// GetHandler returns the http.Handler for the server.
func (s *Server) GetHandler() http.Handler {
	return s.router
}
