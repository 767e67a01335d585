// Package server provides the HTTP server and routing for the risk parity service.
package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rs/zerolog"

	"github.com/aristath/riskparity/internal/config"
	"github.com/aristath/riskparity/internal/di"
	analyticshandlers "github.com/aristath/riskparity/internal/modules/analytics/handlers"
	backtesthandlers "github.com/aristath/riskparity/internal/modules/backtest/handlers"
	historicalhandlers "github.com/aristath/riskparity/internal/modules/historical/handlers"
	optimizationhandlers "github.com/aristath/riskparity/internal/modules/optimization/handlers"
)

// requestTimeout bounds every request, including long optimizations.
const requestTimeout = 60 * time.Second

// Config holds server configuration
type Config struct {
	Log       zerolog.Logger
	Config    *config.Config
	Container *di.Container   // DI container with all services
	Jobs      *di.JobInstances // Registered jobs for manual triggering
}

// Server represents the HTTP server
type Server struct {
	router         *chi.Mux
	server         *http.Server
	log            zerolog.Logger
	cfg            *config.Config
	container      *di.Container
	systemHandlers *SystemHandlers
	statusMonitor  *StatusMonitor
}

// New creates a new HTTP server
func New(cfg Config) *Server {
	systemHandlers := NewSystemHandlers(
		cfg.Log,
		cfg.Config.DataDir,
		cfg.Container.Scheduler,
		cfg.Container.Databases()...,
	)
	if cfg.Jobs != nil {
		systemHandlers.SetJobs(cfg.Jobs.All()...)
	}

	s := &Server{
		router:         chi.NewRouter(),
		log:            cfg.Log.With().Str("component", "server").Logger(),
		cfg:            cfg.Config,
		container:      cfg.Container,
		systemHandlers: systemHandlers,
		statusMonitor:  NewStatusMonitor(systemHandlers, cfg.Log),
	}

	s.setupMiddleware(cfg.Config.DevMode)
	s.setupRoutes()

	s.server = &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Config.Port),
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: requestTimeout + 5*time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return s
}

// Handler returns the root HTTP handler
func (s *Server) Handler() http.Handler {
	return s.router
}

// setupMiddleware configures middleware
func (s *Server) setupMiddleware(devMode bool) {
	// Recovery from panics
	s.router.Use(middleware.Recoverer)

	// Request ID
	s.router.Use(middleware.RequestID)

	// Real IP
	s.router.Use(middleware.RealIP)

	// Logging
	s.router.Use(s.loggingMiddleware)

	// Timeout
	s.router.Use(middleware.Timeout(requestTimeout))

	// CORS
	s.router.Use(cors.Handler(cors.Options{
		AllowedOrigins:   s.cfg.CORSAllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	// Compress responses
	if !devMode {
		s.router.Use(middleware.Compress(5))
	}
}

// setupRoutes configures all routes
func (s *Server) setupRoutes() {
	s.router.Get("/health", s.handleHealth)

	defaults := s.cfg.Defaults
	service := s.container.OptimizerService

	s.router.Route("/api", func(r chi.Router) {
		systemHandlers := s.systemHandlers

		r.Route("/system", func(r chi.Router) {
			// Status and monitoring
			r.Get("/status", systemHandlers.HandleSystemStatus)
			r.Get("/database/stats", systemHandlers.HandleDatabaseStats)
			r.Get("/disk", systemHandlers.HandleDiskUsage)
			r.Get("/jobs", systemHandlers.HandleJobsStatus)

			// Manual job triggers
			r.Post("/jobs/{name}", systemHandlers.HandleTriggerJob)
		})

		// Price history storage and Parquet import
		historicalHandler := historicalhandlers.NewHandler(s.container.History, s.container.Importer, s.log)
		historicalHandler.RegisterRoutes(r)

		// Risk model estimation and portfolio construction
		optimizationHandler := optimizationhandlers.NewHandler(service, optimizationhandlers.Defaults{
			RiskFreeRate: defaults.RiskFreeRate,
			Options:      defaults.Optimizer,
			Estimation:   defaults.Estimation,
		}, s.log)
		optimizationHandler.RegisterRoutes(r)

		// Historical simulation
		backtestHandler := backtesthandlers.NewHandler(service, defaults.Backtest, s.log)
		backtestHandler.RegisterRoutes(r)

		// Stress tests, drawdown windows and comparisons
		analyticsHandler := analyticshandlers.NewHandler(service, defaults.Backtest, s.log)
		analyticsHandler.RegisterRoutes(r)
	})
}

// Start starts the HTTP server and background monitors
func (s *Server) Start() error {
	s.statusMonitor.Start(60 * time.Second)
	s.log.Info().Msg("Status monitor started")

	s.log.Info().Int("port", s.cfg.Port).Msg("Starting HTTP server")
	return s.server.ListenAndServe()
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	s.log.Info().Msg("Shutting down HTTP server")
	s.statusMonitor.Stop()
	return s.server.Shutdown(ctx)
}

// loggingMiddleware logs HTTP requests
func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		s.log.Info().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", ww.Status()).
			Int("bytes", ww.BytesWritten()).
			Dur("duration_ms", time.Since(start)).
			Str("request_id", middleware.GetReqID(r.Context())).
			Msg("HTTP request")
	})
}
