// Package server provides HTTP server management and lifecycle handling for the
// cleaning validation API: middleware, route table and graceful shutdown.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/giygas/cleaning-validation-api/config"
	"github.com/giygas/cleaning-validation-api/interfaces"
	"github.com/giygas/cleaning-validation-api/logging"
	"github.com/giygas/cleaning-validation-api/metrics"
	"github.com/giygas/cleaning-validation-api/store"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Server represents the HTTP server
type Server struct {
	server  *http.Server
	router  chi.Router
	handler interfaces.HTTPHandler
	limiter *RateLimiter
	config  *config.Config
	ctx     context.Context
	cancel  context.CancelFunc
}

// NewServer creates a new server instance
func NewServer(cfg *config.Config, handler interfaces.HTTPHandler) *Server {
	router := chi.NewRouter()
	ctx, cancel := context.WithCancel(context.Background())

	s := &Server{
		server: &http.Server{
			Handler:      router,
			Addr:         cfg.Address + ":" + cfg.Port,
			ReadTimeout:  15 * time.Second,
			WriteTimeout: 60 * time.Second,
			IdleTimeout:  60 * time.Second,
		},
		router:  router,
		handler: handler,
		limiter: NewRateLimiter(defaultRate, defaultCapacity),
		config:  cfg,
		ctx:     ctx,
		cancel:  cancel,
	}

	s.setupMiddleware()
	s.setupRoutes()

	return s
}

// Handler returns the root handler with all middleware applied
func (s *Server) Handler() http.Handler {
	return s.router
}

// setupMiddleware configures all middleware
func (s *Server) setupMiddleware() {
	logger := slog.Default()
	if logging.DefaultLoggingService != nil {
		logger = logging.DefaultLoggingService.Logger
	}

	s.router.Use(middleware.RequestID)
	s.router.Use(RealIPMiddleware)
	s.router.Use(logging.RequestLogger(logger))
	s.router.Use(middleware.Recoverer)
	s.router.Use(metrics.Metrics)
	s.router.Use(middleware.Compress(5, "application/json"))
	s.router.Use(RequestSizeMiddleware(s.config.MaxRequestBody, s.config.MaxHeaderSize))
	s.router.Use(cors.Handler(cors.Options{
		AllowedOrigins:   s.config.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Content-Type", "X-Request-Id"},
		ExposedHeaders:   []string{"Last-Modified", "X-RateLimit-Remaining"},
		AllowCredentials: false,
		MaxAge:           300,
	}))
	s.router.Use(s.limiter.Middleware)
}

// setupRoutes configures all routes
func (s *Server) setupRoutes() {
	h := s.handler

	s.router.Get("/health", h.HealthCheck)
	s.router.Handle("/metrics", promhttp.Handler())

	s.router.Route("/v1", func(r chi.Router) {
		r.Route("/products", func(r chi.Router) {
			r.Get("/", h.ListProducts)
			r.Post("/", h.CreateProduct)
			r.Put("/{id}", h.UpdateProduct)
			r.Delete("/{id}", h.DeleteProduct)
			r.Delete("/{id}/ingredients/{ingredientId}", h.DeleteIngredient)
		})

		r.Route("/machines", func(r chi.Router) {
			r.Get("/", h.ListMachines)
			r.Post("/", h.CreateMachine)
			r.Post("/import", h.ImportMachines)
			r.Put("/{id}", h.UpdateMachine)
			r.Delete("/{id}", h.DeleteMachine)
		})

		r.Get("/trains", h.ListTrains)
		r.Get("/trains/{number}", h.GetTrain)
		r.Get("/trains/{number}/maco", h.GetTrainMaco)
		r.Get("/studies", h.GetStudies)
		r.Get("/data-quality", h.GetDataQuality)

		for path, key := range map[string]string{
			"/settings":         store.KeySettings,
			"/scoring-criteria": store.KeyScoringCriteria,
			"/safety-factors":   store.KeySafetyFactors,
			"/detergents":       store.KeyDetergentIngredients,
		} {
			r.Get(path, h.GetDocument(key))
			r.Put(path, h.PutDocument(key))
		}

		r.Get("/history/{key}", h.GetHistory)
		r.Post("/history/{key}/revert/{version}", h.RevertDocument)
	})
}

// Start starts the server and blocks until it stops. A graceful Shutdown
// makes it return nil.
func (s *Server) Start() error {
	go s.limiter.Run(s.ctx)

	logging.Info(fmt.Sprintf("Starting server at: %s:%s", s.config.Address, s.config.Port))
	if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("listen on %s: %w", s.server.Addr, err)
	}
	return nil
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	logging.Info("Shutting down server...")
	s.cancel()

	if err := s.server.Shutdown(ctx); err != nil {
		logging.Error("Server forced to shutdown", "error", err)
		if err := s.server.Close(); err != nil {
			logging.Error("Server close error", "error", err)
			return err
		}
	}

	logging.Info("Server shutdown complete")
	return nil
}
