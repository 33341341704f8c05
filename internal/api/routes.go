package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/parkscan/parkscan/internal/config"
	"github.com/parkscan/parkscan/internal/observability"
	"github.com/parkscan/parkscan/pkg/logger"
)

// Router is the API router
type Router struct {
	handler    *Handler
	middleware *Middleware
	config     *config.Config
	logger     *logger.Logger
}

// NewRouter creates a new API router
func NewRouter(querier PointQuerier, jobService JobService, results ResultReader, metrics *observability.Metrics, config *config.Config, logger *logger.Logger) *Router {
	return &Router{
		handler:    NewHandler(querier, jobService, results, metrics, logger),
		middleware: NewMiddleware(logger),
		config:     config,
		logger:     logger.Named("api-router"),
	}
}

// Routes returns the API routes
func (r *Router) Routes() http.Handler {
	router := chi.NewRouter()

	// Middleware
	router.Use(r.middleware.RequestID)
	router.Use(r.middleware.Logger)
	router.Use(r.middleware.Recoverer)
	router.Use(r.middleware.CORS(r.config.Server.CORSAllowedOrigins))

	// API routes
	router.Route("/api/v1", func(router chi.Router) {
		// Point query route
		router.Post("/query", r.handler.QueryPoint)

		// Analysis job routes
		router.Post("/analyze", r.handler.StartAnalysis)
		router.Get("/jobs", r.handler.ListJobs)
		router.Get("/jobs/{id}", r.handler.GetJob)
		router.Delete("/jobs/{id}", r.handler.CancelJob)

		// Result routes
		router.Get("/results/{handle}", r.handler.GetResult)
		router.Get("/areas", r.handler.ListAreas)

		// Health check
		router.Get("/health", r.handler.GetHealth)
	})

	// Prometheus metrics stay off the versioned API prefix
	router.Handle("/metrics", promhttp.Handler())

	return router
}
