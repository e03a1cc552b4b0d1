package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/seqscribe/seqscribe/internal/config"
	"github.com/seqscribe/seqscribe/pkg/logger"
)

// Router is the API router
type Router struct {
	handler    *Handler
	middleware *Middleware
	config     *config.Config
	logger     *logger.Logger
}

// NewRouter creates a new API router
func NewRouter(handler *Handler, cfg *config.Config, log *logger.Logger) *Router {
	return &Router{
		handler:    handler,
		middleware: NewMiddleware(log),
		config:     cfg,
		logger:     log.Named("api-router"),
	}
}

// Routes returns the API routes
func (r *Router) Routes() http.Handler {
	router := chi.NewRouter()

	router.Use(r.middleware.RequestID)
	router.Use(r.middleware.Logger)
	router.Use(r.middleware.Recoverer)
	router.Use(r.middleware.CORS(r.config.Server.CORSAllowedOrigins))

	router.Route("/api/v1", func(router chi.Router) {
		router.Get("/health", r.handler.GetHealth)
		router.Get("/status", r.handler.GetStatus)

		// Processing history
		router.Get("/jobs", r.handler.GetJobs)
		router.Get("/archives", r.handler.GetArchives)

		// Operational gap skip
		router.Post("/cursor/skip", r.handler.SkipCursor)

		// Live pipeline events
		router.Get("/ws", r.handler.HandleWebSocket)
	})

	return router
}
