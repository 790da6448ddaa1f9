package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	custommw "github.com/paletsayim/server/internal/middleware"
	"github.com/paletsayim/server/internal/observability"
)

// RouterConfig collects everything the HTTP surface is built from.
// Optional fields may be nil.
type RouterConfig struct {
	Pallets *PalletHandler
	Events  *EventsHandler
	Status  *StatusHandler

	APIKey       string
	APIKeyHeader string

	// ServiceName enables request tracing when set
	ServiceName string
	HTTPMetrics *observability.HTTPMetrics
	Metrics     *observability.PalletMetrics
}

// NewRouter wires middleware and routes
func NewRouter(rc RouterConfig) http.Handler {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Content-Type", rc.APIKeyHeader},
		AllowCredentials: false,
		MaxAge:           300,
	}))
	if rc.ServiceName != "" {
		r.Use(observability.TracingMiddleware(rc.ServiceName))
	}
	if rc.HTTPMetrics != nil {
		r.Use(observability.MetricsMiddleware(rc.HTTPMetrics))
	}
	r.Use(custommw.APIKeyAuth(rc.APIKey, rc.APIKeyHeader))

	// Routes
	r.Get("/health", rc.Status.Status)
	r.Get("/api/status", rc.Status.Status)
	r.Get("/api/version", BuildInfo)

	r.Post("/api/sync", rc.Pallets.Sync)
	r.Post("/api/return", rc.Pallets.Return)

	r.Route("/api/pallets", func(r chi.Router) {
		r.Get("/", rc.Pallets.List)
		r.Get("/summary", rc.Pallets.Summary)
		r.Get("/export", rc.Pallets.Export)
		r.Put("/{id}", rc.Pallets.Update)
		r.Delete("/{id}", rc.Pallets.Delete)
		r.Get("/{id}/label", rc.Pallets.Label)
	})

	if rc.Events != nil {
		r.Get("/api/events", rc.Events.HandleConnection)
	}

	if rc.Metrics != nil {
		r.Handle("/metrics", rc.Metrics.Handler())
	}

	return r
}
