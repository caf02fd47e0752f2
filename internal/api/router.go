// Package api assembles the ledger API router.
package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/drfirst/go-iis/internal/api/handlers"
	"github.com/drfirst/go-iis/internal/api/middleware"
	"github.com/drfirst/go-iis/internal/domain/transmission"
)

// ServiceName identifies the API in health responses and traces
const ServiceName = "ledger-api"

// Version is reported by /health
var Version = "dev"

// Options are the router dependencies
type Options struct {
	Ledger *transmission.Ledger
	DB     handlers.Pinger
	// Metrics serves /metrics when set
	Metrics http.Handler
	// APIKeys maps key to client id
	APIKeys map[string]string
	Logger  *zap.Logger
}

// NewRouter builds the HTTP handler
func NewRouter(opts Options) http.Handler {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	r := chi.NewRouter()
	r.Use(chimw.RealIP)
	r.Use(middleware.RequestID)
	r.Use(middleware.CORS)
	r.Use(middleware.Recover(logger))
	r.Use(middleware.Logger(logger))
	r.Use(middleware.Tracing(ServiceName))

	r.Get("/health", handlers.Health(ServiceName, Version))
	r.Get("/ready", handlers.Ready(opts.DB))
	if opts.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", opts.Metrics)
	}

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.APIKeyAuth(opts.APIKeys))
		r.Mount("/transmissions", handlers.NewTransmissionHandler(opts.Ledger, logger).Routes())
	})
	return r
}
