// Package httptransport assembles the public HTTP surface: cross-cutting
// middleware, health and metrics endpoints, the management API and the
// tenant-scoped verification routes.
package httptransport

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"idverify/internal/platform/metrics"
	"idverify/pkg/platform/httputil"
	"idverify/pkg/platform/middleware/metadata"
	request "idverify/pkg/platform/middleware/request"
)

// RouteRegistrar mounts a group of routes.
type RouteRegistrar interface {
	Register(r chi.Router)
}

// HealthCheck reports whether a backing dependency is reachable.
type HealthCheck func(ctx context.Context) error

// Deps are the pieces the router is built from.
type Deps struct {
	Logger         *slog.Logger
	Metrics        *metrics.Metrics
	RequestTimeout time.Duration
	CORSOrigins    []string
	// Verification is mounted under /{tenant}.
	Verification RouteRegistrar
	Management   RouteRegistrar
	HealthChecks map[string]HealthCheck
}

// NewRouter wires every endpoint. Handlers keep business logic in services.
func NewRouter(deps Deps) http.Handler {
	r := chi.NewRouter()
	r.Use(request.Recovery(deps.Logger))
	r.Use(request.RequestID)
	r.Use(metadata.ClientMetadata)
	r.Use(request.Time)
	r.Use(request.Logger(deps.Logger))
	r.Use(chimiddleware.StripSlashes)
	if len(deps.CORSOrigins) > 0 {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins:   deps.CORSOrigins,
			AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions},
			AllowedHeaders:   []string{"Authorization", "Content-Type", request.RequestIDHeader, "X-Admin-Token"},
			ExposedHeaders:   []string{request.RequestIDHeader},
			AllowCredentials: false,
			MaxAge:           300,
		}))
	}

	r.Get("/health", healthHandler(deps.HealthChecks))
	r.Handle("/metrics", promhttp.Handler())

	r.Group(func(api chi.Router) {
		api.Use(request.Timeout(deps.RequestTimeout))
		api.Use(request.ContentTypeJSON)
		api.Use(metrics.LatencyMiddleware(deps.Metrics))
		if deps.Management != nil {
			deps.Management.Register(api)
		}
		if deps.Verification != nil {
			api.Route("/{tenant}", deps.Verification.Register)
		}
	})
	return r
}

func healthHandler(checks map[string]HealthCheck) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		status := http.StatusOK
		report := map[string]string{}
		for name, check := range checks {
			if err := check(ctx); err != nil {
				status = http.StatusServiceUnavailable
				report[name] = err.Error()
				continue
			}
			report[name] = "ok"
		}
		httputil.WriteJSON(w, status, map[string]any{"status": http.StatusText(status), "checks": report})
	}
}
