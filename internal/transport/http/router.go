package httptransport

import (
	"context"
	"io"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"kycflow/internal/platform/config"
	"kycflow/internal/platform/metrics"
	"kycflow/internal/platform/middleware"
	"kycflow/pkg/platform/httputil"
	"kycflow/pkg/requestcontext"
	dErrors "kycflow/pkg/domain-errors"
)

// Registrar is implemented by handler packages that own a set of routes.
type Registrar interface {
	Register(r chi.Router)
}

// HealthCheck checks a dependency the API cannot serve without.
type HealthCheck func(ctx context.Context) error

// Deps carries everything the router mounts.
type Deps struct {
	Server   config.Server
	Logger   *slog.Logger
	Metrics  *metrics.Metrics
	Gatherer prometheus.Gatherer
	Health   HealthCheck
}

// NewRouter builds the API router: shared middleware, health and metrics
// endpoints, then every registrar's routes.
func NewRouter(deps Deps, registrars ...Registrar) http.Handler {
	logger := deps.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	r := chi.NewRouter()
	r.Use(middleware.Recovery(logger))
	r.Use(middleware.RequestID)
	r.Use(middleware.RequestTime)
	r.Use(middleware.AccessLog(logger, deps.Metrics))
	r.Use(middleware.CORS(deps.Server.AllowedOrigin))
	if deps.Server.RequestTimeout > 0 {
		r.Use(middleware.Timeout(deps.Server.RequestTimeout))
	}

	r.Get("/healthz", func(w http.ResponseWriter, req *http.Request) {
		if deps.Health != nil {
			if err := deps.Health(req.Context()); err != nil {
				logger.ErrorContext(req.Context(), "health check failed",
					"request_id", requestcontext.RequestID(req.Context()),
					"error", err,
				)
				httputil.WriteError(w, dErrors.Wrap(err, dErrors.CodeStoreUnavailable, "store unavailable"))
				return
			}
		}
		httputil.WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	if deps.Gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(deps.Gatherer, promhttp.HandlerOpts{}))
	}

	for _, reg := range registrars {
		reg.Register(r)
	}
	return r
}
