// Package http wires the chi router: platform middleware first, then
// every domain handler's Register, then the operational endpoints.
package http

import (
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	controlhandler "crosswalk/internal/control/handler"
	crosswalkhandler "crosswalk/internal/crosswalk/handler"
	drifthandler "crosswalk/internal/drift/handler"
	frameworkhandler "crosswalk/internal/framework/handler"
	"crosswalk/internal/platform/metrics"
	platformmw "crosswalk/internal/platform/middleware"
	"crosswalk/pkg/requestcontext"
)

// Handlers collects the domain handlers the router mounts.
type Handlers struct {
	Framework *frameworkhandler.Handler
	Control   *controlhandler.Handler
	Crosswalk *crosswalkhandler.Handler
	Drift     *drifthandler.Handler
}

// Deps carries everything the router needs besides the handlers.
type Deps struct {
	Logger         *slog.Logger
	Metrics        *metrics.Metrics
	AdminTokenHash string
	JWTSigningKey  string
	Health         func(r *http.Request) error
}

// NewRouter assembles the full HTTP surface. Every API route sits
// behind the admin token; actor attribution and the pinned request
// clock apply everywhere.
func NewRouter(h Handlers, deps Deps) chi.Router {
	r := chi.NewRouter()

	r.Use(chimiddleware.Recoverer)
	r.Use(requestScope)
	r.Use(platformmw.WithActor(deps.JWTSigningKey, deps.Logger))
	if deps.Metrics != nil {
		r.Use(measure(deps.Metrics))
	}

	r.Get("/healthz", func(w http.ResponseWriter, req *http.Request) {
		if deps.Health != nil {
			if err := deps.Health(req); err != nil {
				deps.Logger.ErrorContext(req.Context(), "health check failed", "error", err)
				w.WriteHeader(http.StatusServiceUnavailable)
				return
			}
		}
		w.WriteHeader(http.StatusOK)
	})
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	r.Group(func(api chi.Router) {
		api.Use(platformmw.RequireAdminToken(deps.AdminTokenHash, deps.Logger))
		h.Framework.Register(api)
		h.Control.Register(api)
		h.Crosswalk.Register(api)
		h.Drift.Register(api)
	})

	return r
}

// requestScope pins the request clock and assigns a correlation id so
// every write in one request shares a timestamp and audit trail entry.
func requestScope(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		ctx = requestcontext.WithTime(ctx, time.Now().UTC())
		requestID := r.Header.Get("X-Request-ID")
		if requestID == "" {
			requestID = uuid.NewString()
		}
		ctx = requestcontext.WithRequestID(ctx, requestID)
		w.Header().Set("X-Request-ID", requestID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func measure(m *metrics.Metrics) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := chimiddleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)

			route := chi.RouteContext(r.Context()).RoutePattern()
			if route == "" {
				route = "unmatched"
			}
			statusClass := strconv.Itoa(ww.Status()/100) + "xx"
			m.RequestsTotal.WithLabelValues(route, statusClass).Inc()
			m.RequestDuration.WithLabelValues(route).Observe(time.Since(start).Seconds())
		})
	}
}
