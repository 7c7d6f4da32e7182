// Package serve holds the HTTP plumbing shared by the clinic services:
// the base chi router, request logging, the probe handlers and the
// listen/shutdown loop driven by a lifecycle.Service.
package serve

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	sserr "github.com/StricklySoft/clinic-hub/pkg/errors"
	"github.com/StricklySoft/clinic-hub/pkg/lifecycle"
	"github.com/StricklySoft/clinic-hub/pkg/respond"
)

// DefaultRequestTimeout bounds every request handled by [NewRouter].
const DefaultRequestTimeout = 30 * time.Second

// RouterOptions configures [NewRouter].
type RouterOptions struct {
	AllowedOrigins []string
	RequestTimeout time.Duration
}

// NewRouter returns a chi router with request IDs, real client IPs,
// panic recovery, a per-request timeout, CORS and structured access
// logs. Unknown routes answer 404 not_found in the usual error shape.
func NewRouter(opts RouterOptions) chi.Router {
	if opts.RequestTimeout <= 0 {
		opts.RequestTimeout = DefaultRequestTimeout
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(AccessLog)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(opts.RequestTimeout))
	if len(opts.AllowedOrigins) > 0 {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins:   opts.AllowedOrigins,
			AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
			AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Request-ID"},
			ExposedHeaders:   []string{"X-Request-ID"},
			AllowCredentials: true,
			MaxAge:           300,
		}))
	}

	r.NotFound(func(w http.ResponseWriter, req *http.Request) {
		respond.Error(w, req, sserr.NotFound("route not found"))
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, req *http.Request) {
		respond.JSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method_not_allowed"})
	})
	return r
}

// AccessLog logs one line per request. The Authorization header is
// never logged.
func AccessLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		level := slog.LevelInfo
		if status >= http.StatusInternalServerError {
			level = slog.LevelWarn
		}
		slog.Log(r.Context(), level, "http request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", status,
			"bytes", ww.BytesWritten(),
			"duration_ms", time.Since(start).Milliseconds(),
			"request_id", middleware.GetReqID(r.Context()),
			"remote_addr", r.RemoteAddr,
		)
	})
}

// MountProbes registers GET /health and GET /ready for svc.
//
// /health answers {"status":"ok"} while the service is running and 503
// with the current state otherwise. /ready also runs the dependency
// probes and returns the full report.
func MountProbes(r chi.Router, svc *lifecycle.Service) {
	r.Get("/health", func(w http.ResponseWriter, req *http.Request) {
		if err := svc.Health(req.Context()); err != nil {
			respond.JSON(w, http.StatusServiceUnavailable, map[string]string{"status": svc.State().String()})
			return
		}
		respond.JSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Get("/ready", func(w http.ResponseWriter, req *http.Request) {
		report := svc.Ready(req.Context())
		status := http.StatusOK
		if !report.Ready {
			status = http.StatusServiceUnavailable
		}
		respond.JSON(w, status, report)
	})
}
