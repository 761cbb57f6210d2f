// Package httpapi mounts the oauthserver handlers under a configurable
// base path, with the request-ID, structured logging, CORS, Prometheus,
// and health-check wiring ambient concerns imply, following the
// router-construction shape of dexidp-dex's server.NewServer: a
// gorilla/mux router, one handlerWithHeaders-style wrapper per route,
// health and metrics mounted alongside the API.
package httpapi

import (
	"context"
	"log/slog"
	"net/http"
	"path"
	"runtime/debug"
	"time"

	gosundheit "github.com/AppsFlyer/go-sundheit"
	"github.com/google/uuid"
	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/WAGO/tp-firmware-sdk-sub000/internal/oauthserver"
)

type requestIDKey struct{}

// RequestID extracts the per-request UUID stashed by the router's logging
// middleware, for handlers/log lines that want to correlate.
func RequestID(ctx context.Context) string {
	if id, ok := ctx.Value(requestIDKey{}).(string); ok {
		return id
	}
	return ""
}

// Config configures the router.
type Config struct {
	BasePath string // default "/auth"
	AllowedOrigins []string // CORS allow-list; disabled when empty
	HealthChecker gosundheit.Health
	Registry *prometheus.Registry
}

// NewRouter builds the mux.Router exposing the four OAuth endpoints plus
// /healthz and /metrics.
func NewRouter(srv *oauthserver.Server, cfg Config, logger *slog.Logger) http.Handler {
	if cfg.BasePath == "" {
		cfg.BasePath = "/auth"
	}
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.HealthChecker == nil {
		cfg.HealthChecker = gosundheit.New()
	}

	r := mux.NewRouter().SkipClean(true)

	instrumented := func(name string, h http.HandlerFunc) http.Handler {
		var handler http.Handler = withLogging(name, logger, h)
		if len(cfg.AllowedOrigins) > 0 {
			cors := handlers.CORS(
				handlers.AllowedOrigins(cfg.AllowedOrigins),
				handlers.AllowedMethods([]string{http.MethodGet, http.MethodPost}),
			)
			handler = cors(handler)
		}
		if cfg.Registry != nil {
			handler = instrumentMetrics(cfg.Registry, name, handler)
		}
		return handler
	}

	mount := func(p string, name string, h http.HandlerFunc) {
		r.Handle(path.Join(cfg.BasePath, p), instrumented(name, h))
	}

	mount("/authorize", "authorize", srv.HandleAuthorize)
	mount("/token", "token", srv.HandleToken)
	mount("/verify", "verify", srv.HandleVerify)
	mount("/password_change", "password_change", srv.HandlePasswordChange)

	r.Handle("/healthz", healthzHandler(cfg.HealthChecker))
	if cfg.Registry != nil {
		r.Handle("/metrics", promhttp.HandlerFor(cfg.Registry, promhttp.HandlerOpts{}))
	}

	return r
}

func healthzHandler(h gosundheit.Health) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !h.IsHealthy() {
			w.WriteHeader(http.StatusServiceUnavailable)
			w.Write([]byte("unhealthy"))
			return
		}
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	}
}

// withLogging assigns a request ID and emits one structured log line
// request, mirroring dex's handlerWithHeaders/WithRequestID pattern.
func withLogging(name string, logger *slog.Logger, next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := uuid.NewString()
		ctx := context.WithValue(r.Context(), requestIDKey{}, id)
		r = r.WithContext(ctx)

		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		defer func() {
			if p := recover(); p != nil {
				logger.Error("handler panicked", "handler", name, "request_id", id, "panic", p, "stack", string(debug.Stack()))
				http.Error(rec, "server_error", http.StatusInternalServerError)
			}
		}()
		next(rec, r)

		logger.Info("handled request",
			"handler", name,
			"request_id", id,
			"method", r.Method,
			"path", r.URL.Path,
			"status", rec.status,
			"remote_addr", r.RemoteAddr,
			"duration", time.Since(start),
		)
	}
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (s *statusRecorder) WriteHeader(code int) {
	s.status = code
	s.ResponseWriter.WriteHeader(code)
}
