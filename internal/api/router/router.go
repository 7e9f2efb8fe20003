package router

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/wolfman30/agent-console/internal/http/handlers"
	httpmiddleware "github.com/wolfman30/agent-console/internal/http/middleware"
	"github.com/wolfman30/agent-console/pkg/logging"
)

const healthTimeout = 2 * time.Second

// HealthCheck probes one backing dependency.
type HealthCheck func(ctx context.Context) error

// Config holds router configuration
type Config struct {
	Logger             *logging.Logger
	Console            *handlers.ConsoleHandler
	Stream             http.Handler
	MetricsHandler     http.Handler
	HealthChecks       map[string]HealthCheck
	OperatorJWTSecret  string
	CORSAllowedOrigins []string
	MutationRateLimit  float64
	MutationBurst      int
}

// New creates a new Chi router with all routes configured
func New(cfg *Config) http.Handler {
	if cfg == nil || cfg.Console == nil {
		panic("router: console handler required")
	}
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(httpmiddleware.RequestLogger(cfg.Logger))
	r.Use(middleware.Recoverer)
	if len(cfg.CORSAllowedOrigins) > 0 {
		r.Use(httpmiddleware.CORS(cfg.CORSAllowedOrigins))
	}

	r.Get("/health", healthHandler(cfg.HealthChecks))
	if cfg.MetricsHandler != nil {
		r.Handle("/metrics", cfg.MetricsHandler)
	}
	if cfg.Stream != nil {
		r.Handle("/ws", cfg.Stream)
	}

	guard := func(next http.Handler) http.Handler {
		limited := httpmiddleware.RateLimit(cfg.MutationRateLimit, cfg.MutationBurst)(next)
		return httpmiddleware.OperatorJWT(cfg.OperatorJWTSecret)(limited)
	}
	r.Route("/api", func(api chi.Router) {
		api.Use(middleware.Compress(5))
		cfg.Console.Routes(api, guard)
	})
	return r
}

// healthHandler reports ok, or 503 naming the dependencies that failed.
func healthHandler(checks map[string]HealthCheck) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), healthTimeout)
		defer cancel()

		failed := map[string]string{}
		for name, check := range checks {
			if err := check(ctx); err != nil {
				failed[name] = err.Error()
			}
		}
		if len(failed) > 0 {
			writeJSON(w, http.StatusServiceUnavailable, map[string]any{"status": "degraded", "failed": failed})
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}
}
