package api

import (
	"context"
	"net/http"
	"sort"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	mw "github.com/benestar-app/benestar/internal/middleware"
)

// HealthCheck reports whether a dependency is usable.
type HealthCheck func(ctx context.Context) error

// HandlerSet holds handler functions injected from main.go to avoid import cycles.
type HandlerSet struct {
	// Assistant handlers
	Chat           http.HandlerFunc
	RoleplayStep   http.HandlerFunc
	AnalyzeJournal http.HandlerFunc

	// Governance handlers
	GetQuota        http.HandlerFunc
	ListQuotaEvents http.HandlerFunc

	// Auth middleware
	AuthMiddleware func(http.Handler) http.Handler
}

// RouterConfig holds configuration for the router.
type RouterConfig struct {
	CORSAllowedOrigins []string
	// IPRateLimiter, when set, guards every /api/v1 route.
	IPRateLimiter func(http.Handler) http.Handler
	// Checks are run by the readiness probe, keyed by dependency name.
	// A nil check reports the dependency as "not configured".
	Checks map[string]HealthCheck
}

func NewRouter(cfg RouterConfig, h HandlerSet) http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(mw.RequestID)
	r.Use(mw.SecurityHeaders)
	r.Use(mw.Logging)
	r.Use(mw.Recovery)
	r.Use(mw.Metrics)
	r.Use(cors.Handler(mw.CORS(cfg.CORSAllowedOrigins)))

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		HandleError(w, ErrNotFound)
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		HandleError(w, ErrMethodNotAllowed)
	})

	// Liveness probe: always 200, no dependency checks
	r.Get("/health/live", func(w http.ResponseWriter, r *http.Request) {
		JSON(w, http.StatusOK, map[string]string{"status": "alive"})
	})

	readinessHandler := func(w http.ResponseWriter, r *http.Request) {
		health, ok := runChecks(r.Context(), cfg.Checks)
		status := http.StatusOK
		if !ok {
			status = http.StatusServiceUnavailable
		}
		JSON(w, status, health)
	}

	r.Get("/health/ready", readinessHandler)
	r.Get("/health", readinessHandler)

	// Prometheus metrics
	r.Handle("/metrics", promhttp.Handler())

	// API v1
	r.Route("/api/v1", func(r chi.Router) {
		if cfg.IPRateLimiter != nil {
			r.Use(cfg.IPRateLimiter)
		}
		r.Use(h.AuthMiddleware)

		r.Post("/chat", h.Chat)
		r.Post("/roleplay/step", h.RoleplayStep)
		r.Post("/journal/analyze", h.AnalyzeJournal)

		r.Route("/quota", func(r chi.Router) {
			r.Get("/events", h.ListQuotaEvents)
			r.Get("/{kind}", h.GetQuota)
		})
	})

	return r
}

func runChecks(ctx context.Context, checks map[string]HealthCheck) (map[string]string, bool) {
	health := map[string]string{"status": "healthy"}
	ok := true

	names := make([]string, 0, len(checks))
	for name := range checks {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		check := checks[name]
		switch {
		case check == nil:
			health[name] = "not configured"
		case check(ctx) != nil:
			health[name] = "unhealthy"
			health["status"] = "degraded"
			ok = false
		default:
			health[name] = "healthy"
		}
	}
	return health, ok
}
