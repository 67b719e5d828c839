package api

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	mw "github.com/aiox-platform/mailgate/internal/middleware"
)

// HandlerSet holds handler functions injected from main.go to avoid import cycles.
type HandlerSet struct {
	// Email handlers
	SendEmail    http.HandlerFunc
	SendTemplate http.HandlerFunc
	SendPremium  http.HandlerFunc
	SendBulk     http.HandlerFunc

	// Template handlers
	ListTemplates  http.HandlerFunc
	CreateTemplate http.HandlerFunc
	GetTemplate    http.HandlerFunc
	UpdateTemplate http.HandlerFunc
	DeleteTemplate http.HandlerFunc

	// Analytics handlers
	AnalyticsSummary http.HandlerFunc
	AnalyticsDaily   http.HandlerFunc
	AnalyticsWeekly  http.HandlerFunc
	AnalyticsMonthly http.HandlerFunc
	AnalyticsRange   http.HandlerFunc
	ResetAnalytics   http.HandlerFunc

	// Quota handlers
	GetQuota   http.HandlerFunc
	GetUsage   http.HandlerFunc
	ResetUsage http.HandlerFunc

	// Auth middleware
	AuthMiddleware  func(http.Handler) http.Handler
	AdminMiddleware func(http.Handler) http.Handler
}

// Pinger reports whether a dependency is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// RouterConfig holds configuration for the router.
type RouterConfig struct {
	CORSAllowedOrigins []string
	RateLimiter        func(http.Handler) http.Handler

	Store         Pinger
	NATSHealthy   func() bool
	TransportInfo string
	// Config is served as-is on GET /config; it must not carry secrets.
	Config any
}

func NewRouter(cfg RouterConfig, h HandlerSet) http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(chimw.RequestID)
	r.Use(mw.SecurityHeaders)
	r.Use(mw.Logging)
	r.Use(chimw.Recoverer)
	r.Use(mw.Metrics)
	r.Use(cors.Handler(mw.CORS(cfg.CORSAllowedOrigins)))

	// Liveness probe, no dependency checks
	r.Get("/health/live", func(w http.ResponseWriter, r *http.Request) {
		JSON(w, http.StatusOK, map[string]string{"status": "alive"})
	})

	readinessHandler := func(w http.ResponseWriter, r *http.Request) {
		health := map[string]string{
			"status":    "healthy",
			"store":     "healthy",
			"nats":      "healthy",
			"transport": cfg.TransportInfo,
		}
		status := http.StatusOK

		if cfg.Store != nil {
			ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
			defer cancel()
			if err := cfg.Store.Ping(ctx); err != nil {
				health["store"] = "unhealthy"
				health["status"] = "degraded"
				status = http.StatusServiceUnavailable
			}
		} else {
			health["store"] = "not configured"
		}

		if cfg.NATSHealthy == nil {
			health["nats"] = "not configured"
		} else if !cfg.NATSHealthy() {
			// Events are best-effort; sending still works.
			health["nats"] = "unhealthy"
			health["status"] = "degraded"
		}

		JSON(w, status, health)
	}

	r.Get("/health/ready", readinessHandler)
	r.Get("/health", readinessHandler)

	r.Get("/config", func(w http.ResponseWriter, r *http.Request) {
		JSON(w, http.StatusOK, cfg.Config)
	})

	// Prometheus metrics
	r.Handle("/metrics", promhttp.Handler())

	// API v1
	r.Route("/api/v1", func(r chi.Router) {
		if cfg.RateLimiter != nil {
			r.Use(cfg.RateLimiter)
		}
		r.Use(h.AuthMiddleware)

		r.Route("/emails", func(r chi.Router) {
			r.Post("/", h.SendEmail)
			r.Post("/template", h.SendTemplate)
			r.Post("/premium", h.SendPremium)
			r.Post("/bulk", h.SendBulk)
		})

		r.Route("/templates", func(r chi.Router) {
			r.Get("/", h.ListTemplates)
			r.Post("/", h.CreateTemplate)
			r.Get("/{templateID}", h.GetTemplate)
			r.Put("/{templateID}", h.UpdateTemplate)
			r.Delete("/{templateID}", h.DeleteTemplate)
		})

		r.Route("/analytics", func(r chi.Router) {
			r.Get("/summary", h.AnalyticsSummary)
			r.Get("/daily", h.AnalyticsDaily)
			r.Get("/weekly", h.AnalyticsWeekly)
			r.Get("/monthly", h.AnalyticsMonthly)
			r.Get("/range", h.AnalyticsRange)
			r.With(h.AdminMiddleware).Delete("/", h.ResetAnalytics)
		})

		r.Route("/quota", func(r chi.Router) {
			r.Get("/", h.GetQuota)
			r.Group(func(r chi.Router) {
				r.Use(h.AdminMiddleware)
				r.Get("/{identity}", h.GetUsage)
				r.Delete("/{identity}", h.ResetUsage)
			})
		})
	})

	return r
}
