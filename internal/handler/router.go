package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/utafrali/storefront/internal/config"
	sfmiddleware "github.com/utafrali/storefront/internal/middleware"
	"github.com/utafrali/storefront/internal/view"
	"github.com/utafrali/storefront/pkg/health"
	pkgmiddleware "github.com/utafrali/storefront/pkg/middleware"
)

// staticMaxAge is the cache lifetime of the embedded stylesheet.
const staticMaxAge = 24 * 60 * 60

// NewRouter creates a chi router with the global middleware, health and
// metrics endpoints, the HTML page routes and the JSON page API. ctx bounds
// background work owned by the middleware.
func NewRouter(
	ctx context.Context,
	cfg *config.Config,
	controller PageController,
	renderer *view.Renderer,
	healthHandler *health.Handler,
	logger *slog.Logger,
) http.Handler {
	r := chi.NewRouter()

	// Global middleware stack (applied in order).
	r.Use(sfmiddleware.RateLimit(ctx, float64(cfg.RateLimitRPS), cfg.RateLimitBurst, logger))
	r.Use(pkgmiddleware.Recovery(logger))
	r.Use(chimw.Compress(5))
	r.Use(chimw.Timeout(30 * time.Second))
	r.Use(pkgmiddleware.RequestLogging(logger))
	r.Use(pkgmiddleware.PrometheusMetrics(cfg.ServiceName))
	r.Use(pkgmiddleware.Tracing(cfg.ServiceName))
	r.Use(pkgmiddleware.TokenCookie(cfg.TokenCookie))
	r.Use(pkgmiddleware.RequestLogger(logger))

	// Health check endpoints
	r.Get("/health/live", healthHandler.LivenessHandler())
	r.Get("/health/ready", healthHandler.ReadinessHandler())

	// Metrics endpoint with IP allowlist protection.
	r.With(pkgmiddleware.IPAllowlist(cfg.MetricsAllowedCIDRs, logger)).
		Handle("/metrics", promhttp.Handler())

	if cfg.PprofEnabled {
		pkgmiddleware.RegisterPprof(r, cfg.PprofAllowedCIDRs, logger)
	}

	r.With(pkgmiddleware.CacheControl(staticMaxAge)).Handle("/static/*", view.StaticHandler())

	opts := PageOptions{
		RenderWait:     cfg.RenderWait,
		RefreshSeconds: cfg.RefreshSeconds,
		SessionTTL:     cfg.SessionTTL,
		SecureCookie:   cfg.SessionCookieSecure,
	}

	// HTML product details page
	pages := NewPageHandler(controller, renderer, opts, logger)
	r.Route("/products/{id}", func(r chi.Router) {
		r.Use(pkgmiddleware.NoStore)

		r.Get("/", pages.Show)
		r.Get("/view", pages.View)
		r.Post("/quantity/{action:increment|decrement}", pages.Quantity)
		r.Post("/unmount", pages.Unmount)
	})

	// JSON page API
	api := NewPageAPIHandler(controller, opts, logger)
	r.Route("/api/v1/products/{id}/page", func(r chi.Router) {
		r.Use(pkgmiddleware.CORS(pkgmiddleware.CORSConfig{
			AllowedOrigins:   cfg.CORSAllowedOrigins,
			ExposedHeaders:   []string{pkgmiddleware.CorrelationHeader},
			AllowCredentials: cfg.CORSAllowCredentials,
		}))
		r.Use(pkgmiddleware.NoStore)

		r.Get("/", api.GetPage)
		r.Post("/quantity", api.ChangeQuantity)
	})

	return r
}
