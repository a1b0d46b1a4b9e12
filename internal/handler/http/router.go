package http

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/labqa/qualitylab/pkg/health"
	"github.com/labqa/qualitylab/pkg/middleware"
)

// RouterConfig holds the cross-cutting settings of the HTTP surface.
type RouterConfig struct {
	ServiceName       string
	CORS              middleware.CORSConfig
	PprofAllowedCIDRs []string
	// LoginLimiter throttles the public auth routes. Nil disables it.
	LoginLimiter *middleware.RateLimiter
}

// Handlers groups the route handlers.
type Handlers struct {
	Auth    *AuthHandler
	Profile *ProfileHandler
	Tests   *TestHandler
}

// NewRouter creates a chi router with every qualitylab route registered.
// Routes other than health, metrics, pprof and the public auth routes run
// behind the session gate.
func NewRouter(
	h Handlers,
	authenticate middleware.Authenticator,
	healthHandler *health.Handler,
	cfg RouterConfig,
	logger *slog.Logger,
) http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(middleware.CORS(cfg.CORS))
	r.Use(middleware.Recovery(logger))
	r.Use(middleware.Tracing(cfg.ServiceName))
	r.Use(middleware.RequestLogging(logger))
	r.Use(middleware.PrometheusMetrics(cfg.ServiceName))

	// Health check endpoints
	r.Get("/health/live", healthHandler.LivenessHandler())
	r.Get("/health/ready", healthHandler.ReadinessHandler())
	r.Handle("/metrics", promhttp.Handler())
	middleware.RegisterPprof(r, cfg.PprofAllowedCIDRs, logger)

	// Public auth endpoints
	r.Group(func(r chi.Router) {
		if cfg.LoginLimiter != nil {
			r.Use(cfg.LoginLimiter.Middleware)
		}
		r.Use(ContentTypeJSON)
		r.Use(middleware.NoStore)

		r.Post("/auth/register", h.Auth.Register)
		r.Post("/auth/login", h.Auth.Login)
	})

	// Everything below requires a session.
	r.Group(func(r chi.Router) {
		r.Use(middleware.Session(authenticate, logger))
		r.Use(ContentTypeJSON)
		r.Use(middleware.NoStore)

		r.Post("/auth/logout", h.Auth.Logout)
		r.Delete("/auth/sessions/current", h.Auth.LogoutSession)
		r.Post("/auth/logout/{email}", h.Auth.LogoutOther)
		r.Post("/auth/logout-all", h.Auth.LogoutAll)
		r.Delete("/auth/users/{email}", h.Auth.RemoveUser)

		r.Get("/profile/{email}", h.Profile.Get)
		r.Put("/profile/{email}", h.Profile.Update)

		r.Get("/tests", h.Tests.List)
		r.Get("/tests/{id}", h.Tests.Get)
		r.Post("/tests/{id}/state", h.Tests.ChangeState)
	})

	return r
}
