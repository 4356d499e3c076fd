package handler

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/capitalize-ai/ev-service-portal/internal/middleware"
	"github.com/capitalize-ai/ev-service-portal/internal/service"
	"github.com/capitalize-ai/ev-service-portal/pkg/logger"
)

// RouterOptions wires the HTTP surface.
type RouterOptions struct {
	Registry          *service.Registry
	JWTSecret         string
	CORSOrigins       []string
	RateLimitRequests int
	RateLimitWindow   time.Duration
	Location          *time.Location
	Checks            map[string]Check
}

// NewRouter builds the portal API router.
func NewRouter(opts RouterOptions, log *logger.Logger) http.Handler {
	ws := NewWorkspaces(opts.Registry, log.Named("session"))
	healthHandler := NewHealthHandler(opts.Checks)
	chatHandler := NewChatHandler(ws, log.Named("chat"))
	profileHandler := NewProfileHandler(ws, opts.Location, log.Named("profile"))
	orders := NewOrderHandler(ws, opts.Location, log.Named("orders"))
	services := NewServiceHandler(ws, opts.Location, log.Named("services"))
	packages := NewPackageHandler(ws, opts.Location, log.Named("packages"))

	r := chi.NewRouter()

	// Global middleware
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.Logging(log))
	r.Use(middleware.Recoverer(log))
	if len(opts.CORSOrigins) > 0 {
		r.Use(middleware.CORS(opts.CORSOrigins))
	}

	// Unauthenticated endpoints, limited per client IP
	r.Group(func(r chi.Router) {
		if opts.RateLimitRequests > 0 {
			r.Use(middleware.RateLimit(opts.RateLimitRequests, opts.RateLimitWindow))
		}
		r.Get("/health", healthHandler.Health)
		r.Get("/ready", healthHandler.Ready)
		r.Handle("/metrics", promhttp.Handler())
	})

	// API routes with authentication
	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.Auth(opts.JWTSecret))
		if opts.RateLimitRequests > 0 {
			r.Use(middleware.UserRateLimit(opts.RateLimitRequests, opts.RateLimitWindow))
		}

		// Back-office screens
		r.Group(func(r chi.Router) {
			r.Use(middleware.RequireRole(service.RoleStaff))
			r.Route("/"+service.ScreenOrders, orders.Routes)
			r.Route("/"+service.ScreenServices, services.Routes)
			r.Route("/"+service.ScreenPackages, packages.Routes)
		})

		r.Route("/chat", chatHandler.Routes)
		r.Route("/profile", profileHandler.Routes)
		r.Post("/session/signout", ws.SignOut)
	})

	return r
}
