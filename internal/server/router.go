// Package server assembles the HTTP router.
package server

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"studio-site/internal/config"
	"studio-site/internal/domain"
	"studio-site/internal/handler"
	"studio-site/internal/messaging"
	"studio-site/internal/middleware"
	"studio-site/internal/ratelimit"
	"studio-site/internal/security"
	"studio-site/internal/service"
	"studio-site/internal/websocket"
)

// Per-route rate limit rules.
var (
	LoginRule   = ratelimit.Rule{Name: "login", Window: 15 * time.Minute, Max: 5}
	PublicRule  = ratelimit.Rule{Name: "public", Window: time.Minute, Max: 120}
	ContactRule = ratelimit.Rule{Name: "contact", Window: time.Hour, Max: 5}
	AdminRule   = ratelimit.Rule{Name: "admin", Window: time.Minute, Max: 60}
)

// Deps are the long-lived components the router serves. RabbitMQ may be
// nil; Events receives contact events and defaults to Hub.
type Deps struct {
	Store    domain.DocumentStore
	Limiter  *ratelimit.Limiter
	Hub      *websocket.Hub
	RabbitMQ *messaging.RabbitMQ
	Events   domain.EventPublisher
}

// NewRouter wires middleware, the request gate and handlers. The admin
// password hash must already be set on cfg.
func NewRouter(cfg *config.Config, deps Deps) http.Handler {
	devMode := cfg.IsDevelopment()
	secure := cfg.IsProduction()

	sessions := security.NewSessionTokens(cfg.AdminSessionSecret)
	csrf := security.NewCSRFTokens(cfg.AdminSessionSecret)
	gate := middleware.NewGate(sessions, csrf, deps.Limiter, devMode)

	events := deps.Events
	if events == nil && deps.Hub != nil {
		events = deps.Hub
	}

	authService := service.NewAuthService(cfg.AdminUsername, cfg.AdminPasswordHash, sessions)
	contentService := service.NewContentService(deps.Store, events)

	authHandler := handler.NewAuthHandler(authService, sessions, csrf, secure, devMode)
	contentHandler := handler.NewContentHandler(contentService, devMode)
	wsHandler := handler.NewWebSocketHandler(deps.Hub, middleware.ParseOrigins(cfg.AllowedOrigins), devMode)

	validatorConfig := middleware.DefaultOpenAPIValidatorConfig(cfg.OpenAPIValidation, cfg.OpenAPISpecPath)
	validatorConfig.DevMode = devMode

	r := chi.NewRouter()

	r.Use(chimiddleware.RequestID)
	r.Use(middleware.ClientIP())
	r.Use(chimiddleware.Recoverer)
	r.Use(middleware.Metrics())
	r.Use(middleware.CORS(middleware.ParseOrigins(cfg.AllowedOrigins)))
	r.Use(middleware.OpenAPIValidator(validatorConfig))

	r.Get("/health", handler.Health)
	r.Get("/health/ready", handler.Ready(handler.Dependencies{
		Store:    deps.Store,
		Limiter:  deps.Limiter,
		RabbitMQ: deps.RabbitMQ,
	}))
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		r.Group(func(r chi.Router) {
			r.Use(gate.Protect(middleware.Policy{RateLimit: &PublicRule}))
			r.Get("/auth/csrf", authHandler.CSRFToken)
			r.Get("/content/{collection}", contentHandler.List)
			r.Get("/content/{collection}/{id}", contentHandler.Get)
			r.Get("/settings", contentHandler.GetSettings)
		})

		// Login is exempt from CSRF: there is no session to ride yet, and
		// the response rotates the token. A cross-site form can still log a
		// visitor into the attacker's admin session (login CSRF). Only the
		// site owner holds credentials, so operators who need that closed
		// should also require a same-origin Origin header at the proxy.
		r.With(gate.Protect(middleware.Policy{RateLimit: &LoginRule})).
			Post("/auth/login", authHandler.Login)

		r.With(gate.Protect(middleware.Policy{CSRF: true, Admin: true})).
			Post("/auth/logout", authHandler.Logout)
		r.With(gate.Protect(middleware.Policy{Admin: true})).
			Get("/auth/me", authHandler.Me)

		r.With(gate.Protect(middleware.Policy{CSRF: true, RateLimit: &ContactRule})).
			Post("/messages", contentHandler.SubmitMessage)

		r.Route("/admin", func(r chi.Router) {
			r.Use(gate.Protect(middleware.Policy{CSRF: true, Admin: true, RateLimit: &AdminRule}))
			r.Get("/messages", contentHandler.ListMessages)
			r.Post("/content/{collection}", contentHandler.Create)
			r.Put("/content/{collection}/{id}", contentHandler.Update)
			r.Delete("/content/{collection}/{id}", contentHandler.Delete)
			r.Put("/settings", contentHandler.UpdateSettings)
		})
	})

	r.With(gate.Protect(middleware.Policy{Admin: true})).
		Get("/ws/admin", wsHandler.HandleConnection)

	return r
}
