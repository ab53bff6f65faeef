package api

import (
	"errors"

	"github.com/gin-gonic/gin"

	"github.com/tom2984/aac-sub001/internal/app"
	"github.com/tom2984/aac-sub001/internal/handlers"
	"github.com/tom2984/aac-sub001/internal/middleware"
	"github.com/tom2984/aac-sub001/internal/monitoring"
	"github.com/tom2984/aac-sub001/internal/monitoring/checks"
)

// NewRouter builds the Gin engine, wires middleware and registers every route.
func NewRouter(cfg *app.Config, deps Dependencies) (*gin.Engine, error) {
	if cfg == nil {
		return nil, errors.New("config must be provided")
	}

	svc, err := buildServices(cfg, deps)
	if err != nil {
		return nil, err
	}

	r := gin.New()

	// Global middleware
	r.Use(middleware.Recovery())
	r.Use(middleware.Logger())
	r.Use(middleware.Metrics())
	r.Use(middleware.SecurityHeaders())
	r.Use(middleware.CORS(cfg.Server.AllowedOrigins...))

	health := deps.Health
	if health == nil {
		health = monitoring.NewHealthManager()
		health.RegisterReadiness(checks.Database(deps.Store, 0))
	}
	registerHealthRoutes(r, cfg, health)
	registerMonitoringRoutes(r, cfg)

	limiter := middleware.RateLimit(deps.RateStore, cfg.Server.RateLimit.Requests, cfg.Server.RateLimit.Window)

	api := r.Group("/api")
	protected := api.Group("")
	protected.Use(middleware.Auth(deps.JWT))

	registerAuthRoutes(api, protected, limiter,
		handlers.NewAuthHandler(svc.signup, svc.issuer, svc.verifier, svc.provisioner, svc.authn))
	registerInviteRoutes(protected, handlers.NewInviteHandler(svc.issuer))
	registerNotificationRoutes(api, protected, notificationRouteDeps{
		Notifications:  handlers.NewNotificationHandler(svc.notifications),
		Dispatch:       handlers.NewDispatchHandler(svc.dispatcher, cfg.Dispatch.BatchSize),
		DispatchSecret: cfg.Dispatch.Secret,
	})
	registerFormRoutes(protected, handlers.NewFormHandler(svc.forms))
	registerIntegrationRoutes(api, protected, handlers.NewXeroHandler(svc.xero, cfg.Site.URL))
	registerSecurityRoutes(protected, handlers.NewSecurityHandler(svc.audit))

	// NotFound fallback
	r.NoRoute(middleware.NotFoundHandler)

	return r, nil
}
