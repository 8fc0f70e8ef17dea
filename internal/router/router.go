package router // package router defines how HTTP routes are registered for the API

import (
	"github.com/labstack/echo/v4"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/iliyamo/medhome/internal/config"
	"github.com/iliyamo/medhome/internal/handler"
	"github.com/iliyamo/medhome/internal/middleware"
)

// Deps bundles what the routes need.  Redis may be nil; rate limiting and
// caching then pass requests through.
type Deps struct {
	Cfg        config.Config
	Redis      *redis.Client
	Log        *zap.Logger
	DB         handler.Pinger
	Authz      middleware.Authorizer
	Auth       *handler.AuthHandler
	Vitals     *handler.VitalsHandler
	Dashboards *handler.DashboardHandler
	Devices    *handler.DeviceHandler
}

// RegisterRoutes registers every route on e.
func RegisterRoutes(e *echo.Echo, d Deps) {
	e.GET("/healthz", handler.Health(d.DB))

	limit := middleware.NewTokenBucket(d.Cfg.RateLimit, d.Redis, d.Log)

	// Unauthenticated account operations.  Logout reads the token itself
	// and succeeds even without one.
	g := e.Group("/v1/auth")
	g.POST("/signup", d.Auth.Signup, limit)
	g.POST("/login", d.Auth.Login, limit)
	g.POST("/logout", d.Auth.Logout)

	// Devices authenticate by serial only.  The long path is what shipped
	// chair firmware posts to.
	e.POST("/avgHRavgSpO2weightbpSbpD", d.Vitals.Ingest, limit)
	e.POST("/v1/vitals", d.Vitals.Ingest, limit)

	// Per-user routes: the session must belong to :username.
	owner := middleware.RequireOwner(d.Authz, "username", d.Log)
	cache := middleware.NewRedisCache(d.Cfg.Cache, d.Redis, d.Log)

	e.GET("/api/user/:username", d.Dashboards.Profile, owner)
	e.GET("/dashboard/user/:username/data", d.Dashboards.Data, owner, cache)
	e.POST("/export/user/:username", d.Dashboards.Export, owner)
	e.DELETE("/api/user/:username/device", d.Devices.Release, owner)
}
