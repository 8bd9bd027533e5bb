// Package api wires the HTTP surface: routing, middleware, and handlers.
package api

import (
	"time"

	"github.com/gin-gonic/gin"

	"github.com/idealistaplus/backend/acquire"
	"github.com/idealistaplus/backend/api/handler"
	"github.com/idealistaplus/backend/api/middleware"
	"github.com/idealistaplus/backend/browser"
	"github.com/idealistaplus/backend/cache"
	"github.com/idealistaplus/backend/config"
)

// NewRouter creates a configured Gin engine with all routes and middleware.
//
// Middleware chain:
//
//	Global:  Recovery → Logger → RequestID
//	API:     Auth (if enabled) → RateLimit
//
// Health endpoint is intentionally outside auth so monitoring probes always work.
func NewRouter(mgr *browser.Manager, ac *acquire.Acquirer, cfg *config.Config, cc *cache.Cache, startTime time.Time) *gin.Engine {
	gin.SetMode(cfg.Server.Mode)

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(gin.Logger())
	r.Use(middleware.RequestID())

	v1 := r.Group("/api")

	// Health — no auth required.
	v1.GET("/health", handler.Health(mgr, int(cfg.Acquire.MaxConcurrent), startTime))

	// Protected group — auth + rate limit.
	protected := v1.Group("")
	if cfg.Auth.Enabled {
		protected.Use(middleware.Auth(cfg.Auth.APIKeys))
	}
	protected.Use(middleware.RateLimit(cfg.RateLimit))

	protected.POST("/property", handler.Property(ac, cc, cfg.Cache.MaxAge))

	return r
}
