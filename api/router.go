package api

import (
	"time"

	"github.com/gin-gonic/gin"

	"github.com/use-agent/agentroster/api/handler"
	"github.com/use-agent/agentroster/api/middleware"
	"github.com/use-agent/agentroster/cache"
	"github.com/use-agent/agentroster/config"
	"github.com/use-agent/agentroster/pipeline"
)

// NewRouter creates a configured Gin engine with all routes and middleware.
//
// Middleware chain:
//
//	Global:  Recovery → Logger
//	API:     Auth (if enabled) → RateLimit
//
// Health endpoint is intentionally outside auth so monitoring probes always work.
func NewRouter(p *pipeline.Pipeline, cfg *config.Config, cc *cache.Cache, startTime time.Time) *gin.Engine {
	gin.SetMode(cfg.Server.Mode)

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(gin.Logger())

	v1 := r.Group("/api/v1")

	// Health — no auth required.
	v1.GET("/health", handler.Health(p, startTime))

	// Protected group — auth + rate limit.
	protected := v1.Group("")
	if cfg.Auth.Enabled {
		protected.Use(middleware.Auth(cfg.Auth.APIKeys))
	}
	protected.Use(middleware.RateLimit(cfg.RateLimit))

	// Roster
	protected.GET("/agents", handler.List(p, cc))
	protected.GET("/agents/full", handler.Full(p, cc, ""))
	protected.GET("/agents/full-mcp", handler.Full(p, cc, "mcp"))
	protected.GET("/agents/:id", handler.Get(p))
	protected.POST("/agents/parse", handler.Parse(p))

	// Verification
	protected.POST("/verify", handler.Verify(p))

	return r
}
