package handler

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/use-agent/agentroster/models"
	"github.com/use-agent/agentroster/pipeline"
)

// Health returns a handler for GET /api/v1/health.
//
// Reports each backend's pool state and degrades status when any pool
// has more than 80% of its handles checked out.
func Health(p *pipeline.Pipeline, startTime time.Time) gin.HandlerFunc {
	return func(c *gin.Context) {
		backends := p.BackendStats()

		status := "healthy"
		for _, stats := range backends {
			if stats.Max > 0 && stats.InUse > int(float64(stats.Max)*0.8) {
				status = "degraded"
			}
		}

		c.JSON(http.StatusOK, models.HealthResponse{
			Status:   status,
			Uptime:   time.Since(startTime).Round(time.Second).String(),
			Backends: backends,
			Drift:    p.DriftStatus(),
			Version:  "0.1.0",
		})
	}
}
