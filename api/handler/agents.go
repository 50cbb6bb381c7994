package handler

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/use-agent/agentroster/cache"
	"github.com/use-agent/agentroster/models"
	"github.com/use-agent/agentroster/pipeline"
)

// maxAgeParam reads ?max_age_ms=; 0 disables caching for the request.
func maxAgeParam(c *gin.Context) time.Duration {
	ms, err := strconv.Atoi(c.Query("max_age_ms"))
	if err != nil || ms <= 0 {
		return 0
	}
	return time.Duration(ms) * time.Millisecond
}

// List returns a handler for GET /api/v1/agents: crawl the roster
// listing across pages and return the deduplicated summaries.
func List(p *pipeline.Pipeline, cc *cache.Cache) gin.HandlerFunc {
	return func(c *gin.Context) {
		backend, ok := backendParam(c)
		if !ok {
			return
		}

		maxAge := maxAgeParam(c)
		key := cache.Key("list_agents", backend)
		if cc != nil {
			if v, hit := cc.Get(key, maxAge); hit {
				resp := v.(models.AgentsResponse)
				resp.CacheStatus = "hit"
				c.JSON(http.StatusOK, resp)
				return
			}
		}

		res, err := p.ListAgents(c.Request.Context(), backend)
		if err != nil {
			respondError(c, err)
			return
		}

		resp := models.AgentsResponse{
			Success: true,
			Total:   len(res.Agents),
			Agents:  res.Agents,
		}
		if resp.Agents == nil {
			resp.Agents = []models.AgentSummary{}
		}
		if res.Partial != nil {
			resp.Partial = res.Partial.ToDetail()
		}
		// Only clean crawls are worth caching.
		if cc != nil && maxAge > 0 && res.Partial == nil {
			cc.Set(key, resp)
			resp.CacheStatus = "miss"
		}
		c.JSON(http.StatusOK, resp)
	}
}

// Full returns a handler for GET /api/v1/agents/full: the listing
// crawl plus a bounded-concurrency profile fetch for every agent.
// forceBackend pins the backend (the /full-mcp route); empty leaves it
// to the ?backend= query.
func Full(p *pipeline.Pipeline, cc *cache.Cache, forceBackend string) gin.HandlerFunc {
	return func(c *gin.Context) {
		backend := forceBackend
		if backend == "" {
			var ok bool
			if backend, ok = backendParam(c); !ok {
				return
			}
		}

		maxAge := maxAgeParam(c)
		key := cache.Key("full_scrape", backend)
		if cc != nil {
			if v, hit := cc.Get(key, maxAge); hit {
				resp := v.(models.FullScrapeResponse)
				resp.CacheStatus = "hit"
				c.JSON(http.StatusOK, resp)
				return
			}
		}

		res, err := p.FullScrape(c.Request.Context(), backend)
		if err != nil {
			respondError(c, err)
			return
		}

		resp := models.FullScrapeResponse{
			Success:   true,
			Total:     len(res.Agents),
			Agents:    res.Agents,
			FailedIDs: res.FailedIDs,
		}
		if resp.Agents == nil {
			resp.Agents = []models.AgentProfile{}
		}
		if res.Partial != nil {
			resp.Partial = res.Partial.ToDetail()
		}
		if cc != nil && maxAge > 0 && res.Partial == nil && len(res.FailedIDs) == 0 {
			cc.Set(key, resp)
			resp.CacheStatus = "miss"
		}
		c.JSON(http.StatusOK, resp)
	}
}

// Get returns a handler for GET /api/v1/agents/:id, one agent's full
// profile.
func Get(p *pipeline.Pipeline) gin.HandlerFunc {
	return func(c *gin.Context) {
		backend, ok := backendParam(c)
		if !ok {
			return
		}

		prof, err := p.FetchProfile(c.Request.Context(), c.Param("id"), backend)
		if err != nil {
			// A profile page the site answers 4xx for is a missing agent,
			// not a broken gateway.
			var ce *models.CrawlError
			if errors.As(err, &ce) && ce.Code == models.ErrCodeNavigation && !ce.Retryable {
				c.JSON(http.StatusNotFound, models.ProfileResponse{
					Error: &models.ErrorDetail{
						Code:    models.ErrCodeNotFound,
						Message: "agent " + c.Param("id") + " not found",
						Stage:   ce.Stage,
					},
				})
				return
			}
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, models.ProfileResponse{Success: true, Agent: prof})
	}
}

// Parse returns a handler for POST /api/v1/agents/parse: extract a
// roster from caller-supplied HTML, no browser, no network.
func Parse(p *pipeline.Pipeline) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req models.ParseRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, models.ErrorResponse{
				Error: &models.ErrorDetail{
					Code:    models.ErrCodeInvalidInput,
					Message: err.Error(),
				},
			})
			return
		}

		agents, err := p.ParseRoster(req.HTML)
		if err != nil {
			respondError(c, err)
			return
		}
		if agents == nil {
			agents = []models.AgentSummary{}
		}
		c.JSON(http.StatusOK, models.AgentsResponse{
			Success: true,
			Total:   len(agents),
			Agents:  agents,
		})
	}
}
