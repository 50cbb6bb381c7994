package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/use-agent/agentroster/driver"
	"github.com/use-agent/agentroster/models"
)

// respondError maps a CrawlError to the right HTTP status and writes
// the structured JSON envelope.
func respondError(c *gin.Context, err error) {
	ce := models.AsCrawlError(err)
	c.JSON(mapErrorToStatus(ce), models.ErrorResponse{
		Error: ce.ToDetail(),
	})
}

// mapErrorToStatus translates error codes to HTTP status codes.
func mapErrorToStatus(e *models.CrawlError) int {
	switch e.Code {
	case models.ErrCodeSelectorTimeout:
		return http.StatusGatewayTimeout // 504
	case models.ErrCodeNavigation, models.ErrCodeInteraction, models.ErrCodeExtraction:
		return http.StatusBadGateway // 502
	case models.ErrCodeBackendUnavailable:
		return http.StatusServiceUnavailable // 503
	case models.ErrCodeNotFound:
		return http.StatusNotFound // 404
	case models.ErrCodeInvalidInput:
		return http.StatusBadRequest // 400
	case models.ErrCodeRateLimited:
		return http.StatusTooManyRequests // 429
	case models.ErrCodeUnauthorized:
		return http.StatusUnauthorized // 401
	default:
		return http.StatusInternalServerError // 500
	}
}

// backendParam reads and validates the ?backend= selector.
func backendParam(c *gin.Context) (string, bool) {
	backend := c.Query("backend")
	switch backend {
	case "", driver.BackendRod, driver.BackendMCP:
		return backend, true
	}
	c.JSON(http.StatusBadRequest, models.ErrorResponse{
		Error: &models.ErrorDetail{
			Code:    models.ErrCodeInvalidInput,
			Message: "backend must be \"rod\" or \"mcp\"",
		},
	})
	return "", false
}
