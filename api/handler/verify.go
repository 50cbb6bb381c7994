package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/use-agent/agentroster/models"
	"github.com/use-agent/agentroster/pipeline"
)

// Verify returns a handler for POST /api/v1/verify: scrape fresh
// evidence and reconcile it against the caller's claimed fields.
func Verify(p *pipeline.Pipeline) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req models.VerifyRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, models.ErrorResponse{
				Error: &models.ErrorDetail{
					Code:    models.ErrCodeInvalidInput,
					Message: err.Error(),
				},
			})
			return
		}
		if req.VerificationInput.Empty() {
			c.JSON(http.StatusBadRequest, models.ErrorResponse{
				Error: &models.ErrorDetail{
					Code:    models.ErrCodeInvalidInput,
					Message: "provide at least one of name, phone, office, license",
				},
			})
			return
		}

		result, err := p.Verify(c.Request.Context(), req)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, models.VerifyResponse{Success: true, Result: result})
	}
}
