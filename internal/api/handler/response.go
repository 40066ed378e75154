package handler

import (
	"github.com/gin-gonic/gin"

	"github.com/user/llm-gateway-proxy/internal/backenderr"
)

// errorResponse sends the plain-string {"detail": message} format spec.md
// §7 reserves for a synthesized 502 (no upstream body to pass through).
func errorResponse(c *gin.Context, status int, message string) {
	c.JSON(status, gin.H{"detail": message})
}

// validationErrorResponse renders the {"detail": {"error": {message, type,
// code}}} format spec.md §7 requires for client-input (4xx) errors.
func validationErrorResponse(c *gin.Context, status int, errType string, ve *backenderr.ValidationError) {
	c.JSON(status, gin.H{
		"detail": gin.H{
			"error": gin.H{
				"message": ve.Message,
				"type":    errType,
				"code":    ve.Code,
			},
		},
	})
}
