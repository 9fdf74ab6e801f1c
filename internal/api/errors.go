package api

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/roach88/codex/internal/ir"
)

// statusOf maps boundary error codes to HTTP statuses.
func statusOf(err error) int {
	switch ir.CodeOf(err) {
	case ir.CodeNotFound:
		return http.StatusNotFound
	case ir.CodeInvalidArgument:
		return http.StatusBadRequest
	case ir.CodeInvalidStateTransition:
		return http.StatusConflict
	case ir.CodeSafetyViolation:
		return http.StatusUnprocessableEntity
	}
	return http.StatusInternalServerError
}

// respondError writes err as {"error": {...}}. Errors outside the boundary
// type are reported without their internal detail.
func respondError(c *gin.Context, err error) {
	var ierr *ir.Error
	if errors.As(err, &ierr) {
		c.JSON(statusOf(err), gin.H{"error": ierr})
		return
	}
	_ = c.Error(err)
	c.JSON(http.StatusInternalServerError, gin.H{"error": gin.H{
		"code":    "INTERNAL",
		"message": "internal error",
	}})
}
