package handler

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/timmy/pricebook/internal/domain"
	"github.com/timmy/pricebook/internal/logger"
)

// respondError maps engine errors onto HTTP statuses. Unclassified errors are
// logged and reported as 500 without their detail.
func respondError(c *gin.Context, err error, action string) {
	switch {
	case domain.IsValidation(err):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case domain.IsPermission(err):
		c.JSON(http.StatusForbidden, gin.H{"error": err.Error()})
	case errors.Is(err, domain.ErrUndoWindowClosed):
		c.JSON(http.StatusGone, gin.H{"error": err.Error()})
	case domain.IsNotFound(err):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case errors.Is(err, context.Canceled):
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Request cancelled"})
	default:
		logger.FromContext(c.Request.Context()).WithError(err).Error(action + " failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": action + " failed"})
	}
}

func badRequest(c *gin.Context, err error) {
	c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request: " + err.Error()})
}
