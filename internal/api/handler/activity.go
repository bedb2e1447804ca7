package handler

import (
	"context"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/timmy/pricebook/internal/api/middleware"
	"github.com/timmy/pricebook/internal/domain"
)

const (
	defaultActivityLimit = 50
	maxActivityLimit     = 200
)

// ActivityReader lists audit-log entries.
type ActivityReader interface {
	ListByOrg(ctx context.Context, orgID string, limit int) ([]domain.ActivityEntry, error)
}

// ActivityHandler handles the activity log endpoint.
type ActivityHandler struct {
	reader ActivityReader
}

// NewActivityHandler creates a new activity handler.
func NewActivityHandler(reader ActivityReader) *ActivityHandler {
	return &ActivityHandler{reader: reader}
}

// List handles GET /api/v1/activity?limit=N.
// Parameters:
//   - c: Gin request context.
// Returns: none (writes JSON response).
func (h *ActivityHandler) List(c *gin.Context) {
	limit := defaultActivityLimit
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "limit must be a positive integer"})
			return
		}
		limit = min(n, maxActivityLimit)
	}
	entries, err := h.reader.ListByOrg(c.Request.Context(), middleware.OrgID(c), limit)
	if err != nil {
		respondError(c, err, "List activity")
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"entries": entries,
		"total":   len(entries),
	})
}
