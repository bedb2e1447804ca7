package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/timmy/pricebook/internal/api/middleware"
	"github.com/timmy/pricebook/internal/domain"
	"github.com/timmy/pricebook/internal/service"
)

// ModeHandler handles pricing mode endpoints.
type ModeHandler struct {
	registry *service.ModeRegistry
}

// NewModeHandler creates a new mode handler.
// Parameters:
//   - registry: pricing mode registry.
// Returns:
//   - *ModeHandler: initialized handler.
func NewModeHandler(registry *service.ModeRegistry) *ModeHandler {
	return &ModeHandler{registry: registry}
}

// List handles GET /api/v1/modes.
// Parameters:
//   - c: Gin request context.
// Returns: none (writes JSON response).
func (h *ModeHandler) List(c *gin.Context) {
	modes, err := h.registry.List(c.Request.Context(), middleware.OrgID(c))
	if err != nil {
		respondError(c, err, "List modes")
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"modes": modes,
		"total": len(modes),
	})
}

// Presets handles GET /api/v1/modes/presets.
func (h *ModeHandler) Presets(c *gin.Context) {
	modes, err := h.registry.Presets(c.Request.Context())
	if err != nil {
		respondError(c, err, "List presets")
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"modes": modes,
		"total": len(modes),
	})
}

// Create handles POST /api/v1/modes.
// Parameters:
//   - c: Gin request context.
// Returns: none (writes JSON response).
func (h *ModeHandler) Create(c *gin.Context) {
	var req domain.CreateModeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	mode, err := h.registry.Create(c.Request.Context(), middleware.OrgID(c), middleware.Actor(c), &req)
	if err != nil {
		respondError(c, err, "Create mode")
		return
	}
	c.JSON(http.StatusCreated, mode)
}

// Delete handles DELETE /api/v1/modes/:id.
func (h *ModeHandler) Delete(c *gin.Context) {
	if err := h.registry.Delete(c.Request.Context(), middleware.OrgID(c), middleware.Actor(c), c.Param("id")); err != nil {
		respondError(c, err, "Delete mode")
		return
	}
	c.Status(http.StatusNoContent)
}

type estimateRequest struct {
	Won *bool `json:"won" binding:"required"`
}

// RecordEstimate handles POST /api/v1/modes/:id/estimates.
// The body reports whether an estimate priced with the mode was won.
func (h *ModeHandler) RecordEstimate(c *gin.Context) {
	var req estimateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	modeID := c.Param("id")
	ctx := c.Request.Context()
	if err := h.registry.RecordEstimate(ctx, middleware.OrgID(c), modeID, *req.Won); err != nil {
		respondError(c, err, "Record estimate")
		return
	}
	mode, err := h.registry.Get(ctx, middleware.OrgID(c), modeID)
	if err != nil {
		respondError(c, err, "Record estimate")
		return
	}
	c.JSON(http.StatusOK, domain.PricingModeView{PricingMode: *mode, WinRate: mode.WinRate()})
}
