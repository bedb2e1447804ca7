package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/timmy/pricebook/internal/api/middleware"
	"github.com/timmy/pricebook/internal/domain"
	"github.com/timmy/pricebook/internal/logger"
	"github.com/timmy/pricebook/internal/service"
)

// PricingHandler handles preview and bulk pricing job endpoints.
type PricingHandler struct {
	svc *service.PricingService
}

// NewPricingHandler creates a new pricing handler.
// Parameters:
//   - svc: pricing service instance.
// Returns:
//   - *PricingHandler: initialized handler.
func NewPricingHandler(svc *service.PricingService) *PricingHandler {
	return &PricingHandler{svc: svc}
}

// PreviewRequest selects a mode and the items to price. No item IDs means
// every item of the organization.
type PreviewRequest struct {
	ModeID  string   `json:"mode_id" binding:"required"`
	ItemIDs []string `json:"item_ids"`
}

// PreviewResponse lists the changes a mode would make.
type PreviewResponse struct {
	Changes []service.PriceChange  `json:"changes"`
	Summary service.PreviewSummary `json:"summary"`
}

// Preview handles POST /api/v1/preview.
// Parameters:
//   - c: Gin request context.
// Returns: none (writes JSON response).
func (h *PricingHandler) Preview(c *gin.Context) {
	var req PreviewRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	changes, err := h.svc.Preview(c.Request.Context(), middleware.OrgID(c), req.ModeID, req.ItemIDs)
	if err != nil {
		respondError(c, err, "Preview")
		return
	}
	c.JSON(http.StatusOK, PreviewResponse{
		Changes: changes,
		Summary: service.Summarize(changes),
	})
}

// ApplyRequest confirms a preview. PreviousPrices is optional; when absent
// the current prices are captured for undo.
type ApplyRequest struct {
	ModeID         string                 `json:"mode_id" binding:"required"`
	ItemIDs        []string               `json:"item_ids"`
	PreviousPrices []domain.PreviousPrice `json:"previous_prices"`
}

// UndoRequest restores an explicit price snapshot.
type UndoRequest struct {
	PreviousPrices []domain.PreviousPrice `json:"previous_prices" binding:"required"`
}

// CreateJob handles POST /api/v1/jobs. The job runs in the background; the
// response carries its ID for polling.
// Parameters:
//   - c: Gin request context.
// Returns: none (writes JSON response).
func (h *PricingHandler) CreateJob(c *gin.Context) {
	var req ApplyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	ctx := logger.SetModeID(c.Request.Context(), req.ModeID)
	jobID, err := h.svc.CreatePricingJob(ctx, middleware.OrgID(c), middleware.Actor(c), req.ModeID, req.ItemIDs, req.PreviousPrices)
	if err != nil {
		respondError(c, err, "Create pricing job")
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"job_id": jobID})
}

// CreateUndoJob handles POST /api/v1/jobs/undo.
func (h *PricingHandler) CreateUndoJob(c *gin.Context) {
	var req UndoRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	jobID, err := h.svc.CreateUndoJob(c.Request.Context(), middleware.OrgID(c), middleware.Actor(c), req.PreviousPrices)
	if err != nil {
		respondError(c, err, "Create undo job")
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"job_id": jobID})
}

// Undo handles POST /api/v1/jobs/:id/undo. It answers 410 once the undo
// window of the apply job has expired or was used.
func (h *PricingHandler) Undo(c *gin.Context) {
	ctx := logger.SetJobID(c.Request.Context(), c.Param("id"))
	jobID, err := h.svc.Undo(ctx, middleware.OrgID(c), middleware.Actor(c), c.Param("id"))
	if err != nil {
		respondError(c, err, "Undo")
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"job_id": jobID})
}

// GetJob handles GET /api/v1/jobs/:id.
func (h *PricingHandler) GetJob(c *gin.Context) {
	status, err := h.svc.GetJobStatus(c.Request.Context(), middleware.OrgID(c), c.Param("id"))
	if err != nil {
		respondError(c, err, "Get job")
		return
	}
	c.JSON(http.StatusOK, status)
}

// ActiveJobs handles GET /api/v1/jobs/active.
func (h *PricingHandler) ActiveJobs(c *gin.Context) {
	jobs, err := h.svc.GetActiveJobs(c.Request.Context(), middleware.OrgID(c))
	if err != nil {
		respondError(c, err, "List active jobs")
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"jobs":  jobs,
		"total": len(jobs),
	})
}

// CancelJob handles POST /api/v1/jobs/:id/cancel.
func (h *PricingHandler) CancelJob(c *gin.Context) {
	if err := h.svc.CancelJob(c.Request.Context(), middleware.OrgID(c), c.Param("id")); err != nil {
		respondError(c, err, "Cancel job")
		return
	}
	c.Status(http.StatusNoContent)
}

// Report handles GET /api/v1/jobs/:id/report.
func (h *PricingHandler) Report(c *gin.Context) {
	report, err := h.svc.Report(c.Request.Context(), middleware.OrgID(c), c.Param("id"))
	if err != nil {
		respondError(c, err, "Load report")
		return
	}
	c.JSON(http.StatusOK, report)
}
