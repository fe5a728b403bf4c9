package handlers

import (
	"net/http"

	"github.com/PlanPulseHQ/planpulse-go/internal/application/services"
	"github.com/PlanPulseHQ/planpulse-go/internal/domain/billing"
	"github.com/PlanPulseHQ/planpulse-go/internal/infrastructure/observability/logging"
	"github.com/PlanPulseHQ/planpulse-go/internal/presentation/http/middleware"
	"github.com/gin-gonic/gin"
)

// PlanHandlers contains the retention policy HTTP handlers driven by plan
// changes from the billing collaborator.
type PlanHandlers struct {
	retention *services.RetentionService
	logger    *logging.ChanneledLogger
}

// NewPlanHandlers creates plan handlers with injected dependencies.
func NewPlanHandlers(retention *services.RetentionService, logger *logging.ChanneledLogger) *PlanHandlers {
	return &PlanHandlers{retention: retention, logger: logger}
}

type planUpdateRequest struct {
	// Either a single change or a batch; a batch takes precedence.
	billing.PlanChange
	Changes []billing.PlanChange `json:"changes"`
}

// PostPlanUpdate handles POST /api/v1/plan/update. A batch body gets
// per-item isolation; the response reports each failure individually.
func (h *PlanHandlers) PostPlanUpdate(c *gin.Context) {
	tenantCtx, exists := middleware.GetTenantContext(c)
	if !exists {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "tenant context not found"})
		return
	}

	var req planUpdateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid plan update body"})
		return
	}

	if len(req.Changes) > 0 {
		result := h.retention.ProcessPlanChanges(tenantCtx, req.Changes)
		c.JSON(http.StatusOK, result)
		return
	}

	if err := h.retention.ApplyPlanChange(tenantCtx, req.PlanChange); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true})
}

type planCancelRequest struct {
	UserID string `json:"userId" binding:"required"`
}

// PostPlanCancel handles POST /api/v1/plan/cancel.
func (h *PlanHandlers) PostPlanCancel(c *gin.Context) {
	tenantCtx, exists := middleware.GetTenantContext(c)
	if !exists {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "tenant context not found"})
		return
	}

	var req planCancelRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "userId is required"})
		return
	}

	if err := h.retention.CancelSubscription(tenantCtx, req.UserID); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true})
}

// GetPlanSummary handles GET /api/v1/plan/summary for the authenticated
// user, or an explicit userId query for service callers.
func (h *PlanHandlers) GetPlanSummary(c *gin.Context) {
	tenantCtx, exists := middleware.GetTenantContext(c)
	if !exists {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "tenant context not found"})
		return
	}

	userID := c.Query("userId")
	if userID == "" {
		if profile, authed := middleware.GetProfile(c); authed {
			userID = profile.UserID
		}
	}
	if userID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "userId is required"})
		return
	}

	summary, err := h.retention.GetPlanSummary(tenantCtx, userID)
	if err != nil {
		h.logger.Retention().Error("Plan summary request failed",
			"error", err.Error(), "tenantId", tenantCtx.TenantID, "userId", userID)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load plan summary"})
		return
	}
	c.JSON(http.StatusOK, summary)
}
