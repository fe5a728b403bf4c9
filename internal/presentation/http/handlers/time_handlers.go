package handlers

import (
	"net/http"
	"strconv"
	"time"

	"github.com/PlanPulseHQ/planpulse-go/internal/application/services"
	"github.com/PlanPulseHQ/planpulse-go/internal/infrastructure/observability/logging"
	"github.com/PlanPulseHQ/planpulse-go/internal/presentation/http/middleware"
	"github.com/gin-gonic/gin"
)

// TimeHandlers contains the project-time aggregation HTTP handlers.
type TimeHandlers struct {
	timeLedger *services.TimeLedgerService
	logger     *logging.ChanneledLogger
}

// NewTimeHandlers creates time handlers with injected dependencies.
func NewTimeHandlers(timeLedger *services.TimeLedgerService, logger *logging.ChanneledLogger) *TimeHandlers {
	return &TimeHandlers{timeLedger: timeLedger, logger: logger}
}

// sinceParam parses the optional days query, defaulting to 30 days.
func sinceParam(c *gin.Context) time.Time {
	days := 30
	if raw := c.Query("days"); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil && parsed > 0 {
			days = parsed
		}
	}
	return time.Now().UTC().AddDate(0, 0, -days)
}

// GetProjectTimes handles GET /api/v1/projects/time for the authenticated
// user.
func (h *TimeHandlers) GetProjectTimes(c *gin.Context) {
	tenantCtx, exists := middleware.GetTenantContext(c)
	if !exists {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "tenant context not found"})
		return
	}
	profile, authed := middleware.GetProfile(c)
	if !authed {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "authentication required"})
		return
	}

	totals, err := h.timeLedger.GetProjectTimes(tenantCtx, profile.UserID, sinceParam(c))
	if err != nil {
		h.logger.Ledger().Error("Project times request failed",
			"error", err.Error(), "tenantId", tenantCtx.TenantID, "userId", profile.UserID)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to aggregate project times"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"projects": totals})
}

// GetProjectTime handles GET /api/v1/project/:id/time, returning the total
// plus a daily breakdown.
func (h *TimeHandlers) GetProjectTime(c *gin.Context) {
	tenantCtx, exists := middleware.GetTenantContext(c)
	if !exists {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "tenant context not found"})
		return
	}
	profile, authed := middleware.GetProfile(c)
	if !authed {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "authentication required"})
		return
	}
	projectID := c.Param("id")

	days := 30
	if raw := c.Query("days"); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil && parsed > 0 {
			days = parsed
		}
	}

	total, err := h.timeLedger.GetProjectTime(tenantCtx, profile.UserID, projectID, time.Now().UTC().AddDate(0, 0, -days))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to aggregate project time"})
		return
	}
	daily, err := h.timeLedger.GetProjectDailyBreakdown(tenantCtx, profile.UserID, projectID, days)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to build daily breakdown"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"project": total, "daily": daily})
}

// GetTeamTime handles GET /api/v1/project/:id/team-time.
func (h *TimeHandlers) GetTeamTime(c *gin.Context) {
	tenantCtx, exists := middleware.GetTenantContext(c)
	if !exists {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "tenant context not found"})
		return
	}
	projectID := c.Param("id")

	members, err := h.timeLedger.GetTeamTime(tenantCtx, projectID, sinceParam(c))
	if err != nil {
		h.logger.Ledger().Error("Team time request failed",
			"error", err.Error(), "tenantId", tenantCtx.TenantID, "projectId", projectID)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to aggregate team time"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"projectId": projectID, "members": members})
}
