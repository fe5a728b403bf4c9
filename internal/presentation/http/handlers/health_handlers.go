package handlers

import (
	"net/http"
	"time"

	"github.com/PlanPulseHQ/planpulse-go/internal/application/container"
	"github.com/PlanPulseHQ/planpulse-go/internal/infrastructure/tenant"
	"github.com/gin-gonic/gin"
)

var startedAt = time.Now().UTC()

// HealthHandlers contains the health and status HTTP handlers.
type HealthHandlers struct {
	container *container.Container
}

// NewHealthHandlers creates health handlers.
func NewHealthHandlers(c *container.Container) *HealthHandlers {
	return &HealthHandlers{container: c}
}

// GetHealth handles GET /api/v1/health.
func (h *HealthHandlers) GetHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":        "ok",
		"uptime":        time.Since(startedAt).String(),
		"activeTenants": len(h.container.TenantManager.ActiveTenantIDs()),
		"droppedEvents": h.container.EventRecorder.Dropped(),
		"dbPools":       tenant.GetPoolStats(),
	})
}
