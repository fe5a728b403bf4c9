package handlers

import (
	"net/http"

	"github.com/PlanPulseHQ/planpulse-go/internal/infrastructure/messaging"
	"github.com/PlanPulseHQ/planpulse-go/internal/infrastructure/observability/logging"
	"github.com/PlanPulseHQ/planpulse-go/internal/presentation/http/middleware"
	"github.com/gin-gonic/gin"
)

// EventHandlers contains the live event streaming handler.
type EventHandlers struct {
	hub    *messaging.WebSocketHub
	logger *logging.ChanneledLogger
}

// NewEventHandlers creates event handlers with injected dependencies.
func NewEventHandlers(hub *messaging.WebSocketHub, logger *logging.ChanneledLogger) *EventHandlers {
	return &EventHandlers{hub: hub, logger: logger}
}

// GetEventStream handles GET /api/v1/events/ws, upgrading to a websocket
// that streams the tenant's domain events.
func (h *EventHandlers) GetEventStream(c *gin.Context) {
	tenantCtx, exists := middleware.GetTenantContext(c)
	if !exists {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "tenant context not found"})
		return
	}

	if err := h.hub.HandleConnection(c.Writer, c.Request, tenantCtx.TenantID); err != nil {
		h.logger.Events().Error("WebSocket upgrade failed",
			"error", err.Error(), "tenantId", tenantCtx.TenantID)
	}
}
