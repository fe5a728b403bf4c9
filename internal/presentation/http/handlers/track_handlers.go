package handlers

import (
	"net/http"
	"time"

	"github.com/PlanPulseHQ/planpulse-go/internal/application/services"
	"github.com/PlanPulseHQ/planpulse-go/internal/domain/analytics"
	"github.com/PlanPulseHQ/planpulse-go/internal/infrastructure/observability/logging"
	"github.com/PlanPulseHQ/planpulse-go/internal/presentation/http/middleware"
	"github.com/gin-gonic/gin"
)

// TrackHandlers contains the analytics ingestion HTTP handler.
type TrackHandlers struct {
	recorder *services.EventRecorder
	logger   *logging.ChanneledLogger
}

// NewTrackHandlers creates track handlers with injected dependencies.
func NewTrackHandlers(recorder *services.EventRecorder, logger *logging.ChanneledLogger) *TrackHandlers {
	return &TrackHandlers{recorder: recorder, logger: logger}
}

type trackRequest struct {
	UserID    string         `json:"userId" binding:"required"`
	SessionID string         `json:"sessionId"`
	EventType string         `json:"eventType" binding:"required"`
	EventData map[string]any `json:"eventData"`
	Timestamp *time.Time     `json:"timestamp"`
}

// PostTrack handles POST /api/v1/track. Accepted events return 202
// immediately; persistence is asynchronous and best effort.
func (h *TrackHandlers) PostTrack(c *gin.Context) {
	tenantCtx, exists := middleware.GetTenantContext(c)
	if !exists {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "tenant context not found"})
		return
	}

	var req trackRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "userId and eventType are required"})
		return
	}

	kind := analytics.EventType(req.EventType)
	payload, err := analytics.PayloadFromRequest(kind, req.EventData)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	ev := &analytics.Event{
		UserID:    req.UserID,
		SessionID: req.SessionID,
		Type:      kind,
		Payload:   payload,
		UserAgent: c.Request.UserAgent(),
		IPAddress: c.ClientIP(),
	}
	if req.Timestamp != nil {
		ev.Timestamp = *req.Timestamp
	}

	h.recorder.Record(tenantCtx, ev)
	c.JSON(http.StatusAccepted, gin.H{"accepted": true})
}
