// Package handlers provides HTTP request handlers for the presentation layer.
package handlers

import (
	"net/http"
	"time"

	"github.com/PlanPulseHQ/planpulse-go/internal/application/services"
	"github.com/PlanPulseHQ/planpulse-go/internal/infrastructure/observability/logging"
	"github.com/PlanPulseHQ/planpulse-go/internal/presentation/http/middleware"
	"github.com/gin-gonic/gin"
)

// SessionHandlers contains the session lifecycle HTTP handlers.
type SessionHandlers struct {
	sessionService *services.SessionService
	logger         *logging.ChanneledLogger
}

// NewSessionHandlers creates session handlers with injected dependencies.
func NewSessionHandlers(sessionService *services.SessionService, logger *logging.ChanneledLogger) *SessionHandlers {
	return &SessionHandlers{sessionService: sessionService, logger: logger}
}

type startSessionRequest struct {
	UserID string `json:"userId" binding:"required"`
}

// PostSessionStart handles POST /api/v1/session/start.
func (h *SessionHandlers) PostSessionStart(c *gin.Context) {
	tenantCtx, exists := middleware.GetTenantContext(c)
	if !exists {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "tenant context not found"})
		return
	}

	var req startSessionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "userId is required"})
		return
	}

	result := h.sessionService.StartOrResumeSession(tenantCtx, req.UserID)
	c.JSON(http.StatusOK, result)
}

type endSessionRequest struct {
	SessionID string `json:"sessionId" binding:"required"`
	UserID    string `json:"userId"`
}

// PostSessionEnd handles POST /api/v1/session/end. Ending an unknown or
// already-ended session succeeds with ended=false.
func (h *SessionHandlers) PostSessionEnd(c *gin.Context) {
	tenantCtx, exists := middleware.GetTenantContext(c)
	if !exists {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "tenant context not found"})
		return
	}

	var req endSessionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "sessionId is required"})
		return
	}

	ended, err := h.sessionService.EndSession(tenantCtx, req.SessionID, req.UserID)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"ended": ended})
}

type heartbeatRequest struct {
	SessionID        string     `json:"sessionId"`
	Timestamp        *time.Time `json:"timestamp"`
	IsVisible        bool       `json:"isVisible"`
	CurrentProjectID string     `json:"currentProjectId"`
	CurrentPage      string     `json:"currentPage"`
}

// PostHeartbeat handles POST /api/v1/heartbeat. The session ID may travel
// in the body or the X-PlanPulse-Session-ID header.
func (h *SessionHandlers) PostHeartbeat(c *gin.Context) {
	tenantCtx, exists := middleware.GetTenantContext(c)
	if !exists {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "tenant context not found"})
		return
	}

	var req heartbeatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid heartbeat body"})
		return
	}
	if req.SessionID == "" {
		req.SessionID = c.GetHeader("X-PlanPulse-Session-ID")
	}
	if req.SessionID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "sessionId is required"})
		return
	}

	in := services.HeartbeatInput{
		SessionID:        req.SessionID,
		IsVisible:        req.IsVisible,
		CurrentProjectID: req.CurrentProjectID,
		CurrentPage:      req.CurrentPage,
	}
	if req.Timestamp != nil {
		in.Timestamp = *req.Timestamp
	}

	if err := h.sessionService.RecordHeartbeat(tenantCtx, in); err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true})
}

type switchProjectRequest struct {
	SessionID    string `json:"sessionId" binding:"required"`
	UserID       string `json:"userId"`
	NewProjectID string `json:"newProjectId" binding:"required"`
}

// PostProjectSwitch handles POST /api/v1/project/switch.
func (h *SessionHandlers) PostProjectSwitch(c *gin.Context) {
	tenantCtx, exists := middleware.GetTenantContext(c)
	if !exists {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "tenant context not found"})
		return
	}

	var req switchProjectRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "sessionId and newProjectId are required"})
		return
	}

	result := h.sessionService.SwitchProject(tenantCtx, req.UserID, req.SessionID, req.NewProjectID)
	if !result.Success {
		status := http.StatusBadRequest
		switch result.Error {
		case "session not found", "project not found":
			status = http.StatusNotFound
		}
		c.JSON(status, result)
		return
	}
	c.JSON(http.StatusOK, result)
}
