// Package routes provides HTTP route configuration for the presentation layer.
package routes

import (
	"github.com/PlanPulseHQ/planpulse-go/internal/application/container"
	"github.com/PlanPulseHQ/planpulse-go/internal/presentation/http/handlers"
	"github.com/PlanPulseHQ/planpulse-go/internal/presentation/http/middleware"
	"github.com/gin-gonic/gin"
)

// SetupRoutes configures all HTTP routes and middleware with dependency injection.
func SetupRoutes(container *container.Container) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(middleware.RequestLogger(container.Logger))
	r.Use(middleware.CORSMiddleware())

	// Initialize handlers
	sessionHandlers := handlers.NewSessionHandlers(container.SessionService, container.Logger)
	timeHandlers := handlers.NewTimeHandlers(container.TimeLedger, container.Logger)
	planHandlers := handlers.NewPlanHandlers(container.RetentionService, container.Logger)
	trackHandlers := handlers.NewTrackHandlers(container.EventRecorder, container.Logger)
	authHandlers := handlers.NewAuthHandlers(container.AuthService, container.Logger)
	healthHandlers := handlers.NewHealthHandlers(container)
	eventHandlers := handlers.NewEventHandlers(container.Hub, container.Logger)

	// API routes with tenant middleware
	api := r.Group("/api/v1")
	api.Use(middleware.TenantMiddleware(container.TenantManager))
	{
		api.GET("/health", healthHandlers.GetHealth)

		// Authentication
		auth := api.Group("/auth")
		{
			auth.POST("/login", authHandlers.PostLogin)
			auth.GET("/profile/decode", middleware.AuthMiddleware(container.AuthService), authHandlers.GetDecodeProfile)
		}

		// Session lifecycle. The tracking client owns these; they carry the
		// session ID rather than a bearer token so tracking survives logout.
		api.POST("/session/start", sessionHandlers.PostSessionStart)
		api.POST("/session/end", sessionHandlers.PostSessionEnd)
		api.POST("/heartbeat", sessionHandlers.PostHeartbeat)
		api.POST("/project/switch", sessionHandlers.PostProjectSwitch)

		// Analytics ingestion
		api.POST("/track", trackHandlers.PostTrack)

		// Plan changes arrive service-to-service from the billing
		// collaborator; summary is also readable by the authenticated user.
		api.POST("/plan/update", planHandlers.PostPlanUpdate)
		api.POST("/plan/cancel", planHandlers.PostPlanCancel)
		api.GET("/plan/summary", planHandlers.GetPlanSummary)

		// Live domain event stream
		api.GET("/events/ws", eventHandlers.GetEventStream)

		// Aggregation endpoints require an authenticated profile
		authed := api.Group("")
		authed.Use(middleware.AuthMiddleware(container.AuthService))
		{
			authed.GET("/projects/time", timeHandlers.GetProjectTimes)
			authed.GET("/project/:id/time", timeHandlers.GetProjectTime)
			authed.GET("/project/:id/team-time", timeHandlers.GetTeamTime)
		}
	}

	return r
}
