// Package startup prepares the application server
package startup

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/PlanPulseHQ/planpulse-go/internal/application/container"
	"github.com/PlanPulseHQ/planpulse-go/internal/infrastructure/caching/stores"
	"github.com/PlanPulseHQ/planpulse-go/internal/infrastructure/observability/logging"
	"github.com/PlanPulseHQ/planpulse-go/internal/infrastructure/tenant"
	"github.com/PlanPulseHQ/planpulse-go/internal/presentation/http/server"
	"github.com/PlanPulseHQ/planpulse-go/pkg/config"
	"github.com/gin-gonic/gin"
)

// Initialize performs the complete multi-tenant startup sequence and blocks
// until shutdown.
func Initialize() error {
	setupLogging()

	start := time.Now().UTC()

	ctx, cancelBackgroundTasks := context.WithCancel(context.Background())
	defer cancelBackgroundTasks()

	log.Println("PlanPulse session engine starting...")

	// Step 1: Initialize channeled logging
	logger, err := logging.NewChanneledLogger(logging.DefaultLoggerConfig())
	if err != nil {
		return fmt.Errorf("failed to initialize logging: %w", err)
	}
	logger.Startup().Info("Channeled logging initialized")

	// Step 2: Initialize session cache store
	logger.Startup().Info("Initializing session cache store...")
	sessionsStore := stores.NewSessionsStore(logger)

	// Step 3: Initialize tenant system
	logger.Startup().Info("Initializing tenant system...")
	tenantManager, err := tenant.NewManager(logger, sessionsStore)
	if err != nil {
		return fmt.Errorf("failed to initialize tenant manager: %w", err)
	}

	// Step 4: Pre-activate all registered tenants
	logger.Startup().Info("Starting tenant pre-activation...")
	if err := tenantManager.PreActivateAllTenants(); err != nil {
		return fmt.Errorf("tenant pre-activation failed: %w", err)
	}
	activeTenants := tenantManager.ActiveTenantIDs()
	logger.Startup().Info("Tenant pre-activation complete", "activeTenants", len(activeTenants))

	// Step 5: Create dependency injection container
	logger.Startup().Info("Initializing dependency injection container...")
	appContainer := container.NewContainer(logger, tenantManager, sessionsStore)
	logger.Startup().Info("Dependency injection container created with singleton services")

	// Step 6: Start the event recorder and websocket hub
	logger.Startup().Info("Starting event recorder and websocket hub...")
	appContainer.EventRecorder.Start()
	go appContainer.Hub.Run(ctx)

	// Step 7: Start background workers
	logger.Startup().Info("Starting background workers...")
	appContainer.SessionService.StartSweepWorker(ctx, tenantManager)
	appContainer.RetentionService.StartPurgeWorker(ctx, tenantManager)

	// Step 8: Start HTTP server
	logger.Startup().Info("Starting HTTP server...")
	port := config.Port
	httpServer := server.New(port, appContainer)

	gracefulShutdown := make(chan os.Signal, 1)
	signal.Notify(gracefulShutdown, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		logger.System().Info("HTTP server listening", "address", ":"+port)
		if err := httpServer.Start(); err != nil {
			logger.System().Error("HTTP server failed", "error", err.Error())
		}
	}()

	logger.Startup().Info("Application startup complete",
		"totalDuration", time.Since(start),
		"activeTenants", len(activeTenants),
		"port", port)

	// Wait for shutdown signal
	<-gracefulShutdown
	logger.Shutdown().Info("Shutdown signal received, starting graceful shutdown...")

	shutdownStart := time.Now()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	logger.Shutdown().Info("Stopping HTTP server...")
	if err := httpServer.Stop(shutdownCtx); err != nil {
		logger.Shutdown().Error("Error during server shutdown", "error", err.Error())
	} else {
		logger.Shutdown().Info("HTTP server stopped successfully")
	}

	// Stop background work, then drain pending analytics writes.
	cancelBackgroundTasks()
	appContainer.EventRecorder.Stop()

	logger.Shutdown().Info("Application shutdown complete",
		"totalUptime", time.Since(start),
		"shutdownDuration", time.Since(shutdownStart))

	return nil
}

// setupLogging configures application logging
func setupLogging() {
	if os.Getenv("GIN_MODE") == "release" {
		gin.SetMode(gin.ReleaseMode)
	}
	log.SetFlags(log.LstdFlags | log.Lshortfile)
}
