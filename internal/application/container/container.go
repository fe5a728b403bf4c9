// Package container provides dependency injection for all singleton services
package container

import (
	"github.com/PlanPulseHQ/planpulse-go/internal/application/services"
	"github.com/PlanPulseHQ/planpulse-go/internal/infrastructure/caching"
	"github.com/PlanPulseHQ/planpulse-go/internal/infrastructure/caching/stores"
	"github.com/PlanPulseHQ/planpulse-go/internal/infrastructure/messaging"
	"github.com/PlanPulseHQ/planpulse-go/internal/infrastructure/observability/logging"
	"github.com/PlanPulseHQ/planpulse-go/internal/infrastructure/tenant"
)

// Container holds all singleton services and infrastructure dependencies
type Container struct {
	// Application services (stateless singletons)
	SessionService   *services.SessionService
	TimeLedger       *services.TimeLedgerService
	RetentionService *services.RetentionService
	AuthService      *services.AuthService
	EventRecorder    *services.EventRecorder

	// Infrastructure
	Logger        *logging.ChanneledLogger
	TenantManager *tenant.Manager
	SessionsStore *stores.SessionsStore
	SessionLocks  *caching.LockTable
	Bus           *messaging.Bus
	Hub           *messaging.WebSocketHub
}

// NewContainer creates and wires all singleton services
func NewContainer(logger *logging.ChanneledLogger, tenantManager *tenant.Manager, sessionsStore *stores.SessionsStore) *Container {
	locks := caching.NewLockTable()
	bus := messaging.NewBus(logger)
	hub := messaging.NewWebSocketHub(bus, logger)
	recorder := services.NewEventRecorder(logger)

	return &Container{
		SessionService:   services.NewSessionService(sessionsStore, locks, recorder, bus, logger),
		TimeLedger:       services.NewTimeLedgerService(sessionsStore, logger),
		RetentionService: services.NewRetentionService(recorder, bus, logger),
		AuthService:      services.NewAuthService(logger),
		EventRecorder:    recorder,

		Logger:        logger,
		TenantManager: tenantManager,
		SessionsStore: sessionsStore,
		SessionLocks:  locks,
		Bus:           bus,
		Hub:           hub,
	}
}
