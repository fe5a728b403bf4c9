package tenant

import (
	"fmt"
	"sync"
	"time"

	"github.com/PlanPulseHQ/planpulse-go/internal/infrastructure/caching/stores"
	"github.com/PlanPulseHQ/planpulse-go/internal/infrastructure/observability/logging"
	persistenceAnalytics "github.com/PlanPulseHQ/planpulse-go/internal/infrastructure/persistence/analytics"
	"github.com/PlanPulseHQ/planpulse-go/internal/infrastructure/persistence/database"
	"github.com/PlanPulseHQ/planpulse-go/internal/infrastructure/persistence/directory"
	persistenceSessions "github.com/PlanPulseHQ/planpulse-go/internal/infrastructure/persistence/sessions"
	"github.com/gin-gonic/gin"
)

// Manager owns tenant detection and activation, and builds per-request
// tenant contexts.
type Manager struct {
	detector      *Detector
	logger        *logging.ChanneledLogger
	sessionsStore *stores.SessionsStore

	mu       sync.RWMutex
	contexts map[string]*Context // activated tenants
}

// NewManager creates a tenant manager.
func NewManager(logger *logging.ChanneledLogger, sessionsStore *stores.SessionsStore) (*Manager, error) {
	detector, err := NewDetector()
	if err != nil {
		return nil, err
	}
	return &Manager{
		detector:      detector,
		logger:        logger,
		sessionsStore: sessionsStore,
		contexts:      make(map[string]*Context),
	}, nil
}

// GetLogger exposes the logger for middleware that shares it.
func (m *Manager) GetLogger() *logging.ChanneledLogger {
	return m.logger
}

// GetDetector exposes the detector for domain validation middleware.
func (m *Manager) GetDetector() *Detector {
	return m.detector
}

// GetContext resolves the tenant for a request, activating it on first use.
func (m *Manager) GetContext(c *gin.Context) (*Context, error) {
	tenantID, err := m.detector.DetectTenant(c)
	if err != nil {
		return nil, err
	}
	return m.GetContextByID(tenantID)
}

// GetContextByID returns the activated context for a tenant, activating it
// on first use.
func (m *Manager) GetContextByID(tenantID string) (*Context, error) {
	m.mu.RLock()
	ctx, exists := m.contexts[tenantID]
	m.mu.RUnlock()
	if exists {
		return ctx, nil
	}
	return m.ActivateTenant(tenantID)
}

// ActivateTenant builds the tenant's database, schema and caches. Safe to
// call concurrently; the second caller reuses the first one's work.
func (m *Manager) ActivateTenant(tenantID string) (*Context, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if ctx, exists := m.contexts[tenantID]; exists {
		return ctx, nil
	}

	start := time.Now()
	m.logger.Tenant().Info("Activating tenant", "tenantId", tenantID)

	cfg, err := LoadTenantConfig(tenantID)
	if err != nil {
		return nil, fmt.Errorf("failed to load config for tenant %s: %w", tenantID, err)
	}

	db, err := NewDatabase(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to open database for tenant %s: %w", tenantID, err)
	}

	creator := database.NewTableCreator()
	if err := creator.CreateSchema(db.Conn); err != nil {
		return nil, fmt.Errorf("failed to create schema for tenant %s: %w", tenantID, err)
	}
	if err := creator.SeedInitialContent(db.Conn); err != nil {
		return nil, fmt.Errorf("failed to seed tenant %s: %w", tenantID, err)
	}

	wrapped := &database.DB{DB: db.Conn}
	repos := &Repositories{
		Sessions: persistenceSessions.NewSQLSessionRepository(wrapped, m.logger),
		Events:   persistenceAnalytics.NewSQLEventRepository(wrapped, m.logger),
		Policies: directory.NewSQLPolicyRepository(wrapped, m.logger),
		Users:    directory.NewSQLUserRepository(wrapped, m.logger),
		Projects: directory.NewSQLProjectDirectory(wrapped),
		Teams:    directory.NewSQLTeamDirectory(wrapped),
		Billing:  directory.NewSQLBillingDirectory(wrapped),
	}

	ctx := &Context{
		TenantID: tenantID,
		Config:   cfg,
		Database: db,
		Status:   "active",
		Repos:    repos,
	}
	m.contexts[tenantID] = ctx

	m.sessionsStore.InitializeTenant(tenantID)
	m.detector.UpdateTenantStatus(tenantID, "active", db.GetConnectionInfo())

	m.logger.Tenant().Info("Tenant activated",
		"tenantId", tenantID,
		"database", db.GetConnectionInfo(),
		"duration", time.Since(start))
	return ctx, nil
}

// PreActivateAllTenants activates every registered tenant at startup so the
// first request never pays activation cost.
func (m *Manager) PreActivateAllTenants() error {
	ids := m.detector.GetTenantIDs()
	if len(ids) == 0 {
		// Fresh install: make sure the default tenant exists.
		if err := RegisterTenant("default"); err != nil {
			return err
		}
		registry, err := LoadTenantRegistry()
		if err != nil {
			return err
		}
		m.detector.registry = registry
		ids = m.detector.GetTenantIDs()
	}

	for _, tenantID := range ids {
		if _, err := m.ActivateTenant(tenantID); err != nil {
			return fmt.Errorf("pre-activation failed for tenant %s: %w", tenantID, err)
		}
	}
	return nil
}

// ActiveTenantIDs lists tenants that have been activated.
func (m *Manager) ActiveTenantIDs() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	ids := make([]string, 0, len(m.contexts))
	for id := range m.contexts {
		ids = append(ids, id)
	}
	return ids
}
