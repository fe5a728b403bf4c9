package tenant

import (
	"github.com/PlanPulseHQ/planpulse-go/internal/domain/repositories"
)

// Repositories bundles the per-tenant repository and collaborator
// implementations. The manager wires SQL implementations; tests may build
// a Context with fakes.
type Repositories struct {
	Sessions repositories.SessionRepository
	Events   repositories.EventRepository
	Policies repositories.PolicyRepository
	Users    repositories.UserRepository
	Projects repositories.ProjectDirectory
	Teams    repositories.TeamDirectory
	Billing  repositories.BillingDirectory
}

// Context holds tenant-specific request context
type Context struct {
	TenantID string
	Config   *Config
	Database *Database
	Status   string
	Repos    *Repositories
}

// Close cleans up the tenant context
func (ctx *Context) Close() error {
	if ctx.Database != nil {
		return ctx.Database.Close()
	}
	return nil
}

// GetTenantID returns the tenant ID for this context
func (ctx *Context) GetTenantID() string {
	return ctx.TenantID
}

// IsActive returns true if the tenant is active
func (ctx *Context) IsActive() bool {
	return ctx.Status == "active"
}

// GetDatabaseInfo returns database connection information for logging
func (ctx *Context) GetDatabaseInfo() string {
	if ctx.Database != nil {
		return ctx.Database.GetConnectionInfo()
	}
	return "no database connection"
}
