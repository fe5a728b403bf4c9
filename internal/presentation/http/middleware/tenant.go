// Package middleware provides HTTP middleware for the presentation layer.
package middleware

import (
	"net/http"
	"time"

	"github.com/PlanPulseHQ/planpulse-go/internal/infrastructure/tenant"
	"github.com/gin-gonic/gin"
)

// TenantMiddleware resolves the tenant for the request and stores the full
// tenant context for handlers. Unknown tenants end the request here.
func TenantMiddleware(tenantManager *tenant.Manager) gin.HandlerFunc {
	logger := tenantManager.GetLogger()

	return func(c *gin.Context) {
		start := time.Now()

		tenantCtx, err := tenantManager.GetContext(c)
		if err != nil {
			logger.Tenant().Warn("Tenant resolution failed",
				"error", err.Error(),
				"path", c.Request.URL.Path)
			c.JSON(http.StatusNotFound, gin.H{"error": "tenant not found"})
			c.Abort()
			return
		}

		logger.Tenant().Debug("Tenant context resolved",
			"tenantId", tenantCtx.TenantID,
			"duration", time.Since(start),
			"database", tenantCtx.GetDatabaseInfo())

		c.Set("tenant", tenantCtx)
		c.Next()
	}
}

// GetTenantContext retrieves the tenant context from gin context.
func GetTenantContext(c *gin.Context) (*tenant.Context, bool) {
	tenantCtx, exists := c.Get("tenant")
	if !exists {
		return nil, false
	}

	ctx, ok := tenantCtx.(*tenant.Context)
	return ctx, ok
}
