package middleware

import (
	"net/http"
	"strings"

	"github.com/PlanPulseHQ/planpulse-go/internal/application/services"
	"github.com/PlanPulseHQ/planpulse-go/internal/domain/user"
	"github.com/gin-gonic/gin"
)

// AuthMiddleware requires a valid bearer token and stores the decoded
// profile for handlers.
func AuthMiddleware(authService *services.AuthService) gin.HandlerFunc {
	return func(c *gin.Context) {
		tenantCtx, exists := GetTenantContext(c)
		if !exists {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "tenant context not found"})
			c.Abort()
			return
		}

		header := c.GetHeader("Authorization")
		token := strings.TrimPrefix(header, "Bearer ")
		if token == "" || token == header {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "bearer token required"})
			c.Abort()
			return
		}

		profile, err := authService.DecodeProfile(tenantCtx, token)
		if err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
			c.Abort()
			return
		}

		c.Set("profile", profile)
		c.Next()
	}
}

// GetProfile retrieves the authenticated profile from gin context.
func GetProfile(c *gin.Context) (*user.Profile, bool) {
	value, exists := c.Get("profile")
	if !exists {
		return nil, false
	}
	profile, ok := value.(*user.Profile)
	return profile, ok
}
