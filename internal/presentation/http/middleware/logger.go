package middleware

import (
	"time"

	"github.com/PlanPulseHQ/planpulse-go/internal/infrastructure/observability/logging"
	"github.com/gin-gonic/gin"
)

// quietPaths are high-frequency endpoints that would drown the request log.
var quietPaths = map[string]struct{}{
	"/api/v1/heartbeat": {},
	"/api/v1/events/ws": {},
	"/api/v1/health":    {},
}

// RequestLogger logs completed requests on the system channel, skipping the
// heartbeat and streaming paths.
func RequestLogger(logger *logging.ChanneledLogger) gin.HandlerFunc {
	return func(c *gin.Context) {
		path := c.Request.URL.Path
		if _, quiet := quietPaths[path]; quiet {
			c.Next()
			return
		}

		start := time.Now()
		c.Next()

		logger.System().Info("Request completed",
			"method", c.Request.Method,
			"path", path,
			"status", c.Writer.Status(),
			"duration", time.Since(start).String(),
			"clientIp", c.ClientIP())
	}
}
