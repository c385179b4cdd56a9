package middleware

import (
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/bru-digital/qteria/internal/shared/telemetry"
)

// Logging emits a structured log per request.
func Logging() gin.HandlerFunc {
	return func(c *gin.Context) {
		if strings.EqualFold(c.Request.Method, "OPTIONS") {
			c.Next()
			return
		}

		start := time.Now()
		c.Next()
		latency := time.Since(start)
		status := c.Writer.Status()
		reqID := RequestIDFromContext(c)

		tenantID, _ := c.Get(tenantIDKey)
		documentID, _ := c.Get("documentId")
		assessmentID, _ := c.Get("assessmentId")

		telemetry.Info("request.complete", map[string]any{
			"request_id":    reqID,
			"method":        c.Request.Method,
			"path":          c.Request.URL.Path,
			"status":        status,
			"duration_ms":   float64(latency.Microseconds()) / 1000.0,
			"tenant_id":     tenantID,
			"document_id":   documentID,
			"assessment_id": assessmentID,
			"client_ip":     c.ClientIP(),
			"user_agent":    c.Request.UserAgent(),
		})
	}
}
