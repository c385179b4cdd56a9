package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/bru-digital/qteria/internal/shared/server/respond"
)

const tenantIDKey = "tenantId"

// Tenant requires an X-Tenant-Id header on every request and stores it in
// the gin context. Identity verification happens upstream at the gateway;
// this layer only scopes data access.
func Tenant() gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.Request.Method == http.MethodOptions {
			c.Next()
			return
		}
		tenantID := strings.TrimSpace(c.GetHeader("X-Tenant-Id"))
		if tenantID == "" {
			respond.Error(c, http.StatusBadRequest, "missing_tenant", "X-Tenant-Id header is required", nil)
			return
		}
		c.Set(tenantIDKey, tenantID)
		c.Next()
	}
}

// TenantIDFromContext fetches the tenant ID stored by the Tenant middleware.
func TenantIDFromContext(c *gin.Context) string {
	if c == nil {
		return ""
	}
	return c.GetString(tenantIDKey)
}
