package server

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/bru-digital/qteria/internal/assessments"
	"github.com/bru-digital/qteria/internal/criteria"
	"github.com/bru-digital/qteria/internal/documents"
	"github.com/bru-digital/qteria/internal/shared/config"
	"github.com/bru-digital/qteria/internal/shared/metrics"
	"github.com/bru-digital/qteria/internal/shared/server/middleware"
	"github.com/bru-digital/qteria/internal/shared/server/respond"
)

// RouterDeps carries every handler the router mounts.
type RouterDeps struct {
	Config             config.Config
	DocumentsHandler   *documents.Handler
	CriteriaHandler    *criteria.Handler
	AssessmentsHandler *assessments.Handler
}

// NewRouter constructs the Gin engine with middleware and routes registered.
func NewRouter(deps RouterDeps) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()

	r.Use(
		middleware.RequestID(),
		middleware.Logging(),
		middleware.Recovery(),
		middleware.CORS(deps.Config.CORSAllowOrigin),
	)

	// Unscoped endpoints for probes and scraping.
	r.GET("/health", func(c *gin.Context) {
		respond.JSON(c, http.StatusOK, gin.H{"ok": true})
	})
	r.GET("/metrics", metrics.Handler())

	api := r.Group("/api/v1")
	api.Use(
		middleware.Tenant(),
		middleware.RateLimit(middleware.RateLimitConfig{
			DefaultGroup: "DEFAULT",
			GroupFor:     rateLimitGroup,
			Rules: map[string]middleware.RateLimitRule{
				"DEFAULT": {Rate: 5, Burst: 20},
				"POLLING": {Rate: 20, Burst: 60},
			},
		}),
	)
	if deps.DocumentsHandler != nil {
		deps.DocumentsHandler.RegisterRoutes(api)
	}
	if deps.CriteriaHandler != nil {
		deps.CriteriaHandler.RegisterRoutes(api)
	}
	if deps.AssessmentsHandler != nil {
		deps.AssessmentsHandler.RegisterRoutes(api)
	}

	return r
}

// Status polling is read-heavy and cheap, so it gets a higher budget.
func rateLimitGroup(c *gin.Context) string {
	if c.Request.Method == http.MethodGet && c.FullPath() == "/api/v1/assessments/:id" {
		return "POLLING"
	}
	return "DEFAULT"
}

// Addr normalizes the listen address.
func Addr(port string) string {
	if port == "" {
		return ":8080"
	}
	if port[0] == ':' {
		return port
	}
	return ":" + port
}
