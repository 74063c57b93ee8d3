package main

import (
	"database/sql"
	"net/http"
	"time"

	"callhub/internal/gateway"
	"callhub/internal/httpapi"
	"callhub/internal/rbac"
	"callhub/pkg/utils"

	"github.com/gin-gonic/gin"
)

type routeDeps struct {
	handlers httpapi.Handlers
	authMW   gin.HandlerFunc
	gateway  *gateway.Gateway
	db       *sql.DB
	metrics  http.Handler

	// devTokens mounts the token endpoint; local and dev only.
	devTokens bool
}

// registerRoutes wires HTTP routes to handlers.
// Keep this file free of business logic. Handlers should delegate to internal modules.
func registerRoutes(r *gin.Engine, d routeDeps) {
	// public
	r.GET("/healthz", func(c *gin.Context) {
		if err := utils.HealthCheck(c.Request.Context(), d.db, 2*time.Second); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "degraded", "db": "unreachable"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(d.metrics))

	// The handshake authenticates itself; browsers cannot send headers here.
	r.GET("/ws", d.gateway.ServeWS)

	h := d.handlers

	if d.devTokens {
		r.POST("/v1/auth/token", h.IssueToken)
	}

	// protected API group
	v1 := r.Group("/v1")
	v1.Use(d.authMW)
	{
		v1.GET("/me", h.Me)

		callsGroup := v1.Group("/calls")
		callsGroup.Use(rbac.RequireAnyRole(rbac.RoleUser))
		{
			callsGroup.GET("/history", h.CallHistory)
			callsGroup.GET("/missed-count", h.MissedCount)
			callsGroup.GET("/summary", h.CallSummary)
		}

		presenceGroup := v1.Group("/presence")
		{
			presenceGroup.GET("/online", h.OnlineUsers)
			presenceGroup.GET("/:user_id", h.UserPresence)
		}

		// ADMIN routes
		admin := v1.Group("/admin")
		admin.Use(rbac.RequireAnyRole(rbac.RoleAdmin))
		{
			admin.GET("/calls/active", h.ActiveCalls)
		}
	}
}
