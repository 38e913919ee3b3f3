package main

import (
	"context"
	"net/http"

	"comms-platform/internal/httpapi"
	"comms-platform/internal/rbac"
	"comms-platform/internal/webhooks"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type routeDeps struct {
	authMW    gin.HandlerFunc
	handlers  httpapi.Handlers
	stripe    *webhooks.StripeHandler
	readiness func(ctx context.Context) error
}

// registerRoutes wires HTTP routes to handlers.
// Keep this file free of business logic. Handlers should delegate to internal modules.
func registerRoutes(r *gin.Engine, d routeDeps) {
	h := d.handlers

	// public
	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/readyz", func(c *gin.Context) {
		if d.readiness != nil {
			if err := d.readiness(c.Request.Context()); err != nil {
				c.AbortWithStatusJSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable"})
				return
			}
		}
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	v1 := r.Group("/v1")

	// Provider webhooks (public; authenticated by signature).
	v1.POST("/webhooks/stripe", d.stripe.Handle)

	// AUTH routes (token issuance, dev only).
	v1.POST("/auth/login", h.Login)

	protected := v1.Group("")
	protected.Use(d.authMW)
	{
		blasts := protected.Group("/blasts")
		blasts.POST("/quote", h.Quote)
		blasts.POST("/send", httpapi.RequireIntlNotBlocked(h.Ledger), h.Send)

		protected.GET("/billing/intl", h.GetIntlBilling)
		protected.GET("/billing/intl/charges", h.GetIntlCharges)

		// ADMIN routes
		// support can inspect and unblock; cycle resets are admin-only.
		admin := protected.Group("/admin")
		admin.Use(rbac.RequireAnyRole(rbac.RoleSupport, rbac.RoleAdmin))
		{
			admin.GET("/users/:user_id/intl", h.AdminGetIntlBilling)
			admin.POST("/users/:user_id/unblock", h.AdminUnblock)
			admin.POST("/users/:user_id/reset-cycle", rbac.RequireAnyRole(rbac.RoleAdmin), h.AdminResetCycle)
		}
	}
}
