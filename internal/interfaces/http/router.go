package http

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/meterline/meterline/internal/interfaces/http/middleware"
)

// SetupRoutes configures all HTTP routes.
func (c *Container) SetupRoutes() {
	c.engine.Use(middleware.Logger(c.log))
	c.engine.Use(middleware.Recovery())
	c.engine.Use(middleware.CORS(c.cfg.Server.AllowedOrigins))

	c.engine.GET("/health", func(ctx *gin.Context) {
		ctx.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	v1 := c.engine.Group("/api/v1")

	// Metered endpoints require a resolved API key.
	metered := v1.Group("")
	metered.Use(middleware.APIKeyAuth(c.ucs.resolveAPIKey))
	{
		metered.POST("/usage/report", c.hdlrs.usage.ReportUsage)
		metered.GET("/usage/aggregate", c.hdlrs.usage.GetAggregatedUsage)
		metered.GET("/usage/daily", c.hdlrs.usage.GetDailyUsage)
		metered.GET("/entitlements/:customer_id/:feature_slug", c.hdlrs.usage.GetEntitlement)
	}

	// Provider callbacks authenticate via webhook signature, not API key.
	v1.POST("/webhooks/payment", c.hdlrs.webhook.HandlePaymentWebhook)

	// Management endpoints for the plan catalog, subscriptions and keys.
	admin := v1.Group("")
	{
		admin.POST("/plans", c.hdlrs.billing.CreatePlanVersion)
		admin.GET("/plans", c.hdlrs.billing.ListPlanVersions)
		admin.POST("/plans/:plan_sid/deactivate", c.hdlrs.billing.DeactivatePlanVersion)

		admin.POST("/subscriptions", c.hdlrs.billing.CreateSubscription)
		admin.GET("/subscriptions/:subscription_sid", c.hdlrs.billing.GetSubscription)
		admin.POST("/subscriptions/:subscription_sid/cancel", c.hdlrs.billing.CancelSubscription)

		admin.GET("/billing/stats", c.hdlrs.billing.GetBillingStats)

		admin.POST("/apikeys", c.hdlrs.apiKey.CreateAPIKey)
		admin.DELETE("/apikeys/:key_sid", c.hdlrs.apiKey.RevokeAPIKey)
	}
}

// GetEngine returns the gin engine.
func (c *Container) GetEngine() *gin.Engine {
	return c.engine
}
