package handler

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/oyvindhs/oppgjor-backend/internal/middleware"
)

// RegisterRoutes sets up all API routes
func RegisterRoutes(e *echo.Echo, webhookLimiter *middleware.RateLimiter, settlementHandler *SettlementHandler, pricingHandler *PricingHandler, invoiceHandler *InvoiceHandler, webhookHandler *WebhookHandler, wsHandler *WebSocketHandler) {
	e.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
	})

	e.GET("/ws", wsHandler.HandleWS)

	// API version 1
	api := e.Group("/api/v1")

	// Settlement routes
	settlements := api.Group("/settlements")
	settlements.POST("/calculate", settlementHandler.Calculate)
	settlements.POST("", settlementHandler.Create)
	settlements.GET("/:id", settlementHandler.Get)
	settlements.POST("/:id/pay", settlementHandler.Pay)
	settlements.POST("/:id/release", settlementHandler.Release)
	settlements.POST("/:id/refund", settlementHandler.Refund)

	// Pricing routes
	pricing := api.Group("/pricing")
	pricing.POST("/calculate", pricingHandler.Calculate)

	// Invoice routes
	invoices := api.Group("/invoices")
	invoices.POST("/generate", invoiceHandler.Generate)
	invoices.GET("/:id", invoiceHandler.Get)
	invoices.POST("/:id/pay", invoiceHandler.Pay)

	// Webhook ingress (rate limited per source)
	webhooks := api.Group("/webhooks")
	webhooks.Use(middleware.RateLimitMiddleware(webhookLimiter))
	webhooks.POST("/:rail", webhookHandler.Receive)
}
