package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// NewRouter builds the REST API. authenticate resolves the caller from the
// Authorization header; routes that need a principal reject anonymous
// callers inside the services.
func NewRouter(h *Handler, authenticate gin.HandlerFunc) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery(), requestLogger(h.logger))

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	api := router.Group("/api")
	// Provider callbacks carry no token.
	api.POST("/billing/webhooks/:provider/", h.webhook)
	api.GET("/billing/plans/", h.listPlans)

	api.Use(authenticate)

	account := api.Group("/account")
	account.POST("/register-company/", h.registerCompany)
	account.POST("/register/", h.register)
	account.POST("/login/", h.login)
	account.GET("/me/", h.me)
	account.GET("/users/", h.listUsers)
	account.PATCH("/users/:id/", h.updateUser)
	account.PATCH("/company/", h.updateCompany)

	fleet := api.Group("/fleet")
	fleet.GET("/vehicles/", h.listVehicles)
	fleet.POST("/vehicles/", h.createVehicle)
	fleet.GET("/vehicles/:id/", h.getVehicle)
	fleet.PATCH("/vehicles/:id/", h.updateVehicle)
	fleet.DELETE("/vehicles/:id/", h.deleteVehicle)
	fleet.GET("/shifts/", h.listShifts)
	fleet.POST("/shifts/", h.startShift)
	fleet.GET("/shifts/:id/", h.getShift)
	fleet.PATCH("/shifts/:id/", h.updateShift)
	fleet.POST("/shifts/:id/end/", h.endShift)

	api.GET("/inspections/", h.listInspections)
	api.POST("/inspections/", h.createInspection)
	api.GET("/inspections/:id/", h.getInspection)
	api.PATCH("/inspections/:id/", h.updateInspection)

	api.GET("/issues/", h.listIssues)
	api.POST("/issues/", h.reportIssue)
	api.GET("/issues/:id/", h.getIssue)
	api.PATCH("/issues/:id/", h.updateIssue)
	api.GET("/issues/:id/history/", h.issueHistory)

	api.GET("/tickets/", h.listTickets)
	api.POST("/tickets/", h.createTicket)
	api.GET("/tickets/:id/", h.getTicket)
	api.PATCH("/tickets/:id/", h.updateTicket)

	api.GET("/telemetry/", h.listTelemetry)
	api.POST("/telemetry/", h.recordTelemetry)

	billing := api.Group("/billing")
	billing.GET("/subscription/", h.subscription)
	billing.POST("/checkout/", h.checkout)
	billing.POST("/portal/", h.portal)
	billing.GET("/payments/", h.payments)

	platform := api.Group("/platform")
	platform.GET("/companies/", h.listCompanies)
	platform.POST("/companies/:id/suspend/", h.suspendCompany)
	platform.POST("/companies/:id/activate/", h.activateCompany)
	platform.GET("/webhooks/", h.listWebhookEvents)
	platform.POST("/webhooks/:id/replay/", h.replayWebhook)

	return router
}

func requestLogger(logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		status := c.Writer.Status()
		fields := []zap.Field{
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Int("status", status),
			zap.Duration("latency", time.Since(start)),
		}
		if status >= http.StatusInternalServerError {
			logger.Error("request", fields...)
			return
		}
		logger.Debug("request", fields...)
	}
}
