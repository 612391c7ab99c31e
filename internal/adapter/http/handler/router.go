package handler

import (
	"kiosk-ledger/internal/adapter/http/middleware"
	"kiosk-ledger/internal/core/ports"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
)

// RouterDeps holds all dependencies needed to set up routes.
type RouterDeps struct {
	LedgerSvc      ports.LedgerService
	ReportingSvc   ports.ReportingService
	UnknownLog     ports.UnknownIdentifierLog
	Throttle       ports.Throttle // nil = throttling disabled
	ThrottleRule   middleware.ThrottleRule
	HealthCheckers []ports.HealthChecker
	Logger         zerolog.Logger
}

// SetupRouter initialises the Gin engine with all routes and middleware.
func SetupRouter(deps RouterDeps) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()

	// Global middleware
	r.Use(middleware.Recovery(deps.Logger))
	r.Use(middleware.RequestID())
	r.Use(middleware.RequestLogger(deps.Logger))
	r.Use(middleware.MaxBodySize(64 << 10))

	health := HealthCheck(deps.HealthCheckers...)
	r.GET("/health", health)

	// Swagger documentation
	swagger := r.Group("/swagger")
	{
		swagger.GET("", SwaggerUI)
		swagger.GET("/spec", SwaggerSpec)
	}

	// Helper: return throttle middleware if a backend is available, else noop.
	throttle := func(group string) gin.HandlerFunc {
		if deps.Throttle == nil || deps.ThrottleRule.Limit <= 0 {
			return func(c *gin.Context) { c.Next() }
		}
		return middleware.Throttle(deps.Throttle, group, deps.ThrottleRule, deps.Logger)
	}

	v1 := r.Group("/api/v1")
	v1.GET("/health", health)

	ledgerHandler := NewLedgerHandler(deps.LedgerSvc)
	writes := v1.Group("", throttle("ledger"))
	{
		writes.POST("/tokens", ledgerHandler.IssueToken)
		writes.POST("/purchases", ledgerHandler.Purchase)
		writes.POST("/purchases/:id/annul", ledgerHandler.AnnulPurchase)
		writes.POST("/charges", ledgerHandler.Charge)
		writes.POST("/charges/:id/annul", ledgerHandler.AnnulCharge)
		writes.POST("/transfers", ledgerHandler.Transfer)
		writes.POST("/transfers/:id/annul", ledgerHandler.AnnulTransfer)
	}

	accountHandler := NewAccountHandler(deps.LedgerSvc, deps.ReportingSvc)
	accounts := v1.Group("/accounts", throttle("accounts"))
	{
		accounts.GET("/resolve", accountHandler.Resolve)
		accounts.GET("/:id", accountHandler.GetBalance)
		accounts.GET("/:id/history", accountHandler.History)
	}

	if deps.UnknownLog != nil {
		v1.GET("/diagnostics/unknown-identifiers", UnknownIdentifiers(deps.UnknownLog))
	}

	return r
}
