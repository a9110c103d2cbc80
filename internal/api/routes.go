package api

import (
	"github.com/gin-gonic/gin"

	"github.com/irfndi/cryptopulse/internal/api/handlers"
	"github.com/irfndi/cryptopulse/internal/middleware"
)

// Dependencies holds everything the router needs.
type Dependencies struct {
	Health      *handlers.HealthHandler
	Market      *handlers.MarketHandler
	Ingestion   *handlers.IngestionHandler
	Auth        *middleware.AuthMiddleware
	RateLimiter *middleware.RateLimiter
}

// SetupRoutes registers the public health endpoint and the authenticated API.
func SetupRoutes(router *gin.Engine, deps Dependencies) {
	// Health check endpoint
	router.GET("/health", deps.Health.HealthCheck)

	api := router.Group("/api")
	if deps.RateLimiter != nil {
		api.Use(deps.RateLimiter.Middleware())
	}
	api.Use(deps.Auth.RequireAuth())
	{
		crypto := api.Group("/crypto")
		{
			crypto.GET("", deps.Market.ListAssets)
			crypto.GET("/historical/:coinId", deps.Market.GetHistory)
			crypto.GET("/chart/:coinId", deps.Market.GetChart)
		}

		ingestion := api.Group("/ingestion")
		{
			ingestion.GET("/status", deps.Ingestion.GetStatus)
			ingestion.POST("/run", deps.Auth.RequireAdmin(), deps.Ingestion.TriggerRun)
		}
	}
}
