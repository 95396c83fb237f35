// Package server configures the HTTP server and routes.
package server

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/fleveque/itemgen-service/internal/config"
	"github.com/fleveque/itemgen-service/internal/handler"
	"github.com/fleveque/itemgen-service/internal/middleware"
	"github.com/fleveque/itemgen-service/internal/storage"
)

// Deps holds everything the routes need. main wires it; tests can pass fakes
// for the service interfaces.
type Deps struct {
	Generator   handler.ItemGenerator
	Relay       handler.ImageRelay
	RunRepo     storage.RunRepository
	LLMCallRepo storage.LLMCallRepository
	Providers   []string
}

// RegisterRoutes sets up all HTTP routes on the Gin engine.
// Dependencies are passed explicitly; each handler gets exactly what it needs.
func RegisterRoutes(r *gin.Engine, cfg *config.Config, deps Deps, logger *zap.Logger) {
	healthHandler := handler.NewHealthHandler()
	generateHandler := handler.NewGenerateHandler(deps.Generator, logger)
	relayHandler := handler.NewRelayHandler(deps.Relay, cfg.Relay.FallbackMode, cfg.Relay.FallbackURL, logger)
	adminHandler := handler.NewAdminHandler(deps.RunRepo, deps.LLMCallRepo, deps.Providers, logger)

	// Unmatched methods on known paths get a JSON 405, not gin's text body.
	r.HandleMethodNotAllowed = true
	r.NoMethod(func(c *gin.Context) {
		c.JSON(http.StatusMethodNotAllowed, gin.H{"error": "method not allowed"})
	})
	r.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
	})

	// Public endpoints (no auth)
	r.GET("/healthz", healthHandler.Healthz)

	api := r.Group("/api/v1")

	// The relay is embedded by <img> tags on any origin, so it is public and
	// always answers with a wildcard CORS origin.
	relay := api.Group("/relay")
	relay.Use(middleware.OpenCORS())
	{
		relay.GET("", relayHandler.Relay)
		relay.OPTIONS("", func(c *gin.Context) {})
	}

	// Authenticated API endpoints. OPTIONS is registered so preflight reaches
	// the CORS middleware instead of the 405 handler.
	authed := api.Group("")
	authed.Use(middleware.CORS(cfg.CORS.AllowedOrigins))
	authed.OPTIONS("/generate", func(c *gin.Context) {})
	authed.Use(middleware.APIKeyAuth(cfg.Auth.APIKeys))
	authed.Use(middleware.RateLimit(cfg.RateLimit.RequestsPerSecond, cfg.RateLimit.Burst))
	{
		authed.POST("/generate", generateHandler.Generate)
	}

	// Admin endpoints (separate auth with admin keys)
	admin := api.Group("/admin")
	admin.Use(middleware.AdminKeyAuth(cfg.Auth.AdminKeys))
	{
		admin.GET("/stats", adminHandler.Stats)
		admin.GET("/runs", adminHandler.Runs)
	}
}
