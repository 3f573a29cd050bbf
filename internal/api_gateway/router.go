package api_gateway

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/garage-erp/check-lifecycle/internal/api_gateway/handler"
	"github.com/garage-erp/check-lifecycle/internal/api_gateway/middleware"
	"github.com/garage-erp/check-lifecycle/internal/config"
	"github.com/garage-erp/check-lifecycle/internal/platform/metrics"
)

// healthTimeout bounds each dependency ping of the health endpoint
const healthTimeout = 2 * time.Second

// HealthCheck pings one backing store
type HealthCheck func(ctx context.Context) error

// setupRouter configures API routes and middleware for the application
func setupRouter(
	logger *slog.Logger,
	r *gin.Engine,
	cfg *config.Config,
	m *metrics.Metrics,
	checkHandler *handler.CheckHandler,
	health map[string]HealthCheck,
) {
	r.Use(middleware.Recovery(logger))
	r.Use(middleware.CorrelationID())
	r.Use(middleware.Metrics(m))
	r.Use(middleware.Logger(logger, "/health", cfg.Metrics.Path))

	// API v1 endpoints, all behind bearer authentication
	v1 := r.Group("/api/v1")
	v1.Use(middleware.Auth(logger, cfg.Auth.JWTSecret, cfg.Auth.Issuer))
	{
		checks := v1.Group("/checks")
		{
			checks.GET("", checkHandler.List)
			checks.POST("", checkHandler.Create)
			checks.GET("/first-incomplete", checkHandler.FirstIncomplete)
			checks.GET("/:token", checkHandler.Get)
			checks.PATCH("/:token", checkHandler.UpdateDetails)
			checks.GET("/:token/intents", checkHandler.Intents)
			checks.POST("/:token/status", checkHandler.UpdateStatus)
			checks.POST("/:token/settle", checkHandler.Settle)
			checks.POST("/:token/unsettle", checkHandler.Unsettle)
		}

		v1.GET("/statistics", checkHandler.Statistics)
	}

	r.GET(cfg.Metrics.Path, gin.WrapH(m.Handler()))

	// Health check endpoint for monitoring
	r.GET("/health", func(c *gin.Context) {
		status := http.StatusOK
		deps := make(gin.H, len(health))
		for name, ping := range health {
			ctx, cancel := context.WithTimeout(c.Request.Context(), healthTimeout)
			err := ping(ctx)
			cancel()
			if err != nil {
				logger.Warn("Health check failed", "dependency", name, "error", err)
				deps[name] = "down"
				status = http.StatusServiceUnavailable
				continue
			}
			deps[name] = "up"
		}

		state := "ok"
		if status != http.StatusOK {
			state = "degraded"
		}
		c.JSON(status, gin.H{"status": state, "dependencies": deps, "timestamp": time.Now().UTC()})
	})
}
