package api

import (
	"log/slog"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// SetupRoutes sets up the API routes. Metrics are served from gatherer when
// it is not nil.
func SetupRoutes(handler *Handler, gatherer prometheus.Gatherer, logger *slog.Logger) *gin.Engine {
	router := gin.New()

	// Middleware
	router.Use(Recovery())
	router.Use(CORS())
	router.Use(Logger(logger))

	// Health check
	router.GET("/health", handler.HealthCheck)
	if gatherer != nil {
		router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})))
	}

	// API v1
	v1 := router.Group("/api/v1")
	{
		v1.GET("/scans/:id", handler.GetScanRun)

		integrations := v1.Group("/integrations/:tenant/:integration")
		{
			integrations.GET("/summary", handler.GetSummary)
			integrations.GET("/projects/:organization/:project", handler.GetProjectSummary)
			integrations.GET("/records", handler.GetRecords)
			integrations.GET("/checkpoint", handler.GetCheckpoint)
			integrations.GET("/scans", handler.GetScanRuns)
		}
	}

	return router
}
