package http

import (
	"os"
	"strconv"
	"strings"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"go.ngs.io/ocean-matchup/internal/metrics"
	"go.ngs.io/ocean-matchup/internal/usecase"
)

// SetupRouter creates and configures the Gin router.
func SetupRouter(catalogUC *usecase.CatalogUseCase, collector *metrics.Collector) *gin.Engine {
	router := gin.Default()

	// Setup CORS middleware.
	corsConfig := cors.DefaultConfig()

	// Allow all origins unless restricted.
	allowedOrigins := os.Getenv("CORS_ALLOWED_ORIGINS")
	if allowedOrigins != "" {
		corsConfig.AllowOrigins = strings.Split(allowedOrigins, ",")
	} else {
		corsConfig.AllowAllOrigins = true
	}

	router.Use(cors.New(corsConfig))
	router.Use(requestMetrics(collector))

	handler := NewHandler(catalogUC)

	// API v1 routes.
	v1 := router.Group("/v1")
	matchups := v1.Group("/matchups")
	matchups.GET("", handler.ListMatchups)
	matchups.GET("/:domain/:variable", handler.GetMatchup)

	v1.GET("/variables", handler.GetVariables)
	v1.GET("/report", handler.GetReport)

	router.GET("/health", handler.HealthCheck)
	router.GET("/metrics", gin.WrapH(collector.Handler()))

	return router
}

// requestMetrics counts requests per route.
func requestMetrics(collector *metrics.Collector) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()
		endpoint := c.FullPath()
		if endpoint == "" {
			endpoint = "unmatched"
		}
		collector.RecordAPIRequest(endpoint, c.Request.Method, strconv.Itoa(c.Writer.Status()))
	}
}
