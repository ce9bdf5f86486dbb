package v1

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/tidecharts/tilecache/internal/infrastructure/http/v1/handler"
	"github.com/tidecharts/tilecache/pkg/logger"
	"github.com/tidecharts/tilecache/pkg/telemetry"
)

func NewRouter(handler *handler.Handler, l logger.Logger, telemetryEnabled bool) *gin.Engine {
	r := gin.New()

	r.Use(gin.Recovery())

	if telemetryEnabled {
		r.Use(telemetry.GinMiddleware("tidecharts-tilecache"))
	}

	r.Use(ginZapLogger(l))

	api := r.Group("/api")
	v1 := api.Group("/v1")

	v1.GET("/healthz", handler.Healthz)
	v1.GET("/tile/:z/:x/:y", handler.Tile)
	v1.POST("/prefetch", handler.Prefetch)
	v1.GET("/cache/stats", handler.CacheStats)
	v1.DELETE("/cache", handler.ClearCache)
	v1.PUT("/cache/quota", handler.SetQuota)
	v1.PUT("/network", handler.SetNetworkState)

	// Prometheus metrics endpoint
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	return r
}

func ginZapLogger(l logger.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Set("logger", l)

		start := time.Now()

		c.Next()

		end := time.Now()
		latency := end.Sub(start)

		l.Info("request",
			"status", c.Writer.Status(),
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"ip", c.ClientIP(),
			"latency", latency,
			"size", c.Writer.Size(),
		)
	}
}
