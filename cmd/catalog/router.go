package main

import (
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/dumeirei/storefront-catalog/internal/common/config"
	"github.com/dumeirei/storefront-catalog/internal/common/metrics"
	"github.com/dumeirei/storefront-catalog/internal/middleware"
	"github.com/dumeirei/storefront-catalog/internal/service/catalog"
)

// setupRouter 运维路由：存活、就绪与 Prometheus 指标
func setupRouter(
	cfg *config.Config,
	log *zap.Logger,
	m *metrics.Metrics,
	db *gorm.DB,
	redisClient redis.UniversalClient,
	svc *catalog.Catalog,
) *gin.Engine {
	switch cfg.Server.Mode {
	case "production", "release":
		gin.SetMode(gin.ReleaseMode)
	case "test":
		gin.SetMode(gin.TestMode)
	default:
		gin.SetMode(gin.DebugMode)
	}

	metricsPath := cfg.Metrics.Path
	if metricsPath == "" {
		metricsPath = "/metrics"
	}

	r := gin.New()
	r.Use(
		middleware.RequestID(),
		middleware.Metrics(m),
		middleware.Tracing(cfg.Tracing.ServiceName, "/healthz", metricsPath),
		middleware.AccessLog(log, "/healthz", "/readyz", metricsPath),
		middleware.Recovery(log),
	)

	r.GET("/healthz", healthHandler)
	r.GET("/readyz", readyHandler(db, redisClient, svc))
	if cfg.Metrics.Enabled {
		r.GET(metricsPath, gin.WrapH(m.Handler()))
	}

	return r
}
