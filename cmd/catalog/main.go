// Package main 是商品目录服务入口
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/dumeirei/storefront-catalog/internal/common/cache"
	"github.com/dumeirei/storefront-catalog/internal/common/config"
	"github.com/dumeirei/storefront-catalog/internal/common/database"
	"github.com/dumeirei/storefront-catalog/internal/common/logger"
	"github.com/dumeirei/storefront-catalog/internal/common/metrics"
	"github.com/dumeirei/storefront-catalog/internal/common/tracing"
	"github.com/dumeirei/storefront-catalog/internal/models"
	"github.com/dumeirei/storefront-catalog/internal/service/catalog"
)

const version = "1.0.0"

func main() {
	configPath := os.Getenv("CATALOG_CONFIG")

	// 加载配置
	cfg, err := config.Load(configPath)
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		os.Exit(1)
	}

	// 初始化日志
	if err := logger.Init(&cfg.Logger); err != nil {
		fmt.Printf("Failed to init logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	log := logger.GetLogger()
	log.Info("Starting storefront catalog",
		zap.String("version", version),
		zap.String("env", cfg.Server.Mode),
	)

	// 初始化链路追踪
	tracer, err := tracing.Init(&tracing.Config{
		ServiceName:    cfg.Tracing.ServiceName,
		ServiceVersion: version,
		Environment:    cfg.Server.Mode,
		Endpoint:       cfg.Tracing.Endpoint,
		Exporter:       cfg.Tracing.Exporter,
		SampleRate:     cfg.Tracing.SampleRate,
		Enabled:        cfg.Tracing.Enabled,
	})
	if err != nil {
		log.Fatal("Failed to init tracing", zap.Error(err))
	}

	// 初始化指标
	m := metrics.Init("storefront_catalog")

	// 初始化数据库连接
	db, err := database.Init(&cfg.Database, database.WithMetrics(m), database.WithTracer(tracer))
	if err != nil {
		log.Fatal("Failed to connect to database", zap.Error(err))
	}
	log.Info("Database connected successfully", zap.String("driver", cfg.Database.Driver))

	if cfg.Database.AutoMigrate {
		if err := models.AutoMigrate(db); err != nil {
			log.Fatal("Failed to migrate catalog schema", zap.Error(err))
		}
		log.Info("Catalog schema migrated")
	}

	// 初始化 Redis 连接
	redisClient, err := cache.Init(&cfg.Redis)
	if err != nil {
		log.Fatal("Failed to connect to Redis", zap.Error(err))
	}
	log.Info("Redis connected successfully", zap.String("addr", cfg.Redis.Addr()))

	svc := catalog.New(db, catalog.Options{
		Config:  &cfg.Catalog,
		Metrics: m,
		Tracer:  tracer,
		Locker:  cache.NewLocker(redisClient),
	})

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      setupRouter(cfg, log, m, db, redisClient, svc),
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
	}

	go func() {
		log.Info("HTTP server starting", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("Failed to start HTTP server", zap.Error(err))
		}
	}()

	// 等待中断信号
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("Shutting down server...")

	timeout := time.Duration(cfg.Server.ShutdownTimeout) * time.Second
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Error("Server forced to shutdown", zap.Error(err))
	}
	if err := tracer.Shutdown(ctx); err != nil {
		log.Error("Failed to flush traces", zap.Error(err))
	}
	if err := cache.Close(); err != nil {
		log.Error("Failed to close Redis", zap.Error(err))
	}
	if err := database.Close(); err != nil {
		log.Error("Failed to close database", zap.Error(err))
	}

	log.Info("Server exited")
}
