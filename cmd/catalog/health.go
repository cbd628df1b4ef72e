package main

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"

	"github.com/dumeirei/storefront-catalog/internal/common/cache"
	"github.com/dumeirei/storefront-catalog/internal/common/database"
	"github.com/dumeirei/storefront-catalog/internal/service/catalog"
)

const readinessTimeout = 3 * time.Second

// HealthResponse 健康检查响应
type HealthResponse struct {
	Status    string            `json:"status"`
	Timestamp int64             `json:"timestamp"`
	Checks    map[string]string `json:"checks,omitempty"`
}

// healthHandler 存活检查
func healthHandler(c *gin.Context) {
	c.JSON(http.StatusOK, HealthResponse{
		Status:    "ok",
		Timestamp: time.Now().Unix(),
	})
}

// readyHandler 就绪检查：数据库、Redis 以及目录表可查询
func readyHandler(db *gorm.DB, redisClient redis.UniversalClient, svc *catalog.Catalog) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), readinessTimeout)
		defer cancel()

		checks := map[string]string{
			"database": checkResult(database.Ping(ctx, db)),
			"redis":    checkResult(cache.Ping(ctx, redisClient)),
		}
		if checks["database"] == "ok" {
			_, err := svc.Categories.List(ctx, catalog.CategoryFilter{PageSize: 1})
			checks["catalog"] = checkResult(err)
		}

		status, statusText := http.StatusOK, "ready"
		for _, v := range checks {
			if v != "ok" {
				status, statusText = http.StatusServiceUnavailable, "not ready"
				break
			}
		}

		c.JSON(status, HealthResponse{
			Status:    statusText,
			Timestamp: time.Now().Unix(),
			Checks:    checks,
		})
	}
}

func checkResult(err error) string {
	if err != nil {
		return "error: " + err.Error()
	}
	return "ok"
}
