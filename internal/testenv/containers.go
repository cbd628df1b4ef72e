//go:build integration

// Package testenv 提供基于 testcontainers-go 的集成测试环境
package testenv

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/testcontainers/testcontainers-go"
	tcPostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
	tcRedis "github.com/testcontainers/testcontainers-go/modules/redis"
	"github.com/testcontainers/testcontainers-go/wait"
	"gorm.io/gorm"

	"github.com/dumeirei/storefront-catalog/internal/common/config"
	"github.com/dumeirei/storefront-catalog/internal/common/database"
	"github.com/dumeirei/storefront-catalog/internal/models"
)

// Containers 管理测试容器
type Containers struct {
	Postgres  testcontainers.Container
	Redis     testcontainers.Container
	Database  *config.DatabaseConfig
	RedisAddr string
}

// PostgresConfig Postgres 容器配置
type PostgresConfig struct {
	Database string
	User     string
	Password string
	Image    string
}

// DefaultPostgresConfig 返回默认 Postgres 配置
func DefaultPostgresConfig() PostgresConfig {
	return PostgresConfig{
		Database: "test_storefront",
		User:     "test_user",
		Password: "test_password",
		Image:    "postgres:15-alpine",
	}
}

// StartPostgres 启动 Postgres 容器
func (c *Containers) StartPostgres(ctx context.Context, cfg PostgresConfig) error {
	container, err := tcPostgres.Run(ctx, cfg.Image,
		tcPostgres.WithDatabase(cfg.Database),
		tcPostgres.WithUsername(cfg.User),
		tcPostgres.WithPassword(cfg.Password),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second),
		),
	)
	if err != nil {
		return fmt.Errorf("failed to start postgres container: %w", err)
	}
	c.Postgres = container

	host, err := container.Host(ctx)
	if err != nil {
		return fmt.Errorf("failed to get postgres host: %w", err)
	}
	port, err := container.MappedPort(ctx, "5432")
	if err != nil {
		return fmt.Errorf("failed to get postgres port: %w", err)
	}

	c.Database = &config.DatabaseConfig{
		Driver:          "postgres",
		Host:            host,
		Port:            port.Int(),
		User:            cfg.User,
		Password:        cfg.Password,
		Name:            cfg.Database,
		SSLMode:         "disable",
		Timezone:        "UTC",
		MaxIdleConns:    5,
		MaxOpenConns:    20,
		ConnMaxLifetime: 5,
		SlowThreshold:   200,
	}
	return nil
}

// StartRedis 启动 Redis 容器
func (c *Containers) StartRedis(ctx context.Context, image string) error {
	container, err := tcRedis.Run(ctx, image,
		testcontainers.WithWaitStrategy(
			wait.ForLog("Ready to accept connections").
				WithStartupTimeout(30*time.Second),
		),
	)
	if err != nil {
		return fmt.Errorf("failed to start redis container: %w", err)
	}
	c.Redis = container

	host, err := container.Host(ctx)
	if err != nil {
		return fmt.Errorf("failed to get redis host: %w", err)
	}
	port, err := container.MappedPort(ctx, "6379")
	if err != nil {
		return fmt.Errorf("failed to get redis port: %w", err)
	}
	c.RedisAddr = fmt.Sprintf("%s:%s", host, port.Port())
	return nil
}

// OpenDB 连接 Postgres 并同步目录表结构
func (c *Containers) OpenDB(opts ...database.Option) (*gorm.DB, error) {
	if c.Database == nil {
		return nil, fmt.Errorf("postgres container not started")
	}

	db, err := database.Open(c.Database, opts...)
	if err != nil {
		return nil, err
	}
	if err = models.AutoMigrate(db); err != nil {
		return nil, fmt.Errorf("failed to migrate: %w", err)
	}
	return db, nil
}

// RedisClient 获取 Redis 客户端
func (c *Containers) RedisClient(ctx context.Context) (*redis.Client, error) {
	if c.RedisAddr == "" {
		return nil, fmt.Errorf("redis container not started")
	}

	client := redis.NewClient(&redis.Options{Addr: c.RedisAddr})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}
	return client, nil
}

// Cleanup 清理所有容器
func (c *Containers) Cleanup(ctx context.Context) error {
	var errs []error

	if c.Postgres != nil {
		if err := c.Postgres.Terminate(ctx); err != nil {
			errs = append(errs, fmt.Errorf("failed to terminate postgres: %w", err))
		}
	}
	if c.Redis != nil {
		if err := c.Redis.Terminate(ctx); err != nil {
			errs = append(errs, fmt.Errorf("failed to terminate redis: %w", err))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("cleanup errors: %v", errs)
	}
	return nil
}
