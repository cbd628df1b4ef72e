// Package cache 提供 Redis 客户端和分布式锁
package cache

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/dumeirei/storefront-catalog/internal/common/config"
	"github.com/redis/go-redis/v9"
)

var rdb *redis.Client

// NewClient 根据配置创建 Redis 客户端并测试连接
func NewClient(cfg *config.RedisConfig) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         cfg.Addr(),
		Password:     cfg.Password,
		DB:           cfg.DB,
		PoolSize:     cfg.PoolSize,
		MinIdleConns: cfg.MinIdleConns,
		DialTimeout:  time.Duration(cfg.DialTimeout) * time.Second,
		ReadTimeout:  time.Duration(cfg.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.WriteTimeout) * time.Second,
	})

	// 测试连接
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if _, err := client.Ping(ctx).Result(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect redis: %w", err)
	}

	return client, nil
}

// Init 初始化全局 Redis 连接
func Init(cfg *config.RedisConfig) (*redis.Client, error) {
	client, err := NewClient(cfg)
	if err != nil {
		return nil, err
	}
	rdb = client
	return rdb, nil
}

// GetClient 获取 Redis 客户端
func GetClient() *redis.Client {
	return rdb
}

// Close 关闭 Redis 连接
func Close() error {
	if rdb != nil {
		err := rdb.Close()
		rdb = nil
		return err
	}
	return nil
}

// Ping 检查 Redis 连通性
func Ping(ctx context.Context, client redis.UniversalClient) error {
	if client == nil {
		return fmt.Errorf("redis not initialized")
	}
	return client.Ping(ctx).Err()
}

// 常用缓存键前缀
const (
	KeyPrefixLock   = "lock:"
	KeyPrefixReview = "review:"
)

// BuildKey 构建缓存键
func BuildKey(prefix string, parts ...string) string {
	if len(parts) == 0 {
		return strings.TrimSuffix(prefix, ":")
	}
	return prefix + strings.Join(parts, ":")
}
