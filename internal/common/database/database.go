// Package database 提供数据库连接和管理功能
package database

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/dumeirei/storefront-catalog/internal/common/config"
	applogger "github.com/dumeirei/storefront-catalog/internal/common/logger"
	"github.com/dumeirei/storefront-catalog/internal/common/metrics"
	"github.com/dumeirei/storefront-catalog/internal/common/tracing"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

var db *gorm.DB

// Option 连接选项
type Option func(*options)

type options struct {
	metrics *metrics.Metrics
	tracer  *tracing.Tracer
}

// WithMetrics 为所有语句记录 Prometheus 指标
func WithMetrics(m *metrics.Metrics) Option {
	return func(o *options) { o.metrics = m }
}

// WithTracer 为所有语句创建追踪 span
func WithTracer(t *tracing.Tracer) Option {
	return func(o *options) { o.tracer = t }
}

// Init 初始化数据库连接并设置为全局实例
func Init(cfg *config.DatabaseConfig, opts ...Option) (*gorm.DB, error) {
	conn, err := Open(cfg, opts...)
	if err != nil {
		return nil, err
	}
	db = conn
	return db, nil
}

// Open 打开数据库连接，不修改全局实例
func Open(cfg *config.DatabaseConfig, opts ...Option) (*gorm.DB, error) {
	var o options
	for _, opt := range opts {
		opt(&o)
	}

	dialector, err := Dialector(cfg)
	if err != nil {
		return nil, err
	}

	conn, err := gorm.Open(dialector, GormConfig(cfg))
	if err != nil {
		return nil, fmt.Errorf("failed to connect database: %w", err)
	}

	instr := NewInstrumentation(o.metrics, o.tracer).
		WithStatementLog(applogger.Named("db"), time.Duration(cfg.SlowThreshold)*time.Millisecond)
	if err = conn.Use(instr); err != nil {
		return nil, fmt.Errorf("failed to register instrumentation: %w", err)
	}

	// 获取底层 *sql.DB
	sqlDB, err := conn.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get sql.DB: %w", err)
	}

	// 配置连接池，sqlite 只允许单个写连接
	if cfg.Driver == "sqlite" {
		sqlDB.SetMaxOpenConns(1)
	} else {
		sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
		sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
		sqlDB.SetConnMaxLifetime(time.Duration(cfg.ConnMaxLifetime) * time.Minute)
	}

	// 测试连接
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err = sqlDB.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return conn, nil
}

// Dialector 根据驱动类型返回 GORM 方言
func Dialector(cfg *config.DatabaseConfig) (gorm.Dialector, error) {
	switch cfg.Driver {
	case "", "postgres":
		return postgres.Open(cfg.DSN()), nil
	case "sqlite":
		return sqlite.Open(SQLiteDSN(cfg.DSN())), nil
	default:
		return nil, fmt.Errorf("unsupported database driver: %s", cfg.Driver)
	}
}

// SQLiteDSN 确保 sqlite 连接开启外键约束
func SQLiteDSN(dsn string) string {
	if strings.Contains(dsn, "_foreign_keys=") || strings.Contains(dsn, "_fk=") {
		return dsn
	}
	if !strings.HasPrefix(dsn, "file:") {
		dsn = "file:" + dsn
	}
	if strings.Contains(dsn, "?") {
		return dsn + "&_foreign_keys=on"
	}
	return dsn + "?_foreign_keys=on"
}

// GormConfig 返回统一的 GORM 配置
func GormConfig(cfg *config.DatabaseConfig) *gorm.Config {
	gormLogger := logger.New(
		zap.NewStdLog(applogger.Named("gorm")),
		logger.Config{
			SlowThreshold:             time.Duration(cfg.SlowThreshold) * time.Millisecond,
			LogLevel:                  getLogLevel(cfg.LogMode),
			IgnoreRecordNotFoundError: true,
			Colorful:                  false,
		},
	)

	return &gorm.Config{
		Logger:         gormLogger,
		TranslateError: true,
		PrepareStmt:    cfg.Driver != "sqlite",
	}
}

// Close 关闭数据库连接
func Close() error {
	if db != nil {
		sqlDB, err := db.DB()
		if err != nil {
			return err
		}
		return sqlDB.Close()
	}
	return nil
}

// Ping 检查数据库连通性
func Ping(ctx context.Context, conn *gorm.DB) error {
	if conn == nil {
		return fmt.Errorf("database not initialized")
	}
	sqlDB, err := conn.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

// getLogLevel 获取日志级别
func getLogLevel(logMode bool) logger.LogLevel {
	if logMode {
		return logger.Info
	}
	return logger.Silent
}

// 分页默认值
const (
	DefaultPageSize = 20
	MaxPageSize     = 100
)

// Pagination 分页参数，Page 从 1 开始
type Pagination struct {
	Page     int
	PageSize int
}

// Normalize 修正非法的页码和页大小
func (p Pagination) Normalize(defaultSize, maxSize int) Pagination {
	if defaultSize <= 0 {
		defaultSize = DefaultPageSize
	}
	if maxSize <= 0 {
		maxSize = MaxPageSize
	}
	if p.Page <= 0 {
		p.Page = 1
	}
	if p.PageSize <= 0 {
		p.PageSize = defaultSize
	}
	if p.PageSize > maxSize {
		p.PageSize = maxSize
	}
	return p
}

// Offset 返回偏移量
func (p Pagination) Offset() int {
	return (p.Page - 1) * p.PageSize
}
