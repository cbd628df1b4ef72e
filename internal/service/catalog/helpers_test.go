package catalog

import (
	"context"
	"strconv"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/dumeirei/storefront-catalog/internal/common/cache"
	"github.com/dumeirei/storefront-catalog/internal/common/config"
	"github.com/dumeirei/storefront-catalog/internal/common/database"
	"github.com/dumeirei/storefront-catalog/internal/common/metrics"
	"github.com/dumeirei/storefront-catalog/internal/common/tracing"
	"github.com/dumeirei/storefront-catalog/internal/models"
)

// testEnv 目录服务测试环境
type testEnv struct {
	db      *gorm.DB
	catalog *Catalog
	metrics *metrics.Metrics
	redis   *miniredis.Miniredis
	locker  *cache.Locker
	now     time.Time
}

// setupTestDB 每个测试独立的内存库，开启外键约束
func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := database.SQLiteDSN("file:" + uuid.NewString() + "?mode=memory&cache=shared")
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Silent),
		TranslateError: true,
	})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() {
		_ = sqlDB.Close()
	})

	require.NoError(t, models.AutoMigrate(db))
	return db
}

// setupTestEnv 组装服务：独立指标注册表、禁用的链路追踪、miniredis 分布式锁与固定时钟
func setupTestEnv(t *testing.T) *testEnv {
	t.Helper()

	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() {
		_ = client.Close()
	})

	env := &testEnv{
		db:      setupTestDB(t),
		metrics: metrics.New("test"),
		redis:   mr,
		locker:  cache.NewLocker(client),
		now:     time.Now().Add(time.Hour),
	}
	env.catalog = New(env.db, Options{
		Config:  &config.Default().Catalog,
		Metrics: env.metrics,
		Tracer:  tracing.Disabled(),
		Locker:  env.locker,
		Now:     func() time.Time { return env.now },
	})
	return env
}

func (e *testEnv) createCategory(t *testing.T, name string, parentID *int64) *models.Category {
	t.Helper()
	category, err := e.catalog.Categories.Create(testCtx(), &CreateCategoryRequest{Name: name, ParentID: parentID})
	require.NoError(t, err)
	return category
}

func (e *testEnv) createProduct(t *testing.T, categoryID int64, mutate func(req *CreateProductRequest)) *models.Product {
	t.Helper()
	suffix := uuid.NewString()[:8]
	req := &CreateProductRequest{
		CategoryID: categoryID,
		Name:       "测试商品 " + suffix,
		SKU:        "SKU-" + suffix,
		Price:      decimal.NewFromInt(100),
		Quantity:   10,
		Status:     models.ProductStatusActive,
	}
	if mutate != nil {
		mutate(req)
	}
	product, err := e.catalog.Products.Create(testCtx(), req)
	require.NoError(t, err)
	return product
}

func testCtx() context.Context {
	return context.Background()
}

func int64Ptr(v int64) *int64 {
	return &v
}

func intPtr(v int) *int {
	return &v
}

// counterValue 读取指标注册表中匹配标签的计数值，未找到时为 0
func (e *testEnv) counterValue(t *testing.T, name string, labels map[string]string) float64 {
	t.Helper()
	families, err := e.metrics.Registry().Gather()
	require.NoError(t, err)

	for _, mf := range families {
		if mf.GetName() != "test_"+name {
			continue
		}
	next:
		for _, m := range mf.GetMetric() {
			for _, lp := range m.GetLabel() {
				if want, ok := labels[lp.GetName()]; ok && want != lp.GetValue() {
					continue next
				}
			}
			return m.GetCounter().GetValue()
		}
	}
	return 0
}

func itoa(v int64) string {
	return strconv.FormatInt(v, 10)
}
