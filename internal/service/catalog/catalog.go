// Package catalog 提供商品目录服务：分类、商品与评价
package catalog

import (
	"time"

	"gorm.io/gorm"

	"github.com/dumeirei/storefront-catalog/internal/common/cache"
	"github.com/dumeirei/storefront-catalog/internal/common/config"
	"github.com/dumeirei/storefront-catalog/internal/common/metrics"
	"github.com/dumeirei/storefront-catalog/internal/common/tracing"
	"github.com/dumeirei/storefront-catalog/internal/repository"
)

// Options 服务依赖，零值字段使用默认实现
type Options struct {
	Config  *config.CatalogConfig
	Metrics *metrics.Metrics
	Tracer  *tracing.Tracer
	// Locker 为空时评价提交只依赖数据库预检查
	Locker *cache.Locker
	Now    func() time.Time
}

func (o Options) withDefaults() Options {
	if o.Config == nil {
		o.Config = &config.Default().Catalog
	}
	if o.Metrics == nil {
		o.Metrics = metrics.GetMetrics()
	}
	if o.Tracer == nil {
		o.Tracer = tracing.GetTracer()
	}
	if o.Now == nil {
		o.Now = time.Now
	}
	return o
}

// Catalog 聚合三个目录服务
type Catalog struct {
	Categories *CategoryService
	Products   *ProductService
	Reviews    *ReviewService
}

// New 基于同一数据库连接创建全部目录服务
func New(db *gorm.DB, opts Options) *Catalog {
	opts = opts.withDefaults()

	categoryRepo := repository.NewCategoryRepository(db)
	productRepo := repository.NewProductRepository(db)
	reviewRepo := repository.NewReviewRepository(db)

	return &Catalog{
		Categories: NewCategoryService(categoryRepo, opts),
		Products:   NewProductService(productRepo, categoryRepo, opts),
		Reviews:    NewReviewService(reviewRepo, productRepo, opts),
	}
}

// Page 分页结果
type Page[T any] struct {
	List       []T   `json:"list"`
	Total      int64 `json:"total"`
	Page       int   `json:"page"`
	PageSize   int   `json:"page_size"`
	TotalPages int   `json:"total_pages"`
}

func newPage[T any](list []T, total int64, page, pageSize int) *Page[T] {
	totalPages := int(total) / pageSize
	if int(total)%pageSize > 0 {
		totalPages++
	}
	return &Page[T]{
		List:       list,
		Total:      total,
		Page:       page,
		PageSize:   pageSize,
		TotalPages: totalPages,
	}
}
