package repository

import (
	"context"
	"time"

	"gorm.io/gorm"

	apperrors "github.com/dumeirei/storefront-catalog/internal/common/errors"
	"github.com/dumeirei/storefront-catalog/internal/models"
	"github.com/dumeirei/storefront-catalog/internal/scope"
)

// ProductRepository 商品仓储
type ProductRepository struct {
	db *gorm.DB
}

// NewProductRepository 创建商品仓储
func NewProductRepository(db *gorm.DB) *ProductRepository {
	return &ProductRepository{db: db}
}

// Create 创建商品
func (r *ProductRepository) Create(ctx context.Context, product *models.Product) error {
	return r.db.WithContext(ctx).Create(product).Error
}

// GetByID 根据 ID 获取未删除的商品
func (r *ProductRepository) GetByID(ctx context.Context, id int64) (*models.Product, error) {
	var product models.Product
	err := r.db.WithContext(ctx).Where("deleted_at IS NULL").First(&product, id).Error
	if err != nil {
		return nil, err
	}
	return &product, nil
}

// GetByIDUnscoped 根据 ID 获取商品（包含已删除）
func (r *ProductRepository) GetByIDUnscoped(ctx context.Context, id int64) (*models.Product, error) {
	var product models.Product
	err := r.db.WithContext(ctx).First(&product, id).Error
	if err != nil {
		return nil, err
	}
	return &product, nil
}

// GetByIDWithCategory 根据 ID 获取商品（包含分类）
func (r *ProductRepository) GetByIDWithCategory(ctx context.Context, id int64) (*models.Product, error) {
	var product models.Product
	err := r.db.WithContext(ctx).Preload("Category").
		Where("deleted_at IS NULL").
		First(&product, id).Error
	if err != nil {
		return nil, err
	}
	return &product, nil
}

// GetBySlug 根据 slug 获取未删除的商品
func (r *ProductRepository) GetBySlug(ctx context.Context, slug string) (*models.Product, error) {
	var product models.Product
	err := r.db.WithContext(ctx).
		Where("slug = ? AND deleted_at IS NULL", slug).
		First(&product).Error
	if err != nil {
		return nil, err
	}
	return &product, nil
}

// GetBySKU 根据 SKU 获取未删除的商品
func (r *ProductRepository) GetBySKU(ctx context.Context, sku string) (*models.Product, error) {
	var product models.Product
	err := r.db.WithContext(ctx).
		Where("sku = ? AND deleted_at IS NULL", sku).
		First(&product).Error
	if err != nil {
		return nil, err
	}
	return &product, nil
}

// SlugExists slug 是否已被占用（已删除的记录同样占用）
func (r *ProductRepository) SlugExists(ctx context.Context, slug string) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&models.Product{}).Where("slug = ?", slug).Count(&count).Error
	return count > 0, err
}

// SKUExists SKU 是否已被占用
func (r *ProductRepository) SKUExists(ctx context.Context, sku string) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&models.Product{}).Where("sku = ?", sku).Count(&count).Error
	return count > 0, err
}

// Update 更新商品
func (r *ProductRepository) Update(ctx context.Context, product *models.Product) error {
	return r.db.WithContext(ctx).Save(product).Error
}

// UpdateFields 更新指定字段
func (r *ProductRepository) UpdateFields(ctx context.Context, id int64, fields map[string]interface{}) error {
	result := r.db.WithContext(ctx).Model(&models.Product{}).
		Where("id = ? AND deleted_at IS NULL", id).
		Updates(fields)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

// SoftDelete 软删除商品
func (r *ProductRepository) SoftDelete(ctx context.Context, id int64, at time.Time) error {
	result := r.db.WithContext(ctx).Model(&models.Product{}).
		Where("id = ? AND deleted_at IS NULL", id).
		Updates(map[string]interface{}{"deleted_at": at})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

// Restore 恢复软删除的商品
func (r *ProductRepository) Restore(ctx context.Context, id int64) error {
	result := r.db.WithContext(ctx).Model(&models.Product{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{"deleted_at": nil})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

// Delete 物理删除商品，其评价随外键级联删除
func (r *ProductRepository) Delete(ctx context.Context, id int64) error {
	result := r.db.WithContext(ctx).Delete(&models.Product{}, id)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

// List 按查询条件获取商品列表及总数，未指定排序时按最新排序
func (r *ProductRepository) List(ctx context.Context, q scope.Query) ([]*models.Product, int64, error) {
	var products []*models.Product
	var total int64

	query := q.ApplyFilters(r.db.WithContext(ctx).Model(&models.Product{}))

	// 统计总数
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	if len(q.Sorts) == 0 {
		q = q.OrderBy(OrderNewest.Sorts()...)
	}
	if err := q.ApplyPage(q.ApplySorts(query)).Find(&products).Error; err != nil {
		return nil, 0, err
	}

	return products, total, nil
}

// Bestsellers 销量最高的在售商品
func (r *ProductRepository) Bestsellers(ctx context.Context, limit int) ([]*models.Product, error) {
	q := scope.New(ProductActive(), NotDeleted()).
		OrderBy(OrderBestSelling.Sorts()...).
		Page(0, limit)
	products, _, err := r.List(ctx, q)
	return products, err
}

// NewArrivals since 之后创建的在售商品，按最新排序
func (r *ProductRepository) NewArrivals(ctx context.Context, since time.Time, limit int) ([]*models.Product, error) {
	q := scope.New(ProductActive(), NotDeleted(), scope.Gte{Column: "created_at", Value: since}).
		OrderBy(OrderNewest.Sorts()...).
		Page(0, limit)
	products, _, err := r.List(ctx, q)
	return products, err
}

// IncrementViews 浏览量加一
func (r *ProductRepository) IncrementViews(ctx context.Context, id int64) error {
	result := r.db.WithContext(ctx).Model(&models.Product{}).
		Where("id = ? AND deleted_at IS NULL", id).
		UpdateColumn("views_count", gorm.Expr("views_count + ?", 1))
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

// DecrementQuantity 扣减库存并累加销量，单条条件更新保证原子性
// 库存不足或商品不存在时返回 (false, nil)，不做任何修改
func (r *ProductRepository) DecrementQuantity(ctx context.Context, id int64, amount int) (bool, error) {
	if amount <= 0 {
		return false, apperrors.ErrInvalidParams.WithMessage("扣减数量必须大于 0")
	}

	result := r.db.WithContext(ctx).Model(&models.Product{}).
		Where("id = ? AND quantity >= ? AND deleted_at IS NULL", id, amount).
		UpdateColumns(map[string]interface{}{
			"quantity":    gorm.Expr("quantity - ?", amount),
			"sales_count": gorm.Expr("sales_count + ?", amount),
		})
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected == 1, nil
}

// RestockQuantity 增加库存
func (r *ProductRepository) RestockQuantity(ctx context.Context, id int64, amount int) error {
	if amount <= 0 {
		return apperrors.ErrInvalidParams.WithMessage("补货数量必须大于 0")
	}

	result := r.db.WithContext(ctx).Model(&models.Product{}).
		Where("id = ? AND deleted_at IS NULL", id).
		UpdateColumn("quantity", gorm.Expr("quantity + ?", amount))
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

// AverageRating 已通过评价的平均分，没有评价时为 0
func (r *ProductRepository) AverageRating(ctx context.Context, productID int64) (float64, error) {
	var avg float64
	q := scope.New(ReviewForProduct(productID), ReviewApproved())
	err := q.ApplyFilters(r.db.WithContext(ctx).Model(&models.Review{})).
		Select("COALESCE(AVG(rating), 0)").
		Scan(&avg).Error
	return avg, err
}

// ApprovedReviewCount 已通过评价数
func (r *ProductRepository) ApprovedReviewCount(ctx context.Context, productID int64) (int64, error) {
	var count int64
	q := scope.New(ReviewForProduct(productID), ReviewApproved())
	err := q.ApplyFilters(r.db.WithContext(ctx).Model(&models.Review{})).Count(&count).Error
	return count, err
}

// RatingSummary 商品评分汇总
type RatingSummary struct {
	ProductID int64
	Count     int64
	Average   float64
}

// RatingSummaries 批量获取已通过评价的数量与平均分，没有评价的商品不在结果中
func (r *ProductRepository) RatingSummaries(ctx context.Context, productIDs []int64) (map[int64]RatingSummary, error) {
	summaries := make(map[int64]RatingSummary, len(productIDs))
	if len(productIDs) == 0 {
		return summaries, nil
	}

	var rows []RatingSummary
	err := r.db.WithContext(ctx).Model(&models.Review{}).
		Select("product_id, COUNT(*) AS count, COALESCE(AVG(rating), 0) AS average").
		Where("product_id IN ? AND status = ?", productIDs, models.ReviewStatusApproved).
		Group("product_id").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}

	for _, row := range rows {
		summaries[row.ProductID] = row
	}
	return summaries, nil
}
