package repository

import (
	"context"

	"gorm.io/gorm"

	"github.com/dumeirei/storefront-catalog/internal/models"
	"github.com/dumeirei/storefront-catalog/internal/scope"
)

// ReviewRepository 评价仓储
type ReviewRepository struct {
	db *gorm.DB
}

// NewReviewRepository 创建评价仓储
func NewReviewRepository(db *gorm.DB) *ReviewRepository {
	return &ReviewRepository{db: db}
}

// Create 创建评价
func (r *ReviewRepository) Create(ctx context.Context, review *models.Review) error {
	return r.db.WithContext(ctx).Create(review).Error
}

// GetByID 根据 ID 获取评价
func (r *ReviewRepository) GetByID(ctx context.Context, id int64) (*models.Review, error) {
	var review models.Review
	err := r.db.WithContext(ctx).First(&review, id).Error
	if err != nil {
		return nil, err
	}
	return &review, nil
}

// GetByIDWithProduct 根据 ID 获取评价（包含商品及其分类）
func (r *ReviewRepository) GetByIDWithProduct(ctx context.Context, id int64) (*models.Review, error) {
	var review models.Review
	err := r.db.WithContext(ctx).Preload("Product.Category").First(&review, id).Error
	if err != nil {
		return nil, err
	}
	return &review, nil
}

// Delete 删除评价
func (r *ReviewRepository) Delete(ctx context.Context, id int64) error {
	result := r.db.WithContext(ctx).Delete(&models.Review{}, id)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

// UpdateStatus 仅当评价处于待审核时更新状态，返回是否发生了更新
func (r *ReviewRepository) UpdateStatus(ctx context.Context, id int64, next models.ReviewStatus) (bool, error) {
	result := r.db.WithContext(ctx).Model(&models.Review{}).
		Where("id = ? AND status = ?", id, models.ReviewStatusPending).
		Updates(map[string]interface{}{"status": next})
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected == 1, nil
}

// MarkAsVerified 标记为已验证购买，只会从 false 变为 true
func (r *ReviewRepository) MarkAsVerified(ctx context.Context, id int64) (bool, error) {
	result := r.db.WithContext(ctx).Model(&models.Review{}).
		Where("id = ? AND verified_purchase = ?", id, false).
		Updates(map[string]interface{}{"verified_purchase": true})
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected == 1, nil
}

// UserHasReviewed 用户是否评价过该商品，与审核状态无关
func (r *ReviewRepository) UserHasReviewed(ctx context.Context, userID, productID int64) (bool, error) {
	var count int64
	q := scope.New(ReviewByUser(userID), ReviewForProduct(productID))
	err := q.ApplyFilters(r.db.WithContext(ctx).Model(&models.Review{})).Count(&count).Error
	return count > 0, err
}

// List 按查询条件获取评价列表及总数，未指定排序时按最新排序
func (r *ReviewRepository) List(ctx context.Context, q scope.Query) ([]*models.Review, int64, error) {
	var reviews []*models.Review
	var total int64

	query := q.ApplyFilters(r.db.WithContext(ctx).Model(&models.Review{}))

	// 统计总数
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	if len(q.Sorts) == 0 {
		q = q.OrderBy(ReviewOrderNewest.Sorts()...)
	}
	if err := q.ApplyPage(q.ApplySorts(query)).Find(&reviews).Error; err != nil {
		return nil, 0, err
	}

	return reviews, total, nil
}

// ReviewStats 商品评价统计，仅计入已通过的评价
type ReviewStats struct {
	Count        int64
	Average      float64
	Distribution map[int]int64
}

// Stats 获取商品已通过评价的数量、平均分和评分分布
func (r *ReviewRepository) Stats(ctx context.Context, productID int64) (*ReviewStats, error) {
	distribution, err := r.RatingDistribution(ctx, productID)
	if err != nil {
		return nil, err
	}

	stats := &ReviewStats{Distribution: distribution}
	var sum int64
	for rating, count := range distribution {
		stats.Count += count
		sum += int64(rating) * count
	}
	if stats.Count > 0 {
		stats.Average = float64(sum) / float64(stats.Count)
	}
	return stats, nil
}

// RatingDistribution 获取已通过评价的评分分布，1 到 5 分均有键
func (r *ReviewRepository) RatingDistribution(ctx context.Context, productID int64) (map[int]int64, error) {
	type ratingCount struct {
		Rating int
		Count  int64
	}
	var results []ratingCount

	q := scope.New(ReviewForProduct(productID), ReviewApproved())
	err := q.ApplyFilters(r.db.WithContext(ctx).Model(&models.Review{})).
		Select("rating, COUNT(*) AS count").
		Group("rating").
		Scan(&results).Error
	if err != nil {
		return nil, err
	}

	distribution := make(map[int]int64, models.MaxRating)
	for rating := models.MinRating; rating <= models.MaxRating; rating++ {
		distribution[rating] = 0
	}
	for _, rc := range results {
		distribution[rc.Rating] = rc.Count
	}
	return distribution, nil
}
