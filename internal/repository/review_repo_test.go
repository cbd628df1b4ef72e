// Package repository 评价仓储单元测试
package repository

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/dumeirei/storefront-catalog/internal/models"
	"github.com/dumeirei/storefront-catalog/internal/scope"
)

func TestReviewRepository_Create(t *testing.T) {
	db := setupTestDB(t)
	repo := NewReviewRepository(db)
	ctx := context.Background()
	category := createTestCategory(t, db, "数码", nil)
	product := createTestProduct(t, db, category.ID, nil)

	review := &models.Review{
		UserID:    7,
		ProductID: product.ID,
		Rating:    4,
		Comment:   "音质不错",
		Pros:      datatypes.NewJSONSlice([]string{"续航长"}),
		Cons:      datatypes.NewJSONSlice([]string{"偏重"}),
	}
	require.NoError(t, repo.Create(ctx, review))
	assert.NotZero(t, review.ID)

	found, err := repo.GetByID(ctx, review.ID)
	require.NoError(t, err)
	assert.True(t, found.IsPending())
	assert.False(t, found.VerifiedPurchase)
	assert.Equal(t, []string{"续航长"}, []string(found.Pros))
	assert.Equal(t, "★★★★☆", found.RatingStars())

	t.Run("商品不存在", func(t *testing.T) {
		err := repo.Create(ctx, &models.Review{UserID: 1, ProductID: 99999, Rating: 5})
		assert.Error(t, err)
	})
}

func TestReviewRepository_GetByIDWithProduct(t *testing.T) {
	db := setupTestDB(t)
	repo := NewReviewRepository(db)
	ctx := context.Background()
	category := createTestCategory(t, db, "数码", nil)
	product := createTestProduct(t, db, category.ID, nil)
	review := createTestReview(t, db, 1, product.ID, 5, models.ReviewStatusApproved)

	found, err := repo.GetByIDWithProduct(ctx, review.ID)
	require.NoError(t, err)
	require.NotNil(t, found.Product)
	assert.Equal(t, product.ID, found.Product.ID)
	require.NotNil(t, found.Product.Category)
	assert.Equal(t, "数码", found.Product.Category.Name)

	_, err = repo.GetByIDWithProduct(ctx, 99999)
	assert.ErrorIs(t, err, gorm.ErrRecordNotFound)
}

func TestReviewRepository_Delete(t *testing.T) {
	db := setupTestDB(t)
	repo := NewReviewRepository(db)
	ctx := context.Background()
	category := createTestCategory(t, db, "数码", nil)
	product := createTestProduct(t, db, category.ID, nil)
	review := createTestReview(t, db, 1, product.ID, 5, models.ReviewStatusPending)

	require.NoError(t, repo.Delete(ctx, review.ID))
	_, err := repo.GetByID(ctx, review.ID)
	assert.ErrorIs(t, err, gorm.ErrRecordNotFound)
	assert.ErrorIs(t, repo.Delete(ctx, review.ID), gorm.ErrRecordNotFound)
}

// ==================== 审核测试 ====================

func TestReviewRepository_UpdateStatus(t *testing.T) {
	db := setupTestDB(t)
	repo := NewReviewRepository(db)
	ctx := context.Background()
	category := createTestCategory(t, db, "数码", nil)
	product := createTestProduct(t, db, category.ID, nil)

	t.Run("待审核可通过", func(t *testing.T) {
		review := createTestReview(t, db, 1, product.ID, 5, models.ReviewStatusPending)
		updated, err := repo.UpdateStatus(ctx, review.ID, models.ReviewStatusApproved)
		require.NoError(t, err)
		assert.True(t, updated)

		found, err := repo.GetByID(ctx, review.ID)
		require.NoError(t, err)
		assert.True(t, found.IsApproved())
	})

	t.Run("已通过不能再被拒绝", func(t *testing.T) {
		review := createTestReview(t, db, 2, product.ID, 5, models.ReviewStatusApproved)
		updated, err := repo.UpdateStatus(ctx, review.ID, models.ReviewStatusRejected)
		require.NoError(t, err)
		assert.False(t, updated)

		found, err := repo.GetByID(ctx, review.ID)
		require.NoError(t, err)
		assert.True(t, found.IsApproved())
	})

	t.Run("不存在", func(t *testing.T) {
		updated, err := repo.UpdateStatus(ctx, 99999, models.ReviewStatusApproved)
		require.NoError(t, err)
		assert.False(t, updated)
	})
}

func TestReviewRepository_MarkAsVerified(t *testing.T) {
	db := setupTestDB(t)
	repo := NewReviewRepository(db)
	ctx := context.Background()
	category := createTestCategory(t, db, "数码", nil)
	product := createTestProduct(t, db, category.ID, nil)
	review := createTestReview(t, db, 1, product.ID, 5, models.ReviewStatusPending)

	updated, err := repo.MarkAsVerified(ctx, review.ID)
	require.NoError(t, err)
	assert.True(t, updated)

	updated, err = repo.MarkAsVerified(ctx, review.ID)
	require.NoError(t, err)
	assert.False(t, updated)

	found, err := repo.GetByID(ctx, review.ID)
	require.NoError(t, err)
	assert.True(t, found.VerifiedPurchase)
}

func TestReviewRepository_UserHasReviewed(t *testing.T) {
	db := setupTestDB(t)
	repo := NewReviewRepository(db)
	ctx := context.Background()
	category := createTestCategory(t, db, "数码", nil)
	product := createTestProduct(t, db, category.ID, nil)

	has, err := repo.UserHasReviewed(ctx, 1, product.ID)
	require.NoError(t, err)
	assert.False(t, has)

	statuses := []models.ReviewStatus{
		models.ReviewStatusPending,
		models.ReviewStatusApproved,
		models.ReviewStatusRejected,
	}
	for i, status := range statuses {
		userID := int64(i + 10)
		t.Run(string(status), func(t *testing.T) {
			createTestReview(t, db, userID, product.ID, 3, status)
			has, err := repo.UserHasReviewed(ctx, userID, product.ID)
			require.NoError(t, err)
			assert.True(t, has)
		})
	}
}

// ==================== List / 统计测试 ====================

func TestReviewRepository_List(t *testing.T) {
	db := setupTestDB(t)
	repo := NewReviewRepository(db)
	ctx := context.Background()
	category := createTestCategory(t, db, "数码", nil)
	product := createTestProduct(t, db, category.ID, nil)
	other := createTestProduct(t, db, category.ID, nil)
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	mk := func(userID, productID int64, rating int, status models.ReviewStatus, verified bool, offset time.Duration) *models.Review {
		review := &models.Review{
			UserID:           userID,
			ProductID:        productID,
			Rating:           rating,
			Status:           status,
			VerifiedPurchase: verified,
			CreatedAt:        base.Add(offset),
		}
		require.NoError(t, db.Create(review).Error)
		return review
	}

	r1 := mk(1, product.ID, 5, models.ReviewStatusApproved, true, 0)
	r2 := mk(2, product.ID, 3, models.ReviewStatusApproved, false, time.Hour)
	r3 := mk(3, product.ID, 4, models.ReviewStatusPending, true, 2*time.Hour)
	r4 := mk(1, other.ID, 2, models.ReviewStatusApproved, false, 3*time.Hour)

	tests := []struct {
		name     string
		query    scope.Query
		expected []int64
	}{
		{"商品下已通过，按最新", scope.New(ReviewForProduct(product.ID), ReviewApproved()), []int64{r2.ID, r1.ID}},
		{"待审核", scope.New(ReviewPending()), []int64{r3.ID}},
		{"已验证购买", scope.New(ReviewVerified()).OrderBy(scope.Asc("id")), []int64{r1.ID, r3.ID}},
		{"评分等于", scope.New(ReviewRatingEquals(3)), []int64{r2.ID}},
		{"最低评分，按评分降序", scope.New(ReviewMinRating(3)).OrderBy(ReviewOrderRatingDesc.Sorts()...), []int64{r1.ID, r3.ID, r2.ID}},
		{"用户", scope.New(ReviewByUser(1)), []int64{r4.ID, r1.ID}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			list, total, err := repo.List(ctx, tt.query)
			require.NoError(t, err)
			assert.Equal(t, int64(len(tt.expected)), total)
			ids := make([]int64, 0, len(list))
			for _, r := range list {
				ids = append(ids, r.ID)
			}
			assert.Equal(t, tt.expected, ids)
		})
	}
}

func TestReviewRepository_Stats(t *testing.T) {
	db := setupTestDB(t)
	repo := NewReviewRepository(db)
	ctx := context.Background()
	category := createTestCategory(t, db, "数码", nil)
	product := createTestProduct(t, db, category.ID, nil)

	t.Run("没有评价", func(t *testing.T) {
		stats, err := repo.Stats(ctx, product.ID)
		require.NoError(t, err)
		assert.Equal(t, int64(0), stats.Count)
		assert.Equal(t, 0.0, stats.Average)
		assert.Len(t, stats.Distribution, 5)
	})

	createTestReview(t, db, 1, product.ID, 4, models.ReviewStatusApproved)
	createTestReview(t, db, 2, product.ID, 5, models.ReviewStatusApproved)
	createTestReview(t, db, 3, product.ID, 3, models.ReviewStatusApproved)
	createTestReview(t, db, 4, product.ID, 1, models.ReviewStatusPending)

	stats, err := repo.Stats(ctx, product.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(3), stats.Count)
	assert.InDelta(t, 4.0, stats.Average, 1e-9)
	assert.Equal(t, map[int]int64{1: 0, 2: 0, 3: 1, 4: 1, 5: 1}, stats.Distribution)
}
