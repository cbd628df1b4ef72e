package repository

import (
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/dumeirei/storefront-catalog/internal/common/database"
	"github.com/dumeirei/storefront-catalog/internal/models"
)

// setupTestDB 每个测试独立的内存库，开启外键约束
func setupTestDB(t *testing.T) *gorm.DB {
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

func createTestCategory(t *testing.T, db *gorm.DB, name string, parentID *int64) *models.Category {
	category := &models.Category{
		Name:     name,
		Slug:     "cat-" + uuid.NewString()[:8],
		ParentID: parentID,
		IsActive: true,
	}
	require.NoError(t, db.Create(category).Error)
	return category
}

func createTestProduct(t *testing.T, db *gorm.DB, categoryID int64, mutate func(p *models.Product)) *models.Product {
	suffix := uuid.NewString()[:8]
	product := &models.Product{
		CategoryID: categoryID,
		Name:       "测试商品 " + suffix,
		Slug:       "product-" + suffix,
		SKU:        "SKU-" + suffix,
		Price:      decimal.NewFromInt(100),
		Quantity:   10,
		Status:     models.ProductStatusActive,
	}
	if mutate != nil {
		mutate(product)
	}
	require.NoError(t, db.Create(product).Error)
	return product
}

func createTestReview(t *testing.T, db *gorm.DB, userID, productID int64, rating int, status models.ReviewStatus) *models.Review {
	review := &models.Review{
		UserID:    userID,
		ProductID: productID,
		Rating:    rating,
		Status:    status,
	}
	require.NoError(t, db.Create(review).Error)
	return review
}

func int64Ptr(v int64) *int64 {
	return &v
}
