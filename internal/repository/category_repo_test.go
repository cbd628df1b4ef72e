// Package repository 分类仓储单元测试
package repository

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	apperrors "github.com/dumeirei/storefront-catalog/internal/common/errors"
	"github.com/dumeirei/storefront-catalog/internal/models"
	"github.com/dumeirei/storefront-catalog/internal/scope"
)

func TestCategoryRepository_Create(t *testing.T) {
	db := setupTestDB(t)
	repo := NewCategoryRepository(db)
	ctx := context.Background()

	category := &models.Category{
		Name:      "测试分类",
		Slug:      "test-category",
		SortOrder: 100,
		IsActive:  true,
	}

	err := repo.Create(ctx, category)
	require.NoError(t, err)
	assert.NotZero(t, category.ID)

	t.Run("slug 重复", func(t *testing.T) {
		dup := &models.Category{Name: "另一个", Slug: "test-category"}
		err := repo.Create(ctx, dup)
		assert.ErrorIs(t, err, gorm.ErrDuplicatedKey)
	})
}

func TestCategoryRepository_GetByID(t *testing.T) {
	db := setupTestDB(t)
	repo := NewCategoryRepository(db)
	ctx := context.Background()

	category := createTestCategory(t, db, "测试分类", nil)

	found, err := repo.GetByID(ctx, category.ID)
	require.NoError(t, err)
	assert.Equal(t, category.Name, found.Name)
	assert.True(t, found.IsRoot())

	t.Run("不存在", func(t *testing.T) {
		_, err := repo.GetByID(ctx, 99999)
		assert.ErrorIs(t, err, gorm.ErrRecordNotFound)
	})

	t.Run("已删除的分类对默认读取不可见", func(t *testing.T) {
		deleted := createTestCategory(t, db, "已删除", nil)
		require.NoError(t, repo.SoftDelete(ctx, deleted.ID, time.Now()))

		_, err := repo.GetByID(ctx, deleted.ID)
		assert.ErrorIs(t, err, gorm.ErrRecordNotFound)

		found, err := repo.GetByIDUnscoped(ctx, deleted.ID)
		require.NoError(t, err)
		assert.True(t, found.IsDeleted())
	})
}

func TestCategoryRepository_GetBySlug(t *testing.T) {
	db := setupTestDB(t)
	repo := NewCategoryRepository(db)
	ctx := context.Background()

	category := createTestCategory(t, db, "数码", nil)

	found, err := repo.GetBySlug(ctx, category.Slug)
	require.NoError(t, err)
	assert.Equal(t, category.ID, found.ID)

	exists, err := repo.SlugExists(ctx, category.Slug)
	require.NoError(t, err)
	assert.True(t, exists)

	exists, err = repo.SlugExists(ctx, "missing")
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestCategoryRepository_UpdateFields(t *testing.T) {
	db := setupTestDB(t)
	repo := NewCategoryRepository(db)
	ctx := context.Background()

	category := createTestCategory(t, db, "原名称", nil)

	err := repo.UpdateFields(ctx, category.ID, map[string]interface{}{"name": "新名称", "sort_order": 5})
	require.NoError(t, err)

	found, err := repo.GetByID(ctx, category.ID)
	require.NoError(t, err)
	assert.Equal(t, "新名称", found.Name)
	assert.Equal(t, 5, found.SortOrder)

	err = repo.UpdateFields(ctx, 99999, map[string]interface{}{"name": "x"})
	assert.ErrorIs(t, err, gorm.ErrRecordNotFound)
}

func TestCategoryRepository_SoftDeleteAndRestore(t *testing.T) {
	db := setupTestDB(t)
	repo := NewCategoryRepository(db)
	ctx := context.Background()

	category := createTestCategory(t, db, "季节性", nil)
	now := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

	require.NoError(t, repo.SoftDelete(ctx, category.ID, now))

	t.Run("重复软删除", func(t *testing.T) {
		err := repo.SoftDelete(ctx, category.ID, now)
		assert.ErrorIs(t, err, gorm.ErrRecordNotFound)
	})

	require.NoError(t, repo.Restore(ctx, category.ID))
	found, err := repo.GetByID(ctx, category.ID)
	require.NoError(t, err)
	assert.Nil(t, found.DeletedAt)
}

func TestCategoryRepository_Delete_CascadesProducts(t *testing.T) {
	db := setupTestDB(t)
	repo := NewCategoryRepository(db)
	ctx := context.Background()

	category := createTestCategory(t, db, "待删除", nil)
	child := createTestCategory(t, db, "子分类", &category.ID)
	createTestProduct(t, db, category.ID, nil)
	createTestProduct(t, db, category.ID, nil)

	require.NoError(t, repo.Delete(ctx, category.ID))

	var count int64
	db.Model(&models.Product{}).Where("category_id = ?", category.ID).Count(&count)
	assert.Equal(t, int64(0), count)

	// 子分类保留并成为顶级分类
	orphan, err := repo.GetByID(ctx, child.ID)
	require.NoError(t, err)
	assert.Nil(t, orphan.ParentID)

	assert.ErrorIs(t, repo.Delete(ctx, category.ID), gorm.ErrRecordNotFound)
}

func TestCategoryRepository_ParentAndChildren(t *testing.T) {
	db := setupTestDB(t)
	repo := NewCategoryRepository(db)
	ctx := context.Background()

	root := createTestCategory(t, db, "电子产品", nil)
	phones := createTestCategory(t, db, "手机", &root.ID)
	laptops := createTestCategory(t, db, "电脑", &root.ID)
	removed := createTestCategory(t, db, "已下线", &root.ID)
	require.NoError(t, repo.SoftDelete(ctx, removed.ID, time.Now()))
	require.NoError(t, repo.UpdateFields(ctx, laptops.ID, map[string]interface{}{"sort_order": -1}))

	parent, err := repo.Parent(ctx, phones)
	require.NoError(t, err)
	assert.Equal(t, root.ID, parent.ID)

	none, err := repo.Parent(ctx, root)
	require.NoError(t, err)
	assert.Nil(t, none)

	children, err := repo.Children(ctx, root.ID)
	require.NoError(t, err)
	require.Len(t, children, 2)
	assert.Equal(t, laptops.ID, children[0].ID)
	assert.Equal(t, phones.ID, children[1].ID)

	leaves, err := repo.Children(ctx, phones.ID)
	require.NoError(t, err)
	assert.Empty(t, leaves)
}

// ==================== AncestorPath 测试 ====================

func TestCategoryRepository_AncestorPath(t *testing.T) {
	db := setupTestDB(t)
	repo := NewCategoryRepository(db)
	ctx := context.Background()

	electronics := createTestCategory(t, db, "Electronics", nil)
	phones := createTestCategory(t, db, "Phones", &electronics.ID)
	smartphones := createTestCategory(t, db, "Smartphones", &phones.ID)

	t.Run("三层路径从根开始", func(t *testing.T) {
		path, err := repo.AncestorPath(ctx, smartphones.ID, 0)
		require.NoError(t, err)
		require.Len(t, path, 3)
		assert.Equal(t, "Electronics", path[0].Name)
		assert.Equal(t, "Phones", path[1].Name)
		assert.Equal(t, "Smartphones", path[2].Name)
	})

	t.Run("顶级分类只含自身", func(t *testing.T) {
		path, err := repo.AncestorPath(ctx, electronics.ID, 0)
		require.NoError(t, err)
		require.Len(t, path, 1)
		assert.Equal(t, electronics.ID, path[0].ID)
	})

	t.Run("超过最大深度", func(t *testing.T) {
		_, err := repo.AncestorPath(ctx, smartphones.ID, 2)
		assert.ErrorIs(t, err, apperrors.ErrCategoryTooDeep)
	})

	t.Run("不存在", func(t *testing.T) {
		_, err := repo.AncestorPath(ctx, 99999, 0)
		assert.ErrorIs(t, err, gorm.ErrRecordNotFound)
	})

	t.Run("祖先已软删除仍出现在路径中", func(t *testing.T) {
		require.NoError(t, repo.SoftDelete(ctx, phones.ID, time.Now()))
		t.Cleanup(func() { _ = repo.Restore(ctx, phones.ID) })

		path, err := repo.AncestorPath(ctx, smartphones.ID, 0)
		require.NoError(t, err)
		assert.Len(t, path, 3)
	})
}

func TestCategoryRepository_AncestorPath_Cycle(t *testing.T) {
	db := setupTestDB(t)
	repo := NewCategoryRepository(db)
	ctx := context.Background()

	a := createTestCategory(t, db, "A", nil)
	b := createTestCategory(t, db, "B", &a.ID)
	// 直接写库制造 A -> B -> A
	require.NoError(t, db.Model(&models.Category{}).Where("id = ?", a.ID).Update("parent_id", b.ID).Error)

	done := make(chan error, 1)
	go func() {
		_, err := repo.AncestorPath(ctx, a.ID, 0)
		done <- err
	}()

	select {
	case err := <-done:
		require.Error(t, err)
		assert.True(t, errors.Is(err, apperrors.ErrCategoryCycle))
	case <-time.After(5 * time.Second):
		t.Fatal("AncestorPath did not terminate on a cyclic parent chain")
	}
}

func TestCategoryRepository_WouldCreateCycle(t *testing.T) {
	db := setupTestDB(t)
	repo := NewCategoryRepository(db)
	ctx := context.Background()

	root := createTestCategory(t, db, "根", nil)
	mid := createTestCategory(t, db, "中", &root.ID)
	leaf := createTestCategory(t, db, "叶", &mid.ID)
	other := createTestCategory(t, db, "其他", nil)

	tests := []struct {
		name     string
		id       int64
		parentID int64
		expected bool
	}{
		{"以自身为父", root.ID, root.ID, true},
		{"以后代为父", root.ID, leaf.ID, true},
		{"以直接子分类为父", mid.ID, leaf.ID, true},
		{"移动到无关分类下", leaf.ID, other.ID, false},
		{"移动到祖先下", leaf.ID, root.ID, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cycle, err := repo.WouldCreateCycle(ctx, tt.id, tt.parentID, 0)
			require.NoError(t, err)
			assert.Equal(t, tt.expected, cycle)
		})
	}
}

func TestCategoryRepository_HasActiveProducts(t *testing.T) {
	db := setupTestDB(t)
	repo := NewCategoryRepository(db)
	ctx := context.Background()

	category := createTestCategory(t, db, "服饰", nil)

	has, err := repo.HasActiveProducts(ctx, category.ID)
	require.NoError(t, err)
	assert.False(t, has)

	createTestProduct(t, db, category.ID, func(p *models.Product) { p.Status = models.ProductStatusDraft })
	has, err = repo.HasActiveProducts(ctx, category.ID)
	require.NoError(t, err)
	assert.False(t, has)

	deletedAt := time.Now()
	createTestProduct(t, db, category.ID, func(p *models.Product) { p.DeletedAt = &deletedAt })
	has, err = repo.HasActiveProducts(ctx, category.ID)
	require.NoError(t, err)
	assert.False(t, has)

	createTestProduct(t, db, category.ID, nil)
	has, err = repo.HasActiveProducts(ctx, category.ID)
	require.NoError(t, err)
	assert.True(t, has)
}

// ==================== List / Tree 测试 ====================

func TestCategoryRepository_List(t *testing.T) {
	db := setupTestDB(t)
	repo := NewCategoryRepository(db)
	ctx := context.Background()

	root := createTestCategory(t, db, "B 根", nil)
	createTestCategory(t, db, "A 根", nil)
	inactive := createTestCategory(t, db, "停用", nil)
	require.NoError(t, repo.UpdateFields(ctx, inactive.ID, map[string]interface{}{"is_active": false}))
	createTestCategory(t, db, "子", &root.ID)

	t.Run("启用的顶级分类按名称排序", func(t *testing.T) {
		list, total, err := repo.List(ctx, scope.New(CategoryActive(), CategoryRoots(), NotDeleted()))
		require.NoError(t, err)
		assert.Equal(t, int64(2), total)
		require.Len(t, list, 2)
		assert.Equal(t, "A 根", list[0].Name)
		assert.Equal(t, "B 根", list[1].Name)
	})

	t.Run("分页不影响总数", func(t *testing.T) {
		list, total, err := repo.List(ctx, scope.New(NotDeleted()).Page(0, 2))
		require.NoError(t, err)
		assert.Equal(t, int64(4), total)
		assert.Len(t, list, 2)
	})

	t.Run("软删除过滤", func(t *testing.T) {
		require.NoError(t, repo.SoftDelete(ctx, inactive.ID, time.Now()))
		_, total, err := repo.List(ctx, scope.New(NotDeleted()))
		require.NoError(t, err)
		assert.Equal(t, int64(3), total)

		deleted, total, err := repo.List(ctx, scope.New(OnlyDeleted()))
		require.NoError(t, err)
		assert.Equal(t, int64(1), total)
		assert.Equal(t, inactive.ID, deleted[0].ID)
	})
}

func TestCategoryRepository_Tree(t *testing.T) {
	db := setupTestDB(t)
	repo := NewCategoryRepository(db)
	ctx := context.Background()

	electronics := createTestCategory(t, db, "Electronics", nil)
	phones := createTestCategory(t, db, "Phones", &electronics.ID)
	createTestCategory(t, db, "Smartphones", &phones.ID)
	createTestCategory(t, db, "Laptops", &electronics.ID)
	createTestCategory(t, db, "Books", nil)

	roots, err := repo.Tree(ctx, scope.New(CategoryActive(), NotDeleted()))
	require.NoError(t, err)
	require.Len(t, roots, 2)
	assert.Equal(t, "Books", roots[0].Name)
	assert.Equal(t, "Electronics", roots[1].Name)

	require.Len(t, roots[1].Children, 2)
	assert.Equal(t, "Laptops", roots[1].Children[0].Name)
	assert.Equal(t, "Phones", roots[1].Children[1].Name)

	// 孙节点不丢失
	require.Len(t, roots[1].Children[1].Children, 1)
	assert.Equal(t, "Smartphones", roots[1].Children[1].Children[0].Name)
}

func TestBuildTree(t *testing.T) {
	t.Run("父节点缺失的节点被丢弃", func(t *testing.T) {
		roots := BuildTree([]*models.Category{
			{ID: 1, Name: "root"},
			{ID: 2, Name: "orphan", ParentID: int64Ptr(99)},
			{ID: 3, Name: "child", ParentID: int64Ptr(1)},
		})
		require.Len(t, roots, 1)
		require.Len(t, roots[0].Children, 1)
		assert.Equal(t, "child", roots[0].Children[0].Name)
	})

	t.Run("环中的节点不会导致死循环", func(t *testing.T) {
		roots := BuildTree([]*models.Category{
			{ID: 1, Name: "a", ParentID: int64Ptr(2)},
			{ID: 2, Name: "b", ParentID: int64Ptr(1)},
		})
		assert.Empty(t, roots)
	})

	t.Run("空列表", func(t *testing.T) {
		assert.Empty(t, BuildTree(nil))
	})
}
