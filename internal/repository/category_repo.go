// Package repository 提供数据访问层
package repository

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"

	apperrors "github.com/dumeirei/storefront-catalog/internal/common/errors"
	"github.com/dumeirei/storefront-catalog/internal/models"
	"github.com/dumeirei/storefront-catalog/internal/scope"
)

// DefaultMaxCategoryDepth 祖先路径默认最大深度
const DefaultMaxCategoryDepth = 64

// CategoryRepository 商品分类仓储
type CategoryRepository struct {
	db *gorm.DB
}

// NewCategoryRepository 创建分类仓储
func NewCategoryRepository(db *gorm.DB) *CategoryRepository {
	return &CategoryRepository{db: db}
}

// Create 创建分类
func (r *CategoryRepository) Create(ctx context.Context, category *models.Category) error {
	return r.db.WithContext(ctx).Create(category).Error
}

// GetByID 根据 ID 获取未删除的分类
func (r *CategoryRepository) GetByID(ctx context.Context, id int64) (*models.Category, error) {
	var category models.Category
	err := r.db.WithContext(ctx).Where("deleted_at IS NULL").First(&category, id).Error
	if err != nil {
		return nil, err
	}
	return &category, nil
}

// GetByIDUnscoped 根据 ID 获取分类（包含已删除）
func (r *CategoryRepository) GetByIDUnscoped(ctx context.Context, id int64) (*models.Category, error) {
	var category models.Category
	err := r.db.WithContext(ctx).First(&category, id).Error
	if err != nil {
		return nil, err
	}
	return &category, nil
}

// GetBySlug 根据 slug 获取未删除的分类
func (r *CategoryRepository) GetBySlug(ctx context.Context, slug string) (*models.Category, error) {
	var category models.Category
	err := r.db.WithContext(ctx).
		Where("slug = ? AND deleted_at IS NULL", slug).
		First(&category).Error
	if err != nil {
		return nil, err
	}
	return &category, nil
}

// SlugExists slug 是否已被占用（已删除的记录同样占用）
func (r *CategoryRepository) SlugExists(ctx context.Context, slug string) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&models.Category{}).Where("slug = ?", slug).Count(&count).Error
	return count > 0, err
}

// Update 更新分类
func (r *CategoryRepository) Update(ctx context.Context, category *models.Category) error {
	return r.db.WithContext(ctx).Save(category).Error
}

// UpdateFields 更新指定字段
func (r *CategoryRepository) UpdateFields(ctx context.Context, id int64, fields map[string]interface{}) error {
	result := r.db.WithContext(ctx).Model(&models.Category{}).
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

// SoftDelete 软删除分类
func (r *CategoryRepository) SoftDelete(ctx context.Context, id int64, at time.Time) error {
	result := r.db.WithContext(ctx).Model(&models.Category{}).
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

// Restore 恢复软删除的分类
func (r *CategoryRepository) Restore(ctx context.Context, id int64) error {
	result := r.db.WithContext(ctx).Model(&models.Category{}).
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

// Delete 物理删除分类，其下商品随外键级联删除，子分类变为顶级分类
func (r *CategoryRepository) Delete(ctx context.Context, id int64) error {
	result := r.db.WithContext(ctx).Delete(&models.Category{}, id)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

// Parent 获取父分类，顶级分类返回 (nil, nil)
func (r *CategoryRepository) Parent(ctx context.Context, category *models.Category) (*models.Category, error) {
	if category.ParentID == nil {
		return nil, nil
	}
	return r.GetByIDUnscoped(ctx, *category.ParentID)
}

// Children 获取未删除的直接子分类
func (r *CategoryRepository) Children(ctx context.Context, id int64) ([]*models.Category, error) {
	categories, _, err := r.List(ctx, scope.New(CategoryChildrenOf(id), NotDeleted()))
	return categories, err
}

// AncestorPath 获取从根到当前分类（含自身）的路径
// 父链出现环时返回 ErrCategoryCycle，超过 maxDepth 时返回 ErrCategoryTooDeep
func (r *CategoryRepository) AncestorPath(ctx context.Context, id int64, maxDepth int) ([]*models.Category, error) {
	if maxDepth <= 0 {
		maxDepth = DefaultMaxCategoryDepth
	}

	var path []*models.Category
	visited := make(map[int64]struct{})
	currentID := id

	for {
		if _, seen := visited[currentID]; seen {
			return nil, apperrors.ErrCategoryCycle.WithMessage(
				fmt.Sprintf("分类 %d 的父链在 %d 处形成环", id, currentID))
		}
		if len(path) >= maxDepth {
			return nil, apperrors.ErrCategoryTooDeep.WithMessage(
				fmt.Sprintf("分类 %d 的层级超过 %d", id, maxDepth))
		}
		visited[currentID] = struct{}{}

		category, err := r.GetByIDUnscoped(ctx, currentID)
		if err != nil {
			return nil, err
		}
		path = append(path, category)

		if category.ParentID == nil {
			break
		}
		currentID = *category.ParentID
	}

	// 反转为根在前
	for i, j := 0, len(path)-1; i < j; i, j = i+1, j-1 {
		path[i], path[j] = path[j], path[i]
	}
	return path, nil
}

// WouldCreateCycle 将 id 的父分类设为 parentID 是否会形成环
func (r *CategoryRepository) WouldCreateCycle(ctx context.Context, id, parentID int64, maxDepth int) (bool, error) {
	if id == parentID {
		return true, nil
	}
	path, err := r.AncestorPath(ctx, parentID, maxDepth)
	if err != nil {
		if apperrors.ErrCategoryCycle.Is(err) {
			return true, nil
		}
		return false, err
	}
	for _, c := range path {
		if c.ID == id {
			return true, nil
		}
	}
	return false, nil
}

// HasActiveProducts 分类下是否存在在售且未删除的商品
func (r *CategoryRepository) HasActiveProducts(ctx context.Context, id int64) (bool, error) {
	var count int64
	q := scope.New(ProductInCategory(id), ProductActive(), NotDeleted())
	err := q.ApplyFilters(r.db.WithContext(ctx).Model(&models.Product{})).Count(&count).Error
	return count > 0, err
}

// List 按查询条件获取分类列表及总数，未指定排序时按排序值、名称排序
func (r *CategoryRepository) List(ctx context.Context, q scope.Query) ([]*models.Category, int64, error) {
	var categories []*models.Category
	var total int64

	query := q.ApplyFilters(r.db.WithContext(ctx).Model(&models.Category{}))
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	if len(q.Sorts) == 0 {
		q = q.OrderBy(CategoryOrdered()...)
	}
	if err := q.ApplyPage(q.ApplySorts(query)).Find(&categories).Error; err != nil {
		return nil, 0, err
	}

	return categories, total, nil
}

// Tree 按查询条件获取分类并构建嵌套树
func (r *CategoryRepository) Tree(ctx context.Context, q scope.Query) ([]*models.Category, error) {
	q.Offset, q.Limit = 0, 0
	categories, _, err := r.List(ctx, q)
	if err != nil {
		return nil, err
	}
	return BuildTree(categories), nil
}

// BuildTree 将扁平列表构建为树，父分类不在列表中的节点被丢弃，同级保持输入顺序
func BuildTree(categories []*models.Category) []*models.Category {
	byParent := make(map[int64][]*models.Category)
	var roots []*models.Category
	for _, cat := range categories {
		cat.Children = nil
		if cat.ParentID == nil {
			roots = append(roots, cat)
			continue
		}
		byParent[*cat.ParentID] = append(byParent[*cat.ParentID], cat)
	}

	// 自底向上挂载，子节点完整后再复制进父节点
	var attach func(node *models.Category)
	attach = func(node *models.Category) {
		for _, child := range byParent[node.ID] {
			attach(child)
			node.Children = append(node.Children, *child)
		}
	}
	for _, root := range roots {
		attach(root)
	}

	return roots
}
