package catalog

import (
	"context"
	stderrors "errors"
	"strings"
	"unicode/utf8"

	"github.com/dumeirei/storefront-catalog/internal/common/database"
	"github.com/dumeirei/storefront-catalog/internal/common/errors"
	"github.com/dumeirei/storefront-catalog/internal/common/logger"
	"github.com/dumeirei/storefront-catalog/internal/common/slug"
	"github.com/dumeirei/storefront-catalog/internal/common/tracing"
	"github.com/dumeirei/storefront-catalog/internal/models"
	"github.com/dumeirei/storefront-catalog/internal/repository"
	"github.com/dumeirei/storefront-catalog/internal/scope"
)

// maxCategoryNameLength 分类名称最大字符数
const maxCategoryNameLength = 100

// CategoryService 分类服务
type CategoryService struct {
	categoryRepo *repository.CategoryRepository
	opts         Options
}

// NewCategoryService 创建分类服务
func NewCategoryService(categoryRepo *repository.CategoryRepository, opts Options) *CategoryService {
	return &CategoryService{
		categoryRepo: categoryRepo,
		opts:         opts.withDefaults(),
	}
}

// CreateCategoryRequest 创建分类请求
type CreateCategoryRequest struct {
	ParentID    *int64  `json:"parent_id"`
	Name        string  `json:"name"`
	Slug        string  `json:"slug"`
	Description *string `json:"description"`
	IsActive    *bool   `json:"is_active"`
	SortOrder   int     `json:"sort_order"`
}

// UpdateCategoryRequest 更新分类请求，nil 字段保持不变
type UpdateCategoryRequest struct {
	Name        *string `json:"name"`
	Slug        *string `json:"slug"`
	Description *string `json:"description"`
	IsActive    *bool   `json:"is_active"`
	SortOrder   *int    `json:"sort_order"`
}

// CategoryFilter 分类列表过滤条件
type CategoryFilter struct {
	ParentID       *int64
	RootsOnly      bool
	ActiveOnly     bool
	IncludeDeleted bool
	OnlyDeleted    bool // 回收站：仅已软删除
	Page           int
	PageSize       int
}

func validateCategoryName(name string) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return "", errors.ErrInvalidParams.WithMessage("分类名称不能为空")
	}
	if utf8.RuneCountInString(name) > maxCategoryNameLength {
		return "", errors.ErrInvalidParams.WithMessage("分类名称过长")
	}
	return name, nil
}

// Create 创建分类，未指定 slug 时由名称生成，未指定启用状态时默认启用
func (s *CategoryService) Create(ctx context.Context, req *CreateCategoryRequest) (category *models.Category, err error) {
	ctx, span := s.opts.Tracer.StartSpan(ctx, "catalog.category.create", tracing.WithOperation("create"))
	defer func() { tracing.End(span, err) }()

	name, err := validateCategoryName(req.Name)
	if err != nil {
		return nil, err
	}

	if req.ParentID != nil {
		if _, err = s.categoryRepo.GetByID(ctx, *req.ParentID); err != nil {
			return nil, errors.FromDB(err, errors.ErrCategoryNotFound.WithMessage("父分类不存在"))
		}
	}

	categorySlug, err := s.resolveSlug(ctx, req.Slug, name)
	if err != nil {
		return nil, err
	}

	isActive := true
	if req.IsActive != nil {
		isActive = *req.IsActive
	}

	category = &models.Category{
		ParentID:    req.ParentID,
		Name:        name,
		Slug:        categorySlug,
		Description: req.Description,
		IsActive:    isActive,
		SortOrder:   req.SortOrder,
	}
	if err = s.categoryRepo.Create(ctx, category); err != nil {
		return nil, errors.FromDB(err, errors.ErrCategoryNotFound)
	}

	logger.Ctx(ctx).Info("分类已创建",
		logger.Module("catalog"),
		logger.Action("create_category"),
		logger.CategoryID(category.ID),
	)
	return category, nil
}

// resolveSlug 校验显式 slug 或由名称生成唯一 slug
func (s *CategoryService) resolveSlug(ctx context.Context, explicit, name string) (string, error) {
	taken := func(candidate string) (bool, error) {
		return s.categoryRepo.SlugExists(ctx, candidate)
	}

	if explicit == "" {
		generated, err := slug.Unique(name, "category", taken)
		if stderrors.Is(err, slug.ErrExhausted) {
			return "", errors.ErrAlreadyExists.WithMessage("无法生成未被占用的 slug")
		}
		if err != nil {
			return "", errors.FromDB(err, nil)
		}
		return generated, nil
	}

	if !slug.Valid(explicit) {
		return "", errors.ErrInvalidParams.WithMessage("slug 只能包含小写字母、数字和连字符")
	}
	exists, err := taken(explicit)
	if err != nil {
		return "", errors.FromDB(err, nil)
	}
	if exists {
		return "", errors.ErrAlreadyExists.WithMessage("slug 已被占用")
	}
	return explicit, nil
}

// Get 获取未删除的分类
func (s *CategoryService) Get(ctx context.Context, id int64) (*models.Category, error) {
	category, err := s.categoryRepo.GetByID(ctx, id)
	if err != nil {
		return nil, errors.FromDB(err, errors.ErrCategoryNotFound)
	}
	return category, nil
}

// GetBySlug 根据 slug 获取分类
func (s *CategoryService) GetBySlug(ctx context.Context, categorySlug string) (*models.Category, error) {
	category, err := s.categoryRepo.GetBySlug(ctx, categorySlug)
	if err != nil {
		return nil, errors.FromDB(err, errors.ErrCategoryNotFound)
	}
	return category, nil
}

// Update 更新分类属性，父分类通过 SetParent 修改
func (s *CategoryService) Update(ctx context.Context, id int64, req *UpdateCategoryRequest) (*models.Category, error) {
	category, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	fields := make(map[string]interface{})
	if req.Name != nil {
		name, err := validateCategoryName(*req.Name)
		if err != nil {
			return nil, err
		}
		fields["name"] = name
	}
	if req.Slug != nil && *req.Slug != category.Slug {
		newSlug, err := s.resolveSlug(ctx, *req.Slug, category.Name)
		if err != nil {
			return nil, err
		}
		fields["slug"] = newSlug
	}
	if req.Description != nil {
		fields["description"] = *req.Description
	}
	if req.IsActive != nil {
		fields["is_active"] = *req.IsActive
	}
	if req.SortOrder != nil {
		fields["sort_order"] = *req.SortOrder
	}

	if len(fields) == 0 {
		return category, nil
	}
	if err := s.categoryRepo.UpdateFields(ctx, id, fields); err != nil {
		return nil, errors.FromDB(err, errors.ErrCategoryNotFound)
	}

	logger.Ctx(ctx).Info("分类已更新",
		logger.Module("catalog"),
		logger.Action("update_category"),
		logger.CategoryID(id),
	)
	return s.Get(ctx, id)
}

// SetParent 修改父分类，parentID 为 nil 时变为顶级分类；会形成环时拒绝
func (s *CategoryService) SetParent(ctx context.Context, id int64, parentID *int64) (err error) {
	ctx, span := s.opts.Tracer.StartSpan(ctx, "catalog.category.set_parent", tracing.WithCategoryID(id))
	defer func() { tracing.End(span, err) }()

	if _, err = s.Get(ctx, id); err != nil {
		return err
	}

	if parentID != nil {
		if _, err = s.categoryRepo.GetByID(ctx, *parentID); err != nil {
			return errors.FromDB(err, errors.ErrCategoryNotFound.WithMessage("父分类不存在"))
		}
		cycle, cerr := s.categoryRepo.WouldCreateCycle(ctx, id, *parentID, s.opts.Config.MaxCategoryDepth)
		if cerr != nil {
			err = errors.FromDB(cerr, errors.ErrCategoryNotFound)
			return err
		}
		if cycle {
			return errors.ErrCategoryCycle.WithMessage("不能将分类移动到自身或其子分类下")
		}
	}

	if err = s.categoryRepo.UpdateFields(ctx, id, map[string]interface{}{"parent_id": parentID}); err != nil {
		return errors.FromDB(err, errors.ErrCategoryNotFound)
	}

	logger.Ctx(ctx).Info("分类父级已调整",
		logger.Module("catalog"),
		logger.Action("set_parent"),
		logger.CategoryID(id),
	)
	return nil
}

// SoftDelete 软删除分类
func (s *CategoryService) SoftDelete(ctx context.Context, id int64) error {
	if err := s.categoryRepo.SoftDelete(ctx, id, s.opts.Now()); err != nil {
		return errors.FromDB(err, errors.ErrCategoryNotFound)
	}
	logger.Ctx(ctx).Info("分类已删除", logger.Module("catalog"), logger.Action("soft_delete_category"), logger.CategoryID(id))
	return nil
}

// Restore 恢复软删除的分类
func (s *CategoryService) Restore(ctx context.Context, id int64) error {
	if err := s.categoryRepo.Restore(ctx, id); err != nil {
		return errors.FromDB(err, errors.ErrCategoryNotFound)
	}
	logger.Ctx(ctx).Info("分类已恢复", logger.Module("catalog"), logger.Action("restore_category"), logger.CategoryID(id))
	return nil
}

// Delete 物理删除分类及其商品
func (s *CategoryService) Delete(ctx context.Context, id int64) error {
	if err := s.categoryRepo.Delete(ctx, id); err != nil {
		return errors.FromDB(err, errors.ErrCategoryNotFound)
	}
	logger.Ctx(ctx).Warn("分类已永久删除", logger.Module("catalog"), logger.Action("delete_category"), logger.CategoryID(id))
	return nil
}

// Parent 获取父分类，顶级分类返回 nil
func (s *CategoryService) Parent(ctx context.Context, id int64) (*models.Category, error) {
	category, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	parent, err := s.categoryRepo.Parent(ctx, category)
	if err != nil {
		return nil, errors.FromDB(err, errors.ErrCategoryNotFound)
	}
	return parent, nil
}

// Children 获取直接子分类
func (s *CategoryService) Children(ctx context.Context, id int64) ([]*models.Category, error) {
	if _, err := s.Get(ctx, id); err != nil {
		return nil, err
	}
	children, err := s.categoryRepo.Children(ctx, id)
	if err != nil {
		return nil, errors.FromDB(err, nil)
	}
	return children, nil
}

// AncestorPath 面包屑路径，从根到当前分类
func (s *CategoryService) AncestorPath(ctx context.Context, id int64) ([]*models.Category, error) {
	if _, err := s.Get(ctx, id); err != nil {
		return nil, err
	}
	path, err := s.categoryRepo.AncestorPath(ctx, id, s.opts.Config.MaxCategoryDepth)
	if err != nil {
		if errors.IsAppError(err) {
			logger.Ctx(ctx).Error("分类层级异常", logger.CategoryID(id), logger.Err(err))
		}
		return nil, errors.FromDB(err, errors.ErrCategoryNotFound)
	}
	return path, nil
}

// HasActiveProducts 分类下是否有在售商品
func (s *CategoryService) HasActiveProducts(ctx context.Context, id int64) (bool, error) {
	has, err := s.categoryRepo.HasActiveProducts(ctx, id)
	if err != nil {
		return false, errors.FromDB(err, nil)
	}
	return has, nil
}

// List 获取分类列表
func (s *CategoryService) List(ctx context.Context, filter CategoryFilter) (*Page[*models.Category], error) {
	p := database.Pagination{Page: filter.Page, PageSize: filter.PageSize}.
		Normalize(s.opts.Config.DefaultPageSize, s.opts.Config.MaxPageSize)

	q := s.query(filter).Page(p.Offset(), p.PageSize)
	categories, total, err := s.categoryRepo.List(ctx, q)
	if err != nil {
		return nil, errors.FromDB(err, nil)
	}
	return newPage(categories, total, p.Page, p.PageSize), nil
}

// Tree 获取嵌套分类树，activeOnly 时停用分类及其子树被排除
func (s *CategoryService) Tree(ctx context.Context, activeOnly bool) ([]*models.Category, error) {
	tree, err := s.categoryRepo.Tree(ctx, s.query(CategoryFilter{ActiveOnly: activeOnly}))
	if err != nil {
		return nil, errors.FromDB(err, nil)
	}
	return tree, nil
}

func (s *CategoryService) query(filter CategoryFilter) scope.Query {
	q := scope.New()
	switch {
	case filter.OnlyDeleted:
		q = q.Where(repository.OnlyDeleted())
	case !filter.IncludeDeleted:
		q = q.Where(repository.NotDeleted())
	}
	if filter.ActiveOnly {
		q = q.Where(repository.CategoryActive())
	}
	if filter.RootsOnly {
		q = q.Where(repository.CategoryRoots())
	} else if filter.ParentID != nil {
		q = q.Where(repository.CategoryChildrenOf(*filter.ParentID))
	}
	return q
}
