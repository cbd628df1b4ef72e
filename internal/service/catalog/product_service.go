package catalog

import (
	"context"
	stderrors "errors"
	"strings"

	"github.com/shopspring/decimal"
	"gorm.io/datatypes"

	"github.com/dumeirei/storefront-catalog/internal/common/database"
	"github.com/dumeirei/storefront-catalog/internal/common/errors"
	"github.com/dumeirei/storefront-catalog/internal/common/logger"
	"github.com/dumeirei/storefront-catalog/internal/common/slug"
	"github.com/dumeirei/storefront-catalog/internal/common/tracing"
	"github.com/dumeirei/storefront-catalog/internal/common/utils"
	"github.com/dumeirei/storefront-catalog/internal/models"
	"github.com/dumeirei/storefront-catalog/internal/repository"
	"github.com/dumeirei/storefront-catalog/internal/scope"
)

// ProductService 商品服务
type ProductService struct {
	productRepo  *repository.ProductRepository
	categoryRepo *repository.CategoryRepository
	opts         Options
}

// NewProductService 创建商品服务
func NewProductService(
	productRepo *repository.ProductRepository,
	categoryRepo *repository.CategoryRepository,
	opts Options,
) *ProductService {
	return &ProductService{
		productRepo:  productRepo,
		categoryRepo: categoryRepo,
		opts:         opts.withDefaults(),
	}
}

// CreateProductRequest 创建商品请求
type CreateProductRequest struct {
	CategoryID       int64                  `json:"category_id"`
	Name             string                 `json:"name"`
	Slug             string                 `json:"slug"`
	Description      string                 `json:"description"`
	ShortDescription *string                `json:"short_description"`
	Price            decimal.Decimal        `json:"price"`
	ComparePrice     *decimal.Decimal       `json:"compare_price"`
	Quantity         int                    `json:"quantity"`
	SKU              string                 `json:"sku"`
	Status           models.ProductStatus   `json:"status"`
	Attributes       map[string]interface{} `json:"attributes"`
	Tags             []string               `json:"tags"`
}

// UpdateProductRequest 更新商品请求，nil 字段保持不变
type UpdateProductRequest struct {
	CategoryID        *int64                 `json:"category_id"`
	Name              *string                `json:"name"`
	Description       *string                `json:"description"`
	ShortDescription  *string                `json:"short_description"`
	Price             *decimal.Decimal       `json:"price"`
	ComparePrice      *decimal.Decimal       `json:"compare_price"`
	ClearComparePrice bool                   `json:"clear_compare_price"`
	Status            *models.ProductStatus  `json:"status"`
	Attributes        map[string]interface{} `json:"attributes"`
	Tags              []string               `json:"tags"`
}

// ProductFilter 商品列表过滤条件
type ProductFilter struct {
	CategoryID  *int64
	ActiveOnly  bool
	InStockOnly bool
	OnSaleOnly  bool
	MinPrice    *decimal.Decimal
	MaxPrice    *decimal.Decimal
	Search      string
	OnlyDeleted bool // 回收站：仅已软删除
	Order       repository.ProductOrder
	Page        int
	PageSize    int
}

// ProductView 商品及其派生属性
type ProductView struct {
	*models.Product
	AverageRating      float64 `json:"average_rating"`
	ReviewCount        int64   `json:"review_count"`
	HasDiscount        bool    `json:"has_discount"`
	DiscountPercentage int     `json:"discount_percentage"`
	InStock            bool    `json:"in_stock"`
	IsNew              bool    `json:"is_new"`
}

func validateMoney(field string, v decimal.Decimal) error {
	if v.IsNegative() {
		return errors.ErrInvalidParams.WithMessage(field + "不能为负数")
	}
	return nil
}

func (req *CreateProductRequest) validate() error {
	if strings.TrimSpace(req.Name) == "" {
		return errors.ErrInvalidParams.WithMessage("商品名称不能为空")
	}
	if strings.TrimSpace(req.SKU) == "" {
		return errors.ErrInvalidParams.WithMessage("SKU 不能为空")
	}
	if err := validateMoney("价格", req.Price); err != nil {
		return err
	}
	if req.ComparePrice != nil {
		if err := validateMoney("划线价", *req.ComparePrice); err != nil {
			return err
		}
	}
	if req.Quantity < 0 {
		return errors.ErrInvalidParams.WithMessage("库存不能为负数")
	}
	if req.Status != "" && !req.Status.Valid() {
		return errors.ErrInvalidParams.WithMessage("商品状态无效")
	}
	return nil
}

// Create 创建商品
func (s *ProductService) Create(ctx context.Context, req *CreateProductRequest) (product *models.Product, err error) {
	ctx, span := s.opts.Tracer.StartSpan(ctx, "catalog.product.create", tracing.WithCategoryID(req.CategoryID))
	defer func() { tracing.End(span, err) }()

	if err = req.validate(); err != nil {
		return nil, err
	}
	if err = s.requireCategory(ctx, req.CategoryID); err != nil {
		return nil, err
	}

	sku := strings.TrimSpace(req.SKU)
	exists, err := s.productRepo.SKUExists(ctx, sku)
	if err != nil {
		return nil, errors.FromDB(err, nil)
	}
	if exists {
		return nil, errors.ErrAlreadyExists.WithMessage("SKU 已存在")
	}

	productSlug, err := s.resolveSlug(ctx, req.Slug, req.Name, sku)
	if err != nil {
		return nil, err
	}

	status := req.Status
	if status == "" {
		status = models.ProductStatusDraft
	}

	product = &models.Product{
		CategoryID:       req.CategoryID,
		Name:             strings.TrimSpace(req.Name),
		Slug:             productSlug,
		Description:      req.Description,
		ShortDescription: req.ShortDescription,
		Price:            req.Price,
		Quantity:         req.Quantity,
		SKU:              sku,
		Status:           status,
		Tags:             models.TagList(utils.CleanStrings(req.Tags)),
	}
	if req.ComparePrice != nil {
		product.ComparePrice = decimal.NewNullDecimal(*req.ComparePrice)
	}
	if req.Attributes != nil {
		product.Attributes = datatypes.JSONMap(req.Attributes)
	}

	if err = s.productRepo.Create(ctx, product); err != nil {
		return nil, errors.FromDB(err, errors.ErrProductNotFound)
	}

	logger.Ctx(ctx).Info("商品已创建",
		logger.Module("catalog"),
		logger.Action("create_product"),
		logger.ProductID(product.ID),
		logger.SKU(product.SKU),
	)
	return product, nil
}

func (s *ProductService) requireCategory(ctx context.Context, categoryID int64) error {
	if _, err := s.categoryRepo.GetByID(ctx, categoryID); err != nil {
		return errors.FromDB(err, errors.ErrCategoryNotFound)
	}
	return nil
}

// resolveSlug 校验显式 slug 或由名称生成唯一 slug，名称无法生成时使用 SKU
func (s *ProductService) resolveSlug(ctx context.Context, explicit, name, sku string) (string, error) {
	taken := func(candidate string) (bool, error) {
		exists, err := s.productRepo.SlugExists(ctx, candidate)
		return exists, errors.FromDB(err, nil)
	}

	if explicit == "" {
		generated, err := slug.Unique(name, sku, taken)
		if stderrors.Is(err, slug.ErrExhausted) {
			return "", errors.ErrAlreadyExists.WithMessage("无法生成未被占用的 slug")
		}
		if err != nil {
			if errors.IsAppError(err) {
				return "", err
			}
			return "", errors.ErrInvalidParams.WithMessage("无法从名称生成 slug").WithError(err)
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

// Get 获取未删除的商品
func (s *ProductService) Get(ctx context.Context, id int64) (*models.Product, error) {
	product, err := s.productRepo.GetByID(ctx, id)
	if err != nil {
		return nil, errors.FromDB(err, errors.ErrProductNotFound)
	}
	return product, nil
}

// GetBySlug 根据 slug 获取商品
func (s *ProductService) GetBySlug(ctx context.Context, productSlug string) (*models.Product, error) {
	product, err := s.productRepo.GetBySlug(ctx, productSlug)
	if err != nil {
		return nil, errors.FromDB(err, errors.ErrProductNotFound)
	}
	return product, nil
}

// GetBySKU 根据 SKU 获取商品
func (s *ProductService) GetBySKU(ctx context.Context, sku string) (*models.Product, error) {
	product, err := s.productRepo.GetBySKU(ctx, sku)
	if err != nil {
		return nil, errors.FromDB(err, errors.ErrProductNotFound)
	}
	return product, nil
}

// Update 更新商品，库存只能通过扣减与补货修改
func (s *ProductService) Update(ctx context.Context, id int64, req *UpdateProductRequest) (*models.Product, error) {
	if _, err := s.Get(ctx, id); err != nil {
		return nil, err
	}

	fields := make(map[string]interface{})
	if req.CategoryID != nil {
		if err := s.requireCategory(ctx, *req.CategoryID); err != nil {
			return nil, err
		}
		fields["category_id"] = *req.CategoryID
	}
	if req.Name != nil {
		name := strings.TrimSpace(*req.Name)
		if name == "" {
			return nil, errors.ErrInvalidParams.WithMessage("商品名称不能为空")
		}
		fields["name"] = name
	}
	if req.Description != nil {
		fields["description"] = *req.Description
	}
	if req.ShortDescription != nil {
		fields["short_description"] = *req.ShortDescription
	}
	if req.Price != nil {
		if err := validateMoney("价格", *req.Price); err != nil {
			return nil, err
		}
		fields["price"] = *req.Price
	}
	switch {
	case req.ClearComparePrice:
		fields["compare_price"] = decimal.NullDecimal{}
	case req.ComparePrice != nil:
		if err := validateMoney("划线价", *req.ComparePrice); err != nil {
			return nil, err
		}
		fields["compare_price"] = decimal.NewNullDecimal(*req.ComparePrice)
	}
	if req.Status != nil {
		if !req.Status.Valid() {
			return nil, errors.ErrInvalidParams.WithMessage("商品状态无效")
		}
		fields["status"] = *req.Status
	}
	if req.Attributes != nil {
		fields["attributes"] = datatypes.JSONMap(req.Attributes)
	}
	if req.Tags != nil {
		fields["tags"] = models.TagList(utils.CleanStrings(req.Tags))
	}

	if len(fields) > 0 {
		if err := s.productRepo.UpdateFields(ctx, id, fields); err != nil {
			return nil, errors.FromDB(err, errors.ErrProductNotFound)
		}
		logger.Ctx(ctx).Info("商品已更新",
			logger.Module("catalog"),
			logger.Action("update_product"),
			logger.ProductID(id),
		)
	}
	return s.Get(ctx, id)
}

// SoftDelete 软删除商品
func (s *ProductService) SoftDelete(ctx context.Context, id int64) error {
	if err := s.productRepo.SoftDelete(ctx, id, s.opts.Now()); err != nil {
		return errors.FromDB(err, errors.ErrProductNotFound)
	}
	logger.Ctx(ctx).Info("商品已删除", logger.Module("catalog"), logger.Action("soft_delete_product"), logger.ProductID(id))
	return nil
}

// Restore 恢复软删除的商品
func (s *ProductService) Restore(ctx context.Context, id int64) error {
	if err := s.productRepo.Restore(ctx, id); err != nil {
		return errors.FromDB(err, errors.ErrProductNotFound)
	}
	logger.Ctx(ctx).Info("商品已恢复", logger.Module("catalog"), logger.Action("restore_product"), logger.ProductID(id))
	return nil
}

// Delete 物理删除商品及其评价
func (s *ProductService) Delete(ctx context.Context, id int64) error {
	if err := s.productRepo.Delete(ctx, id); err != nil {
		return errors.FromDB(err, errors.ErrProductNotFound)
	}
	logger.Ctx(ctx).Warn("商品已永久删除", logger.Module("catalog"), logger.Action("delete_product"), logger.ProductID(id))
	return nil
}

// List 获取商品列表
func (s *ProductService) List(ctx context.Context, filter ProductFilter) (*Page[*models.Product], error) {
	q, err := productQuery(filter)
	if err != nil {
		return nil, err
	}

	p := database.Pagination{Page: filter.Page, PageSize: filter.PageSize}.
		Normalize(s.opts.Config.DefaultPageSize, s.opts.Config.MaxPageSize)
	q = q.Page(p.Offset(), p.PageSize)

	products, total, err := s.productRepo.List(ctx, q)
	if err != nil {
		return nil, errors.FromDB(err, nil)
	}
	return newPage(products, total, p.Page, p.PageSize), nil
}

func productQuery(filter ProductFilter) (scope.Query, error) {
	q := scope.New(repository.NotDeleted())
	if filter.OnlyDeleted {
		q = scope.New(repository.OnlyDeleted())
	}

	if filter.CategoryID != nil {
		q = q.Where(repository.ProductInCategory(*filter.CategoryID))
	}
	if filter.ActiveOnly {
		q = q.Where(repository.ProductActive())
	}
	if filter.InStockOnly {
		q = q.Where(repository.ProductInStock())
	}
	if filter.OnSaleOnly {
		q = q.Where(repository.ProductOnSale())
	}

	switch {
	case filter.MinPrice != nil && filter.MaxPrice != nil:
		if filter.MinPrice.GreaterThan(*filter.MaxPrice) {
			return q, errors.ErrInvalidParams.WithMessage("最低价不能高于最高价")
		}
		q = q.Where(repository.ProductPriceBetween(*filter.MinPrice, *filter.MaxPrice))
	case filter.MinPrice != nil:
		q = q.Where(scope.Gte{Column: "price", Value: *filter.MinPrice})
	case filter.MaxPrice != nil:
		q = q.Where(scope.Lte{Column: "price", Value: *filter.MaxPrice})
	}

	if term := strings.TrimSpace(filter.Search); term != "" {
		q = q.Where(repository.ProductSearch(term))
	}

	order := filter.Order
	if order == "" {
		order = repository.OrderNewest
	}
	if !order.Valid() {
		return q, errors.ErrInvalidParams.WithMessage("不支持的排序方式")
	}
	return q.OrderBy(order.Sorts()...), nil
}

// View 组装商品详情及派生属性，新品判定以服务时钟为准
func (s *ProductService) View(ctx context.Context, id int64) (view *ProductView, err error) {
	ctx, span := s.opts.Tracer.StartSpan(ctx, "catalog.product.view", tracing.WithProductID(id))
	defer func() { tracing.End(span, err) }()

	product, err := s.productRepo.GetByIDWithCategory(ctx, id)
	if err != nil {
		return nil, errors.FromDB(err, errors.ErrProductNotFound)
	}

	avg, err := s.productRepo.AverageRating(ctx, id)
	if err != nil {
		return nil, errors.FromDB(err, nil)
	}
	count, err := s.productRepo.ApprovedReviewCount(ctx, id)
	if err != nil {
		return nil, errors.FromDB(err, nil)
	}

	return &ProductView{
		Product:            product,
		AverageRating:      avg,
		ReviewCount:        count,
		HasDiscount:        product.HasDiscount(),
		DiscountPercentage: product.DiscountPercentage(),
		InStock:            product.InStock(),
		IsNew:              product.IsNewWithin(s.opts.Now(), s.opts.Config.NewProductWindow()),
	}, nil
}

// RecordView 浏览量加一
func (s *ProductService) RecordView(ctx context.Context, id int64) error {
	if err := s.productRepo.IncrementViews(ctx, id); err != nil {
		return errors.FromDB(err, errors.ErrProductNotFound)
	}
	s.opts.Metrics.RecordProductView()
	return nil
}

// DecrementQuantity 扣减库存并累加销量，库存不足时返回 ErrStockInsufficient 且不做修改
func (s *ProductService) DecrementQuantity(ctx context.Context, id int64, amount int) error {
	ok, err := s.TryDecrementQuantity(ctx, id, amount)
	if err != nil {
		return err
	}
	if !ok {
		return errors.ErrStockInsufficient
	}
	return nil
}

// TryDecrementQuantity 扣减库存并累加销量，库存不足时返回 (false, nil) 且不做修改
func (s *ProductService) TryDecrementQuantity(ctx context.Context, id int64, amount int) (ok bool, err error) {
	ctx, span := s.opts.Tracer.StartSpan(ctx, "catalog.product.decrement_quantity",
		tracing.WithProductID(id), tracing.WithQuantity(amount))
	defer func() { tracing.End(span, err) }()

	if amount <= 0 {
		return false, errors.ErrInvalidParams.WithMessage("扣减数量必须大于 0")
	}

	ok, err = s.productRepo.DecrementQuantity(ctx, id, amount)
	if err != nil {
		s.opts.Metrics.RecordStockDecrement("error")
		logger.Ctx(ctx).Error("扣减库存失败", logger.ProductID(id), logger.Quantity(amount), logger.Err(err))
		return false, errors.FromDB(err, errors.ErrProductNotFound)
	}
	if ok {
		s.opts.Metrics.RecordStockDecrement("ok")
		logger.Ctx(ctx).Info("库存已扣减",
			logger.Module("catalog"),
			logger.Action("decrement_quantity"),
			logger.ProductID(id),
			logger.Quantity(amount),
		)
		return true, nil
	}

	// 没有行被更新：区分商品不存在与库存不足
	if _, err = s.Get(ctx, id); err != nil {
		return false, err
	}
	s.opts.Metrics.RecordStockDecrement("insufficient")
	logger.Ctx(ctx).Warn("库存不足", logger.ProductID(id), logger.Quantity(amount))
	return false, nil
}

// RestockQuantity 补货
func (s *ProductService) RestockQuantity(ctx context.Context, id int64, amount int) error {
	if err := s.productRepo.RestockQuantity(ctx, id, amount); err != nil {
		return errors.FromDB(err, errors.ErrProductNotFound)
	}
	logger.Ctx(ctx).Info("商品已补货",
		logger.Module("catalog"),
		logger.Action("restock"),
		logger.ProductID(id),
		logger.Quantity(amount),
	)
	return nil
}

// AverageRating 已通过评价的平均分
func (s *ProductService) AverageRating(ctx context.Context, id int64) (float64, error) {
	avg, err := s.productRepo.AverageRating(ctx, id)
	if err != nil {
		return 0, errors.FromDB(err, nil)
	}
	return avg, nil
}

// Bestsellers 畅销商品
func (s *ProductService) Bestsellers(ctx context.Context, limit int) ([]*models.Product, error) {
	products, err := s.productRepo.Bestsellers(ctx, s.clampLimit(limit))
	if err != nil {
		return nil, errors.FromDB(err, nil)
	}
	return products, nil
}

// NewArrivals 新品窗口内创建的在售商品
func (s *ProductService) NewArrivals(ctx context.Context, limit int) ([]*models.Product, error) {
	since := s.opts.Now().Add(-s.opts.Config.NewProductWindow())
	products, err := s.productRepo.NewArrivals(ctx, since, s.clampLimit(limit))
	if err != nil {
		return nil, errors.FromDB(err, nil)
	}
	return products, nil
}

func (s *ProductService) clampLimit(limit int) int {
	return database.Pagination{Page: 1, PageSize: limit}.
		Normalize(s.opts.Config.DefaultPageSize, s.opts.Config.MaxPageSize).PageSize
}
