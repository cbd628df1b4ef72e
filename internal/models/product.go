package models

import (
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
)

// NewProductWindow 新品判定窗口
const NewProductWindow = 30 * 24 * time.Hour

// ProductStatus 商品状态
type ProductStatus string

// 商品状态
const (
	ProductStatusDraft      ProductStatus = "draft"        // 草稿
	ProductStatusActive     ProductStatus = "active"       // 在售
	ProductStatusOutOfStock ProductStatus = "out_of_stock" // 缺货
)

// Valid 是否为合法状态
func (s ProductStatus) Valid() bool {
	switch s {
	case ProductStatusDraft, ProductStatusActive, ProductStatusOutOfStock:
		return true
	}
	return false
}

// Product 商品模型
type Product struct {
	ID               int64               `gorm:"primaryKey;autoIncrement" json:"id"`
	CategoryID       int64               `gorm:"index;not null" json:"category_id"`
	Name             string              `gorm:"type:varchar(200);not null" json:"name"`
	Slug             string              `gorm:"type:varchar(220);uniqueIndex;not null" json:"slug"`
	Description      string              `gorm:"type:text;not null;default:''" json:"description"`
	ShortDescription *string             `gorm:"type:varchar(500)" json:"short_description,omitempty"`
	Price            decimal.Decimal     `gorm:"type:decimal(10,2);not null;check:price >= 0" json:"price"`
	ComparePrice     decimal.NullDecimal `gorm:"type:decimal(10,2);check:compare_price >= 0" json:"compare_price"`
	Quantity         int                 `gorm:"not null;default:0;check:quantity >= 0" json:"quantity"`
	SKU              string              `gorm:"column:sku;type:varchar(64);uniqueIndex;not null" json:"sku"`
	Status           ProductStatus       `gorm:"type:varchar(20);not null;default:draft;index" json:"status"`
	Attributes       datatypes.JSONMap   `json:"attributes,omitempty"`
	Tags             TagList             `json:"tags,omitempty"`
	ViewsCount       int64               `gorm:"not null;default:0" json:"views_count"`
	SalesCount       int64               `gorm:"not null;default:0" json:"sales_count"`
	DeletedAt        *time.Time          `gorm:"index" json:"deleted_at,omitempty"`
	CreatedAt        time.Time           `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt        time.Time           `gorm:"autoUpdateTime" json:"updated_at"`

	// 关联
	Category *Category `gorm:"foreignKey:CategoryID" json:"category,omitempty"`
	Reviews  []Review  `gorm:"foreignKey:ProductID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE" json:"reviews,omitempty"`
}

// TableName 表名
func (Product) TableName() string {
	return "products"
}

// HasDiscount 是否有折扣：划线价存在且严格大于售价
func (p *Product) HasDiscount() bool {
	return p.ComparePrice.Valid && p.ComparePrice.Decimal.GreaterThan(p.Price)
}

// DiscountPercentage 折扣百分比，四舍五入到整数
func (p *Product) DiscountPercentage() int {
	if !p.HasDiscount() {
		return 0
	}
	compare := p.ComparePrice.Decimal
	if !compare.IsPositive() {
		return 0
	}
	pct := compare.Sub(p.Price).Div(compare).Mul(decimal.NewFromInt(100)).Round(0).IntPart()
	if pct > 100 {
		return 100
	}
	return int(pct)
}

// InStock 是否有库存
func (p *Product) InStock() bool {
	return p.Quantity > 0
}

// IsNew 以 now 为基准判断是否为新品
func (p *Product) IsNew(now time.Time) bool {
	return now.Sub(p.CreatedAt) < NewProductWindow
}

// IsNewWithin 以 now 为基准判断是否在 window 内创建
func (p *Product) IsNewWithin(now time.Time, window time.Duration) bool {
	return now.Sub(p.CreatedAt) < window
}

// IsDeleted 是否已软删除
func (p *Product) IsDeleted() bool {
	return p.DeletedAt != nil
}
