package repository

import (
	"github.com/shopspring/decimal"

	"github.com/dumeirei/storefront-catalog/internal/models"
	"github.com/dumeirei/storefront-catalog/internal/scope"
)

// NotDeleted 排除软删除记录
func NotDeleted() scope.Filter {
	return scope.IsNull{Column: "deleted_at"}
}

// OnlyDeleted 仅软删除记录
func OnlyDeleted() scope.Filter {
	return scope.NotNull{Column: "deleted_at"}
}

// ==================== 分类 ====================

// CategoryActive 启用的分类
func CategoryActive() scope.Filter {
	return scope.Eq{Column: "is_active", Value: true}
}

// CategoryRoots 顶级分类
func CategoryRoots() scope.Filter {
	return scope.IsNull{Column: "parent_id"}
}

// CategoryChildrenOf 指定分类的直接子分类
func CategoryChildrenOf(parentID int64) scope.Filter {
	return scope.Eq{Column: "parent_id", Value: parentID}
}

// CategoryOrdered 按排序值、名称排序
func CategoryOrdered() []scope.Sort {
	return []scope.Sort{scope.Asc("sort_order"), scope.Asc("name"), scope.Asc("id")}
}

// ==================== 商品 ====================

// ProductActive 在售商品
func ProductActive() scope.Filter {
	return scope.Eq{Column: "status", Value: models.ProductStatusActive}
}

// ProductInStock 有库存
func ProductInStock() scope.Filter {
	return scope.Gt{Column: "quantity", Value: 0}
}

// ProductOnSale 划线价存在且高于售价
func ProductOnSale() scope.Filter {
	return scope.And{
		scope.NotNull{Column: "compare_price"},
		scope.ColumnGt{Column: "compare_price", Other: "price"},
	}
}

// ProductPriceBetween 售价在 [min, max] 闭区间内
func ProductPriceBetween(min, max decimal.Decimal) scope.Filter {
	return scope.Between{Column: "price", Min: min, Max: max}
}

// ProductInCategory 属于指定分类
func ProductInCategory(categoryID int64) scope.Filter {
	return scope.Eq{Column: "category_id", Value: categoryID}
}

// ProductSearch 名称、描述、SKU 或标签包含 term（不区分大小写）
func ProductSearch(term string) scope.Filter {
	return scope.Or{
		scope.Contains{Column: "name", Term: term},
		scope.Contains{Column: "description", Term: term},
		scope.Contains{Column: "sku", Term: term},
		scope.ArrayContains{Column: "tags", Term: term},
	}
}

// ProductOrder 商品排序方式
type ProductOrder string

// 商品排序方式
const (
	OrderPriceAsc     ProductOrder = "price_asc"
	OrderPriceDesc    ProductOrder = "price_desc"
	OrderNewest       ProductOrder = "newest"
	OrderBestSelling  ProductOrder = "best_selling"
	OrderMostViewed   ProductOrder = "most_viewed"
	OrderHighestRated ProductOrder = "highest_rated"
)

// approvedAverageSQL 已通过评价的平均分，没有评价时为 0
const approvedAverageSQL = "(SELECT COALESCE(AVG(reviews.rating), 0) FROM reviews " +
	"WHERE reviews.product_id = products.id AND reviews.status = 'approved')"

// Sorts 返回排序键，最后总以 id 兜底保证结果稳定
func (o ProductOrder) Sorts() []scope.Sort {
	switch o {
	case OrderPriceAsc:
		return []scope.Sort{scope.Asc("price"), scope.Asc("id")}
	case OrderPriceDesc:
		return []scope.Sort{scope.Desc("price"), scope.Asc("id")}
	case OrderBestSelling:
		return []scope.Sort{scope.Desc("sales_count"), scope.Asc("id")}
	case OrderMostViewed:
		return []scope.Sort{scope.Desc("views_count"), scope.Asc("id")}
	case OrderHighestRated:
		return []scope.Sort{{Column: approvedAverageSQL, Desc: true, Raw: true}, scope.Asc("id")}
	default:
		return []scope.Sort{scope.Desc("created_at"), scope.Desc("id")}
	}
}

// Valid 是否为已知排序方式
func (o ProductOrder) Valid() bool {
	switch o {
	case OrderPriceAsc, OrderPriceDesc, OrderNewest, OrderBestSelling, OrderMostViewed, OrderHighestRated:
		return true
	}
	return false
}

// ==================== 评价 ====================

// ReviewApproved 已通过
func ReviewApproved() scope.Filter {
	return scope.Eq{Column: "status", Value: models.ReviewStatusApproved}
}

// ReviewPending 待审核
func ReviewPending() scope.Filter {
	return scope.Eq{Column: "status", Value: models.ReviewStatusPending}
}

// ReviewVerified 已验证购买
func ReviewVerified() scope.Filter {
	return scope.Eq{Column: "verified_purchase", Value: true}
}

// ReviewRatingEquals 评分等于
func ReviewRatingEquals(rating int) scope.Filter {
	return scope.Eq{Column: "rating", Value: rating}
}

// ReviewMinRating 评分不低于
func ReviewMinRating(rating int) scope.Filter {
	return scope.Gte{Column: "rating", Value: rating}
}

// ReviewForProduct 指定商品的评价
func ReviewForProduct(productID int64) scope.Filter {
	return scope.Eq{Column: "product_id", Value: productID}
}

// ReviewByUser 指定用户的评价
func ReviewByUser(userID int64) scope.Filter {
	return scope.Eq{Column: "user_id", Value: userID}
}

// ReviewOrder 评价排序方式
type ReviewOrder string

// 评价排序方式
const (
	ReviewOrderNewest     ReviewOrder = "newest"
	ReviewOrderRatingDesc ReviewOrder = "rating_desc"
)

// Sorts 返回排序键
func (o ReviewOrder) Sorts() []scope.Sort {
	if o == ReviewOrderRatingDesc {
		return []scope.Sort{scope.Desc("rating"), scope.Desc("created_at"), scope.Desc("id")}
	}
	return []scope.Sort{scope.Desc("created_at"), scope.Desc("id")}
}
