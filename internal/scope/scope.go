// Package scope 提供可组合的类型化过滤/排序谓词，编译为 GORM clause 表达式树
package scope

import (
	"strings"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Filter 过滤谓词
type Filter interface {
	Expression() clause.Expression
}

func column(name string) clause.Column {
	return clause.Column{Name: name}
}

// Eq 等于
type Eq struct {
	Column string
	Value  interface{}
}

// Expression 实现 Filter
func (f Eq) Expression() clause.Expression {
	return clause.Eq{Column: column(f.Column), Value: f.Value}
}

// Gt 大于
type Gt struct {
	Column string
	Value  interface{}
}

// Expression 实现 Filter
func (f Gt) Expression() clause.Expression {
	return clause.Gt{Column: column(f.Column), Value: f.Value}
}

// Gte 大于等于
type Gte struct {
	Column string
	Value  interface{}
}

// Expression 实现 Filter
func (f Gte) Expression() clause.Expression {
	return clause.Gte{Column: column(f.Column), Value: f.Value}
}

// Lte 小于等于
type Lte struct {
	Column string
	Value  interface{}
}

// Expression 实现 Filter
func (f Lte) Expression() clause.Expression {
	return clause.Lte{Column: column(f.Column), Value: f.Value}
}

// ColumnGt 列比较：Column > Other
type ColumnGt struct {
	Column string
	Other  string
}

// Expression 实现 Filter
func (f ColumnGt) Expression() clause.Expression {
	return clause.Gt{Column: column(f.Column), Value: column(f.Other)}
}

// Between 闭区间 [Min, Max]
type Between struct {
	Column string
	Min    interface{}
	Max    interface{}
}

// Expression 实现 Filter
func (f Between) Expression() clause.Expression {
	return clause.And(
		clause.Gte{Column: column(f.Column), Value: f.Min},
		clause.Lte{Column: column(f.Column), Value: f.Max},
	)
}

// IsNull 为空
type IsNull struct {
	Column string
}

// Expression 实现 Filter
func (f IsNull) Expression() clause.Expression {
	return clause.Expr{SQL: "? IS NULL", Vars: []interface{}{column(f.Column)}}
}

// NotNull 非空
type NotNull struct {
	Column string
}

// Expression 实现 Filter
func (f NotNull) Expression() clause.Expression {
	return clause.Expr{SQL: "? IS NOT NULL", Vars: []interface{}{column(f.Column)}}
}

// likeEscape LIKE 转义字符
const likeEscape = "!"

var likeEscaper = strings.NewReplacer(likeEscape, likeEscape+likeEscape, "%", likeEscape+"%", "_", likeEscape+"_")

func likePattern(term string) string {
	return "%" + likeEscaper.Replace(strings.ToLower(term)) + "%"
}

// Contains 大小写不敏感的子串匹配
type Contains struct {
	Column string
	Term   string
}

// Expression 实现 Filter
func (f Contains) Expression() clause.Expression {
	return clause.Expr{
		SQL:  "LOWER(?) LIKE ? ESCAPE '" + likeEscape + "'",
		Vars: []interface{}{column(f.Column), likePattern(f.Term)},
	}
}

// ArrayContains 数组列中任一元素包含 Term（不区分大小写）
// Postgres 列为 text[]，其他方言列为 JSON 数组
type ArrayContains struct {
	Column string
	Term   string
}

// Expression 实现 Filter
func (f ArrayContains) Expression() clause.Expression {
	return arrayContainsExpr(f)
}

type arrayContainsExpr ArrayContains

// Build 按语句所属方言生成逐元素匹配的 EXISTS 子查询
func (e arrayContainsExpr) Build(builder clause.Builder) {
	dialect := ""
	if stmt, ok := builder.(*gorm.Statement); ok && stmt.DB != nil && stmt.Dialector != nil {
		dialect = stmt.Dialector.Name()
	}

	expr := clause.Expr{Vars: []interface{}{column(e.Column), likePattern(e.Term)}}
	switch dialect {
	case "postgres":
		expr.SQL = "EXISTS (SELECT 1 FROM unnest(?) AS tag(elem) WHERE LOWER(tag.elem) LIKE ? ESCAPE '" + likeEscape + "')"
	default:
		expr.SQL = "EXISTS (SELECT 1 FROM json_each(?) WHERE LOWER(json_each.value) LIKE ? ESCAPE '" + likeEscape + "')"
	}
	expr.Build(builder)
}

// And 逻辑与
type And []Filter

// Expression 实现 Filter
func (f And) Expression() clause.Expression {
	return clause.And(expressions(f)...)
}

// Or 逻辑或
type Or []Filter

// Expression 实现 Filter
func (f Or) Expression() clause.Expression {
	return clause.Or(expressions(f)...)
}

// Not 逻辑非
type Not struct {
	Filter Filter
}

// Expression 实现 Filter
func (f Not) Expression() clause.Expression {
	return clause.Not(f.Filter.Expression())
}

func expressions(filters []Filter) []clause.Expression {
	exprs := make([]clause.Expression, 0, len(filters))
	for _, f := range filters {
		exprs = append(exprs, f.Expression())
	}
	return exprs
}

// Sort 排序键
type Sort struct {
	Column string
	Desc   bool
	// Raw 为 true 时 Column 按原样输出（用于子查询排序键）
	Raw bool
}

// OrderBy 转换为 clause 排序列
func (s Sort) OrderBy() clause.OrderByColumn {
	return clause.OrderByColumn{Column: clause.Column{Name: s.Column, Raw: s.Raw}, Desc: s.Desc}
}

// Asc 升序
func Asc(column string) Sort {
	return Sort{Column: column}
}

// Desc 降序
func Desc(column string) Sort {
	return Sort{Column: column, Desc: true}
}

// Query 查询描述：过滤条件按 AND 组合，排序键按添加顺序生效
type Query struct {
	Filters []Filter
	Sorts   []Sort
	Offset  int
	Limit   int
}

// New 创建查询
func New(filters ...Filter) Query {
	return Query{Filters: append([]Filter(nil), filters...)}
}

// Where 追加过滤条件
func (q Query) Where(filters ...Filter) Query {
	merged := make([]Filter, 0, len(q.Filters)+len(filters))
	merged = append(merged, q.Filters...)
	q.Filters = append(merged, filters...)
	return q
}

// OrderBy 追加排序键
func (q Query) OrderBy(sorts ...Sort) Query {
	merged := make([]Sort, 0, len(q.Sorts)+len(sorts))
	merged = append(merged, q.Sorts...)
	q.Sorts = append(merged, sorts...)
	return q
}

// Page 设置分页
func (q Query) Page(offset, limit int) Query {
	q.Offset = offset
	q.Limit = limit
	return q
}

// Condition 全部过滤条件组成的表达式，没有条件时返回 nil
func (q Query) Condition() clause.Expression {
	if len(q.Filters) == 0 {
		return nil
	}
	return And(q.Filters).Expression()
}

// ApplyFilters 只应用过滤条件（用于统计总数）
func (q Query) ApplyFilters(db *gorm.DB) *gorm.DB {
	if cond := q.Condition(); cond != nil {
		db = db.Where(cond)
	}
	return db
}

// ApplySorts 只应用排序
func (q Query) ApplySorts(db *gorm.DB) *gorm.DB {
	for _, s := range q.Sorts {
		db = db.Order(s.OrderBy())
	}
	return db
}

// ApplyPage 只应用分页
func (q Query) ApplyPage(db *gorm.DB) *gorm.DB {
	if q.Offset > 0 {
		db = db.Offset(q.Offset)
	}
	if q.Limit > 0 {
		db = db.Limit(q.Limit)
	}
	return db
}

// Apply 应用过滤、排序与分页
func (q Query) Apply(db *gorm.DB) *gorm.DB {
	return q.ApplyPage(q.ApplySorts(q.ApplyFilters(db)))
}

// Scope 返回 GORM 作用域函数，可与 db.Scopes 组合
func (q Query) Scope() func(db *gorm.DB) *gorm.DB {
	return q.Apply
}
