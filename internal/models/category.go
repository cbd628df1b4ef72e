// Package models 定义数据模型
package models

import (
	"time"
)

// Category 商品分类
type Category struct {
	ID          int64      `gorm:"primaryKey;autoIncrement" json:"id"`
	ParentID    *int64     `gorm:"index" json:"parent_id,omitempty"`
	Name        string     `gorm:"type:varchar(100);not null" json:"name"`
	Slug        string     `gorm:"type:varchar(120);uniqueIndex;not null" json:"slug"`
	Description *string    `gorm:"type:text" json:"description,omitempty"`
	IsActive    bool       `gorm:"not null;default:false" json:"is_active"`
	SortOrder   int        `gorm:"not null;default:0" json:"sort_order"`
	DeletedAt   *time.Time `gorm:"index" json:"deleted_at,omitempty"`
	CreatedAt   time.Time  `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt   time.Time  `gorm:"autoUpdateTime" json:"updated_at"`

	// 关联
	Parent   *Category  `gorm:"foreignKey:ParentID" json:"parent,omitempty"`
	Children []Category `gorm:"foreignKey:ParentID;constraint:OnUpdate:CASCADE,OnDelete:SET NULL" json:"children,omitempty"`
	Products []Product  `gorm:"foreignKey:CategoryID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE" json:"products,omitempty"`
}

// TableName 表名
func (Category) TableName() string {
	return "categories"
}

// IsRoot 是否为顶级分类
func (c *Category) IsRoot() bool {
	return c.ParentID == nil
}

// IsDeleted 是否已软删除
func (c *Category) IsDeleted() bool {
	return c.DeletedAt != nil
}
