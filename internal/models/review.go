package models

import (
	"strings"
	"time"

	"gorm.io/datatypes"
)

// 评分范围
const (
	MinRating = 1
	MaxRating = 5
)

// 星级符号
const (
	StarFilled = "★"
	StarEmpty  = "☆"
)

// ReviewStatus 评价审核状态
type ReviewStatus string

// 评价状态
const (
	ReviewStatusPending  ReviewStatus = "pending"  // 待审核
	ReviewStatusApproved ReviewStatus = "approved" // 已通过
	ReviewStatusRejected ReviewStatus = "rejected" // 已拒绝
)

// Valid 是否为合法状态
func (s ReviewStatus) Valid() bool {
	switch s {
	case ReviewStatusPending, ReviewStatusApproved, ReviewStatusRejected:
		return true
	}
	return false
}

// CanTransitionTo 审核只能从待审核出发；重复设置为当前状态视为幂等
func (s ReviewStatus) CanTransitionTo(next ReviewStatus) bool {
	if s == next {
		return true
	}
	return s == ReviewStatusPending && (next == ReviewStatusApproved || next == ReviewStatusRejected)
}

// Review 评价模型
type Review struct {
	ID               int64                       `gorm:"primaryKey;autoIncrement" json:"id"`
	UserID           int64                       `gorm:"index;not null" json:"user_id"`
	ProductID        int64                       `gorm:"index;not null" json:"product_id"`
	Rating           int                         `gorm:"not null" json:"rating"`
	Comment          string                      `gorm:"type:text;not null;default:''" json:"comment"`
	Pros             datatypes.JSONSlice[string] `json:"pros,omitempty"`
	Cons             datatypes.JSONSlice[string] `json:"cons,omitempty"`
	Status           ReviewStatus                `gorm:"type:varchar(20);not null;default:pending;index" json:"status"`
	VerifiedPurchase bool                        `gorm:"not null;default:false" json:"verified_purchase"`
	CreatedAt        time.Time                   `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt        time.Time                   `gorm:"autoUpdateTime" json:"updated_at"`

	// 关联
	Product *Product `gorm:"foreignKey:ProductID" json:"product,omitempty"`
}

// TableName 表名
func (Review) TableName() string {
	return "reviews"
}

// IsApproved 是否已通过
func (r *Review) IsApproved() bool {
	return r.Status == ReviewStatusApproved
}

// IsPending 是否待审核
func (r *Review) IsPending() bool {
	return r.Status == ReviewStatusPending
}

// IsRejected 是否已拒绝
func (r *Review) IsRejected() bool {
	return r.Status == ReviewStatusRejected
}

// RatingStars 以定长星级字符串展示评分
func (r *Review) RatingStars() string {
	return RatingStars(r.Rating)
}

// RatingStars 将评分渲染为 MaxRating 个字符，越界评分会被截断到 [0, MaxRating]
func RatingStars(rating int) string {
	filled := rating
	if filled < 0 {
		filled = 0
	}
	if filled > MaxRating {
		filled = MaxRating
	}
	return strings.Repeat(StarFilled, filled) + strings.Repeat(StarEmpty, MaxRating-filled)
}
