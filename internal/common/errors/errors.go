// Package errors 定义业务错误码和错误处理
package errors

import (
	stderrors "errors"
	"fmt"

	"gorm.io/gorm"
)

// AppError 应用错误
type AppError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Err     error  `json:"-"`
}

// Error 实现 error 接口
func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%d] %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("[%d] %s", e.Code, e.Message)
}

// Unwrap 实现 errors.Unwrap
func (e *AppError) Unwrap() error {
	return e.Err
}

// Is 按错误码匹配，WithMessage/WithError 派生出的错误仍与原错误相等
func (e *AppError) Is(target error) bool {
	t, ok := target.(*AppError)
	if !ok {
		return false
	}
	return e.Code == t.Code
}

// New 创建新的应用错误
func New(code int, message string) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
	}
}

// Wrap 包装错误
func Wrap(code int, message string, err error) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
		Err:     err,
	}
}

// WithMessage 修改错误消息
func (e *AppError) WithMessage(message string) *AppError {
	return &AppError{
		Code:    e.Code,
		Message: message,
		Err:     e.Err,
	}
}

// WithError 添加原始错误
func (e *AppError) WithError(err error) *AppError {
	return &AppError{
		Code:    e.Code,
		Message: e.Message,
		Err:     err,
	}
}

// 通用错误码 (1000-1999)
var (
	ErrUnknown             = New(1000, "未知错误")
	ErrInvalidParams       = New(1001, "参数错误")
	ErrNotFound            = New(1002, "资源不存在")
	ErrAlreadyExists       = New(1003, "资源已存在")
	ErrDatabaseError       = New(1004, "数据库错误")
	ErrCacheError          = New(1005, "缓存错误")
	ErrInternalError       = New(1006, "内部错误")
	ErrConstraintViolation = New(1007, "数据约束冲突")
	ErrLockBusy            = New(1008, "操作正在处理中，请稍后重试")
)

// 商品目录错误码 (5000-5999)
var (
	ErrCategoryNotFound     = New(5000, "分类不存在")
	ErrCategoryCycle        = New(5001, "分类层级存在循环")
	ErrCategoryTooDeep      = New(5002, "分类层级过深")
	ErrProductNotFound      = New(5010, "商品不存在")
	ErrStockInsufficient    = New(5011, "库存不足")
	ErrReviewNotFound       = New(5020, "评价不存在")
	ErrReviewStatusConflict = New(5021, "评价状态不允许此操作")
)

// IsAppError 判断是否为应用错误
func IsAppError(err error) bool {
	var appErr *AppError
	return stderrors.As(err, &appErr)
}

// GetAppError 获取应用错误
func GetAppError(err error) *AppError {
	var appErr *AppError
	if stderrors.As(err, &appErr) {
		return appErr
	}
	return ErrUnknown.WithError(err)
}

// FromDB 将 GORM 错误转换为应用错误，记录不存在时返回 notFound
func FromDB(err error, notFound *AppError) error {
	if err == nil {
		return nil
	}
	if IsAppError(err) {
		return err
	}
	switch {
	case stderrors.Is(err, gorm.ErrRecordNotFound):
		if notFound == nil {
			notFound = ErrNotFound
		}
		return notFound.WithError(err)
	case stderrors.Is(err, gorm.ErrDuplicatedKey):
		return ErrAlreadyExists.WithError(err)
	case stderrors.Is(err, gorm.ErrForeignKeyViolated), stderrors.Is(err, gorm.ErrCheckConstraintViolated):
		return ErrConstraintViolation.WithError(err)
	}
	return ErrDatabaseError.WithError(err)
}
