// Package utils 提供通用工具函数
package utils

import (
	"strings"
)

// Unique 切片去重，保留首次出现的顺序
func Unique[T comparable](slice []T) []T {
	seen := make(map[T]struct{}, len(slice))
	result := make([]T, 0, len(slice))
	for _, v := range slice {
		if _, ok := seen[v]; !ok {
			seen[v] = struct{}{}
			result = append(result, v)
		}
	}
	return result
}

// Contains 判断切片是否包含元素
func Contains[T comparable](slice []T, item T) bool {
	for _, v := range slice {
		if v == item {
			return true
		}
	}
	return false
}

// CleanStrings 去除首尾空白、丢弃空串并去重；结果为空时返回 nil
func CleanStrings(items []string) []string {
	cleaned := make([]string, 0, len(items))
	for _, s := range items {
		if s = strings.TrimSpace(s); s != "" {
			cleaned = append(cleaned, s)
		}
	}
	cleaned = Unique(cleaned)
	if len(cleaned) == 0 {
		return nil
	}
	return cleaned
}
