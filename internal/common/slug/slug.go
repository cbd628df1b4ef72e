// Package slug 从任意字符串生成 URL 友好的 slug
package slug

import (
	"errors"
	"regexp"
	"strconv"
	"strings"
)

// MaxLength slug 最大长度，与数据库列宽一致
const MaxLength = 120

// maxAttempts 生成唯一 slug 时的最大尝试次数
const maxAttempts = 50

// ErrExhausted 无法在尝试次数内找到未占用的 slug
var ErrExhausted = errors.New("slug: no free candidate")

var (
	nonAlphanumeric = regexp.MustCompile(`[^a-z0-9\s_-]`)
	separators      = regexp.MustCompile(`[\s_]+`)
	multipleHyphens = regexp.MustCompile(`-{2,}`)
)

// Generate 生成 slug，例如 "Men's T-Shirts & Tops" → "mens-t-shirts-tops"
func Generate(s string) string {
	result := strings.ToLower(strings.TrimSpace(s))
	result = nonAlphanumeric.ReplaceAllString(result, "")
	result = separators.ReplaceAllString(result, "-")
	result = multipleHyphens.ReplaceAllString(result, "-")
	result = strings.Trim(result, "-")
	if len(result) > MaxLength {
		result = strings.TrimRight(result[:MaxLength], "-")
	}
	return result
}

// Valid 判断 s 是否已是合法 slug
func Valid(s string) bool {
	return s != "" && Generate(s) == s
}

// Unique 基于 base 生成未被占用的 slug，冲突时依次追加 -2、-3 ...
// base 为空（例如名称全为非 ASCII 字符）时使用 fallback
func Unique(base, fallback string, taken func(candidate string) (bool, error)) (string, error) {
	root := Generate(base)
	if root == "" {
		root = Generate(fallback)
	}
	if root == "" {
		return "", errors.New("slug: empty source")
	}

	for i := 1; i <= maxAttempts; i++ {
		candidate := root
		if i > 1 {
			suffix := "-" + strconv.Itoa(i)
			if len(candidate)+len(suffix) > MaxLength {
				candidate = strings.TrimRight(candidate[:MaxLength-len(suffix)], "-")
			}
			candidate += suffix
		}
		exists, err := taken(candidate)
		if err != nil {
			return "", err
		}
		if !exists {
			return candidate, nil
		}
	}
	return "", ErrExhausted
}
