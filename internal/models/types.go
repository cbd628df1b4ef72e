package models

import (
	"bytes"
	"context"
	"database/sql/driver"
	"encoding/json"
	"fmt"

	"github.com/lib/pq"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/schema"
)

// TagList 标签列表，Postgres 下存为 text[]，其他方言存为 JSON 数组文本
type TagList []string

// Scan 实现 sql.Scanner 接口，兼容数组字面量与 JSON 数组
func (t *TagList) Scan(value interface{}) error {
	var raw []byte
	switch v := value.(type) {
	case nil:
		*t = nil
		return nil
	case []byte:
		raw = v
	case string:
		raw = []byte(v)
	default:
		return fmt.Errorf("tag list: unsupported scan type %T", value)
	}

	if trimmed := bytes.TrimSpace(raw); len(trimmed) > 0 && trimmed[0] == '[' {
		var tags []string
		if err := json.Unmarshal(trimmed, &tags); err != nil {
			return err
		}
		*t = TagList(tags)
		return nil
	}

	var arr pq.StringArray
	if err := arr.Scan(raw); err != nil {
		return err
	}
	*t = TagList(arr)
	return nil
}

// Value 实现 driver.Valuer 接口，输出 JSON 数组
func (t TagList) Value() (driver.Value, error) {
	if t == nil {
		return "[]", nil
	}
	b, err := json.Marshal([]string(t))
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

// GormValue 按方言绑定参数：Postgres 使用数组字面量
func (t TagList) GormValue(_ context.Context, db *gorm.DB) clause.Expr {
	if db.Dialector.Name() == "postgres" {
		arr := pq.StringArray(t)
		if arr == nil {
			arr = pq.StringArray{}
		}
		return clause.Expr{SQL: "?", Vars: []interface{}{arr}}
	}
	v, err := t.Value()
	if err != nil {
		_ = db.AddError(err)
	}
	return clause.Expr{SQL: "?", Vars: []interface{}{v}}
}

// GormDBDataType 按方言返回列类型
func (TagList) GormDBDataType(db *gorm.DB, _ *schema.Field) string {
	if db.Dialector.Name() == "postgres" {
		return "text[]"
	}
	return "text"
}

// Contains 是否包含指定标签
func (t TagList) Contains(tag string) bool {
	for _, v := range t {
		if v == tag {
			return true
		}
	}
	return false
}
