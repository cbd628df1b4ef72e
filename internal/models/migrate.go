package models

import "gorm.io/gorm"

// CatalogModels 目录相关的全部模型，按依赖顺序排列
func CatalogModels() []interface{} {
	return []interface{}{
		&Category{},
		&Product{},
		&Review{},
	}
}

// AutoMigrate 同步目录表结构
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(CatalogModels()...)
}
