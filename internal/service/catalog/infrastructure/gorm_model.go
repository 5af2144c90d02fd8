package infrastructure

import (
	"time"
)

// ProductModel 对应数据库中的 products 表
type ProductModel struct {
	ID          string `gorm:"primaryKey;type:char(36)"`
	SKU         string `gorm:"column:sku;uniqueIndex;size:64"`
	Name        string `gorm:"size:255"`
	Slug        string `gorm:"uniqueIndex;size:255"`
	Description string `gorm:"type:text"`
	PriceCents  int64
	Currency    string  `gorm:"size:3"`
	CategoryID  *string `gorm:"type:char(36);index"`
	Stock       int
	Status      string    `gorm:"size:16;index"`
	ImageKey    string    `gorm:"size:255"`
	CreatedAt   time.Time `gorm:"index"`
	UpdatedAt   time.Time
}

// TableName 指定 GORM 应该使用的表名
func (ProductModel) TableName() string {
	return "products"
}

// CategoryModel 对应数据库中的 categories 表
type CategoryModel struct {
	ID       string  `gorm:"primaryKey;type:char(36)"`
	Name     string  `gorm:"size:128"`
	Slug     string  `gorm:"uniqueIndex;size:128"`
	ParentID *string `gorm:"type:char(36)"`
}

func (CategoryModel) TableName() string {
	return "categories"
}
