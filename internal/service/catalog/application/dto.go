package application

import (
	"time"

	"storefront/internal/service/catalog/domain"
)

// CreateProductRequest 是后台创建商品的输入
type CreateProductRequest struct {
	SKU         string `json:"sku"`
	Name        string `json:"name"`
	Slug        string `json:"slug"` // 为空时由名称生成
	Description string `json:"description"`
	PriceCents  int64  `json:"price_cents"`
	CategoryID  string `json:"category_id"`
	Stock       int    `json:"stock"`
	Status      string `json:"status"` // 为空时为 DRAFT
}

// UpdateProductRequest 只修改非 nil 的字段
type UpdateProductRequest struct {
	Name        *string `json:"name"`
	Slug        *string `json:"slug"`
	Description *string `json:"description"`
	PriceCents  *int64  `json:"price_cents"`
	CategoryID  *string `json:"category_id"`
	Status      *string `json:"status"`
}

type CreateCategoryRequest struct {
	Name     string `json:"name"`
	Slug     string `json:"slug"`
	ParentID string `json:"parent_id"`
}

// ListProductsQuery 是列表接口的查询参数
type ListProductsQuery struct {
	CategoryID string
	Query      string
	Status     string
	Cursor     string
	Limit      int
}

// ProductDTO 是对外输出的商品
type ProductDTO struct {
	ID          string    `json:"id"`
	SKU         string    `json:"sku"`
	Name        string    `json:"name"`
	Slug        string    `json:"slug"`
	Description string    `json:"description"`
	PriceCents  int64     `json:"price_cents"`
	Currency    string    `json:"currency"`
	CategoryID  string    `json:"category_id,omitempty"`
	Stock       int       `json:"stock"`
	Status      string    `json:"status"`
	ImageKey    string    `json:"image_key,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

func ToProductDTO(p *domain.Product) *ProductDTO {
	return &ProductDTO{
		ID:          p.ID,
		SKU:         p.SKU,
		Name:        p.Name,
		Slug:        p.Slug,
		Description: p.Description,
		PriceCents:  p.PriceCents,
		Currency:    p.Currency,
		CategoryID:  p.CategoryID,
		Stock:       p.Stock,
		Status:      string(p.Status),
		ImageKey:    p.ImageKey,
		CreatedAt:   p.CreatedAt,
		UpdatedAt:   p.UpdatedAt,
	}
}

type CategoryDTO struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Slug     string `json:"slug"`
	ParentID string `json:"parent_id,omitempty"`
}

func ToCategoryDTO(c *domain.Category) *CategoryDTO {
	return &CategoryDTO{ID: c.ID, Name: c.Name, Slug: c.Slug, ParentID: c.ParentID}
}

// ImageUploadResponse 上传图片后返回对象 key 和临时访问地址
type ImageUploadResponse struct {
	ImageKey string `json:"image_key"`
	URL      string `json:"url"`
}
