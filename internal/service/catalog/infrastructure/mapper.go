package infrastructure

import (
	"storefront/internal/service/catalog/domain"
)

func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

// ToDomainProduct 将数据库模型转换为领域模型
func ToDomainProduct(m *ProductModel) *domain.Product {
	if m == nil {
		return nil
	}
	return &domain.Product{
		ID:          m.ID,
		SKU:         m.SKU,
		Name:        m.Name,
		Slug:        m.Slug,
		Description: m.Description,
		PriceCents:  m.PriceCents,
		Currency:    m.Currency,
		CategoryID:  deref(m.CategoryID),
		Stock:       m.Stock,
		Status:      domain.ProductStatus(m.Status),
		ImageKey:    m.ImageKey,
		CreatedAt:   m.CreatedAt,
		UpdatedAt:   m.UpdatedAt,
	}
}

// FromDomainProduct 将领域模型转换为数据库模型
func FromDomainProduct(p *domain.Product) *ProductModel {
	if p == nil {
		return nil
	}
	return &ProductModel{
		ID:          p.ID,
		SKU:         p.SKU,
		Name:        p.Name,
		Slug:        p.Slug,
		Description: p.Description,
		PriceCents:  p.PriceCents,
		Currency:    p.Currency,
		CategoryID:  nullable(p.CategoryID),
		Stock:       p.Stock,
		Status:      string(p.Status),
		ImageKey:    p.ImageKey,
		CreatedAt:   p.CreatedAt,
		UpdatedAt:   p.UpdatedAt,
	}
}

func ToDomainCategory(m *CategoryModel) *domain.Category {
	if m == nil {
		return nil
	}
	return &domain.Category{ID: m.ID, Name: m.Name, Slug: m.Slug, ParentID: deref(m.ParentID)}
}

func FromDomainCategory(c *domain.Category) *CategoryModel {
	return &CategoryModel{ID: c.ID, Name: c.Name, Slug: c.Slug, ParentID: nullable(c.ParentID)}
}
