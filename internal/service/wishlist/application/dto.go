package application

import (
	"time"

	catalog "storefront/internal/service/catalog/domain"
	"storefront/internal/service/wishlist/domain"
)

type AddRequest struct {
	ProductID string `json:"product_id"`
}

// ItemView 是心愿单条目加上商品当前的快照
type ItemView struct {
	ProductID  string    `json:"product_id"`
	AddedAt    time.Time `json:"added_at"`
	Name       string    `json:"name,omitempty"`
	Slug       string    `json:"slug,omitempty"`
	PriceCents int64     `json:"price_cents,omitempty"`
	Currency   string    `json:"currency,omitempty"`
	ImageKey   string    `json:"image_key,omitempty"`
	InStock    bool      `json:"in_stock"`
	Available  bool      `json:"available"`
}

func toItemView(it *domain.Item, p *catalog.Product) *ItemView {
	v := &ItemView{ProductID: it.ProductID, AddedAt: it.AddedAt}
	if p == nil {
		return v
	}
	v.Name = p.Name
	v.Slug = p.Slug
	v.PriceCents = p.PriceCents
	v.Currency = p.Currency
	v.ImageKey = p.ImageKey
	v.Available = p.IsPurchasable()
	v.InStock = v.Available && p.Stock > 0
	return v
}
