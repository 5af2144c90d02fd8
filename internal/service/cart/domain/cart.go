package domain

import (
	"context"

	"storefront/internal/pkg/apperr"
)

const (
	MaxLineQuantity = 99
	MaxLines        = 50
)

var (
	ErrInvalidQuantity    = apperr.InvalidInput("quantity must be between 1 and 99")
	ErrProductUnavailable = apperr.New(apperr.CodeUnprocessable, "product is not available")
	ErrQuantityLimit      = apperr.New(apperr.CodeUnprocessable, "at most 99 units of a product per cart")
	ErrTooManyLines       = apperr.New(apperr.CodeUnprocessable, "cart is full")
	ErrItemNotInCart      = apperr.New(apperr.CodeNotFound, "item is not in the cart")
	ErrCartEmpty          = apperr.New(apperr.CodeUnprocessable, "cart is empty")
	ErrCartHasUnavailable = apperr.New(apperr.CodeUnprocessable, "cart contains unavailable products")
)

// Store 购物车存储，field 为商品 ID，value 为数量
type Store interface {
	Items(ctx context.Context, customerID string) (map[string]int, error)
	// Add 原子地累加数量，超过 MaxLineQuantity 或 MaxLines 时返回对应错误
	Add(ctx context.Context, customerID, productID string, qty int) (int, error)
	Set(ctx context.Context, customerID, productID string, qty int) error
	Remove(ctx context.Context, customerID, productID string) (bool, error)
	Clear(ctx context.Context, customerID string) error
}

// Line 购物车中带价格的一行
type Line struct {
	ProductID  string `json:"product_id"`
	SKU        string `json:"sku"`
	Name       string `json:"name"`
	CategoryID string `json:"category_id,omitempty"`
	UnitCents  int64  `json:"unit_cents"`
	Quantity   int    `json:"quantity"`
	LineCents  int64  `json:"line_cents"`
	Available  bool   `json:"available"`
}

// Cart 是计价后的购物车视图
type Cart struct {
	CustomerID    string `json:"customer_id"`
	Lines         []Line `json:"lines"`
	SubtotalCents int64  `json:"subtotal_cents"`
	ItemCount     int    `json:"item_count"`
	Currency      string `json:"currency"`
}

// Reprice 只统计可购买的行
func (c *Cart) Reprice() {
	c.SubtotalCents = 0
	c.ItemCount = 0
	for i := range c.Lines {
		l := &c.Lines[i]
		l.LineCents = 0
		if !l.Available {
			continue
		}
		l.LineCents = l.UnitCents * int64(l.Quantity)
		c.SubtotalCents += l.LineCents
		c.ItemCount += l.Quantity
	}
}

func (c *Cart) HasUnavailable() bool {
	for _, l := range c.Lines {
		if !l.Available {
			return true
		}
	}
	return false
}

func ValidQuantity(q int) bool { return q >= 1 && q <= MaxLineQuantity }
