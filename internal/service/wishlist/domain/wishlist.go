// Package domain 定义心愿单条目。
package domain

import (
	"context"
	"time"

	"storefront/internal/pkg/apperr"
)

// MaxItems 单个客户心愿单的上限
const MaxItems = 200

var (
	ErrItemNotFound = apperr.New(apperr.CodeNotFound, "product is not in the wishlist")
	ErrWishlistFull = apperr.New(apperr.CodeUnprocessable, "wishlist is full")
)

// Item 客户与商品唯一对应一条
type Item struct {
	CustomerID string
	ProductID  string
	AddedAt    time.Time
}

type Repository interface {
	// Add 已存在时返回 false，不修改 AddedAt
	Add(ctx context.Context, item *Item) (bool, error)
	Remove(ctx context.Context, customerID, productID string) error
	Contains(ctx context.Context, customerID, productID string) (bool, error)
	Count(ctx context.Context, customerID string) (int64, error)
	List(ctx context.Context, customerID string) ([]*Item, error)
}
