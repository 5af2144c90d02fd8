package port

import (
	"context"

	cart "storefront/internal/service/cart/domain"
)

// CartService 是购物车的出站端口，结账读取计价后的购物车并在成功后清空
type CartService interface {
	GetCart(ctx context.Context, customerID string) (*cart.Cart, error)
	Clear(ctx context.Context, customerID string) error
}
