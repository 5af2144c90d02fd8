package port

import (
	"context"

	giftcard "storefront/internal/service/giftcard/domain"
)

// GiftCardService 是礼品卡服务的出站端口
type GiftCardService interface {
	Lookup(ctx context.Context, code string) (*giftcard.GiftCard, error)
	Redeem(ctx context.Context, code string, amount int64, orderID string) (*giftcard.Transaction, error)
	Refund(ctx context.Context, orderID string) error
}
