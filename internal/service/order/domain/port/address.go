package port

import (
	"context"

	account "storefront/internal/service/account/domain"
)

// AddressBook 读取客户的收货地址
type AddressBook interface {
	GetAddress(ctx context.Context, customerID, addressID string) (*account.Address, error)
}
