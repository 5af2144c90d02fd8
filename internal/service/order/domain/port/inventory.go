package port

import (
	"context"

	catalog "storefront/internal/service/catalog/domain"
)

// InventoryService 是库存服务的出站端口。
type InventoryService interface {
	// ReserveStock 一次性预占所有行，任意一行不足时整体失败
	ReserveStock(ctx context.Context, lines []catalog.StockLine) error

	// ReleaseStock 是 ReserveStock 的补偿操作，用于释放预占的库存。
	ReleaseStock(ctx context.Context, lines []catalog.StockLine) error
}
