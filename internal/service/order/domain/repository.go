// internal/service/order/domain/repository.go
package domain

import (
	"context"
	"time"

	"storefront/internal/pkg/pagination"
)

// ListFilter 订单列表过滤条件，CustomerID 为空时列出全部 (后台)
type ListFilter struct {
	CustomerID string
	State      State
	Cursor     *pagination.Cursor
	Limit      int
}

// OrderRepository 定义了订单聚合的持久化接口。
// 它位于领域层，但由基础设施层实现。
type OrderRepository interface {
	// Create 保存订单及其行项目
	Create(ctx context.Context, order *Order) error

	// Update 保存金额、状态等可变字段，行项目不变
	Update(ctx context.Context, order *Order) error

	// Transition 条件更新状态：只有当前状态在 from 中时才写入 to。
	// 状态不匹配返回 ErrInvalidTransition，订单不存在返回 ErrOrderNotFound。
	Transition(ctx context.Context, id string, from []State, to State, at time.Time) error

	// FindByID 根据 ID 查找一个订单聚合。
	FindByID(ctx context.Context, id string) (*Order, error)

	List(ctx context.Context, f ListFilter) ([]*Order, error)

	// CountPlaced 统计客户成功下过的订单数，失败和草稿不算
	CountPlaced(ctx context.Context, customerID string) (int64, error)

	// ListPendingBefore 查找创建时间早于 before 仍未支付的订单
	ListPendingBefore(ctx context.Context, before time.Time, limit int) ([]*Order, error)
}
