// internal/service/order/domain/order.go
package domain

import (
	"time"

	"storefront/internal/pkg/apperr"
)

var (
	ErrOrderNotFound     = apperr.New(apperr.CodeNotFound, "order not found")
	ErrInvalidTransition = apperr.New(apperr.CodeConflict, "order status does not allow this operation")
	ErrNothingToRedeem   = apperr.New(apperr.CodeUnprocessable, "points cannot be applied to this order")
)

// Line 是下单时的商品快照
type Line struct {
	ProductID  string `json:"product_id"`
	SKU        string `json:"sku"`
	Name       string `json:"name"`
	CategoryID string `json:"category_id,omitempty"`
	UnitCents  int64  `json:"unit_cents"`
	Quantity   int    `json:"quantity"`
}

func (l Line) TotalCents() int64 { return l.UnitCents * int64(l.Quantity) }

// Order 是订单聚合的根实体
type Order struct {
	ID              string
	CustomerID      string
	State           State
	Lines           []Line
	Currency        string
	SubtotalCents   int64
	DiscountCents   int64
	ShippingCents   int64
	TaxCents        int64
	PointsRedeemed  int64
	PointsCents     int64
	GiftCardCents   int64
	TotalCents      int64 // 还需支付的金额
	PromoCode       string
	GiftCardCode    string // 只保存打码后的卡号
	ShippingAddress string
	FailureReason   string
	CreatedAt       time.Time
	UpdatedAt       time.Time
	PaidAt          *time.Time
}

// NewOrder 创建一个 CREATED 状态的空订单，行项目由结账流程填充
func NewOrder(id, customerID, address, currency string, now time.Time) *Order {
	return &Order{
		ID:              id,
		CustomerID:      customerID,
		State:           StateCreated,
		Currency:        currency,
		ShippingAddress: address,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
}

// SetLines 写入行项目并重算小计
func (o *Order) SetLines(lines []Line) {
	o.Lines = lines
	o.SubtotalCents = 0
	for _, l := range lines {
		o.SubtotalCents += l.TotalCents()
	}
}

// ChargeableCents 是折扣、运费、税之后，积分和礼品卡抵扣之前的金额
func (o *Order) ChargeableCents() int64 {
	n := o.SubtotalCents - o.DiscountCents + o.ShippingCents + o.TaxCents
	if n < 0 {
		return 0
	}
	return n
}

// RemainingCents 是当前还可以被积分或礼品卡抵扣的金额
func (o *Order) RemainingCents() int64 {
	n := o.ChargeableCents() - o.PointsCents - o.GiftCardCents
	if n < 0 {
		return 0
	}
	return n
}

// RecomputeTotal 更新应付金额
func (o *Order) RecomputeTotal() {
	o.TotalCents = o.RemainingCents()
}

// ItemCount 返回商品件数
func (o *Order) ItemCount() int {
	n := 0
	for _, l := range o.Lines {
		n += l.Quantity
	}
	return n
}

func (o *Order) transition(to State, now time.Time) error {
	if !CanTransition(o.State, to) {
		return ErrInvalidTransition
	}
	o.State = to
	o.UpdatedAt = now
	return nil
}

// MarkAsPendingPayment 将订单状态更新为待支付
// 这个方法只负责状态流转，不负责调用外部服务
func (o *Order) MarkAsPendingPayment(now time.Time) error {
	return o.transition(StatePendingPayment, now)
}

// MarkAsPaid 支付完成，或者应付为 0 时直接完成
func (o *Order) MarkAsPaid(now time.Time) error {
	if err := o.transition(StatePaid, now); err != nil {
		return err
	}
	o.PaidAt = &now
	return nil
}

// MarkAsFailed 将订单标记为失败
func (o *Order) MarkAsFailed(reason string, now time.Time) {
	o.State = StateFailed
	o.FailureReason = reason
	o.UpdatedAt = now
}

// Cancel 只有待支付的订单可以被取消
func (o *Order) Cancel(now time.Time) error {
	return o.transition(StateCancelled, now)
}

func (o *Order) Fulfill(now time.Time) error {
	return o.transition(StateFulfilled, now)
}

func (o *Order) Refund(now time.Time) error {
	return o.transition(StateRefunded, now)
}
