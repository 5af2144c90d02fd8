package domain

import (
	"time"
)

// RedemptionStatus 核销状态
type RedemptionStatus string

const (
	RedemptionApplied  RedemptionStatus = "APPLIED"
	RedemptionReleased RedemptionStatus = "RELEASED" // 订单失败、取消或退款后撤销
)

// Redemption 一次促销码核销，(OrderID, PromotionID) 唯一
type Redemption struct {
	ID            string
	PromotionID   string
	CustomerID    string
	OrderID       string
	DiscountCents int64
	Status        RedemptionStatus
	CreatedAt     time.Time
}
