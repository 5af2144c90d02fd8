// internal/service/order/domain/event.go
package domain

import "time"

// PaymentTimeoutCheck 是写入延迟 topic 的支付超时检查任务
type PaymentTimeoutCheck struct {
	OrderID    string    `json:"orderId"`
	CustomerID string    `json:"customerId"`
	Deadline   time.Time `json:"deadline"`
}

// OrderPlaced 是订单创建成功后发布的事件
type OrderPlaced struct {
	OrderID      string    `json:"orderId"`
	CustomerID   string    `json:"customerId"`
	Status       State     `json:"status"`
	TotalCents   int64     `json:"totalCents"`
	Currency     string    `json:"currency"`
	ItemCount    int       `json:"itemCount"`
	PaymentDueBy time.Time `json:"paymentDueBy,omitzero"`
}

// OrderCancelled 用户取消或者支付超时
type OrderCancelled struct {
	OrderID    string `json:"orderId"`
	CustomerID string `json:"customerId"`
	Reason     string `json:"reason"`
}

type OrderFulfilled struct {
	OrderID    string `json:"orderId"`
	CustomerID string `json:"customerId"`
}
