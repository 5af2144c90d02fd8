package application

import (
	"time"

	"storefront/internal/service/notification/domain"
)

// 各服务事件载荷中通知需要的字段

type orderPlaced struct {
	OrderID      string    `json:"orderId"`
	CustomerID   string    `json:"customerId"`
	TotalCents   int64     `json:"totalCents"`
	Currency     string    `json:"currency"`
	PaymentDueBy time.Time `json:"paymentDueBy"`
}

type orderCancelled struct {
	OrderID    string `json:"orderId"`
	CustomerID string `json:"customerId"`
	Reason     string `json:"reason"`
}

type paymentCaptured struct {
	OrderID     string `json:"orderId"`
	CustomerID  string `json:"customerId"`
	Method      string `json:"method"`
	AmountCents int64  `json:"amountCents"`
}

type giftCardIssued struct {
	MaskedCode     string `json:"maskedCode"`
	AmountCents    int64  `json:"amountCents"`
	Currency       string `json:"currency"`
	RecipientEmail string `json:"recipientEmail"`
}

type NotificationDTO struct {
	ID        string    `json:"id"`
	EventType string    `json:"event_type"`
	Subject   string    `json:"subject"`
	Body      string    `json:"body"`
	CreatedAt time.Time `json:"created_at"`
}

func ToNotificationDTO(n *domain.Notification) *NotificationDTO {
	return &NotificationDTO{
		ID:        n.ID,
		EventType: n.EventType,
		Subject:   n.Subject,
		Body:      n.Body,
		CreatedAt: n.CreatedAt,
	}
}
