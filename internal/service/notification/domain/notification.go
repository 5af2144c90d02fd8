// Package domain 定义发给客户的通知记录。
package domain

import (
	"context"
	"time"

	"storefront/internal/pkg/apperr"
)

// ErrAlreadyRecorded 同一事件只记录一条通知
var ErrAlreadyRecorded = apperr.New(apperr.CodeAlreadyExists, "notification already recorded for this event")

// Notification 由一个领域事件生成，EventID 唯一
type Notification struct {
	ID         string
	EventID    string
	EventType  string
	CustomerID string
	Recipient  string // 礼品卡通知发给收卡人邮箱，没有客户 ID
	Subject    string
	Body       string
	CreatedAt  time.Time
}

type Repository interface {
	Create(ctx context.Context, n *Notification) error
	ExistsForEvent(ctx context.Context, eventID string) (bool, error)
	ListByCustomer(ctx context.Context, customerID string, limit int) ([]*Notification, error)
}
