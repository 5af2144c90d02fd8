package infrastructure

import (
	"time"
)

// GiftCardModel 对应数据库中的 gift_cards 表
type GiftCardModel struct {
	ID             string `gorm:"primaryKey;type:char(36)"`
	Code           string `gorm:"uniqueIndex;size:19"`
	InitialCents   int64
	BalanceCents   int64
	Currency       string `gorm:"size:3"`
	Status         string `gorm:"size:16"`
	ExpiresAt      *time.Time
	PurchaserID    string `gorm:"type:char(36);index"`
	RecipientEmail string `gorm:"size:255"`
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

func (GiftCardModel) TableName() string {
	return "gift_cards"
}

// TransactionModel 对应 gift_card_transactions 表。
// 同一张卡同一订单同一类型只能有一行，ADJUST 的 order_id 为 NULL 不受限制。
type TransactionModel struct {
	ID           string  `gorm:"primaryKey;type:char(36)"`
	GiftCardID   string  `gorm:"type:char(36);uniqueIndex:uniq_card_order_type,priority:1"`
	OrderID      *string `gorm:"type:char(36);uniqueIndex:uniq_card_order_type,priority:2;index"`
	Type         string  `gorm:"size:16;uniqueIndex:uniq_card_order_type,priority:3"`
	AmountCents  int64
	BalanceAfter int64
	Note         string `gorm:"size:255"`
	CreatedAt    time.Time
}

func (TransactionModel) TableName() string {
	return "gift_card_transactions"
}
