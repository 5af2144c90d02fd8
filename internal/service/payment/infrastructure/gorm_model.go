package infrastructure

import (
	"time"
)

// PaymentModel 对应数据库中的 payments 表。Reference 为 NULL 时不参与唯一约束。
type PaymentModel struct {
	ID             string `gorm:"primaryKey;type:char(36)"`
	OrderID        string `gorm:"type:char(36);index"`
	CustomerID     string `gorm:"type:char(36);index"`
	Method         string `gorm:"size:16"`
	AmountCents    int64
	Currency       string  `gorm:"size:3"`
	Status         string  `gorm:"size:16"`
	Reference      *string `gorm:"size:64;uniqueIndex"`
	CryptoCurrency string  `gorm:"size:8"`
	DepositAddress string  `gorm:"size:64"`
	TxHash         string  `gorm:"size:128"`
	FailureReason  string  `gorm:"size:255"`
	CreatedAt      time.Time
	UpdatedAt      time.Time
	CapturedAt     *time.Time
}

func (PaymentModel) TableName() string {
	return "payments"
}
