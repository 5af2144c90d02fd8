package infrastructure

import (
	"time"
)

// AccountModel 对应 loyalty_accounts 表
type AccountModel struct {
	ID             string `gorm:"primaryKey;type:char(36)"`
	CustomerID     string `gorm:"type:char(36);uniqueIndex"`
	Tier           string `gorm:"size:16"`
	PointsBalance  int64
	LifetimePoints int64
	Status         string `gorm:"size:16"`
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

func (AccountModel) TableName() string {
	return "loyalty_accounts"
}

// TransactionModel 对应 loyalty_transactions 表，(account_id, order_id, type) 唯一
type TransactionModel struct {
	ID           string  `gorm:"primaryKey;type:char(36)"`
	AccountID    string  `gorm:"type:char(36);uniqueIndex:uniq_account_order_type,priority:1"`
	OrderID      *string `gorm:"type:char(36);uniqueIndex:uniq_account_order_type,priority:2;index"`
	Type         string  `gorm:"size:16;uniqueIndex:uniq_account_order_type,priority:3"`
	Points       int64
	BalanceAfter int64
	Note         string `gorm:"size:255"`
	CreatedAt    time.Time
}

func (TransactionModel) TableName() string {
	return "loyalty_transactions"
}
