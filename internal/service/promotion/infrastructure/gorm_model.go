package infrastructure

import (
	"time"
)

// PromotionModel 对应数据库中的 promotions 表
type PromotionModel struct {
	ID               string `gorm:"primaryKey;type:char(36)"`
	Code             string `gorm:"uniqueIndex;size:32"`
	Name             string `gorm:"size:255"`
	Type             string `gorm:"size:16"`
	Value            int64
	MaxDiscountCents int64
	MinOrderCents    int64
	StartsAt         time.Time
	EndsAt           *time.Time `gorm:"index"`
	UsageLimit       int64
	PerCustomerLimit int64
	UsedCount        int64
	Scope            string `gorm:"size:16"`
	ScopeIDs         string `gorm:"column:scope_ids;type:text"` // 逗号分隔
	Rule             string `gorm:"type:text"`
	Status           string `gorm:"size:16;index"`
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// TableName 指定 GORM 应该使用的表名
func (PromotionModel) TableName() string {
	return "promotions"
}

// RedemptionModel 对应数据库中的 promotion_redemptions 表
type RedemptionModel struct {
	ID            string `gorm:"primaryKey;type:char(36)"`
	PromotionID   string `gorm:"type:char(36);uniqueIndex:uniq_order_promotion,priority:2;index:idx_promotion_customer,priority:1"`
	CustomerID    string `gorm:"type:char(36);index:idx_promotion_customer,priority:2"`
	OrderID       string `gorm:"type:char(36);uniqueIndex:uniq_order_promotion,priority:1"`
	DiscountCents int64
	Status        string `gorm:"size:16"`
	CreatedAt     time.Time
}

func (RedemptionModel) TableName() string {
	return "promotion_redemptions"
}
