package infrastructure

import (
	"time"
)

// OrderModel 对应数据库中的 orders 表
type OrderModel struct {
	ID              string `gorm:"primaryKey;type:char(36)"`
	CustomerID      string `gorm:"type:char(36);index:idx_customer_created,priority:1"`
	Status          string `gorm:"size:20;index:idx_status_created,priority:1"`
	Currency        string `gorm:"size:3"`
	SubtotalCents   int64
	DiscountCents   int64
	ShippingCents   int64
	TaxCents        int64
	PointsRedeemed  int64
	PointsCents     int64
	GiftCardCents   int64
	TotalCents      int64
	PromoCode       string    `gorm:"size:32"`
	GiftCardCode    string    `gorm:"size:19"`
	ShippingAddress string    `gorm:"size:512"`
	FailureReason   string    `gorm:"size:255"`
	CreatedAt       time.Time `gorm:"index:idx_customer_created,priority:2;index:idx_status_created,priority:2"`
	UpdatedAt       time.Time
	PaidAt          *time.Time

	Lines []OrderLineModel `gorm:"foreignKey:OrderID"`
}

func (OrderModel) TableName() string {
	return "orders"
}

// OrderLineModel 对应 order_lines 表，购物车里同一商品只有一行
type OrderLineModel struct {
	OrderID    string `gorm:"primaryKey;type:char(36)"`
	ProductID  string `gorm:"primaryKey;type:char(36)"`
	Position   int
	SKU        string `gorm:"size:64"`
	Name       string `gorm:"size:255"`
	CategoryID string `gorm:"type:char(36)"`
	UnitCents  int64
	Quantity   int
}

func (OrderLineModel) TableName() string {
	return "order_lines"
}
