package infrastructure

import "time"

// CustomerModel 对应数据库中的 customers 表
type CustomerModel struct {
	ID           string `gorm:"primaryKey;type:char(36)"`
	Email        string `gorm:"uniqueIndex;size:255"`
	PasswordHash string `gorm:"size:100"`
	Name         string `gorm:"size:128"`
	Role         string `gorm:"size:16"`
	Status       string `gorm:"size:16"`
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

func (CustomerModel) TableName() string {
	return "customers"
}

// AddressModel 对应数据库中的 addresses 表
type AddressModel struct {
	ID         string `gorm:"primaryKey;type:char(36)"`
	CustomerID string `gorm:"type:char(36);index"`
	Line1      string `gorm:"size:255"`
	City       string `gorm:"size:128"`
	PostalCode string `gorm:"size:32"`
	Country    string `gorm:"size:2"`
	IsDefault  bool
	CreatedAt  time.Time
}

func (AddressModel) TableName() string {
	return "addresses"
}
