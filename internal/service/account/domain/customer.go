package domain

import (
	"context"
	"net/mail"
	"strings"
	"time"

	"storefront/internal/pkg/apperr"
)

const (
	RoleCustomer = "customer"
	RoleAdmin    = "admin"

	MinPasswordLen = 8
	maxPasswordLen = 72 // bcrypt 只取前 72 字节
)

// CustomerStatus 账号状态
type CustomerStatus string

const (
	StatusActive    CustomerStatus = "active"
	StatusSuspended CustomerStatus = "suspended"
)

var (
	ErrCustomerNotFound   = apperr.New(apperr.CodeNotFound, "customer not found")
	ErrEmailTaken         = apperr.New(apperr.CodeAlreadyExists, "email is already registered")
	ErrInvalidCredentials = apperr.New(apperr.CodeUnauthorized, "invalid email or password")
	ErrAccountSuspended   = apperr.New(apperr.CodeForbidden, "account is suspended")
	ErrAddressNotFound    = apperr.New(apperr.CodeNotFound, "address not found")
	ErrTooManyAddresses   = apperr.New(apperr.CodeUnprocessable, "address book is full")
)

// MaxAddresses 每个客户最多保存的地址数
const MaxAddresses = 20

type Customer struct {
	ID           string
	Email        string
	PasswordHash string
	Name         string
	Role         string
	Status       CustomerStatus
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

func (c *Customer) CanLogin() bool { return c.Status == StatusActive }

// NormalizeEmail 去掉空白并转小写，格式非法返回错误
func NormalizeEmail(raw string) (string, error) {
	email := strings.ToLower(strings.TrimSpace(raw))
	if email == "" {
		return "", apperr.InvalidInput("email is required")
	}
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email {
		return "", apperr.InvalidInput("email is invalid")
	}
	return email, nil
}

func ValidatePassword(pw string) error {
	if len(pw) < MinPasswordLen {
		return apperr.InvalidInput("password must be at least %d characters", MinPasswordLen)
	}
	if len(pw) > maxPasswordLen {
		return apperr.InvalidInput("password must be at most %d bytes", maxPasswordLen)
	}
	return nil
}

func ValidateName(name string) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return "", apperr.InvalidInput("name is required")
	}
	if len(name) > 128 {
		return "", apperr.InvalidInput("name is too long")
	}
	return name, nil
}

// Address 收货地址
type Address struct {
	ID         string
	CustomerID string
	Line1      string
	City       string
	PostalCode string
	Country    string
	IsDefault  bool
	CreatedAt  time.Time
}

func (a *Address) Validate() error {
	a.Line1 = strings.TrimSpace(a.Line1)
	a.City = strings.TrimSpace(a.City)
	a.PostalCode = strings.TrimSpace(a.PostalCode)
	a.Country = strings.ToUpper(strings.TrimSpace(a.Country))
	switch {
	case a.Line1 == "":
		return apperr.InvalidInput("line1 is required")
	case a.City == "":
		return apperr.InvalidInput("city is required")
	case a.PostalCode == "":
		return apperr.InvalidInput("postal_code is required")
	case len(a.Country) != 2:
		return apperr.InvalidInput("country must be an ISO 3166-1 alpha-2 code")
	}
	return nil
}

// String 单行格式，下单时作为收货地址快照
func (a *Address) String() string {
	return a.Line1 + ", " + a.PostalCode + " " + a.City + ", " + a.Country
}

type CustomerRepository interface {
	Create(ctx context.Context, c *Customer) error
	FindByID(ctx context.Context, id string) (*Customer, error)
	FindByEmail(ctx context.Context, email string) (*Customer, error)
	UpdateName(ctx context.Context, id, name string) error
	UpdatePassword(ctx context.Context, id, hash string) error
	UpdateStatus(ctx context.Context, id string, status CustomerStatus) error
}

// AddressRepository 地址仓储。Create 在 IsDefault 为真时需要清掉其他默认地址。
type AddressRepository interface {
	Create(ctx context.Context, a *Address) error
	ListByCustomer(ctx context.Context, customerID string) ([]*Address, error)
	FindByID(ctx context.Context, customerID, id string) (*Address, error)
	Delete(ctx context.Context, customerID, id string) error
	CountByCustomer(ctx context.Context, customerID string) (int64, error)
}
