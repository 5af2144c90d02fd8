package application

import (
	"time"

	"storefront/internal/service/account/domain"
)

type RegisterRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	Name     string `json:"name"`
}

type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// LoginResult 登录成功后返回的令牌，HTTP 层同时写入 Cookie
type LoginResult struct {
	Token     string       `json:"token"`
	ExpiresAt time.Time    `json:"expires_at"`
	Customer  *CustomerDTO `json:"customer"`
}

type UpdateProfileRequest struct {
	Name string `json:"name"`
}

type ChangePasswordRequest struct {
	OldPassword string `json:"old_password"`
	NewPassword string `json:"new_password"`
}

type AddAddressRequest struct {
	Line1      string `json:"line1"`
	City       string `json:"city"`
	PostalCode string `json:"postal_code"`
	Country    string `json:"country"`
	IsDefault  bool   `json:"is_default"`
}

type SetStatusRequest struct {
	Status string `json:"status"`
}

type CustomerDTO struct {
	ID        string    `json:"id"`
	Email     string    `json:"email"`
	Name      string    `json:"name"`
	Role      string    `json:"role"`
	Status    string    `json:"status"`
	CreatedAt time.Time `json:"created_at"`
}

// ToCustomerDTO 不输出密码哈希
func ToCustomerDTO(c *domain.Customer) *CustomerDTO {
	return &CustomerDTO{
		ID:        c.ID,
		Email:     c.Email,
		Name:      c.Name,
		Role:      c.Role,
		Status:    string(c.Status),
		CreatedAt: c.CreatedAt,
	}
}

type AddressDTO struct {
	ID         string `json:"id"`
	Line1      string `json:"line1"`
	City       string `json:"city"`
	PostalCode string `json:"postal_code"`
	Country    string `json:"country"`
	IsDefault  bool   `json:"is_default"`
}

func ToAddressDTO(a *domain.Address) *AddressDTO {
	return &AddressDTO{
		ID:         a.ID,
		Line1:      a.Line1,
		City:       a.City,
		PostalCode: a.PostalCode,
		Country:    a.Country,
		IsDefault:  a.IsDefault,
	}
}
