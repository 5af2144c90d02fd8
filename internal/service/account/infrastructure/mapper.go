package infrastructure

import "storefront/internal/service/account/domain"

func ToDomainCustomer(m *CustomerModel) *domain.Customer {
	if m == nil {
		return nil
	}
	return &domain.Customer{
		ID:           m.ID,
		Email:        m.Email,
		PasswordHash: m.PasswordHash,
		Name:         m.Name,
		Role:         m.Role,
		Status:       domain.CustomerStatus(m.Status),
		CreatedAt:    m.CreatedAt,
		UpdatedAt:    m.UpdatedAt,
	}
}

func FromDomainCustomer(c *domain.Customer) *CustomerModel {
	return &CustomerModel{
		ID:           c.ID,
		Email:        c.Email,
		PasswordHash: c.PasswordHash,
		Name:         c.Name,
		Role:         c.Role,
		Status:       string(c.Status),
		CreatedAt:    c.CreatedAt,
		UpdatedAt:    c.UpdatedAt,
	}
}

func ToDomainAddress(m *AddressModel) *domain.Address {
	return &domain.Address{
		ID:         m.ID,
		CustomerID: m.CustomerID,
		Line1:      m.Line1,
		City:       m.City,
		PostalCode: m.PostalCode,
		Country:    m.Country,
		IsDefault:  m.IsDefault,
		CreatedAt:  m.CreatedAt,
	}
}

func FromDomainAddress(a *domain.Address) *AddressModel {
	return &AddressModel{
		ID:         a.ID,
		CustomerID: a.CustomerID,
		Line1:      a.Line1,
		City:       a.City,
		PostalCode: a.PostalCode,
		Country:    a.Country,
		IsDefault:  a.IsDefault,
		CreatedAt:  a.CreatedAt,
	}
}
