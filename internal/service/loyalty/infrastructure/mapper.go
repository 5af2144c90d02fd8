package infrastructure

import (
	"storefront/internal/service/loyalty/domain"
)

func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func ToDomainAccount(m *AccountModel) *domain.Account {
	return &domain.Account{
		ID:             m.ID,
		CustomerID:     m.CustomerID,
		Tier:           domain.Tier(m.Tier),
		PointsBalance:  m.PointsBalance,
		LifetimePoints: m.LifetimePoints,
		Status:         domain.Status(m.Status),
		CreatedAt:      m.CreatedAt,
		UpdatedAt:      m.UpdatedAt,
	}
}

func FromDomainAccount(a *domain.Account) *AccountModel {
	return &AccountModel{
		ID:             a.ID,
		CustomerID:     a.CustomerID,
		Tier:           string(a.Tier),
		PointsBalance:  a.PointsBalance,
		LifetimePoints: a.LifetimePoints,
		Status:         string(a.Status),
		CreatedAt:      a.CreatedAt,
		UpdatedAt:      a.UpdatedAt,
	}
}

func ToDomainTransaction(m *TransactionModel) *domain.PointsTransaction {
	return &domain.PointsTransaction{
		ID:           m.ID,
		AccountID:    m.AccountID,
		Type:         domain.TxType(m.Type),
		Points:       m.Points,
		BalanceAfter: m.BalanceAfter,
		OrderID:      deref(m.OrderID),
		Note:         m.Note,
		CreatedAt:    m.CreatedAt,
	}
}

func FromDomainTransaction(t *domain.PointsTransaction) *TransactionModel {
	return &TransactionModel{
		ID:           t.ID,
		AccountID:    t.AccountID,
		Type:         string(t.Type),
		Points:       t.Points,
		BalanceAfter: t.BalanceAfter,
		OrderID:      nullable(t.OrderID),
		Note:         t.Note,
		CreatedAt:    t.CreatedAt,
	}
}
