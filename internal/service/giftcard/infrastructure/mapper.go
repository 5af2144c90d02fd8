package infrastructure

import (
	"storefront/internal/service/giftcard/domain"
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

func ToDomainGiftCard(m *GiftCardModel) *domain.GiftCard {
	return &domain.GiftCard{
		ID:             m.ID,
		Code:           m.Code,
		InitialCents:   m.InitialCents,
		BalanceCents:   m.BalanceCents,
		Currency:       m.Currency,
		Status:         domain.Status(m.Status),
		ExpiresAt:      m.ExpiresAt,
		PurchaserID:    m.PurchaserID,
		RecipientEmail: m.RecipientEmail,
		CreatedAt:      m.CreatedAt,
		UpdatedAt:      m.UpdatedAt,
	}
}

func FromDomainGiftCard(g *domain.GiftCard) *GiftCardModel {
	return &GiftCardModel{
		ID:             g.ID,
		Code:           g.Code,
		InitialCents:   g.InitialCents,
		BalanceCents:   g.BalanceCents,
		Currency:       g.Currency,
		Status:         string(g.Status),
		ExpiresAt:      g.ExpiresAt,
		PurchaserID:    g.PurchaserID,
		RecipientEmail: g.RecipientEmail,
		CreatedAt:      g.CreatedAt,
		UpdatedAt:      g.UpdatedAt,
	}
}

func ToDomainTransaction(m *TransactionModel) *domain.Transaction {
	return &domain.Transaction{
		ID:           m.ID,
		GiftCardID:   m.GiftCardID,
		Type:         domain.TxType(m.Type),
		AmountCents:  m.AmountCents,
		BalanceAfter: m.BalanceAfter,
		OrderID:      deref(m.OrderID),
		Note:         m.Note,
		CreatedAt:    m.CreatedAt,
	}
}

func FromDomainTransaction(t *domain.Transaction) *TransactionModel {
	return &TransactionModel{
		ID:           t.ID,
		GiftCardID:   t.GiftCardID,
		Type:         string(t.Type),
		AmountCents:  t.AmountCents,
		BalanceAfter: t.BalanceAfter,
		OrderID:      nullable(t.OrderID),
		Note:         t.Note,
		CreatedAt:    t.CreatedAt,
	}
}
