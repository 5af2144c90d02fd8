package infrastructure

import (
	"storefront/internal/service/payment/domain"
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

func ToDomainPayment(m *PaymentModel) *domain.Payment {
	return &domain.Payment{
		ID:             m.ID,
		OrderID:        m.OrderID,
		CustomerID:     m.CustomerID,
		Method:         domain.Method(m.Method),
		AmountCents:    m.AmountCents,
		Currency:       m.Currency,
		Status:         domain.Status(m.Status),
		Reference:      deref(m.Reference),
		CryptoCurrency: m.CryptoCurrency,
		DepositAddress: m.DepositAddress,
		TxHash:         m.TxHash,
		FailureReason:  m.FailureReason,
		CreatedAt:      m.CreatedAt,
		UpdatedAt:      m.UpdatedAt,
		CapturedAt:     m.CapturedAt,
	}
}

func FromDomainPayment(p *domain.Payment) *PaymentModel {
	return &PaymentModel{
		ID:             p.ID,
		OrderID:        p.OrderID,
		CustomerID:     p.CustomerID,
		Method:         string(p.Method),
		AmountCents:    p.AmountCents,
		Currency:       p.Currency,
		Status:         string(p.Status),
		Reference:      nullable(p.Reference),
		CryptoCurrency: p.CryptoCurrency,
		DepositAddress: p.DepositAddress,
		TxHash:         p.TxHash,
		FailureReason:  p.FailureReason,
		CreatedAt:      p.CreatedAt,
		UpdatedAt:      p.UpdatedAt,
		CapturedAt:     p.CapturedAt,
	}
}
