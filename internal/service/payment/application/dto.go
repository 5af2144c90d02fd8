package application

import (
	"time"

	"storefront/internal/service/payment/domain"
)

// InitiateRequest 发起付款。CARD 需要 card_token，CRYPTO 需要 crypto_currency。
type InitiateRequest struct {
	OrderID        string `json:"order_id"`
	Method         string `json:"method"`
	CardToken      string `json:"card_token,omitempty"`
	CryptoCurrency string `json:"crypto_currency,omitempty"`
}

// ConfirmRequest 后台或回调确认到账
type ConfirmRequest struct {
	AmountCents int64  `json:"amount_cents"`
	TxHash      string `json:"tx_hash,omitempty"`
}

// TransferNotice 是银行流水回调，按附言匹配支付单
type TransferNotice struct {
	Reference   string `json:"reference"`
	AmountCents int64  `json:"amount_cents"`
}

type PaymentDTO struct {
	ID             string     `json:"id"`
	OrderID        string     `json:"order_id"`
	Method         string     `json:"method"`
	AmountCents    int64      `json:"amount_cents"`
	Currency       string     `json:"currency"`
	Status         string     `json:"status"`
	Reference      string     `json:"reference,omitempty"`
	CryptoCurrency string     `json:"crypto_currency,omitempty"`
	DepositAddress string     `json:"deposit_address,omitempty"`
	TxHash         string     `json:"tx_hash,omitempty"`
	FailureReason  string     `json:"failure_reason,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
	CapturedAt     *time.Time `json:"captured_at,omitempty"`
}

func ToPaymentDTO(p *domain.Payment) *PaymentDTO {
	return &PaymentDTO{
		ID:             p.ID,
		OrderID:        p.OrderID,
		Method:         string(p.Method),
		AmountCents:    p.AmountCents,
		Currency:       p.Currency,
		Status:         string(p.Status),
		Reference:      p.Reference,
		CryptoCurrency: p.CryptoCurrency,
		DepositAddress: p.DepositAddress,
		TxHash:         p.TxHash,
		FailureReason:  p.FailureReason,
		CreatedAt:      p.CreatedAt,
		CapturedAt:     p.CapturedAt,
	}
}

// PaymentCaptured 是 payment.captured 事件的载荷
type PaymentCaptured struct {
	PaymentID   string `json:"paymentId"`
	OrderID     string `json:"orderId"`
	CustomerID  string `json:"customerId"`
	Method      string `json:"method"`
	AmountCents int64  `json:"amountCents"`
}

type PaymentRefunded struct {
	PaymentID   string `json:"paymentId"`
	OrderID     string `json:"orderId"`
	CustomerID  string `json:"customerId"`
	AmountCents int64  `json:"amountCents"`
}
