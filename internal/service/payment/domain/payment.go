// Package domain 定义支付单及其状态流转。
package domain

import (
	"context"
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"math/big"
	"strings"
	"time"

	"storefront/internal/pkg/apperr"
)

type Method string

const (
	MethodCard         Method = "CARD"
	MethodCrypto       Method = "CRYPTO"
	MethodBankTransfer Method = "BANK_TRANSFER"
)

func (m Method) Valid() bool {
	switch m {
	case MethodCard, MethodCrypto, MethodBankTransfer:
		return true
	}
	return false
}

type Status string

const (
	StatusPending  Status = "PENDING"
	StatusCaptured Status = "CAPTURED"
	StatusFailed   Status = "FAILED"
	StatusRefunded Status = "REFUNDED"
)

var (
	ErrPaymentNotFound     = apperr.New(apperr.CodeNotFound, "payment not found")
	ErrUnsupportedMethod   = apperr.New(apperr.CodeInvalidInput, "unsupported payment method")
	ErrUnsupportedCurrency = apperr.New(apperr.CodeInvalidInput, "unsupported crypto currency")
	ErrOrderNotPayable     = apperr.New(apperr.CodeConflict, "order is not awaiting payment")
	ErrAlreadyCaptured     = apperr.New(apperr.CodeConflict, "order already has a captured payment")
	ErrInvalidState        = apperr.New(apperr.CodeConflict, "payment is not in a valid state for this operation")
	ErrCardDeclined        = apperr.New(apperr.CodeUnprocessable, "card declined")
	ErrUnderpaid           = apperr.New(apperr.CodeUnprocessable, "received amount does not cover the payment")
	ErrTxHashRequired      = apperr.New(apperr.CodeInvalidInput, "tx_hash is required for crypto payments")
	ErrReferenceCollision  = apperr.New(apperr.CodeConflict, "payment reference already in use")
	ErrChargeRefunded      = apperr.New(apperr.CodeConflict, "charge already refunded")
)

// Payment 是一次付款尝试，一个订单可以有多次尝试，但最多一次 CAPTURED
type Payment struct {
	ID             string
	OrderID        string
	CustomerID     string
	Method         Method
	AmountCents    int64
	Currency       string
	Status         Status
	Reference      string // 银行转账附言 / 卡授权码
	CryptoCurrency string
	DepositAddress string
	TxHash         string
	FailureReason  string
	CreatedAt      time.Time
	UpdatedAt      time.Time
	CapturedAt     *time.Time
}

func (p *Payment) Capture(txHash string, now time.Time) error {
	if p.Status != StatusPending {
		return ErrInvalidState
	}
	p.Status = StatusCaptured
	if txHash != "" {
		p.TxHash = txHash
	}
	p.CapturedAt = &now
	p.UpdatedAt = now
	return nil
}

func (p *Payment) Fail(reason string, now time.Time) error {
	if p.Status != StatusPending {
		return ErrInvalidState
	}
	p.Status = StatusFailed
	p.FailureReason = reason
	p.UpdatedAt = now
	return nil
}

func (p *Payment) Refund(now time.Time) error {
	if p.Status != StatusCaptured {
		return ErrInvalidState
	}
	p.Status = StatusRefunded
	p.UpdatedAt = now
	return nil
}

const (
	referencePrefix = "BT-"
	referenceLen    = 8
	// 去掉容易混淆的 0/O/1/I
	referenceAlphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"
)

// NewBankReference 生成形如 BT-7K2M9QXD 的转账附言
func NewBankReference() (string, error) {
	base := big.NewInt(int64(len(referenceAlphabet)))
	var b strings.Builder
	b.WriteString(referencePrefix)
	for i := 0; i < referenceLen; i++ {
		n, err := rand.Int(rand.Reader, base)
		if err != nil {
			return "", err
		}
		b.WriteByte(referenceAlphabet[n.Int64()])
	}
	return b.String(), nil
}

// NormalizeReference 客户填写附言时大小写和空格都不可靠
func NormalizeReference(ref string) string {
	return strings.ToUpper(strings.Join(strings.Fields(ref), ""))
}

// DepositAddress 按支付单派生收款地址，同一支付单永远得到同一个地址
func DepositAddress(secret []byte, currency, paymentID string) string {
	mac := hmac.New(sha256.New, secret)
	mac.Write([]byte(currency + ":" + paymentID))
	sum := hex.EncodeToString(mac.Sum(nil))
	switch currency {
	case "BTC":
		return "bc1q" + sum[:38]
	default:
		// ETH 以及 ERC-20 代币
		return "0x" + sum[:40]
	}
}

type Repository interface {
	Create(ctx context.Context, p *Payment) error
	// Update 只在数据库里的状态仍是 from 时写入，返回 ErrInvalidState 表示被并发修改
	Update(ctx context.Context, p *Payment, from Status) error
	FindByID(ctx context.Context, id string) (*Payment, error)
	FindByReference(ctx context.Context, reference string) (*Payment, error)
	ListByOrder(ctx context.Context, orderID string) ([]*Payment, error)
}
