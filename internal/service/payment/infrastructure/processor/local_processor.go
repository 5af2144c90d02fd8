// Package processor 提供本地的卡支付处理器，不连接任何真实收单方。
package processor

import (
	"context"
	"regexp"
	"strings"

	"github.com/google/uuid"

	"storefront/internal/pkg/apperr"
	"storefront/internal/pkg/logger"
	"storefront/internal/service/payment/domain"
	"storefront/internal/service/payment/domain/port"
)

// DeclinedToken 总是被拒付，用于联调失败路径
const DeclinedToken = "tok_declined"

var (
	ErrInvalidToken  = apperr.New(apperr.CodeInvalidInput, "card token must start with tok_")
	ErrUnknownCharge = apperr.New(apperr.CodeNotFound, "charge not found")
)

var authCodePattern = regexp.MustCompile(`^ch_[0-9a-f]{32}$`)

// LocalProcessor 不保存任何状态，授权码形如 ch_<32 hex>。
// 退款只校验授权码格式与金额，金额上限和重复退款由持久化的支付单把关，
// 因此重启或多实例部署后依然可以退款。
type LocalProcessor struct{}

func NewLocalProcessor() *LocalProcessor {
	return &LocalProcessor{}
}

var _ port.CardProcessor = (*LocalProcessor)(nil)

func (p *LocalProcessor) Charge(ctx context.Context, req port.ChargeRequest) (string, error) {
	if !strings.HasPrefix(req.Token, "tok_") {
		return "", ErrInvalidToken
	}
	if req.Token == DeclinedToken {
		logger.Ctx(ctx).Info().Str("payment_id", req.PaymentID).Msg("card declined by local processor")
		return "", domain.ErrCardDeclined
	}
	return "ch_" + strings.ReplaceAll(uuid.NewString(), "-", ""), nil
}

func (p *LocalProcessor) Refund(ctx context.Context, authCode string, amountCents int64) error {
	if !authCodePattern.MatchString(authCode) {
		return ErrUnknownCharge
	}
	if amountCents <= 0 {
		return apperr.InvalidInput("refund amount must be positive")
	}
	logger.Ctx(ctx).Info().Str("auth_code", authCode).Int64("amount_cents", amountCents).Msg("card charge refunded by local processor")
	return nil
}
