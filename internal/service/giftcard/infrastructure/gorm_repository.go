package infrastructure

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"storefront/internal/pkg/database"
	"storefront/internal/pkg/logger"
	"storefront/internal/service/giftcard/domain"
)

// GormGiftCardRepository 是 domain.Repository 的 GORM 实现
type GormGiftCardRepository struct {
	db *gorm.DB
}

func NewGormGiftCardRepository(db *gorm.DB) *GormGiftCardRepository {
	return &GormGiftCardRepository{db: db}
}

// Create 卡和 ISSUE 流水一起落库
func (r *GormGiftCardRepository) Create(ctx context.Context, card *domain.GiftCard, issue *domain.Transaction) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(FromDomainGiftCard(card)).Error; err != nil {
			if database.IsDuplicateKey(err) {
				return domain.ErrCodeCollision
			}
			return errors.Wrap(err, "create gift card")
		}
		return errors.Wrap(tx.Create(FromDomainTransaction(issue)).Error, "create issue transaction")
	})
}

func (r *GormGiftCardRepository) FindByID(ctx context.Context, id string) (*domain.GiftCard, error) {
	return findCard(r.db.WithContext(ctx), "id = ?", id)
}

func (r *GormGiftCardRepository) FindByCode(ctx context.Context, code string) (*domain.GiftCard, error) {
	return findCard(r.db.WithContext(ctx), "code = ?", code)
}

func findCard(db *gorm.DB, cond string, arg any) (*domain.GiftCard, error) {
	var m GiftCardModel
	if err := db.Where(cond, arg).First(&m).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrGiftCardNotFound
		}
		return nil, errors.Wrap(err, "find gift card")
	}
	return ToDomainGiftCard(&m), nil
}

// Debit 条件扣减：状态、有效期和余额都在 WHERE 里判断，没有命中再回读区分原因
func (r *GormGiftCardRepository) Debit(ctx context.Context, cardID string, amount int64, orderID string, now time.Time) (*domain.Transaction, error) {
	var out *domain.Transaction
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var existing TransactionModel
		err := tx.Where("gift_card_id = ? AND order_id = ? AND type = ?", cardID, orderID, string(domain.TxRedeem)).First(&existing).Error
		if err == nil {
			out = ToDomainTransaction(&existing)
			return nil
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return errors.Wrap(err, "find redeem transaction")
		}

		res := tx.Model(&GiftCardModel{}).
			Where("id = ? AND status = ? AND balance_cents >= ? AND (expires_at IS NULL OR expires_at > ?)",
				cardID, string(domain.StatusActive), amount, now).
			Updates(map[string]interface{}{
				"balance_cents": gorm.Expr("balance_cents - ?", amount),
				"updated_at":    now,
			})
		if res.Error != nil {
			return errors.Wrap(res.Error, "debit gift card")
		}
		card, err := findCard(tx, "id = ?", cardID)
		if err != nil {
			return err
		}
		if res.RowsAffected == 0 {
			if err := card.CheckUsable(now); err != nil {
				return err
			}
			return domain.ErrInsufficientBalance
		}

		out = &domain.Transaction{
			ID:           uuid.NewString(),
			GiftCardID:   cardID,
			Type:         domain.TxRedeem,
			AmountCents:  -amount,
			BalanceAfter: card.BalanceCents,
			OrderID:      orderID,
			CreatedAt:    now,
		}
		return errors.Wrap(tx.Create(FromDomainTransaction(out)).Error, "create redeem transaction")
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// RefundOrder 每张卡每个订单只退一次，退回金额以面值为上限
func (r *GormGiftCardRepository) RefundOrder(ctx context.Context, orderID string) ([]*domain.Transaction, error) {
	var refunds []*domain.Transaction
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var rows []TransactionModel
		if err := tx.Where("order_id = ?", orderID).Order("created_at").Find(&rows).Error; err != nil {
			return errors.Wrap(err, "find order transactions")
		}
		redeemed := map[string]int64{}
		var cards []string
		for _, row := range rows {
			switch domain.TxType(row.Type) {
			case domain.TxRedeem:
				if _, ok := redeemed[row.GiftCardID]; !ok {
					cards = append(cards, row.GiftCardID)
				}
				redeemed[row.GiftCardID] += -row.AmountCents
			case domain.TxRefund:
				redeemed[row.GiftCardID] = -1 // 已退过
			}
		}

		now := time.Now().UTC()
		for _, cardID := range cards {
			outstanding := redeemed[cardID]
			if outstanding <= 0 {
				continue
			}
			var card GiftCardModel
			if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).Where("id = ?", cardID).First(&card).Error; err != nil {
				return errors.Wrap(err, "lock gift card")
			}
			credit := outstanding
			if room := card.InitialCents - card.BalanceCents; credit > room {
				credit = room
			}
			if credit <= 0 {
				logger.Ctx(ctx).Warn().Str("gift_card_id", cardID).Str("order_id", orderID).Msg("gift card already at initial value, nothing to refund")
				continue
			}
			if err := tx.Model(&GiftCardModel{}).Where("id = ?", cardID).
				Updates(map[string]interface{}{
					"balance_cents": gorm.Expr("balance_cents + ?", credit),
					"updated_at":    now,
				}).Error; err != nil {
				return errors.Wrap(err, "credit gift card")
			}
			t := &domain.Transaction{
				ID:           uuid.NewString(),
				GiftCardID:   cardID,
				Type:         domain.TxRefund,
				AmountCents:  credit,
				BalanceAfter: card.BalanceCents + credit,
				OrderID:      orderID,
				CreatedAt:    now,
			}
			if err := tx.Create(FromDomainTransaction(t)).Error; err != nil {
				return errors.Wrap(err, "create refund transaction")
			}
			refunds = append(refunds, t)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return refunds, nil
}

// Adjust 后台手工调整，结果不能为负
func (r *GormGiftCardRepository) Adjust(ctx context.Context, cardID string, delta int64, note string) (*domain.Transaction, error) {
	var out *domain.Transaction
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		now := time.Now().UTC()
		res := tx.Model(&GiftCardModel{}).
			Where("id = ? AND balance_cents + ? >= 0", cardID, delta).
			Updates(map[string]interface{}{
				"balance_cents": gorm.Expr("balance_cents + ?", delta),
				"updated_at":    now,
			})
		if res.Error != nil {
			return errors.Wrap(res.Error, "adjust gift card")
		}
		card, err := findCard(tx, "id = ?", cardID)
		if err != nil {
			return err
		}
		if res.RowsAffected == 0 {
			return domain.ErrBalanceNegative
		}
		out = &domain.Transaction{
			ID:           uuid.NewString(),
			GiftCardID:   cardID,
			Type:         domain.TxAdjust,
			AmountCents:  delta,
			BalanceAfter: card.BalanceCents,
			Note:         note,
			CreatedAt:    now,
		}
		return errors.Wrap(tx.Create(FromDomainTransaction(out)).Error, "create adjust transaction")
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (r *GormGiftCardRepository) SetStatus(ctx context.Context, cardID string, status domain.Status) error {
	res := r.db.WithContext(ctx).Model(&GiftCardModel{}).Where("id = ?", cardID).
		Updates(map[string]interface{}{"status": string(status), "updated_at": time.Now().UTC()})
	if res.Error != nil {
		return errors.Wrap(res.Error, "set gift card status")
	}
	if res.RowsAffected == 0 {
		return domain.ErrGiftCardNotFound
	}
	return nil
}

func (r *GormGiftCardRepository) ListTransactions(ctx context.Context, cardID string) ([]*domain.Transaction, error) {
	var rows []TransactionModel
	if err := r.db.WithContext(ctx).Where("gift_card_id = ?", cardID).Order("created_at, id").Find(&rows).Error; err != nil {
		return nil, errors.Wrap(err, "list gift card transactions")
	}
	out := make([]*domain.Transaction, 0, len(rows))
	for i := range rows {
		out = append(out, ToDomainTransaction(&rows[i]))
	}
	return out, nil
}
