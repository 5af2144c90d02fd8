package infrastructure

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"storefront/internal/pkg/database"
	"storefront/internal/service/loyalty/domain"
)

// GormLoyaltyRepository 是 domain.Repository 的 GORM 实现
type GormLoyaltyRepository struct {
	db *gorm.DB
}

func NewGormLoyaltyRepository(db *gorm.DB) *GormLoyaltyRepository {
	return &GormLoyaltyRepository{db: db}
}

func (r *GormLoyaltyRepository) Create(ctx context.Context, a *domain.Account) error {
	err := r.db.WithContext(ctx).Create(FromDomainAccount(a)).Error
	if database.IsDuplicateKey(err) {
		return domain.ErrAccountExists
	}
	return errors.Wrap(err, "create loyalty account")
}

func (r *GormLoyaltyRepository) FindByCustomer(ctx context.Context, customerID string) (*domain.Account, error) {
	return findAccount(r.db.WithContext(ctx), "customer_id = ?", customerID)
}

func findAccount(db *gorm.DB, cond string, arg any) (*domain.Account, error) {
	var m AccountModel
	if err := db.Where(cond, arg).First(&m).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrAccountNotFound
		}
		return nil, errors.Wrap(err, "find loyalty account")
	}
	return ToDomainAccount(&m), nil
}

// findOrderTx 查找某账户某订单某类型的流水，不存在返回 nil
func findOrderTx(tx *gorm.DB, accountID, orderID string, t domain.TxType) (*domain.PointsTransaction, error) {
	var m TransactionModel
	err := tx.Where("account_id = ? AND order_id = ? AND type = ?", accountID, orderID, string(t)).First(&m).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrap(err, "find loyalty transaction")
	}
	return ToDomainTransaction(&m), nil
}

// Earn 增加余额与累计积分，累计积分跨过门槛时升级
func (r *GormLoyaltyRepository) Earn(ctx context.Context, accountID, orderID string, points int64) (*domain.PointsTransaction, error) {
	var out *domain.PointsTransaction
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		existing, err := findOrderTx(tx, accountID, orderID, domain.TxEarn)
		if err != nil {
			return err
		}
		if existing != nil {
			out = existing
			return nil
		}
		now := time.Now().UTC()
		res := tx.Model(&AccountModel{}).Where("id = ?", accountID).
			Updates(map[string]interface{}{
				"points_balance":  gorm.Expr("points_balance + ?", points),
				"lifetime_points": gorm.Expr("lifetime_points + ?", points),
				"updated_at":      now,
			})
		if res.Error != nil {
			return errors.Wrap(res.Error, "earn points")
		}
		a, err := findAccount(tx, "id = ?", accountID)
		if err != nil {
			return err
		}
		if tier := domain.TierFor(a.LifetimePoints); tier != a.Tier {
			if err := tx.Model(&AccountModel{}).Where("id = ?", accountID).Update("tier", string(tier)).Error; err != nil {
				return errors.Wrap(err, "update tier")
			}
		}
		out = &domain.PointsTransaction{
			ID:           uuid.NewString(),
			AccountID:    accountID,
			Type:         domain.TxEarn,
			Points:       points,
			BalanceAfter: a.PointsBalance,
			OrderID:      orderID,
			CreatedAt:    now,
		}
		return errors.Wrap(tx.Create(FromDomainTransaction(out)).Error, "create earn transaction")
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (r *GormLoyaltyRepository) Redeem(ctx context.Context, accountID, orderID string, points int64) (*domain.PointsTransaction, error) {
	var out *domain.PointsTransaction
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		existing, err := findOrderTx(tx, accountID, orderID, domain.TxRedeem)
		if err != nil {
			return err
		}
		if existing != nil {
			out = existing
			return nil
		}
		now := time.Now().UTC()
		res := tx.Model(&AccountModel{}).
			Where("id = ? AND status = ? AND points_balance >= ?", accountID, string(domain.StatusActive), points).
			Updates(map[string]interface{}{
				"points_balance": gorm.Expr("points_balance - ?", points),
				"updated_at":     now,
			})
		if res.Error != nil {
			return errors.Wrap(res.Error, "redeem points")
		}
		a, err := findAccount(tx, "id = ?", accountID)
		if err != nil {
			return err
		}
		if res.RowsAffected == 0 {
			if a.Status != domain.StatusActive {
				return domain.ErrAccountFrozen
			}
			return domain.ErrInsufficientPoints
		}
		out = &domain.PointsTransaction{
			ID:           uuid.NewString(),
			AccountID:    accountID,
			Type:         domain.TxRedeem,
			Points:       -points,
			BalanceAfter: a.PointsBalance,
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

// ReverseOrder 每个账户每个订单只冲正一次，写一条净额 REVERSE 流水
func (r *GormLoyaltyRepository) ReverseOrder(ctx context.Context, orderID string) ([]*domain.PointsTransaction, error) {
	var reversals []*domain.PointsTransaction
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var rows []TransactionModel
		if err := tx.Where("order_id = ?", orderID).Order("created_at").Find(&rows).Error; err != nil {
			return errors.Wrap(err, "find order transactions")
		}
		type movement struct{ earned, redeemed int64 }
		moves := map[string]*movement{}
		done := map[string]bool{}
		var accounts []string
		for _, row := range rows {
			m, ok := moves[row.AccountID]
			if !ok {
				m = &movement{}
				moves[row.AccountID] = m
				accounts = append(accounts, row.AccountID)
			}
			switch domain.TxType(row.Type) {
			case domain.TxEarn:
				m.earned += row.Points
			case domain.TxRedeem:
				m.redeemed += -row.Points
			case domain.TxReverse:
				done[row.AccountID] = true
			}
		}

		now := time.Now().UTC()
		for _, accountID := range accounts {
			m := moves[accountID]
			if done[accountID] || (m.earned == 0 && m.redeemed == 0) {
				continue
			}
			var a AccountModel
			if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).Where("id = ?", accountID).First(&a).Error; err != nil {
				return errors.Wrap(err, "lock loyalty account")
			}
			balance := a.PointsBalance + m.redeemed - m.earned
			if balance < 0 {
				balance = 0
			}
			lifetime := a.LifetimePoints - m.earned
			if lifetime < 0 {
				lifetime = 0
			}
			if err := tx.Model(&AccountModel{}).Where("id = ?", accountID).
				Updates(map[string]interface{}{
					"points_balance":  balance,
					"lifetime_points": lifetime,
					"tier":            string(domain.TierFor(lifetime)),
					"updated_at":      now,
				}).Error; err != nil {
				return errors.Wrap(err, "reverse points")
			}
			t := &domain.PointsTransaction{
				ID:           uuid.NewString(),
				AccountID:    accountID,
				Type:         domain.TxReverse,
				Points:       balance - a.PointsBalance,
				BalanceAfter: balance,
				OrderID:      orderID,
				CreatedAt:    now,
			}
			if err := tx.Create(FromDomainTransaction(t)).Error; err != nil {
				return errors.Wrap(err, "create reverse transaction")
			}
			reversals = append(reversals, t)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return reversals, nil
}

func (r *GormLoyaltyRepository) Adjust(ctx context.Context, accountID string, delta int64, note string) (*domain.PointsTransaction, error) {
	var out *domain.PointsTransaction
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		now := time.Now().UTC()
		res := tx.Model(&AccountModel{}).
			Where("id = ? AND points_balance + ? >= 0", accountID, delta).
			Updates(map[string]interface{}{
				"points_balance": gorm.Expr("points_balance + ?", delta),
				"updated_at":     now,
			})
		if res.Error != nil {
			return errors.Wrap(res.Error, "adjust points")
		}
		a, err := findAccount(tx, "id = ?", accountID)
		if err != nil {
			return err
		}
		if res.RowsAffected == 0 {
			return domain.ErrBalanceNegative
		}
		out = &domain.PointsTransaction{
			ID:           uuid.NewString(),
			AccountID:    accountID,
			Type:         domain.TxAdjust,
			Points:       delta,
			BalanceAfter: a.PointsBalance,
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

// ListTransactions 最新的在前
func (r *GormLoyaltyRepository) ListTransactions(ctx context.Context, accountID string, limit int) ([]*domain.PointsTransaction, error) {
	var rows []TransactionModel
	if err := r.db.WithContext(ctx).Where("account_id = ?", accountID).
		Order("created_at DESC, id DESC").Limit(limit).Find(&rows).Error; err != nil {
		return nil, errors.Wrap(err, "list loyalty transactions")
	}
	out := make([]*domain.PointsTransaction, 0, len(rows))
	for i := range rows {
		out = append(out, ToDomainTransaction(&rows[i]))
	}
	return out, nil
}
