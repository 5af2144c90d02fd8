package infrastructure

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"storefront/internal/pkg/database"
	"storefront/internal/service/promotion/domain"
)

// GormPromotionRepository 是 domain.Repository 的 GORM 实现
type GormPromotionRepository struct {
	db *gorm.DB
}

func NewGormPromotionRepository(db *gorm.DB) *GormPromotionRepository {
	return &GormPromotionRepository{db: db}
}

func (r *GormPromotionRepository) Create(ctx context.Context, p *domain.Promotion) error {
	err := r.db.WithContext(ctx).Create(FromDomainPromotion(p)).Error
	if database.IsDuplicateKey(err) {
		return domain.ErrPromotionExists
	}
	return errors.Wrap(err, "create promotion")
}

// Update 不触碰 used_count，次数只由 Redeem/ReleaseOrder 维护
func (r *GormPromotionRepository) Update(ctx context.Context, p *domain.Promotion) error {
	res := r.db.WithContext(ctx).Model(&PromotionModel{}).Where("id = ?", p.ID).
		Select("name", "type", "value", "max_discount_cents", "min_order_cents", "starts_at", "ends_at",
			"usage_limit", "per_customer_limit", "scope", "scope_ids", "rule", "status", "updated_at").
		Updates(FromDomainPromotion(p))
	if res.Error != nil {
		return errors.Wrap(res.Error, "update promotion")
	}
	if res.RowsAffected == 0 {
		return domain.ErrPromotionNotFound
	}
	return nil
}

func (r *GormPromotionRepository) FindByID(ctx context.Context, id string) (*domain.Promotion, error) {
	return r.findOne(ctx, "id = ?", id)
}

func (r *GormPromotionRepository) FindByCode(ctx context.Context, code string) (*domain.Promotion, error) {
	return r.findOne(ctx, "code = ?", code)
}

func (r *GormPromotionRepository) findOne(ctx context.Context, cond string, arg any) (*domain.Promotion, error) {
	var model PromotionModel
	if err := r.db.WithContext(ctx).Where(cond, arg).First(&model).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrPromotionNotFound
		}
		return nil, errors.Wrap(err, "find promotion")
	}
	return ToDomainPromotion(&model), nil
}

func (r *GormPromotionRepository) List(ctx context.Context, f domain.ListFilter) ([]*domain.Promotion, error) {
	q := r.db.WithContext(ctx).Model(&PromotionModel{})
	if f.Status != "" {
		q = q.Where("status = ?", string(f.Status))
	}
	if f.Cursor != nil {
		q = q.Where("(created_at < ?) OR (created_at = ? AND id < ?)", f.Cursor.CreatedAt, f.Cursor.CreatedAt, f.Cursor.ID)
	}
	var models []PromotionModel
	if err := q.Order("created_at DESC, id DESC").Limit(f.Limit + 1).Find(&models).Error; err != nil {
		return nil, errors.Wrap(err, "list promotions")
	}
	out := make([]*domain.Promotion, 0, len(models))
	for i := range models {
		out = append(out, ToDomainPromotion(&models[i]))
	}
	return out, nil
}

func (r *GormPromotionRepository) CountCustomerRedemptions(ctx context.Context, promotionID, customerID string) (int64, error) {
	var n int64
	err := r.db.WithContext(ctx).Model(&RedemptionModel{}).
		Where("promotion_id = ? AND customer_id = ? AND status = ?", promotionID, customerID, string(domain.RedemptionApplied)).
		Count(&n).Error
	return n, errors.Wrap(err, "count redemptions")
}

// Redeem 先条件自增 used_count 拿到促销行锁，再校验单用户次数并落核销记录
func (r *GormPromotionRepository) Redeem(ctx context.Context, red *domain.Redemption, perCustomerLimit int64) (*domain.Redemption, error) {
	var out *domain.Redemption
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var existing RedemptionModel
		err := tx.Where("order_id = ? AND promotion_id = ?", red.OrderID, red.PromotionID).First(&existing).Error
		switch {
		case err == nil && existing.Status == string(domain.RedemptionApplied):
			out = ToDomainRedemption(&existing)
			return nil
		case err != nil && !errors.Is(err, gorm.ErrRecordNotFound):
			return errors.Wrap(err, "find redemption")
		}

		res := tx.Model(&PromotionModel{}).
			Where("id = ? AND status = ? AND (usage_limit = 0 OR used_count < usage_limit)", red.PromotionID, string(domain.StatusActive)).
			UpdateColumn("used_count", gorm.Expr("used_count + 1"))
		if res.Error != nil {
			return errors.Wrap(res.Error, "increment used_count")
		}
		if res.RowsAffected == 0 {
			var p PromotionModel
			if err := tx.Select("status").Where("id = ?", red.PromotionID).First(&p).Error; err != nil {
				if errors.Is(err, gorm.ErrRecordNotFound) {
					return domain.ErrPromotionNotFound
				}
				return errors.Wrap(err, "find promotion")
			}
			if p.Status != string(domain.StatusActive) {
				return domain.ErrPromotionInactive
			}
			return domain.ErrUsageLimitReached
		}

		if perCustomerLimit > 0 {
			var n int64
			if err := tx.Model(&RedemptionModel{}).
				Where("promotion_id = ? AND customer_id = ? AND status = ?", red.PromotionID, red.CustomerID, string(domain.RedemptionApplied)).
				Count(&n).Error; err != nil {
				return errors.Wrap(err, "count redemptions")
			}
			if n >= perCustomerLimit {
				return domain.ErrCustomerLimitReached
			}
		}

		red.Status = domain.RedemptionApplied
		if existing.ID != "" {
			// 之前撤销过的记录重新生效
			if err := tx.Model(&RedemptionModel{}).Where("id = ?", existing.ID).
				Updates(map[string]interface{}{"status": string(domain.RedemptionApplied), "discount_cents": red.DiscountCents}).Error; err != nil {
				return errors.Wrap(err, "reapply redemption")
			}
			red.ID, red.CreatedAt = existing.ID, existing.CreatedAt
			out = red
			return nil
		}
		if err := tx.Create(FromDomainRedemption(red)).Error; err != nil {
			return errors.Wrap(err, "create redemption")
		}
		out = red
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// ReleaseOrder 逐条撤销并归还次数，已撤销的记录不重复归还
func (r *GormPromotionRepository) ReleaseOrder(ctx context.Context, orderID string) ([]*domain.Redemption, error) {
	var released []*domain.Redemption
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var models []RedemptionModel
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("order_id = ? AND status = ?", orderID, string(domain.RedemptionApplied)).
			Find(&models).Error; err != nil {
			return errors.Wrap(err, "find redemptions")
		}
		for i := range models {
			m := &models[i]
			res := tx.Model(&RedemptionModel{}).
				Where("id = ? AND status = ?", m.ID, string(domain.RedemptionApplied)).
				Update("status", string(domain.RedemptionReleased))
			if res.Error != nil {
				return errors.Wrap(res.Error, "release redemption")
			}
			if res.RowsAffected == 0 {
				continue
			}
			if err := tx.Model(&PromotionModel{}).
				Where("id = ? AND used_count > 0", m.PromotionID).
				UpdateColumn("used_count", gorm.Expr("used_count - 1")).Error; err != nil {
				return errors.Wrap(err, "decrement used_count")
			}
			m.Status = string(domain.RedemptionReleased)
			released = append(released, ToDomainRedemption(m))
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return released, nil
}

func (r *GormPromotionRepository) FindRedemptionsByOrder(ctx context.Context, orderID string) ([]*domain.Redemption, error) {
	var models []RedemptionModel
	if err := r.db.WithContext(ctx).Where("order_id = ?", orderID).Order("created_at").Find(&models).Error; err != nil {
		return nil, errors.Wrap(err, "find redemptions")
	}
	out := make([]*domain.Redemption, 0, len(models))
	for i := range models {
		out = append(out, ToDomainRedemption(&models[i]))
	}
	return out, nil
}

// ExpireEnded 把已过期但仍是 ACTIVE 的促销置为 INACTIVE
func (r *GormPromotionRepository) ExpireEnded(ctx context.Context, now time.Time) (int64, error) {
	res := r.db.WithContext(ctx).Model(&PromotionModel{}).
		Where("status = ? AND ends_at IS NOT NULL AND ends_at <= ?", string(domain.StatusActive), now).
		Updates(map[string]interface{}{"status": string(domain.StatusInactive), "updated_at": now})
	return res.RowsAffected, errors.Wrap(res.Error, "expire promotions")
}
