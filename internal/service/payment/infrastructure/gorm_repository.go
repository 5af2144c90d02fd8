package infrastructure

import (
	"context"

	"github.com/pkg/errors"
	"gorm.io/gorm"

	"storefront/internal/pkg/database"
	"storefront/internal/service/payment/domain"
)

// GormPaymentRepository 是 domain.Repository 的 GORM 实现
type GormPaymentRepository struct {
	db *gorm.DB
}

func NewGormPaymentRepository(db *gorm.DB) *GormPaymentRepository {
	return &GormPaymentRepository{db: db}
}

func (r *GormPaymentRepository) Create(ctx context.Context, p *domain.Payment) error {
	if err := r.db.WithContext(ctx).Create(FromDomainPayment(p)).Error; err != nil {
		if database.IsDuplicateKey(err) {
			return domain.ErrReferenceCollision
		}
		return errors.Wrap(err, "create payment")
	}
	return nil
}

// Update 以 status = from 为条件写入，没有命中时回读区分不存在和并发修改
func (r *GormPaymentRepository) Update(ctx context.Context, p *domain.Payment, from domain.Status) error {
	db := r.db.WithContext(ctx)
	res := db.Model(&PaymentModel{}).
		Where("id = ? AND status = ?", p.ID, string(from)).
		Updates(map[string]interface{}{
			"status":          string(p.Status),
			"reference":       nullable(p.Reference),
			"tx_hash":         p.TxHash,
			"failure_reason":  p.FailureReason,
			"deposit_address": p.DepositAddress,
			"captured_at":     p.CapturedAt,
			"updated_at":      p.UpdatedAt,
		})
	if res.Error != nil {
		if database.IsDuplicateKey(res.Error) {
			return domain.ErrReferenceCollision
		}
		return errors.Wrap(res.Error, "update payment")
	}
	if res.RowsAffected > 0 {
		return nil
	}
	if _, err := r.FindByID(ctx, p.ID); err != nil {
		return err
	}
	return domain.ErrInvalidState
}

func (r *GormPaymentRepository) FindByID(ctx context.Context, id string) (*domain.Payment, error) {
	return r.findOne(ctx, "id = ?", id)
}

func (r *GormPaymentRepository) FindByReference(ctx context.Context, reference string) (*domain.Payment, error) {
	return r.findOne(ctx, "reference = ?", reference)
}

func (r *GormPaymentRepository) findOne(ctx context.Context, cond string, arg any) (*domain.Payment, error) {
	var m PaymentModel
	if err := r.db.WithContext(ctx).Where(cond, arg).First(&m).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrPaymentNotFound
		}
		return nil, errors.Wrap(err, "find payment")
	}
	return ToDomainPayment(&m), nil
}

func (r *GormPaymentRepository) ListByOrder(ctx context.Context, orderID string) ([]*domain.Payment, error) {
	var models []PaymentModel
	if err := r.db.WithContext(ctx).Where("order_id = ?", orderID).Order("created_at").Find(&models).Error; err != nil {
		return nil, errors.Wrap(err, "list payments")
	}
	out := make([]*domain.Payment, 0, len(models))
	for i := range models {
		out = append(out, ToDomainPayment(&models[i]))
	}
	return out, nil
}
