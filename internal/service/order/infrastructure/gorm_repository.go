package infrastructure

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"storefront/internal/service/order/domain"
)

// GormOrderRepository 是 domain.OrderRepository 的 GORM 实现
type GormOrderRepository struct {
	db *gorm.DB
}

func NewGormOrderRepository(db *gorm.DB) *GormOrderRepository {
	return &GormOrderRepository{db: db}
}

func withLines(db *gorm.DB) *gorm.DB {
	return db.Preload("Lines", func(db *gorm.DB) *gorm.DB { return db.Order("position") })
}

// Create 订单和行项目在一个事务里写入
func (r *GormOrderRepository) Create(ctx context.Context, order *domain.Order) error {
	m := FromDomainOrder(order)
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Omit(clause.Associations).Create(m).Error; err != nil {
			return errors.Wrap(err, "create order")
		}
		if len(m.Lines) == 0 {
			return nil
		}
		return errors.Wrap(tx.Create(&m.Lines).Error, "create order lines")
	})
}

func (r *GormOrderRepository) Update(ctx context.Context, order *domain.Order) error {
	res := r.db.WithContext(ctx).Model(&OrderModel{}).Where("id = ?", order.ID).
		Updates(map[string]interface{}{
			"status":          string(order.State),
			"discount_cents":  order.DiscountCents,
			"shipping_cents":  order.ShippingCents,
			"tax_cents":       order.TaxCents,
			"points_redeemed": order.PointsRedeemed,
			"points_cents":    order.PointsCents,
			"gift_card_cents": order.GiftCardCents,
			"total_cents":     order.TotalCents,
			"promo_code":      order.PromoCode,
			"gift_card_code":  order.GiftCardCode,
			"failure_reason":  order.FailureReason,
			"paid_at":         order.PaidAt,
			"updated_at":      order.UpdatedAt,
		})
	if res.Error != nil {
		return errors.Wrap(res.Error, "update order")
	}
	if res.RowsAffected == 0 {
		return domain.ErrOrderNotFound
	}
	return nil
}

func (r *GormOrderRepository) Transition(ctx context.Context, id string, from []domain.State, to domain.State, at time.Time) error {
	states := make([]string, 0, len(from))
	for _, s := range from {
		states = append(states, string(s))
	}
	updates := map[string]interface{}{"status": string(to), "updated_at": at}
	if to == domain.StatePaid {
		updates["paid_at"] = at
	}
	db := r.db.WithContext(ctx)
	res := db.Model(&OrderModel{}).Where("id = ? AND status IN ?", id, states).Updates(updates)
	if res.Error != nil {
		return errors.Wrap(res.Error, "transition order")
	}
	if res.RowsAffected > 0 {
		return nil
	}
	var n int64
	if err := db.Model(&OrderModel{}).Where("id = ?", id).Count(&n).Error; err != nil {
		return errors.Wrap(err, "count order")
	}
	if n == 0 {
		return domain.ErrOrderNotFound
	}
	return domain.ErrInvalidTransition
}

func (r *GormOrderRepository) FindByID(ctx context.Context, id string) (*domain.Order, error) {
	var m OrderModel
	if err := withLines(r.db.WithContext(ctx)).Where("id = ?", id).First(&m).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrOrderNotFound
		}
		return nil, errors.Wrap(err, "find order")
	}
	return ToDomainOrder(&m), nil
}

// List 按创建时间倒序，多取一行给分页判断
func (r *GormOrderRepository) List(ctx context.Context, f domain.ListFilter) ([]*domain.Order, error) {
	q := withLines(r.db.WithContext(ctx)).Model(&OrderModel{})
	if f.CustomerID != "" {
		q = q.Where("customer_id = ?", f.CustomerID)
	}
	if f.State != "" {
		q = q.Where("status = ?", string(f.State))
	}
	if f.Cursor != nil {
		q = q.Where("(created_at < ?) OR (created_at = ? AND id < ?)", f.Cursor.CreatedAt, f.Cursor.CreatedAt, f.Cursor.ID)
	}
	var models []OrderModel
	if err := q.Order("created_at DESC, id DESC").Limit(f.Limit + 1).Find(&models).Error; err != nil {
		return nil, errors.Wrap(err, "list orders")
	}
	return toDomainOrders(models), nil
}

// CountPlaced 统计客户付过款的订单
func (r *GormOrderRepository) CountPlaced(ctx context.Context, customerID string) (int64, error) {
	var n int64
	err := r.db.WithContext(ctx).Model(&OrderModel{}).
		Where("customer_id = ? AND status IN ?", customerID, []string{
			string(domain.StatePaid), string(domain.StateFulfilled), string(domain.StateRefunded),
		}).
		Count(&n).Error
	return n, errors.Wrap(err, "count placed orders")
}

func (r *GormOrderRepository) ListPendingBefore(ctx context.Context, before time.Time, limit int) ([]*domain.Order, error) {
	var models []OrderModel
	if err := withLines(r.db.WithContext(ctx)).
		Where("status = ? AND created_at < ?", string(domain.StatePendingPayment), before).
		Order("created_at").Limit(limit).Find(&models).Error; err != nil {
		return nil, errors.Wrap(err, "list overdue orders")
	}
	return toDomainOrders(models), nil
}

func toDomainOrders(models []OrderModel) []*domain.Order {
	out := make([]*domain.Order, 0, len(models))
	for i := range models {
		out = append(out, ToDomainOrder(&models[i]))
	}
	return out
}
