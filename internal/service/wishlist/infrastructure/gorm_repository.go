package infrastructure

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"gorm.io/gorm"

	"storefront/internal/pkg/database"
	"storefront/internal/service/wishlist/domain"
)

// WishlistItemModel 对应 wishlist_items 表，(customer_id, product_id) 为主键
type WishlistItemModel struct {
	CustomerID string    `gorm:"primaryKey;type:char(36)"`
	ProductID  string    `gorm:"primaryKey;type:char(36);index"`
	CreatedAt  time.Time `gorm:"index"`
}

func (WishlistItemModel) TableName() string {
	return "wishlist_items"
}

type GormWishlistRepository struct {
	db *gorm.DB
}

func NewGormWishlistRepository(db *gorm.DB) *GormWishlistRepository {
	return &GormWishlistRepository{db: db}
}

func (r *GormWishlistRepository) Add(ctx context.Context, item *domain.Item) (bool, error) {
	m := &WishlistItemModel{CustomerID: item.CustomerID, ProductID: item.ProductID, CreatedAt: item.AddedAt}
	if err := r.db.WithContext(ctx).Create(m).Error; err != nil {
		if database.IsDuplicateKey(err) {
			return false, nil
		}
		return false, errors.Wrap(err, "add wishlist item")
	}
	return true, nil
}

func (r *GormWishlistRepository) Remove(ctx context.Context, customerID, productID string) error {
	res := r.db.WithContext(ctx).
		Where("customer_id = ? AND product_id = ?", customerID, productID).
		Delete(&WishlistItemModel{})
	if res.Error != nil {
		return errors.Wrap(res.Error, "remove wishlist item")
	}
	if res.RowsAffected == 0 {
		return domain.ErrItemNotFound
	}
	return nil
}

func (r *GormWishlistRepository) Contains(ctx context.Context, customerID, productID string) (bool, error) {
	var n int64
	err := r.db.WithContext(ctx).Model(&WishlistItemModel{}).
		Where("customer_id = ? AND product_id = ?", customerID, productID).
		Count(&n).Error
	return n > 0, errors.Wrap(err, "check wishlist item")
}

func (r *GormWishlistRepository) Count(ctx context.Context, customerID string) (int64, error) {
	var n int64
	err := r.db.WithContext(ctx).Model(&WishlistItemModel{}).Where("customer_id = ?", customerID).Count(&n).Error
	return n, errors.Wrap(err, "count wishlist items")
}

// List 最近加入的在前
func (r *GormWishlistRepository) List(ctx context.Context, customerID string) ([]*domain.Item, error) {
	var models []WishlistItemModel
	if err := r.db.WithContext(ctx).
		Where("customer_id = ?", customerID).
		Order("created_at DESC").
		Limit(domain.MaxItems).
		Find(&models).Error; err != nil {
		return nil, errors.Wrap(err, "list wishlist items")
	}
	out := make([]*domain.Item, 0, len(models))
	for _, m := range models {
		out = append(out, &domain.Item{CustomerID: m.CustomerID, ProductID: m.ProductID, AddedAt: m.CreatedAt})
	}
	return out, nil
}
