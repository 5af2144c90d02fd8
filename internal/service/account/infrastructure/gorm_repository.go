package infrastructure

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"gorm.io/gorm"

	"storefront/internal/pkg/database"
	"storefront/internal/service/account/domain"
)

// GormCustomerRepository 是 CustomerRepository 的 GORM 实现
type GormCustomerRepository struct {
	db *gorm.DB
}

func NewGormCustomerRepository(db *gorm.DB) *GormCustomerRepository {
	return &GormCustomerRepository{db: db}
}

func (r *GormCustomerRepository) Create(ctx context.Context, c *domain.Customer) error {
	err := r.db.WithContext(ctx).Create(FromDomainCustomer(c)).Error
	if database.IsDuplicateKey(err) {
		return domain.ErrEmailTaken
	}
	return errors.Wrap(err, "create customer")
}

func (r *GormCustomerRepository) FindByID(ctx context.Context, id string) (*domain.Customer, error) {
	return r.findOne(ctx, "id = ?", id)
}

func (r *GormCustomerRepository) FindByEmail(ctx context.Context, email string) (*domain.Customer, error) {
	return r.findOne(ctx, "email = ?", email)
}

func (r *GormCustomerRepository) findOne(ctx context.Context, cond string, arg any) (*domain.Customer, error) {
	var model CustomerModel
	if err := r.db.WithContext(ctx).Where(cond, arg).First(&model).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrCustomerNotFound
		}
		return nil, errors.Wrap(err, "find customer")
	}
	return ToDomainCustomer(&model), nil
}

func (r *GormCustomerRepository) UpdateName(ctx context.Context, id, name string) error {
	return r.update(ctx, id, map[string]interface{}{"name": name})
}

func (r *GormCustomerRepository) UpdatePassword(ctx context.Context, id, hash string) error {
	return r.update(ctx, id, map[string]interface{}{"password_hash": hash})
}

func (r *GormCustomerRepository) UpdateStatus(ctx context.Context, id string, status domain.CustomerStatus) error {
	return r.update(ctx, id, map[string]interface{}{"status": string(status)})
}

func (r *GormCustomerRepository) update(ctx context.Context, id string, fields map[string]interface{}) error {
	fields["updated_at"] = time.Now().UTC()
	res := r.db.WithContext(ctx).Model(&CustomerModel{}).Where("id = ?", id).Updates(fields)
	if res.Error != nil {
		return errors.Wrap(res.Error, "update customer")
	}
	if res.RowsAffected == 0 {
		return domain.ErrCustomerNotFound
	}
	return nil
}

// GormAddressRepository 是 AddressRepository 的 GORM 实现
type GormAddressRepository struct {
	db *gorm.DB
}

func NewGormAddressRepository(db *gorm.DB) *GormAddressRepository {
	return &GormAddressRepository{db: db}
}

// Create 新默认地址与清除旧默认地址在同一事务里完成
func (r *GormAddressRepository) Create(ctx context.Context, a *domain.Address) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if a.IsDefault {
			if err := tx.Model(&AddressModel{}).
				Where("customer_id = ? AND is_default = ?", a.CustomerID, true).
				Update("is_default", false).Error; err != nil {
				return errors.Wrap(err, "clear default address")
			}
		}
		return errors.Wrap(tx.Create(FromDomainAddress(a)).Error, "create address")
	})
}

func (r *GormAddressRepository) ListByCustomer(ctx context.Context, customerID string) ([]*domain.Address, error) {
	var models []AddressModel
	err := r.db.WithContext(ctx).Where("customer_id = ?", customerID).
		Order("is_default DESC, created_at ASC").Find(&models).Error
	if err != nil {
		return nil, errors.Wrap(err, "list addresses")
	}
	out := make([]*domain.Address, 0, len(models))
	for i := range models {
		out = append(out, ToDomainAddress(&models[i]))
	}
	return out, nil
}

func (r *GormAddressRepository) FindByID(ctx context.Context, customerID, id string) (*domain.Address, error) {
	var model AddressModel
	err := r.db.WithContext(ctx).Where("id = ? AND customer_id = ?", id, customerID).First(&model).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrAddressNotFound
		}
		return nil, errors.Wrap(err, "find address")
	}
	return ToDomainAddress(&model), nil
}

func (r *GormAddressRepository) Delete(ctx context.Context, customerID, id string) error {
	res := r.db.WithContext(ctx).Where("id = ? AND customer_id = ?", id, customerID).Delete(&AddressModel{})
	if res.Error != nil {
		return errors.Wrap(res.Error, "delete address")
	}
	if res.RowsAffected == 0 {
		return domain.ErrAddressNotFound
	}
	return nil
}

func (r *GormAddressRepository) CountByCustomer(ctx context.Context, customerID string) (int64, error) {
	var n int64
	err := r.db.WithContext(ctx).Model(&AddressModel{}).Where("customer_id = ?", customerID).Count(&n).Error
	return n, errors.Wrap(err, "count addresses")
}
