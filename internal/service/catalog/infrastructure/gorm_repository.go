package infrastructure

import (
	"context"
	"strings"
	"time"

	"github.com/pkg/errors"
	"gorm.io/gorm"

	"storefront/internal/pkg/database"
	"storefront/internal/pkg/logger"
	"storefront/internal/service/catalog/domain"
)

// GormProductRepository 是 ProductRepository 的 GORM 实现
type GormProductRepository struct {
	db *gorm.DB
}

func NewGormProductRepository(db *gorm.DB) *GormProductRepository {
	return &GormProductRepository{db: db}
}

func (r *GormProductRepository) Create(ctx context.Context, p *domain.Product) error {
	err := r.db.WithContext(ctx).Create(FromDomainProduct(p)).Error
	if database.IsDuplicateKey(err) {
		return domain.ErrProductExists
	}
	return errors.Wrap(err, "create product")
}

// Update 只写可编辑字段，库存只能经由 AdjustStock/Reserve/Release 修改
func (r *GormProductRepository) Update(ctx context.Context, p *domain.Product) error {
	res := r.db.WithContext(ctx).Model(&ProductModel{}).Where("id = ?", p.ID).
		Select("name", "slug", "description", "price_cents", "category_id", "status", "image_key", "updated_at").
		Updates(FromDomainProduct(p))
	if res.Error != nil {
		if database.IsDuplicateKey(res.Error) {
			return domain.ErrProductExists
		}
		return errors.Wrap(res.Error, "update product")
	}
	if res.RowsAffected == 0 {
		return domain.ErrProductNotFound
	}
	return nil
}

func (r *GormProductRepository) FindByID(ctx context.Context, id string) (*domain.Product, error) {
	return r.findOne(ctx, "id = ?", id)
}

func (r *GormProductRepository) FindBySlug(ctx context.Context, slug string) (*domain.Product, error) {
	return r.findOne(ctx, "slug = ?", slug)
}

func (r *GormProductRepository) findOne(ctx context.Context, cond string, arg any) (*domain.Product, error) {
	var model ProductModel
	err := r.db.WithContext(ctx).Where(cond, arg).First(&model).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrProductNotFound
		}
		return nil, errors.Wrap(err, "find product")
	}
	return ToDomainProduct(&model), nil
}

func (r *GormProductRepository) FindByIDs(ctx context.Context, ids []string) ([]*domain.Product, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	var models []ProductModel
	if err := r.db.WithContext(ctx).Where("id IN ?", ids).Find(&models).Error; err != nil {
		return nil, errors.Wrap(err, "find products")
	}
	out := make([]*domain.Product, 0, len(models))
	for i := range models {
		out = append(out, ToDomainProduct(&models[i]))
	}
	return out, nil
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

// List 按 (created_at, id) 倒序分页，多取一行
func (r *GormProductRepository) List(ctx context.Context, f domain.ProductFilter) ([]*domain.Product, error) {
	q := r.db.WithContext(ctx).Model(&ProductModel{})
	if f.Status != "" {
		q = q.Where("status = ?", string(f.Status))
	}
	if f.CategoryID != "" {
		q = q.Where("category_id = ?", f.CategoryID)
	}
	if f.Query != "" {
		like := "%" + likeEscaper.Replace(f.Query) + "%"
		q = q.Where("(name LIKE ? OR sku LIKE ?)", like, like)
	}
	if f.Cursor != nil {
		q = q.Where("(created_at < ?) OR (created_at = ? AND id < ?)", f.Cursor.CreatedAt, f.Cursor.CreatedAt, f.Cursor.ID)
	}
	var models []ProductModel
	if err := q.Order("created_at DESC, id DESC").Limit(f.Limit + 1).Find(&models).Error; err != nil {
		return nil, errors.Wrap(err, "list products")
	}
	out := make([]*domain.Product, 0, len(models))
	for i := range models {
		out = append(out, ToDomainProduct(&models[i]))
	}
	return out, nil
}

// AdjustStock 原子地增减库存，结果为负时拒绝
func (r *GormProductRepository) AdjustStock(ctx context.Context, id string, delta int) (*domain.Product, error) {
	var model ProductModel
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&ProductModel{}).
			Where("id = ? AND stock + ? >= 0", id, delta).
			Updates(map[string]interface{}{
				"stock":      gorm.Expr("stock + ?", delta),
				"updated_at": time.Now().UTC(),
			})
		if res.Error != nil {
			return errors.Wrap(res.Error, "adjust stock")
		}
		if err := tx.Where("id = ?", id).First(&model).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return domain.ErrProductNotFound
			}
			return errors.Wrap(err, "reload product after stock adjustment")
		}
		if res.RowsAffected == 0 {
			return domain.ErrInsufficientStock
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return ToDomainProduct(&model), nil
}

// Reserve 在一个事务里逐行条件扣减，任意一行不满足就整体回滚
func (r *GormProductRepository) Reserve(ctx context.Context, lines []domain.StockLine) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, l := range lines {
			res := tx.Model(&ProductModel{}).
				Where("id = ? AND status = ? AND stock >= ?", l.ProductID, string(domain.StatusActive), l.Quantity).
				UpdateColumn("stock", gorm.Expr("stock - ?", l.Quantity))
			if res.Error != nil {
				return errors.Wrapf(res.Error, "reserve stock for %s", l.ProductID)
			}
			if res.RowsAffected == 0 {
				logger.Ctx(ctx).Info().Str("product", l.ProductID).Int("quantity", l.Quantity).Msg("stock reservation rejected")
				return domain.ErrInsufficientStock
			}
		}
		return nil
	})
}

// Release 归还库存，不检查商品状态
func (r *GormProductRepository) Release(ctx context.Context, lines []domain.StockLine) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, l := range lines {
			res := tx.Model(&ProductModel{}).Where("id = ?", l.ProductID).
				UpdateColumn("stock", gorm.Expr("stock + ?", l.Quantity))
			if res.Error != nil {
				return errors.Wrapf(res.Error, "release stock for %s", l.ProductID)
			}
			if res.RowsAffected == 0 {
				logger.Ctx(ctx).Warn().Str("product", l.ProductID).Msg("release skipped, product missing")
			}
		}
		return nil
	})
}

// GormCategoryRepository 是 CategoryRepository 的 GORM 实现
type GormCategoryRepository struct {
	db *gorm.DB
}

func NewGormCategoryRepository(db *gorm.DB) *GormCategoryRepository {
	return &GormCategoryRepository{db: db}
}

func (r *GormCategoryRepository) Create(ctx context.Context, c *domain.Category) error {
	err := r.db.WithContext(ctx).Create(FromDomainCategory(c)).Error
	if database.IsDuplicateKey(err) {
		return domain.ErrCategoryExists
	}
	return errors.Wrap(err, "create category")
}

func (r *GormCategoryRepository) FindByID(ctx context.Context, id string) (*domain.Category, error) {
	var model CategoryModel
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&model).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrCategoryNotFound
		}
		return nil, errors.Wrap(err, "find category")
	}
	return ToDomainCategory(&model), nil
}

func (r *GormCategoryRepository) List(ctx context.Context) ([]*domain.Category, error) {
	var models []CategoryModel
	if err := r.db.WithContext(ctx).Order("name").Find(&models).Error; err != nil {
		return nil, errors.Wrap(err, "list categories")
	}
	out := make([]*domain.Category, 0, len(models))
	for i := range models {
		out = append(out, ToDomainCategory(&models[i]))
	}
	return out, nil
}
