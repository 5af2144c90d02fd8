// internal/service/catalog/domain/product.go
package domain

import (
	"context"
	"regexp"
	"sort"
	"strings"
	"time"

	"storefront/internal/pkg/apperr"
	"storefront/internal/pkg/pagination"
)

// ProductStatus 商品的上架状态
type ProductStatus string

const (
	StatusDraft    ProductStatus = "DRAFT"
	StatusActive   ProductStatus = "ACTIVE"   // 只有上架商品对前台可见、可加购
	StatusArchived ProductStatus = "ARCHIVED" // 下架后保留数据，历史订单仍引用
)

func (s ProductStatus) Valid() bool {
	return s == StatusDraft || s == StatusActive || s == StatusArchived
}

var (
	ErrProductNotFound   = apperr.New(apperr.CodeNotFound, "product not found")
	ErrCategoryNotFound  = apperr.New(apperr.CodeNotFound, "category not found")
	ErrProductExists     = apperr.New(apperr.CodeAlreadyExists, "a product with this sku or slug already exists")
	ErrCategoryExists    = apperr.New(apperr.CodeAlreadyExists, "a category with this slug already exists")
	ErrInsufficientStock = apperr.New(apperr.CodeConflict, "insufficient stock")
	ErrProductArchived   = apperr.New(apperr.CodeConflict, "product is archived")
)

// Product 是目录中的商品
type Product struct {
	ID          string
	SKU         string
	Name        string
	Slug        string
	Description string
	PriceCents  int64
	Currency    string
	CategoryID  string
	Stock       int
	Status      ProductStatus
	ImageKey    string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Validate 校验写入前的不变量
func (p *Product) Validate() error {
	switch {
	case strings.TrimSpace(p.SKU) == "":
		return apperr.InvalidInput("sku is required")
	case strings.TrimSpace(p.Name) == "":
		return apperr.InvalidInput("name is required")
	case p.Slug == "":
		return apperr.InvalidInput("slug is required")
	case p.PriceCents < 0:
		return apperr.InvalidInput("price must not be negative")
	case p.Stock < 0:
		return apperr.InvalidInput("stock must not be negative")
	case !p.Status.Valid():
		return apperr.InvalidInput("unknown status %q", p.Status)
	}
	return nil
}

func (p *Product) IsPurchasable() bool { return p.Status == StatusActive }

// Archive 下架商品
func (p *Product) Archive() {
	p.Status = StatusArchived
	p.UpdatedAt = time.Now().UTC()
}

// Category 商品分类，ParentID 为空表示顶级分类
type Category struct {
	ID       string
	Name     string
	Slug     string
	ParentID string
}

var slugInvalid = regexp.MustCompile(`[^a-z0-9]+`)

// Slugify 把名称转成 URL 友好的 slug
func Slugify(s string) string {
	s = slugInvalid.ReplaceAllString(strings.ToLower(strings.TrimSpace(s)), "-")
	return strings.Trim(s, "-")
}

// StockLine 是一次库存预占/释放中的一行
type StockLine struct {
	ProductID string
	Quantity  int
}

// MergeLines 合并同一商品的多行并按商品 ID 排序，固定加锁顺序避免死锁
func MergeLines(lines []StockLine) []StockLine {
	qty := make(map[string]int, len(lines))
	var ids []string
	for _, l := range lines {
		if _, ok := qty[l.ProductID]; !ok {
			ids = append(ids, l.ProductID)
		}
		qty[l.ProductID] += l.Quantity
	}
	sort.Strings(ids)
	out := make([]StockLine, 0, len(ids))
	for _, id := range ids {
		out = append(out, StockLine{ProductID: id, Quantity: qty[id]})
	}
	return out
}

// ProductFilter 是商品列表的查询条件
type ProductFilter struct {
	CategoryID string
	Query      string
	Status     ProductStatus // 空表示不过滤
	Cursor     *pagination.Cursor
	Limit      int
}

// ProductRepository 商品仓储。List 需要多返回一行用于判断是否有下一页。
type ProductRepository interface {
	Create(ctx context.Context, p *Product) error
	Update(ctx context.Context, p *Product) error
	FindByID(ctx context.Context, id string) (*Product, error)
	FindBySlug(ctx context.Context, slug string) (*Product, error)
	FindByIDs(ctx context.Context, ids []string) ([]*Product, error)
	List(ctx context.Context, f ProductFilter) ([]*Product, error)
	AdjustStock(ctx context.Context, id string, delta int) (*Product, error)
	Reserve(ctx context.Context, lines []StockLine) error
	Release(ctx context.Context, lines []StockLine) error
}

type CategoryRepository interface {
	Create(ctx context.Context, c *Category) error
	FindByID(ctx context.Context, id string) (*Category, error)
	List(ctx context.Context) ([]*Category, error)
}
