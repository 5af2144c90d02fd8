package application

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/singleflight"

	"storefront/internal/pkg/apperr"
	"storefront/internal/pkg/logger"
	"storefront/internal/pkg/objectstore"
	"storefront/internal/pkg/pagination"
	"storefront/internal/service/catalog/domain"
)

const imageURLExpiry = 15 * time.Minute

var allowedImageTypes = map[string]string{
	"image/jpeg": ".jpg",
	"image/png":  ".png",
	"image/webp": ".webp",
}

// ProductCache 是商品读缓存，未命中返回 (nil, false)
type ProductCache interface {
	Get(ctx context.Context, key string) (*domain.Product, bool)
	Set(ctx context.Context, key string, p *domain.Product)
	Invalidate(ctx context.Context, keys ...string)
}

func idKey(id string) string     { return "id:" + id }
func slugKey(slug string) string { return "slug:" + slug }

// CatalogService 商品目录的全部用例
type CatalogService struct {
	products   domain.ProductRepository
	categories domain.CategoryRepository
	cache      ProductCache
	images     objectstore.Store
	currency   string
	tracer     trace.Tracer

	loads singleflight.Group
}

func NewCatalogService(products domain.ProductRepository, categories domain.CategoryRepository, cache ProductCache, images objectstore.Store, currency string, tracer trace.Tracer) *CatalogService {
	return &CatalogService{
		products:   products,
		categories: categories,
		cache:      cache,
		images:     images,
		currency:   currency,
		tracer:     tracer,
	}
}

// ListProducts 列出商品。public 为 true 时只返回上架商品。
func (s *CatalogService) ListProducts(ctx context.Context, q ListProductsQuery, public bool) (pagination.Page[*ProductDTO], error) {
	ctx, span := s.tracer.Start(ctx, "catalog.ListProducts")
	defer span.End()

	cursor, err := pagination.Parse(q.Cursor)
	if err != nil {
		return pagination.Page[*ProductDTO]{}, err
	}
	status := domain.ProductStatus(strings.ToUpper(q.Status))
	if public {
		status = domain.StatusActive
	} else if status != "" && !status.Valid() {
		return pagination.Page[*ProductDTO]{}, apperr.InvalidInput("unknown status %q", q.Status)
	}
	limit := pagination.NormalizeLimit(q.Limit)

	rows, err := s.products.List(ctx, domain.ProductFilter{
		CategoryID: q.CategoryID,
		Query:      strings.TrimSpace(q.Query),
		Status:     status,
		Cursor:     cursor,
		Limit:      limit,
	})
	if err != nil {
		span.RecordError(err)
		return pagination.Page[*ProductDTO]{}, err
	}
	span.SetAttributes(attribute.Int("catalog.rows", len(rows)))

	dtos := make([]*ProductDTO, 0, len(rows))
	for _, p := range rows {
		dtos = append(dtos, ToProductDTO(p))
	}
	return pagination.BuildPage(dtos, limit, func(p *ProductDTO) pagination.Cursor {
		return pagination.Cursor{CreatedAt: p.CreatedAt, ID: p.ID}
	}), nil
}

// GetProduct 读取商品，先查缓存，并发未命中时只回源一次
func (s *CatalogService) GetProduct(ctx context.Context, id string, public bool) (*domain.Product, error) {
	ctx, span := s.tracer.Start(ctx, "catalog.GetProduct")
	defer span.End()
	span.SetAttributes(attribute.String("product.id", id))

	p, err := s.load(ctx, idKey(id), func(ctx context.Context) (*domain.Product, error) {
		return s.products.FindByID(ctx, id)
	})
	if err != nil {
		return nil, err
	}
	if public && !p.IsPurchasable() {
		return nil, domain.ErrProductNotFound
	}
	return p, nil
}

func (s *CatalogService) GetProductBySlug(ctx context.Context, slug string, public bool) (*domain.Product, error) {
	ctx, span := s.tracer.Start(ctx, "catalog.GetProductBySlug")
	defer span.End()

	p, err := s.load(ctx, slugKey(slug), func(ctx context.Context) (*domain.Product, error) {
		return s.products.FindBySlug(ctx, slug)
	})
	if err != nil {
		return nil, err
	}
	if public && !p.IsPurchasable() {
		return nil, domain.ErrProductNotFound
	}
	return p, nil
}

func (s *CatalogService) load(ctx context.Context, key string, fetch func(context.Context) (*domain.Product, error)) (*domain.Product, error) {
	if p, ok := s.cache.Get(ctx, key); ok {
		return p, nil
	}
	v, err, _ := s.loads.Do(key, func() (interface{}, error) {
		p, err := fetch(ctx)
		if err != nil {
			return nil, err
		}
		s.cache.Set(ctx, key, p)
		return p, nil
	})
	if err != nil {
		return nil, err
	}
	// 复制一份，避免多个调用方共享同一个指针
	cp := *v.(*domain.Product)
	return &cp, nil
}

// GetProducts 批量读取商品，供购物车、心愿单使用，不存在的 ID 直接忽略
func (s *CatalogService) GetProducts(ctx context.Context, ids []string) (map[string]*domain.Product, error) {
	ctx, span := s.tracer.Start(ctx, "catalog.GetProducts")
	defer span.End()

	list, err := s.products.FindByIDs(ctx, ids)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	out := make(map[string]*domain.Product, len(list))
	for _, p := range list {
		out[p.ID] = p
	}
	return out, nil
}

// CreateProduct 后台创建商品
func (s *CatalogService) CreateProduct(ctx context.Context, req CreateProductRequest) (*domain.Product, error) {
	ctx, span := s.tracer.Start(ctx, "catalog.CreateProduct")
	defer span.End()

	status := domain.ProductStatus(strings.ToUpper(req.Status))
	if status == "" {
		status = domain.StatusDraft
	}
	slug := req.Slug
	if slug == "" {
		slug = domain.Slugify(req.Name)
	}
	now := time.Now().UTC()
	p := &domain.Product{
		ID:          uuid.NewString(),
		SKU:         strings.TrimSpace(req.SKU),
		Name:        strings.TrimSpace(req.Name),
		Slug:        domain.Slugify(slug),
		Description: req.Description,
		PriceCents:  req.PriceCents,
		Currency:    s.currency,
		CategoryID:  req.CategoryID,
		Stock:       req.Stock,
		Status:      status,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := p.Validate(); err != nil {
		return nil, err
	}
	if p.CategoryID != "" {
		if _, err := s.categories.FindByID(ctx, p.CategoryID); err != nil {
			return nil, err
		}
	}
	if err := s.products.Create(ctx, p); err != nil {
		span.RecordError(err)
		return nil, err
	}
	logger.Ctx(ctx).Info().Str("product", p.ID).Str("sku", p.SKU).Msg("product created")
	return p, nil
}

// UpdateProduct 后台修改商品
func (s *CatalogService) UpdateProduct(ctx context.Context, id string, req UpdateProductRequest) (*domain.Product, error) {
	ctx, span := s.tracer.Start(ctx, "catalog.UpdateProduct")
	defer span.End()

	p, err := s.products.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	oldSlug := p.Slug
	if req.Name != nil {
		p.Name = strings.TrimSpace(*req.Name)
	}
	if req.Slug != nil {
		p.Slug = domain.Slugify(*req.Slug)
	}
	if req.Description != nil {
		p.Description = *req.Description
	}
	if req.PriceCents != nil {
		p.PriceCents = *req.PriceCents
	}
	if req.CategoryID != nil {
		if *req.CategoryID != "" {
			if _, err := s.categories.FindByID(ctx, *req.CategoryID); err != nil {
				return nil, err
			}
		}
		p.CategoryID = *req.CategoryID
	}
	if req.Status != nil {
		p.Status = domain.ProductStatus(strings.ToUpper(*req.Status))
	}
	p.UpdatedAt = time.Now().UTC()
	if err := p.Validate(); err != nil {
		return nil, err
	}
	if err := s.products.Update(ctx, p); err != nil {
		span.RecordError(err)
		return nil, err
	}
	s.cache.Invalidate(ctx, idKey(p.ID), slugKey(oldSlug), slugKey(p.Slug))
	return p, nil
}

// ArchiveProduct 下架商品
func (s *CatalogService) ArchiveProduct(ctx context.Context, id string) (*domain.Product, error) {
	ctx, span := s.tracer.Start(ctx, "catalog.ArchiveProduct")
	defer span.End()

	p, err := s.products.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	p.Archive()
	if err := s.products.Update(ctx, p); err != nil {
		span.RecordError(err)
		return nil, err
	}
	s.cache.Invalidate(ctx, idKey(p.ID), slugKey(p.Slug))
	return p, nil
}

// AdjustStock 后台调整库存，结果不能小于 0
func (s *CatalogService) AdjustStock(ctx context.Context, id string, delta int) (*domain.Product, error) {
	ctx, span := s.tracer.Start(ctx, "catalog.AdjustStock")
	defer span.End()
	span.SetAttributes(attribute.String("product.id", id), attribute.Int("stock.delta", delta))

	if delta == 0 {
		return nil, apperr.InvalidInput("delta must not be zero")
	}
	p, err := s.products.AdjustStock(ctx, id, delta)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	s.cache.Invalidate(ctx, idKey(p.ID), slugKey(p.Slug))
	return p, nil
}

// UploadImage 上传商品主图并返回临时访问地址
func (s *CatalogService) UploadImage(ctx context.Context, id, contentType string, r io.Reader, size int64) (*ImageUploadResponse, error) {
	ctx, span := s.tracer.Start(ctx, "catalog.UploadImage")
	defer span.End()

	if s.images == nil {
		return nil, apperr.New(apperr.CodeUnprocessable, "image storage is not configured")
	}
	ext, ok := allowedImageTypes[contentType]
	if !ok {
		return nil, apperr.InvalidInput("unsupported image type %q", contentType)
	}
	p, err := s.products.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	key := path.Join("products", p.ID, uuid.NewString()+ext)
	if err := s.images.Put(ctx, key, contentType, r, size); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "upload failed")
		return nil, err
	}
	p.ImageKey = key
	p.UpdatedAt = time.Now().UTC()
	if err := s.products.Update(ctx, p); err != nil {
		return nil, err
	}
	s.cache.Invalidate(ctx, idKey(p.ID), slugKey(p.Slug))

	url, err := s.images.PresignedURL(ctx, key, imageURLExpiry)
	if err != nil {
		return nil, err
	}
	return &ImageUploadResponse{ImageKey: key, URL: url}, nil
}

func (s *CatalogService) CreateCategory(ctx context.Context, req CreateCategoryRequest) (*domain.Category, error) {
	ctx, span := s.tracer.Start(ctx, "catalog.CreateCategory")
	defer span.End()

	name := strings.TrimSpace(req.Name)
	if name == "" {
		return nil, apperr.InvalidInput("name is required")
	}
	slug := req.Slug
	if slug == "" {
		slug = name
	}
	if req.ParentID != "" {
		if _, err := s.categories.FindByID(ctx, req.ParentID); err != nil {
			return nil, err
		}
	}
	c := &domain.Category{ID: uuid.NewString(), Name: name, Slug: domain.Slugify(slug), ParentID: req.ParentID}
	if err := s.categories.Create(ctx, c); err != nil {
		return nil, err
	}
	return c, nil
}

func (s *CatalogService) ListCategories(ctx context.Context) ([]*domain.Category, error) {
	ctx, span := s.tracer.Start(ctx, "catalog.ListCategories")
	defer span.End()
	return s.categories.List(ctx)
}

// ReserveStock 结算时预占库存，任意一行不足则整体失败
func (s *CatalogService) ReserveStock(ctx context.Context, lines []domain.StockLine) error {
	ctx, span := s.tracer.Start(ctx, "catalog.ReserveStock")
	defer span.End()

	for _, l := range lines {
		if l.Quantity <= 0 {
			return apperr.InvalidInput("quantity must be positive")
		}
	}
	if err := s.products.Reserve(ctx, domain.MergeLines(lines)); err != nil {
		span.RecordError(err)
		if !errors.Is(err, domain.ErrInsufficientStock) {
			span.SetStatus(codes.Error, "reserve failed")
		}
		return err
	}
	s.invalidateLines(ctx, lines)
	return nil
}

// ReleaseStock 订单失败、取消或退款时归还库存
func (s *CatalogService) ReleaseStock(ctx context.Context, lines []domain.StockLine) error {
	ctx, span := s.tracer.Start(ctx, "catalog.ReleaseStock")
	defer span.End()

	if err := s.products.Release(ctx, domain.MergeLines(lines)); err != nil {
		span.RecordError(err)
		return fmt.Errorf("release stock: %w", err)
	}
	s.invalidateLines(ctx, lines)
	return nil
}

func (s *CatalogService) invalidateLines(ctx context.Context, lines []domain.StockLine) {
	keys := make([]string, 0, len(lines))
	for _, l := range lines {
		keys = append(keys, idKey(l.ProductID))
	}
	s.cache.Invalidate(ctx, keys...)
}
