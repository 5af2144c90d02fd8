package application

import (
	"context"
	"errors"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"storefront/internal/pkg/apperr"
	"storefront/internal/pkg/logger"
	cart "storefront/internal/service/cart/domain"
	catalog "storefront/internal/service/catalog/domain"
	"storefront/internal/service/wishlist/domain"
)

// ProductCatalog 由 catalog 服务实现
type ProductCatalog interface {
	GetProduct(ctx context.Context, id string, public bool) (*catalog.Product, error)
	GetProducts(ctx context.Context, ids []string) (map[string]*catalog.Product, error)
}

// CartWriter 由 cart 服务实现
type CartWriter interface {
	AddItem(ctx context.Context, customerID, productID string, qty int) (*cart.Cart, error)
}

type WishlistService struct {
	repo     domain.Repository
	products ProductCatalog
	carts    CartWriter
	tracer   trace.Tracer
	now      func() time.Time
}

func NewWishlistService(repo domain.Repository, products ProductCatalog, carts CartWriter, tracer trace.Tracer) *WishlistService {
	return &WishlistService{
		repo:     repo,
		products: products,
		carts:    carts,
		tracer:   tracer,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// Add 只能收藏上架商品，重复收藏不报错
func (s *WishlistService) Add(ctx context.Context, customerID, productID string) error {
	ctx, span := s.tracer.Start(ctx, "wishlist.Add")
	defer span.End()

	productID = strings.TrimSpace(productID)
	if productID == "" {
		return apperr.InvalidInput("product_id is required")
	}
	span.SetAttributes(attribute.String("product.id", productID))

	if _, err := s.products.GetProduct(ctx, productID, true); err != nil {
		return err
	}
	ok, err := s.repo.Contains(ctx, customerID, productID)
	if err != nil || ok {
		return err
	}
	n, err := s.repo.Count(ctx, customerID)
	if err != nil {
		return err
	}
	if n >= domain.MaxItems {
		return domain.ErrWishlistFull
	}
	added, err := s.repo.Add(ctx, &domain.Item{CustomerID: customerID, ProductID: productID, AddedAt: s.now()})
	if err != nil {
		span.RecordError(err)
		return err
	}
	if added {
		logger.Ctx(ctx).Debug().Str("customer_id", customerID).Str("product_id", productID).Msg("wishlist item added")
	}
	return nil
}

func (s *WishlistService) Remove(ctx context.Context, customerID, productID string) error {
	ctx, span := s.tracer.Start(ctx, "wishlist.Remove")
	defer span.End()
	return s.repo.Remove(ctx, customerID, productID)
}

// List 附带商品快照。商品被删除或下架时 Available 为 false，条目仍然保留。
func (s *WishlistService) List(ctx context.Context, customerID string) ([]*ItemView, error) {
	ctx, span := s.tracer.Start(ctx, "wishlist.List")
	defer span.End()

	items, err := s.repo.List(ctx, customerID)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	if len(items) == 0 {
		return []*ItemView{}, nil
	}
	ids := make([]string, 0, len(items))
	for _, it := range items {
		ids = append(ids, it.ProductID)
	}
	products, err := s.products.GetProducts(ctx, ids)
	if err != nil {
		return nil, err
	}
	out := make([]*ItemView, 0, len(items))
	for _, it := range items {
		out = append(out, toItemView(it, products[it.ProductID]))
	}
	span.SetAttributes(attribute.Int("wishlist.items", len(out)))
	return out, nil
}

// MoveToCart 加入购物车成功后才从心愿单移除
func (s *WishlistService) MoveToCart(ctx context.Context, customerID, productID string, qty int) (*cart.Cart, error) {
	ctx, span := s.tracer.Start(ctx, "wishlist.MoveToCart")
	defer span.End()
	span.SetAttributes(attribute.String("product.id", productID))

	if qty <= 0 {
		qty = 1
	}
	ok, err := s.repo.Contains(ctx, customerID, productID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, domain.ErrItemNotFound
	}
	c, err := s.carts.AddItem(ctx, customerID, productID, qty)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	if err := s.repo.Remove(ctx, customerID, productID); err != nil && !errors.Is(err, domain.ErrItemNotFound) {
		logger.Ctx(ctx).Warn().Err(err).Str("product_id", productID).Msg("item added to cart but not removed from wishlist")
	}
	return c, nil
}
