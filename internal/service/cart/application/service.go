package application

import (
	"context"
	"errors"
	"sort"
	"sync"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"storefront/internal/pkg/logger"
	"storefront/internal/service/cart/domain"
	catalog "storefront/internal/service/catalog/domain"
)

const pricingConcurrency = 8

// ProductReader 是购物车依赖的商品查询端口，由 catalog 服务实现
type ProductReader interface {
	GetProduct(ctx context.Context, id string, public bool) (*catalog.Product, error)
}

// CartService 购物车用例
type CartService struct {
	store    domain.Store
	products ProductReader
	currency string
	tracer   trace.Tracer
}

func NewCartService(store domain.Store, products ProductReader, currency string, tracer trace.Tracer) *CartService {
	return &CartService{store: store, products: products, currency: currency, tracer: tracer}
}

// GetCart 并发读取每一行的商品信息并计价，下架或删除的商品标记为不可购买
func (s *CartService) GetCart(ctx context.Context, customerID string) (*domain.Cart, error) {
	ctx, span := s.tracer.Start(ctx, "cart.GetCart")
	defer span.End()

	items, err := s.store.Items(ctx, customerID)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	span.SetAttributes(attribute.Int("cart.lines", len(items)))

	var (
		mu    sync.Mutex
		lines = make([]domain.Line, 0, len(items))
	)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(pricingConcurrency)
	for productID, qty := range items {
		productID, qty := productID, qty
		g.Go(func() error {
			line := domain.Line{ProductID: productID, Quantity: qty}
			p, err := s.products.GetProduct(gctx, productID, false)
			switch {
			case errors.Is(err, catalog.ErrProductNotFound):
			case err != nil:
				return err
			default:
				line.SKU = p.SKU
				line.Name = p.Name
				line.CategoryID = p.CategoryID
				line.UnitCents = p.PriceCents
				line.Available = p.IsPurchasable() && p.Stock >= qty
			}
			mu.Lock()
			lines = append(lines, line)
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		span.RecordError(err)
		return nil, err
	}
	sort.Slice(lines, func(i, j int) bool { return lines[i].ProductID < lines[j].ProductID })

	cart := &domain.Cart{CustomerID: customerID, Lines: lines, Currency: s.currency}
	cart.Reprice()
	return cart, nil
}

// AddItem 只能加购上架商品
func (s *CartService) AddItem(ctx context.Context, customerID, productID string, qty int) (*domain.Cart, error) {
	ctx, span := s.tracer.Start(ctx, "cart.AddItem")
	defer span.End()

	if !domain.ValidQuantity(qty) {
		return nil, domain.ErrInvalidQuantity
	}
	if err := s.ensurePurchasable(ctx, productID); err != nil {
		return nil, err
	}
	if _, err := s.store.Add(ctx, customerID, productID, qty); err != nil {
		return nil, err
	}
	return s.GetCart(ctx, customerID)
}

// SetQuantity 数量为 0 时删除该行
func (s *CartService) SetQuantity(ctx context.Context, customerID, productID string, qty int) (*domain.Cart, error) {
	ctx, span := s.tracer.Start(ctx, "cart.SetQuantity")
	defer span.End()

	if qty == 0 {
		return s.RemoveItem(ctx, customerID, productID)
	}
	if !domain.ValidQuantity(qty) {
		return nil, domain.ErrInvalidQuantity
	}
	items, err := s.store.Items(ctx, customerID)
	if err != nil {
		return nil, err
	}
	if _, ok := items[productID]; !ok {
		return nil, domain.ErrItemNotInCart
	}
	if err := s.store.Set(ctx, customerID, productID, qty); err != nil {
		return nil, err
	}
	return s.GetCart(ctx, customerID)
}

func (s *CartService) RemoveItem(ctx context.Context, customerID, productID string) (*domain.Cart, error) {
	ctx, span := s.tracer.Start(ctx, "cart.RemoveItem")
	defer span.End()

	removed, err := s.store.Remove(ctx, customerID, productID)
	if err != nil {
		return nil, err
	}
	if !removed {
		return nil, domain.ErrItemNotInCart
	}
	return s.GetCart(ctx, customerID)
}

func (s *CartService) Clear(ctx context.Context, customerID string) error {
	ctx, span := s.tracer.Start(ctx, "cart.Clear")
	defer span.End()

	if err := s.store.Clear(ctx, customerID); err != nil {
		logger.Ctx(ctx).Error().Err(err).Str("customer", customerID).Msg("failed to clear cart")
		return err
	}
	return nil
}

func (s *CartService) ensurePurchasable(ctx context.Context, productID string) error {
	p, err := s.products.GetProduct(ctx, productID, false)
	if err != nil {
		if errors.Is(err, catalog.ErrProductNotFound) {
			return domain.ErrProductUnavailable
		}
		return err
	}
	if !p.IsPurchasable() {
		return domain.ErrProductUnavailable
	}
	return nil
}
