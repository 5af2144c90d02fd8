package interfaces

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/trace/noop"

	"storefront/internal/pkg/auth"
	"storefront/internal/service/catalog/application"
	"storefront/internal/service/catalog/domain"
)

// stubProducts 只实现测试用到的方法
type stubProducts struct {
	domain.ProductRepository
	byID map[string]*domain.Product
}

func (s *stubProducts) FindByID(_ context.Context, id string) (*domain.Product, error) {
	p, ok := s.byID[id]
	if !ok {
		return nil, domain.ErrProductNotFound
	}
	cp := *p
	return &cp, nil
}

func (s *stubProducts) AdjustStock(_ context.Context, id string, delta int) (*domain.Product, error) {
	p, ok := s.byID[id]
	if !ok {
		return nil, domain.ErrProductNotFound
	}
	if p.Stock+delta < 0 {
		return nil, domain.ErrInsufficientStock
	}
	p.Stock += delta
	cp := *p
	return &cp, nil
}

type noCache struct{}

func (noCache) Get(context.Context, string) (*domain.Product, bool) { return nil, false }
func (noCache) Set(context.Context, string, *domain.Product)        {}
func (noCache) Invalidate(context.Context, ...string)               {}

const secret = "0123456789abcdef0123456789abcdef"

func setup(t *testing.T) (http.Handler, *auth.TokenManager) {
	t.Helper()
	now := time.Now().UTC()
	repo := &stubProducts{byID: map[string]*domain.Product{
		"p1": {ID: "p1", SKU: "S1", Name: "Mug", Slug: "mug", PriceCents: 1250, Currency: "USD", Stock: 4, Status: domain.StatusActive, CreatedAt: now, UpdatedAt: now},
		"p2": {ID: "p2", SKU: "S2", Name: "Draft", Slug: "draft", Status: domain.StatusDraft, CreatedAt: now, UpdatedAt: now},
	}}
	svc := application.NewCatalogService(repo, nil, noCache{}, nil, "USD", noop.NewTracerProvider().Tracer("test"))

	tokens, err := auth.NewTokenManager(secret, time.Hour)
	require.NoError(t, err)
	r := chi.NewRouter()
	NewCatalogHandler(svc).RegisterRoutes(r, auth.NewMiddleware(tokens, nil, "sf_session"))
	return r, tokens
}

func TestGetProduct(t *testing.T) {
	h, _ := setup(t)

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/products/p1", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	var dto application.ProductDTO
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &dto))
	assert.Equal(t, "Mug", dto.Name)
	assert.Equal(t, int64(1250), dto.PriceCents)

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/products/p2", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.JSONEq(t, `{"error":{"code":"NOT_FOUND","message":"product not found"}}`, rec.Body.String())
}

func TestAdminRoutesRequireAdmin(t *testing.T) {
	h, tokens := setup(t)
	body := `{"delta":-10}`

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/admin/catalog/products/p1/stock", strings.NewReader(body)))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	customer, _, err := tokens.Issue("c1", auth.RoleCustomer)
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodPost, "/api/admin/catalog/products/p1/stock", strings.NewReader(body))
	req.Header.Set("Authorization", "Bearer "+customer)
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	admin, _, err := tokens.Issue("a1", auth.RoleAdmin)
	require.NoError(t, err)
	req = httptest.NewRequest(http.MethodPost, "/api/admin/catalog/products/p1/stock", strings.NewReader(body))
	req.Header.Set("Authorization", "Bearer "+admin)
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusConflict, rec.Code)

	req = httptest.NewRequest(http.MethodPost, "/api/admin/catalog/products/p1/stock", strings.NewReader(`{"delta":2}`))
	req.AddCookie(&http.Cookie{Name: "sf_session", Value: admin})
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"stock":6`)
}
