package bootstrap

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfig_FileThenEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "storefront.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
app:
  port: 9090
  currency: EUR
checkout:
  taxRateBps: 2000
  paymentTimeout: 30m
`), 0o600))
	t.Setenv("MYSQL_ADDR", "db.internal:3306")

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, 9090, cfg.App.Port)
	assert.Equal(t, "EUR", cfg.App.Currency)
	assert.Equal(t, int64(2000), cfg.Checkout.TaxRateBps)
	assert.Equal(t, 30*time.Minute, cfg.Checkout.PaymentTimeout)
	assert.Equal(t, "db.internal:3306", cfg.Infra.MySQL.Addr)
	// 未覆盖的字段保持默认值
	assert.Equal(t, int64(599), cfg.Checkout.FlatShippingCents)
}

func TestLoadConfig_ShippedFile(t *testing.T) {
	cfg, err := LoadConfig(filepath.Join("..", "..", "..", "configs", "storefront.yaml"))
	require.NoError(t, err)
	assert.Equal(t, "storefront.events", cfg.Infra.Kafka.EventsTopic)
	assert.Equal(t, 15*time.Minute, cfg.Checkout.PaymentTimeout)
	assert.Equal(t, 12*time.Hour, cfg.Worker.StaleStreamAfter)
	assert.Equal(t, "@every 5m", cfg.Worker.CancelOverdueSpec)
	assert.Equal(t, []string{"BTC", "ETH", "USDC"}, cfg.Payment.CryptoCurrencies)
}

func TestLoadConfig_MissingFileUsesDefaults(t *testing.T) {
	cfg, err := LoadConfig(filepath.Join(t.TempDir(), "nope.yaml"))
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig().App.Port, cfg.App.Port)
}

func TestValidate(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Checkout.TaxRateBps = 20000
	assert.Error(t, cfg.Validate())

	cfg = DefaultConfig()
	cfg.App.Currency = "dollars"
	assert.Error(t, cfg.Validate())
}

func TestMergeRemote(t *testing.T) {
	base := DefaultConfig()
	next, err := mergeRemote(base, "checkout:\n  flatShippingCents: 0\n")
	require.NoError(t, err)
	assert.Equal(t, int64(0), next.Checkout.FlatShippingCents)
	assert.Equal(t, int64(599), base.Checkout.FlatShippingCents, "base must not be mutated")

	_, err = mergeRemote(base, "app:\n  port: -1\n")
	assert.Error(t, err)
}

func TestRuntimeShutdownRunsHooksInReverse(t *testing.T) {
	rt := &Runtime{ServiceName: "test"}
	var order []string
	rt.OnShutdown("first", func(context.Context) error { order = append(order, "first"); return nil })
	rt.OnShutdown("second", func(context.Context) error { order = append(order, "second"); return errors.New("ignored") })
	rt.Shutdown(context.Background())
	assert.Equal(t, []string{"second", "first"}, order)
}

func TestRouter_Readiness(t *testing.T) {
	healthy := NewRouter("test", map[string]ReadinessCheck{"mysql": func(context.Context) error { return nil }})
	rec := httptest.NewRecorder()
	healthy.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	broken := NewRouter("test", map[string]ReadinessCheck{"redis": func(context.Context) error { return errors.New("down") }})
	rec = httptest.NewRecorder()
	broken.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.JSONEq(t, `{"redis":"down"}`, rec.Body.String())

	rec = httptest.NewRecorder()
	broken.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
}
