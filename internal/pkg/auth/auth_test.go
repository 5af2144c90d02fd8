package auth

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"storefront/internal/pkg/apperr"
	"storefront/internal/pkg/session"
)

const testSecret = "0123456789abcdef0123456789abcdef"

// revokedSet 按令牌 ID 或客户 ID 吊销
type revokedSet map[string]bool

func (s revokedSet) IsRevoked(_ context.Context, id, customerID string, _ time.Time) (bool, error) {
	return s[id] || s[customerID], nil
}

func TestTokenManager_IssueAndParse(t *testing.T) {
	tm, err := NewTokenManager(testSecret, time.Hour)
	require.NoError(t, err)

	raw, claims, err := tm.Issue("cust-1", RoleAdmin)
	require.NoError(t, err)

	parsed, err := tm.Parse(raw)
	require.NoError(t, err)
	assert.Equal(t, "cust-1", parsed.Subject)
	assert.Equal(t, RoleAdmin, parsed.Role)
	assert.Equal(t, claims.ID, parsed.ID)
}

func TestTokenManager_RejectsExpiredAndForeign(t *testing.T) {
	tm, _ := NewTokenManager(testSecret, time.Minute)
	raw, _, err := tm.Issue("cust-1", RoleCustomer)
	require.NoError(t, err)

	tm.now = func() time.Time { return time.Now().Add(2 * time.Minute) }
	_, err = tm.Parse(raw)
	assert.ErrorIs(t, err, ErrInvalidToken)

	other, _ := NewTokenManager("ffffffffffffffffffffffffffffffff", time.Minute)
	foreign, _, _ := other.Issue("cust-1", RoleCustomer)
	tm.now = time.Now
	_, err = tm.Parse(foreign)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestNewTokenManager_ShortSecret(t *testing.T) {
	_, err := NewTokenManager("short", time.Hour)
	assert.Error(t, err)
}

func TestPasswordHash(t *testing.T) {
	h, err := HashPassword("correct horse")
	require.NoError(t, err)

	ok, err := CheckPassword(h, "correct horse")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = CheckPassword(h, "wrong")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestMiddleware(t *testing.T) {
	tm, _ := NewTokenManager(testSecret, time.Hour)
	customerTok, _, _ := tm.Issue("cust-1", RoleCustomer)
	adminTok, adminClaims, _ := tm.Issue("admin-1", RoleAdmin)
	revoked := revokedSet{}
	mw := NewMiddleware(tm, revoked, "sf_session")

	var seen Principal
	ok := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen, _ = FromContext(r.Context())
		w.WriteHeader(http.StatusNoContent)
	})
	admin := mw.Required(RequireAdmin(ok))

	// 无令牌
	rec := httptest.NewRecorder()
	admin.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	// 普通客户访问管理接口
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(&http.Cookie{Name: "sf_session", Value: customerTok})
	rec = httptest.NewRecorder()
	admin.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	// 管理员使用 Bearer 头
	req = httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer "+adminTok)
	rec = httptest.NewRecorder()
	admin.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "admin-1", seen.CustomerID)

	// 登出后令牌失效
	revoked[adminClaims.ID] = true
	rec = httptest.NewRecorder()
	admin.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestMiddleware_CustomerWideRevocation(t *testing.T) {
	mr := miniredis.RunT(t)
	sessions := session.NewManager(goredis.NewClient(&goredis.Options{Addr: mr.Addr()}))
	tm, _ := NewTokenManager(testSecret, time.Hour)
	adminTok, _, _ := tm.Issue("admin-1", RoleAdmin)
	otherTok, _, _ := tm.Issue("admin-2", RoleAdmin)
	admin := NewMiddleware(tm, sessions, "sf_session").Required(RequireAdmin(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})))
	call := func(tok string) int {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set("Authorization", "Bearer "+tok)
		rec := httptest.NewRecorder()
		admin.ServeHTTP(rec, req)
		return rec.Code
	}
	require.Equal(t, http.StatusNoContent, call(adminTok))

	// 账号被封禁或降权后，之前签发的令牌立即失效
	require.NoError(t, sessions.RevokeCustomer(context.Background(), "admin-1", tm.TTL()))
	assert.Equal(t, http.StatusUnauthorized, call(adminTok))
	assert.Equal(t, http.StatusNoContent, call(otherTok))
}

func TestMustPrincipal(t *testing.T) {
	_, err := MustPrincipal(context.Background())
	assert.Equal(t, apperr.CodeUnauthorized, apperr.CodeOf(err))

	p, err := MustPrincipal(WithPrincipal(context.Background(), Principal{CustomerID: "c"}))
	require.NoError(t, err)
	assert.Equal(t, "c", p.CustomerID)
}
