package auth

import (
	"context"
	"net/http"
	"strings"
	"time"

	"storefront/internal/pkg/apperr"
	"storefront/internal/pkg/httpx"
	"storefront/internal/pkg/logger"
)

type ctxKey struct{}

// Principal 是当前请求的已认证身份
type Principal struct {
	CustomerID string
	Role       string
	TokenID    string
	Claims     *Claims
}

func (p Principal) IsAdmin() bool { return p.Role == RoleAdmin }

// WithPrincipal 把身份放入 context，测试中也可以直接使用
func WithPrincipal(ctx context.Context, p Principal) context.Context {
	return context.WithValue(ctx, ctxKey{}, p)
}

// FromContext 取出当前身份
func FromContext(ctx context.Context) (Principal, bool) {
	p, ok := ctx.Value(ctxKey{}).(Principal)
	return p, ok
}

// MustPrincipal 在要求登录的路由里使用，缺失时返回未认证错误
func MustPrincipal(ctx context.Context) (Principal, error) {
	p, ok := FromContext(ctx)
	if !ok {
		return Principal{}, ErrNoSession
	}
	return p, nil
}

// RevocationChecker 查询令牌是否已登出，或者签发后该客户的会话被整体吊销
type RevocationChecker interface {
	IsRevoked(ctx context.Context, tokenID, customerID string, issuedAt time.Time) (bool, error)
}

// Middleware 从 Cookie 或 Bearer 头读取令牌
type Middleware struct {
	tokens     *TokenManager
	revocation RevocationChecker
	cookieName string
}

func NewMiddleware(tokens *TokenManager, revocation RevocationChecker, cookieName string) *Middleware {
	return &Middleware{tokens: tokens, revocation: revocation, cookieName: cookieName}
}

func (m *Middleware) tokenFrom(r *http.Request) string {
	if c, err := r.Cookie(m.cookieName); err == nil && c.Value != "" {
		return c.Value
	}
	if h := r.Header.Get("Authorization"); strings.HasPrefix(h, "Bearer ") {
		return strings.TrimSpace(strings.TrimPrefix(h, "Bearer "))
	}
	return ""
}

func (m *Middleware) resolve(r *http.Request) (Principal, error) {
	raw := m.tokenFrom(r)
	if raw == "" {
		return Principal{}, ErrNoSession
	}
	claims, err := m.tokens.Parse(raw)
	if err != nil {
		return Principal{}, err
	}
	if m.revocation != nil {
		var issuedAt time.Time
		if claims.IssuedAt != nil {
			issuedAt = claims.IssuedAt.Time
		}
		revoked, err := m.revocation.IsRevoked(r.Context(), claims.ID, claims.Subject, issuedAt)
		if err != nil {
			return Principal{}, apperr.Wrap(apperr.CodeInternal, "session check failed", err)
		}
		if revoked {
			return Principal{}, ErrInvalidToken
		}
	}
	return Principal{CustomerID: claims.Subject, Role: claims.Role, TokenID: claims.ID, Claims: claims}, nil
}

// Optional 有令牌就解析，没有或无效都放行
func (m *Middleware) Optional(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if p, err := m.resolve(r); err == nil {
			r = r.WithContext(WithPrincipal(r.Context(), p))
		}
		next.ServeHTTP(w, r)
	})
}

// Required 要求有效会话
func (m *Middleware) Required(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		p, err := m.resolve(r)
		if err != nil {
			logger.Ctx(r.Context()).Debug().Err(err).Msg("unauthenticated request")
			httpx.WriteError(w, r, err)
			return
		}
		next.ServeHTTP(w, r.WithContext(WithPrincipal(r.Context(), p)))
	})
}

// RequireAdmin 必须挂在 Required 之后
func RequireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		p, ok := FromContext(r.Context())
		if !ok {
			httpx.WriteError(w, r, ErrNoSession)
			return
		}
		if !p.IsAdmin() {
			httpx.WriteError(w, r, ErrForbidden)
			return
		}
		next.ServeHTTP(w, r)
	})
}
