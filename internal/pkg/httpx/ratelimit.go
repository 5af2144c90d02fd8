package httpx

import (
	"net"
	"net/http"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"storefront/internal/pkg/apperr"
)

var ErrRateLimited = apperr.New(apperr.CodeRateLimited, "too many requests, slow down")

type limiterEntry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// KeyedLimiter 按任意 key（邮箱+IP、客户 ID 等）维护独立的令牌桶
type KeyedLimiter struct {
	mu       sync.Mutex
	limiters map[string]*limiterEntry
	limit    rate.Limit
	burst    int
	idleTTL  time.Duration
	now      func() time.Time
}

// NewPerMinute 创建每分钟 n 次的限流器，突发上限同为 n
func NewPerMinute(n int) *KeyedLimiter {
	if n <= 0 {
		n = 1
	}
	return &KeyedLimiter{
		limiters: make(map[string]*limiterEntry),
		limit:    rate.Every(time.Minute / time.Duration(n)),
		burst:    n,
		idleTTL:  10 * time.Minute,
		now:      time.Now,
	}
}

// Allow 消耗一个令牌
func (l *KeyedLimiter) Allow(key string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	e, ok := l.limiters[key]
	if !ok {
		e = &limiterEntry{limiter: rate.NewLimiter(l.limit, l.burst)}
		l.limiters[key] = e
	}
	e.lastSeen = now
	return e.limiter.AllowN(now, 1)
}

// Check 与 Allow 相同，但超限时返回业务错误
func (l *KeyedLimiter) Check(key string) error {
	if !l.Allow(key) {
		return ErrRateLimited
	}
	return nil
}

// Sweep 清理长时间未使用的桶，返回清理数量
func (l *KeyedLimiter) Sweep() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	cutoff := l.now().Add(-l.idleTTL)
	n := 0
	for k, e := range l.limiters {
		if e.lastSeen.Before(cutoff) {
			delete(l.limiters, k)
			n++
		}
	}
	return n
}

// StartSweeper 周期性清理，done 关闭后退出
func (l *KeyedLimiter) StartSweeper(interval time.Duration, done <-chan struct{}) {
	go func() {
		t := time.NewTicker(interval)
		defer t.Stop()
		for {
			select {
			case <-t.C:
				l.Sweep()
			case <-done:
				return
			}
		}
	}()
}

// ClientIP 取请求来源 IP，不信任 X-Forwarded-For
func ClientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
