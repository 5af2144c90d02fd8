// internal/pkg/redis/client.go
package redis

import (
	"context"
	"fmt"
	"strings"
	"sync"

	goredis "github.com/redis/go-redis/v9"

	"storefront/internal/pkg/logger"
)

// Nil 透出 go-redis 的 key 不存在错误，调用方不必再引 go-redis
var Nil = goredis.Nil

// Client 包装 UniversalClient，并缓存按名字注册的 Lua 脚本
type Client struct {
	rdb goredis.UniversalClient

	mu      sync.RWMutex
	scripts map[string]*goredis.Script
}

// NewClient 根据地址个数自动选择单机或集群模式。
// addrs 形如 "host1:6379,host2:6379"。
func NewClient(addrs, password string, db int) (*Client, error) {
	var list []string
	for _, a := range strings.Split(addrs, ",") {
		if a = strings.TrimSpace(a); a != "" {
			list = append(list, a)
		}
	}
	if len(list) == 0 {
		return nil, fmt.Errorf("no redis address configured")
	}

	rdb := goredis.NewUniversalClient(&goredis.UniversalOptions{
		Addrs:    list,
		Password: password,
		DB:       db,
	})
	if err := rdb.Ping(context.Background()).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis %s: %w", addrs, err)
	}
	logger.L().Info().Strs("addrs", list).Msg("✅ Successfully connected to Redis.")
	return Wrap(rdb), nil
}

// Wrap 包装一个已有连接，测试中配合 miniredis 使用
func Wrap(rdb goredis.UniversalClient) *Client {
	return &Client{rdb: rdb, scripts: make(map[string]*goredis.Script)}
}

// GetClient 返回底层客户端
func (c *Client) GetClient() goredis.UniversalClient { return c.rdb }

// LoadScriptFromContent 注册并预加载一个脚本
func (c *Client) LoadScriptFromContent(name, content string) error {
	script := goredis.NewScript(content)
	if err := script.Load(context.Background(), c.rdb).Err(); err != nil {
		return fmt.Errorf("load lua script %s: %w", name, err)
	}
	c.mu.Lock()
	c.scripts[name] = script
	c.mu.Unlock()
	return nil
}

// RunScript 执行已注册的脚本。EVALSHA 未命中时 go-redis 会自动退回 EVAL。
func (c *Client) RunScript(ctx context.Context, name string, keys []string, args ...interface{}) (interface{}, error) {
	c.mu.RLock()
	script, ok := c.scripts[name]
	c.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("lua script %s not loaded", name)
	}
	return script.Run(ctx, c.rdb, keys, args...).Result()
}

// Ping 用于 readiness 检查
func (c *Client) Ping(ctx context.Context) error {
	return c.rdb.Ping(ctx).Err()
}

func (c *Client) Close() error { return c.rdb.Close() }
