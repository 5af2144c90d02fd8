package adapter

import (
	"context"
	"errors"
	"fmt"

	"storefront/internal/pkg/redis"
)

const (
	joinScriptName  = "live_join"
	leaveScriptName = "live_leave"
	resetScriptName = "live_reset"
)

// ViewerRedisAdapter 是 port.ViewerCounter 的 Redis 实现。
// 人数和峰值放在同一个 hash slot，集群模式下脚本也能原子执行。
type ViewerRedisAdapter struct {
	redisClient *redis.Client
}

// NewViewerRedisAdapter 在创建时加载所有需要的 Lua 脚本
func NewViewerRedisAdapter(redisClient *redis.Client) (*ViewerRedisAdapter, error) {
	scripts := map[string]string{
		joinScriptName:  joinScript,
		leaveScriptName: leaveScript,
		resetScriptName: resetScript,
	}
	for name, content := range scripts {
		if err := redisClient.LoadScriptFromContent(name, content); err != nil {
			return nil, fmt.Errorf("failed to load viewer script: %w", err)
		}
	}
	return &ViewerRedisAdapter{redisClient: redisClient}, nil
}

func viewerKeys(streamID string) []string {
	return []string{
		fmt.Sprintf("live:viewers:{%s}", streamID),
		fmt.Sprintf("live:peak:{%s}", streamID),
	}
}

func (a *ViewerRedisAdapter) Join(ctx context.Context, streamID string) (int64, int64, error) {
	result, err := a.redisClient.RunScript(ctx, joinScriptName, viewerKeys(streamID))
	if err != nil {
		return 0, 0, fmt.Errorf("viewer adapter failed to run join script: %w", err)
	}
	pair, ok := result.([]interface{})
	if !ok || len(pair) != 2 {
		return 0, 0, fmt.Errorf("unexpected result from join script: %v", result)
	}
	count, ok1 := pair[0].(int64)
	peak, ok2 := pair[1].(int64)
	if !ok1 || !ok2 {
		return 0, 0, fmt.Errorf("unexpected result types from join script: %T, %T", pair[0], pair[1])
	}
	return count, peak, nil
}

func (a *ViewerRedisAdapter) Leave(ctx context.Context, streamID string) (int64, error) {
	return a.runInt(ctx, leaveScriptName, streamID)
}

func (a *ViewerRedisAdapter) Reset(ctx context.Context, streamID string) (int64, error) {
	return a.runInt(ctx, resetScriptName, streamID)
}

func (a *ViewerRedisAdapter) Count(ctx context.Context, streamID string) (int64, error) {
	n, err := a.redisClient.GetClient().Get(ctx, viewerKeys(streamID)[0]).Int64()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("read viewer count: %w", err)
	}
	return n, nil
}

func (a *ViewerRedisAdapter) runInt(ctx context.Context, script, streamID string) (int64, error) {
	result, err := a.redisClient.RunScript(ctx, script, viewerKeys(streamID))
	if err != nil {
		return 0, fmt.Errorf("viewer adapter failed to run %s: %w", script, err)
	}
	n, ok := result.(int64)
	if !ok {
		return 0, fmt.Errorf("unexpected result type from %s: %T", script, result)
	}
	return n, nil
}

var joinScript = `
-- KEYS[1]: 在线人数, 例如: live:viewers:{stream_123}
-- KEYS[2]: 峰值人数, 例如: live:peak:{stream_123}

local n = redis.call('incr', KEYS[1])
local peak = tonumber(redis.call('get', KEYS[2]) or '0')
if n > peak then
    redis.call('set', KEYS[2], n)
    peak = n
end
return {n, peak}
`

var leaveScript = `
-- 人数最低减到 0, 计数器被重置后的迟到离开不会变成负数
local n = tonumber(redis.call('get', KEYS[1]) or '0')
if n <= 0 then
    return 0
end
return redis.call('decr', KEYS[1])
`

var resetScript = `
-- 直播结束: 返回峰值并删除两个 key
local peak = tonumber(redis.call('get', KEYS[2]) or '0')
redis.call('del', KEYS[1], KEYS[2])
return peak
`
