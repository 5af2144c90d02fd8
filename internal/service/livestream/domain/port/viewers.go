package port

import "context"

// ViewerCounter 维护直播间的在线人数和峰值
type ViewerCounter interface {
	// Join 返回加入后的在线人数和峰值
	Join(ctx context.Context, streamID string) (count, peak int64, err error)
	// Leave 人数不会低于 0
	Leave(ctx context.Context, streamID string) (int64, error)
	Count(ctx context.Context, streamID string) (int64, error)
	// Reset 清空计数并返回清空前的峰值
	Reset(ctx context.Context, streamID string) (int64, error)
}
