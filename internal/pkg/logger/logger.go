// internal/pkg/logger/logger.go
package logger

import (
	"context"
	"io"
	"os"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/trace"
)

type ctxKey struct{}

var (
	mu   sync.RWMutex
	base = zerolog.New(os.Stdout).With().Timestamp().Logger()
)

// Init 初始化全局日志器，每个进程启动时调用一次。
// pretty 为 true 时输出便于本地阅读的控制台格式。
func Init(serviceName, level string, pretty bool) {
	lvl, err := zerolog.ParseLevel(level)
	if err != nil || level == "" {
		lvl = zerolog.InfoLevel
	}
	zerolog.TimeFieldFormat = time.RFC3339Nano

	var out io.Writer = os.Stdout
	if pretty {
		out = zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.DateTime}
	}

	mu.Lock()
	base = zerolog.New(out).Level(lvl).With().Timestamp().Str("service", serviceName).Logger()
	mu.Unlock()
}

// SetOutput 替换输出目标，主要给测试使用。
func SetOutput(w io.Writer) {
	mu.Lock()
	base = base.Output(w)
	mu.Unlock()
}

// L 返回不带链路信息的全局日志器。
func L() *zerolog.Logger {
	mu.RLock()
	l := base
	mu.RUnlock()
	return &l
}

// WithContext 把带有额外字段的日志器放进 context，之后 Ctx 会以它为基础。
func WithContext(ctx context.Context, l zerolog.Logger) context.Context {
	return context.WithValue(ctx, ctxKey{}, &l)
}

// Ctx 返回带有 trace_id / span_id 的日志器，便于在 Jaeger 与日志之间互相跳转。
func Ctx(ctx context.Context) *zerolog.Logger {
	if ctx == nil {
		return L()
	}
	l := L()
	if fromCtx, ok := ctx.Value(ctxKey{}).(*zerolog.Logger); ok {
		l = fromCtx
	}
	sc := trace.SpanContextFromContext(ctx)
	if !sc.IsValid() {
		return l
	}
	withTrace := l.With().
		Str("trace_id", sc.TraceID().String()).
		Str("span_id", sc.SpanID().String()).
		Logger()
	return &withTrace
}
