// internal/pkg/bootstrap/app.go
package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"sync"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"

	"storefront/internal/pkg/httpx"
	"storefront/internal/pkg/logger"
	"storefront/internal/pkg/nacos"
	"storefront/internal/pkg/tracing"
)

// Runtime 是进程级的公共组件：配置、链路追踪、注册中心。
type Runtime struct {
	ServiceName string
	Config      *Config
	Nacos       *nacos.Client

	tp *sdktrace.TracerProvider

	mu    sync.Mutex
	hooks []namedHook
}

type namedHook struct {
	name string
	fn   func(ctx context.Context) error
}

// ReadinessCheck 在 /readyz 中执行，返回 error 表示依赖不可用
type ReadinessCheck func(ctx context.Context) error

// AppCtx 传给各服务注册路由
type AppCtx struct {
	Router  chi.Router
	Runtime *Runtime
}

// AppInfo 包含了启动一个 HTTP 服务所需的特定信息。
type AppInfo struct {
	ServiceName      string
	Port             int
	RegisterHandlers func(appCtx AppCtx) // 每个服务注册自己的 HTTP 路由
	Readiness        map[string]ReadinessCheck
}

// Init 加载配置、初始化日志与链路追踪，启用时连接 Nacos 并订阅远程配置。
func Init(serviceName string) (*Runtime, error) {
	cfg, err := LoadConfig(getEnv("CONFIG_FILE", "configs/storefront.yaml"))
	if err != nil {
		return nil, err
	}
	setCurrentConfig(cfg)
	logger.Init(serviceName, cfg.App.LogLevel, cfg.App.LogPretty)

	tp, err := tracing.InitTracerProvider(serviceName, cfg.Infra.Jaeger.Endpoint, cfg.Infra.Jaeger.SampleRatio)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize tracer provider: %w", err)
	}
	rt := &Runtime{ServiceName: serviceName, Config: cfg, tp: tp}
	rt.OnShutdown("tracer", tp.Shutdown)

	if cfg.Infra.Nacos.Enabled {
		nc, err := nacos.NewClient(cfg.Infra.Nacos.ServerAddrs, cfg.Infra.Nacos.Namespace, cfg.Infra.Nacos.Group)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize nacos client: %w", err)
		}
		rt.Nacos = nc
		rt.OnShutdown("nacos-config", func(context.Context) error { nc.Close(); return nil })
		rt.watchRemoteConfig()
	}
	return rt, nil
}

// watchRemoteConfig 先拉一次远程配置，再监听变更，每次变更整体替换当前配置
func (rt *Runtime) watchRemoteConfig() {
	dataID := rt.Config.Infra.Nacos.DataID
	apply := func(content string) {
		if content == "" {
			return
		}
		next, err := mergeRemote(GetCurrentConfig(), content)
		if err != nil {
			logger.L().Error().Err(err).Str("dataId", dataID).Msg("ignoring invalid remote config")
			return
		}
		setCurrentConfig(next)
		logger.L().Info().Str("dataId", dataID).Msg("remote config applied")
	}
	if content, err := rt.Nacos.GetConfig(dataID); err != nil {
		logger.L().Warn().Err(err).Str("dataId", dataID).Msg("remote config unavailable, using local config")
	} else {
		apply(content)
	}
	if err := rt.Nacos.ListenConfig(dataID, apply); err != nil {
		logger.L().Warn().Err(err).Str("dataId", dataID).Msg("failed to listen remote config")
	}
}

// OnShutdown 注册关停钩子，关停时按注册的逆序执行
func (rt *Runtime) OnShutdown(name string, fn func(ctx context.Context) error) {
	rt.mu.Lock()
	rt.hooks = append(rt.hooks, namedHook{name: name, fn: fn})
	rt.mu.Unlock()
}

// Shutdown 逆序执行所有关停钩子
func (rt *Runtime) Shutdown(ctx context.Context) {
	rt.mu.Lock()
	hooks := append([]namedHook(nil), rt.hooks...)
	rt.mu.Unlock()
	for i := len(hooks) - 1; i >= 0; i-- {
		if err := hooks[i].fn(ctx); err != nil {
			logger.L().Error().Err(err).Str("hook", hooks[i].name).Msg("shutdown hook failed")
		} else {
			logger.L().Info().Str("hook", hooks[i].name).Msg("shut down")
		}
	}
}

// NewRouter 构造带公共中间件和运维端点的路由
func NewRouter(serviceName string, checks map[string]ReadinessCheck) chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID, middleware.RealIP, middleware.Recoverer)
	r.Use(httpx.Trace(serviceName), httpx.RequestLog, httpx.SecurityHeaders)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusOK) })
	r.Get("/readyz", func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		status := map[string]string{}
		ready := true
		for name, check := range checks {
			if err := check(ctx); err != nil {
				status[name] = err.Error()
				ready = false
				continue
			}
			status[name] = "ok"
		}
		code := http.StatusOK
		if !ready {
			code = http.StatusServiceUnavailable
		}
		httpx.WriteJSON(w, code, status)
	})
	r.Handle("/metrics", promhttp.Handler())
	return r
}

// StartService 封装了 HTTP 服务的启动、注册与优雅关停，阻塞直到收到退出信号。
func StartService(rt *Runtime, info AppInfo) {
	router := NewRouter(info.ServiceName, info.Readiness)
	if info.RegisterHandlers != nil {
		info.RegisterHandlers(AppCtx{Router: router, Runtime: rt})
	}

	server := &http.Server{
		Addr:              ":" + strconv.Itoa(info.Port),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		logger.L().Info().Str("service", info.ServiceName).Int("port", info.Port).Msg("listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.L().Fatal().Err(err).Str("addr", server.Addr).Msg("could not listen")
		}
	}()
	// HTTP 服务最先关闭，不再接收新请求
	rt.OnShutdown("http-server", server.Shutdown)

	if rt.Nacos != nil {
		ip, err := getOutboundIP()
		if err != nil {
			logger.L().Fatal().Err(err).Msg("failed to get outbound IP address")
		}
		if err := rt.Nacos.RegisterServiceInstance(info.ServiceName, ip, info.Port); err != nil {
			logger.L().Fatal().Err(err).Msg("failed to register service with nacos")
		}
		rt.OnShutdown("nacos-registration", func(context.Context) error {
			return rt.Nacos.DeregisterServiceInstance(info.ServiceName, ip, info.Port)
		})
	}

	WaitForSignal(rt)
}

// WaitForSignal 阻塞到 SIGINT/SIGTERM，然后在 10 秒内完成关停
func WaitForSignal(rt *Runtime) {
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.L().Info().Str("service", rt.ServiceName).Msg("Shutting down service...")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	rt.Shutdown(ctx)
	logger.L().Info().Str("service", rt.ServiceName).Msg("Service gracefully shut down.")
}

// getOutboundIP 取本机对外通信使用的 IP，用于注册到 Nacos
func getOutboundIP() (string, error) {
	conn, err := net.Dial("udp", "8.8.8.8:80")
	if err != nil {
		return "", err
	}
	defer conn.Close()
	return conn.LocalAddr().(*net.UDPAddr).IP.String(), nil
}
