package bootstrap

import (
	"context"
	"errors"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/taoyao-code/jkbms-gateway/internal/api"
	"github.com/taoyao-code/jkbms-gateway/internal/app"
	cfgpkg "github.com/taoyao-code/jkbms-gateway/internal/config"
	"github.com/taoyao-code/jkbms-gateway/internal/httpserver"
	"github.com/taoyao-code/jkbms-gateway/internal/metrics"
	"github.com/taoyao-code/jkbms-gateway/internal/poller"
)

const shutdownTimeout = 10 * time.Second

// Run 统一启动流程，阻塞直到 ctx 结束或某个组件失败
func Run(ctx context.Context, cfg *cfgpkg.Config, log *zap.Logger) error {
	log.Info("starting jkbms gateway",
		zap.String("app", cfg.App.Name),
		zap.String("env", cfg.App.Env),
		zap.String("device", cfg.Serial.Device))

	// ========== 阶段1: 基础组件 ==========
	reg, appm := app.NewMetrics()

	// ========== 阶段2: 打开串口（失败直接返回）==========
	transport, err := app.OpenTransport(cfg.Serial, log)
	if err != nil {
		log.Error("open transport failed", zap.Error(err))
		return err
	}
	defer func() {
		if err := transport.Close(); err != nil {
			log.Warn("close transport failed", zap.Error(err))
		}
	}()

	// ========== 阶段3: Redis 发布（可选）==========
	opts := []poller.Option{poller.WithLogger(log.Named("poller")), poller.WithMetrics(appm)}
	redisClient, err := app.NewRedisClient(cfg.Redis, log)
	if err != nil {
		log.Error("redis initialization failed", zap.Error(err))
		return err
	}
	if redisClient != nil {
		defer redisClient.Close()
		opts = append(opts, poller.WithPublisher(app.NewStatusStore(redisClient, cfg.Redis)))
	}

	p := poller.New(transport, cfg.Poll, opts...)

	// ========== 阶段4: 健康检查与 HTTP ==========
	healthAgg := app.NewHealthAggregator(p, cfg.Poll)
	app.AddRedisChecker(healthAgg, redisClient)

	var metricsHandler = metrics.Handler(reg)
	if !cfg.Metrics.Enable {
		metricsHandler = nil
	}
	httpSrv := httpserver.New(cfg.HTTP, log.Named("http"), cfg.Metrics.Path, metricsHandler, healthAgg.Ready,
		func(r gin.IRouter) { app.RegisterHealthRoutes(r, healthAgg) },
		func(r gin.IRouter) { api.RegisterStatusRoutes(r, p, cfg.HTTP.Auth, log) },
	)

	// ========== 阶段5: 并行运行，任一失败整体退出 ==========
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return p.Run(gctx) })
	g.Go(httpSrv.Start)
	g.Go(func() error {
		<-gctx.Done()
		log.Info("shutting down")
		sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return httpSrv.Shutdown(sctx)
	})

	err = g.Wait()
	if err != nil && !errors.Is(err, context.Canceled) {
		log.Error("gateway stopped with error", zap.Error(err))
		return err
	}
	log.Info("shutdown complete")
	return nil
}
