package bootstrap

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/taoyao-code/packetcmd/internal/api"
	"github.com/taoyao-code/packetcmd/internal/app"
	cfgpkg "github.com/taoyao-code/packetcmd/internal/config"
	"github.com/taoyao-code/packetcmd/internal/gateway"
	"github.com/taoyao-code/packetcmd/internal/handlers"
	"github.com/taoyao-code/packetcmd/internal/health"
	"github.com/taoyao-code/packetcmd/internal/metrics"
	"github.com/taoyao-code/packetcmd/internal/protocol/pktcmd"
)

// Run 统一启动流程，阻塞直至收到退出信号
func Run(cfg *cfgpkg.Config, log *zap.Logger) error {
	serverID := app.GenerateServerID()
	log = log.With(zap.String("server_id", serverID))
	log.Info("starting packetcmd server", zap.String("env", cfg.App.Env))

	// ========== 阶段1: 基础组件 ==========
	reg, appm := app.NewMetrics(serverID)
	ready := health.New()

	// ========== 阶段2: 命令目录（启动前完成注册校验）==========
	cat, err := app.LoadCatalog(cfg.Gateway.CatalogPath, log)
	if err != nil {
		log.Error("load command catalog failed", zap.Error(err))
		return err
	}
	builtins := handlers.Builtins()
	opts := gateway.OptionsFromConfig(cfg)
	if err := cat.Register(pktcmd.New(opts.Dispatcher), builtins); err != nil {
		return fmt.Errorf("command catalog rejected by dispatcher: %w", err)
	}

	// ========== 阶段3: Redis 死信（可选）==========
	store, err := app.OpenDeadLetterStore(cfg.Redis, log)
	if err != nil {
		log.Error("redis initialization failed", zap.Error(err))
		return err
	}
	defer store.Close()
	dead := store.Dead

	// ========== 阶段4: 网关 ==========
	var sink gateway.DeadLetterSink
	var deadAPI api.DeadLetterStore
	if dead != nil {
		sink, deadAPI = dead, dead
	}
	gw := gateway.New(cat, builtins, opts, appm, sink, log)
	gwCtx, gwCancel := context.WithCancel(context.Background())
	defer gwCancel()
	gwDone := make(chan struct{})
	go func() {
		defer close(gwDone)
		gw.Run(gwCtx, time.Second)
	}()
	ready.SetGatewayReady(true)

	// ========== 阶段5: HTTP（非阻塞）==========
	tcpSrv := app.NewTCPServer(cfg.TCP, gw, appm, log)
	healthAgg := app.NewHealthAggregator(ready, tcpSrv, gw, store.Client, dead)

	httpSrv := app.NewHTTPServer(cfg, metrics.Handler(reg), ready.Ready)
	httpSrv.Register(func(r *gin.Engine) {
		health.RegisterHTTPRoutes(r, healthAgg)
		api.RegisterRoutes(r, api.NewHandler(gw, deadAPI, log), cfg.API, log)
	})
	go func() {
		if err := httpSrv.Start(); err != nil {
			log.Error("http server error", zap.Error(err))
		}
	}()
	log.Info("http server started", zap.String("addr", cfg.HTTP.Addr))

	// ========== 阶段6: 最后启动TCP（依赖均已就绪）==========
	if err := tcpSrv.Start(); err != nil {
		log.Error("tcp server start failed", zap.Error(err))
		return err
	}
	ready.SetTCPReady(true)
	log.Info("all services ready, waiting for connections", zap.String("tcp_addr", tcpSrv.Addr().String()))

	// ========== 阶段7: 等待关闭信号 ==========
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	log.Info("received shutdown signal, gracefully shutting down...")
	ready.SetTCPReady(false)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	_ = httpSrv.Shutdown(ctx)
	log.Info("http server stopped")

	// 关闭连接会触发会话清理，剩余出站报文进入死信通道
	_ = tcpSrv.Shutdown(ctx)
	log.Info("tcp server stopped")

	gwCancel()
	<-gwDone
	log.Info("shutdown complete", zap.Int64("dead_letter_drops", gw.DeadLetterDrops()))
	return nil
}
