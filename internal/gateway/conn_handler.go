package gateway

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/taoyao-code/packetcmd/internal/catalog"
	cfgpkg "github.com/taoyao-code/packetcmd/internal/config"
	"github.com/taoyao-code/packetcmd/internal/metrics"
	"github.com/taoyao-code/packetcmd/internal/outbound"
	"github.com/taoyao-code/packetcmd/internal/protocol/pktcmd"
	redisstore "github.com/taoyao-code/packetcmd/internal/storage/redis"
	"github.com/taoyao-code/packetcmd/internal/tcpserver"
)

// DeadLetterSink 死信落盘（redis DeadLetters 实现）
type DeadLetterSink interface {
	Push(ctx context.Context, dl *redisstore.DeadLetter) error
}

// Gateway 把 TCP 连接绑定到会话，并维护在线会话表
type Gateway struct {
	cat      *catalog.Catalog
	builtins map[string]pktcmd.Handler
	opts     SessionOptions
	registry *Registry
	metrics  *metrics.AppMetrics
	logger   *zap.Logger

	sink      DeadLetterSink
	deadC     chan *redisstore.DeadLetter
	deadDrops atomic.Int64
	wg        sync.WaitGroup
}

// OptionsFromConfig 由配置生成会话参数
func OptionsFromConfig(cfg *cfgpkg.Config) SessionOptions {
	return SessionOptions{
		Dispatcher: pktcmd.Config{
			MaxCommands:      cfg.Dispatcher.MaxCommands,
			InputBufferSize:  cfg.Dispatcher.InputBufferSize,
			OutputBufferSize: cfg.Dispatcher.OutputBufferSize,
		},
		InboundCapacity:  cfg.Queue.InboundCapacity,
		OutboundCapacity: cfg.Queue.OutboundCapacity,
		Pump: outbound.Options{
			Throttle:         cfg.Gateway.Throttle,
			RetryDelay:       cfg.Gateway.RetryDelay,
			BreakerThreshold: cfg.Gateway.BreakerThreshold,
			BreakerCooldown:  cfg.Gateway.BreakerCooldown,
		},
		RatePerSec:  cfg.Gateway.RatePerSec,
		Burst:       cfg.Gateway.Burst,
		DirectReply: cfg.Gateway.DirectReply,
	}
}

// New 创建网关；m 与 sink 可为 nil
func New(cat *catalog.Catalog, builtins map[string]pktcmd.Handler, opts SessionOptions,
	m *metrics.AppMetrics, sink DeadLetterSink, logger *zap.Logger,
) *Gateway {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Gateway{
		cat:      cat,
		builtins: builtins,
		opts:     opts,
		registry: NewRegistry(),
		metrics:  m,
		logger:   logger,
		sink:     sink,
		deadC:    make(chan *redisstore.DeadLetter, 1024),
	}
}

// Registry 在线会话表
func (g *Gateway) Registry() *Registry { return g.registry }

// Catalog 命令目录
func (g *Gateway) Catalog() *catalog.Catalog { return g.cat }

// DeadLetterDrops 死信通道满而未落盘的条数
func (g *Gateway) DeadLetterDrops() int64 { return g.deadDrops.Load() }

// HandleConn tcpserver 新连接回调：建会话、装读回调、登记并在断开时清理
func (g *Gateway) HandleConn(cc *tcpserver.ConnContext) {
	remote := cc.RemoteAddr().String()
	sess, err := g.NewSession(cc, remote)
	if err != nil {
		g.logger.Error("create session failed", zap.String("remote", remote), zap.Error(err))
		_ = cc.Close()
		return
	}

	cc.SetOnRead(sess.OnRead)
	sess.Start(context.Background())
	g.registry.Add(sess)
	if g.metrics != nil {
		g.metrics.OnlineGauge.Inc()
	}
	g.logger.Info("session opened",
		zap.String("session_id", sess.ID()),
		zap.Uint64("conn_id", cc.ID()),
		zap.String("remote", remote))

	cc.OnClose(func() {
		sess.Close()
		g.registry.Remove(sess.ID())
		if g.metrics != nil {
			g.metrics.OnlineGauge.Dec()
		}
		st := sess.Stats()
		g.logger.Info("session closed",
			zap.String("session_id", sess.ID()),
			zap.Int64("received", st.Received),
			zap.Int64("processed", st.Processed),
			zap.Int64("failed", st.Failed))
	})
}

// NewSession 以网关的目录与参数创建会话（未启动、未登记）
func (g *Gateway) NewSession(conn Conn, remote string) (*Session, error) {
	return NewSession(conn, remote, g.cat, g.builtins, g.opts, g.metrics, g.spill, g.logger)
}

// spill 死信异步落盘，通道满时丢弃
func (g *Gateway) spill(dl *redisstore.DeadLetter) {
	if g.sink == nil {
		return
	}
	select {
	case g.deadC <- dl:
	default:
		g.deadDrops.Add(1)
	}
}

// Run 启动死信落盘与队列深度采样，阻塞直至 ctx 结束
func (g *Gateway) Run(ctx context.Context, sampleEvery time.Duration) {
	if sampleEvery <= 0 {
		sampleEvery = time.Second
	}
	g.wg.Add(1)
	go func() {
		defer g.wg.Done()
		g.deadLetterLoop(ctx)
	}()

	ticker := time.NewTicker(sampleEvery)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			g.wg.Wait()
			return
		case <-ticker.C:
			g.sample()
		}
	}
}

func (g *Gateway) sample() {
	if g.metrics == nil {
		return
	}
	in, out := g.registry.QueueDepths()
	g.metrics.QueueDepth.WithLabelValues(metrics.QueueInbound).Set(float64(in))
	g.metrics.QueueDepth.WithLabelValues(metrics.QueueOutbound).Set(float64(out))
}

func (g *Gateway) deadLetterLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			g.drainDeadLetters()
			return
		case dl := <-g.deadC:
			g.pushDeadLetter(ctx, dl)
		}
	}
}

// drainDeadLetters 退出前落盘通道中剩余的死信
func (g *Gateway) drainDeadLetters() {
	for {
		select {
		case dl := <-g.deadC:
			g.pushDeadLetter(context.Background(), dl)
		default:
			return
		}
	}
}

// pushDeadLetter 单条落盘，不随 Run 的 ctx 取消
func (g *Gateway) pushDeadLetter(ctx context.Context, dl *redisstore.DeadLetter) {
	if g.sink == nil {
		return
	}
	pctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 2*time.Second)
	defer cancel()
	if err := g.sink.Push(pctx, dl); err != nil {
		g.logger.Warn("dead letter push failed",
			zap.String("session_id", dl.SessionID),
			zap.String("reason", dl.Reason),
			zap.Error(err))
	}
}
