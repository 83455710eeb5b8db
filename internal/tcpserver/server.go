package tcpserver

import (
	"context"
	"errors"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/puzpuzpuz/xsync/v3"
	"go.uber.org/zap"

	cfgpkg "github.com/taoyao-code/packetcmd/internal/config"
)

// Server TCP 网关
// 每个连接一个 ConnContext；一次 Read 即一帧，由 onConnect 安装的 onRead 处理。
type Server struct {
	cfg     cfgpkg.TCPConfig
	logger  *zap.Logger
	limiter *ConnectionLimiter

	ln     net.Listener
	wg     sync.WaitGroup
	ctx    context.Context // Shutdown 时取消，连接许可等待随之中止
	cancel context.CancelFunc
	once   sync.Once

	nextConnID atomic.Uint64
	conns      *xsync.MapOf[uint64, *ConnContext]

	onConnect func(cc *ConnContext)
	// 可选指标回调
	onAccept    func()
	onRecvBytes func(n int)
}

const (
	acquireWait = 100 * time.Millisecond // 满载时等待连接许可
	acceptRetry = 50 * time.Millisecond
)

// New 创建 TCP 网关
func New(cfg cfgpkg.TCPConfig, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.ReadBufferSize <= 0 {
		cfg.ReadBufferSize = 64
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Server{
		cfg:     cfg,
		logger:  logger,
		limiter: NewConnectionLimiter(cfg.MaxConnections, acquireWait),
		ctx:     ctx,
		cancel:  cancel,
		conns:   xsync.NewMapOf[uint64, *ConnContext](),
	}
}

// SetConnHandler 设置新连接回调（在读循环启动前同步调用）
func (s *Server) SetConnHandler(h func(cc *ConnContext)) { s.onConnect = h }

// SetMetricsCallbacks 设置指标回调
func (s *Server) SetMetricsCallbacks(onAccept func(), onRecvBytes func(int)) {
	s.onAccept, s.onRecvBytes = onAccept, onRecvBytes
}

// Addr 实际监听地址（Start 之后有效）
func (s *Server) Addr() net.Addr {
	if s.ln == nil {
		return nil
	}
	return s.ln.Addr()
}

// Limiter 连接限流器
func (s *Server) Limiter() *ConnectionLimiter { return s.limiter }

// ActiveConns 当前连接数
func (s *Server) ActiveConns() int { return s.conns.Size() }

// Start 监听并接受连接（非阻塞，内部 goroutine）
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.cfg.Addr)
	if err != nil {
		return err
	}
	s.ln = ln
	s.logger.Info("tcp server listening", zap.String("addr", ln.Addr().String()))

	s.wg.Add(1)
	go s.acceptLoop()
	return nil
}

func (s *Server) acceptLoop() {
	defer s.wg.Done()
	for {
		conn, err := s.ln.Accept()
		if err != nil {
			if s.ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				return
			}
			s.logger.Warn("accept failed", zap.Error(err))
			time.Sleep(acceptRetry)
			continue
		}
		if s.onAccept != nil {
			s.onAccept()
		}
		if err := s.limiter.Acquire(s.ctx); err != nil {
			s.logger.Warn("connection rejected",
				zap.String("remote_addr", conn.RemoteAddr().String()),
				zap.Error(err))
			_ = conn.Close()
			continue
		}

		cc := newConnContext(s, conn)
		s.conns.Store(cc.ID(), cc)
		if s.ctx.Err() != nil {
			_ = cc.Close()
		}
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			defer s.limiter.Release()
			defer s.conns.Delete(cc.ID())
			if s.onConnect != nil {
				s.onConnect(cc)
			}
			cc.run()
		}()
	}
}

// Shutdown 关闭监听与全部连接，等待读写循环退出
func (s *Server) Shutdown(ctx context.Context) error {
	s.once.Do(func() {
		s.cancel()
		if s.ln != nil {
			_ = s.ln.Close()
		}
		s.conns.Range(func(_ uint64, cc *ConnContext) bool {
			_ = cc.Close()
			return true
		})
	})
	ch := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(ch)
	}()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-ch:
		return nil
	}
}
