package gateway

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/taoyao-code/packetcmd/internal/catalog"
	"github.com/taoyao-code/packetcmd/internal/metrics"
	"github.com/taoyao-code/packetcmd/internal/outbound"
	"github.com/taoyao-code/packetcmd/internal/protocol/packet"
	"github.com/taoyao-code/packetcmd/internal/protocol/pktcmd"
	"github.com/taoyao-code/packetcmd/internal/queue"
	redisstore "github.com/taoyao-code/packetcmd/internal/storage/redis"
	"github.com/taoyao-code/packetcmd/internal/tcpserver"
)

// Conn 会话所需的连接能力（tcpserver.ConnContext 实现）
type Conn interface {
	Write(b []byte) error
	TryWrite(b []byte) error
}

// SessionOptions 会话参数
type SessionOptions struct {
	Dispatcher       pktcmd.Config
	InboundCapacity  int
	OutboundCapacity int
	Pump             outbound.Options
	RatePerSec       float64
	Burst            int
	DirectReply      bool
}

// Session 一个连接上的命令处理上下文
//
// 读协程（OnRead）只做限速、装载与入队；处理协程（Run）独占 Dispatcher，
// 出队 -> 匹配 -> 分发；处理器的缓冲发送进入出站队列，由出站泵写回连接。
type Session struct {
	id        string
	remote    string
	createdAt time.Time

	conn    Conn
	disp    *pktcmd.Dispatcher
	inQ     *queue.PacketQueue
	outQ    *queue.PacketQueue
	limiter *tcpserver.RateLimiter
	pump    *outbound.Pump
	wakeC   chan struct{}

	directReply bool
	metrics     *metrics.AppMetrics
	spill       func(dl *redisstore.DeadLetter)
	logger      *zap.Logger

	received  atomic.Int64
	processed atomic.Int64
	failed    atomic.Int64

	cancel context.CancelFunc
	wg     sync.WaitGroup
	once   sync.Once
}

// NewSession 创建会话并按命令目录注册处理器
func NewSession(conn Conn, remote string, cat *catalog.Catalog, builtins map[string]pktcmd.Handler,
	opts SessionOptions, m *metrics.AppMetrics, spill func(*redisstore.DeadLetter), logger *zap.Logger,
) (*Session, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Session{
		id:          uuid.NewString(),
		remote:      remote,
		createdAt:   time.Now(),
		conn:        conn,
		limiter:     tcpserver.NewRateLimiter(opts.RatePerSec, opts.Burst),
		wakeC:       make(chan struct{}, 1),
		directReply: opts.DirectReply,
		metrics:     m,
		spill:       spill,
	}
	s.logger = logger.With(zap.String("session_id", s.id), zap.String("remote", remote))

	var err error
	if s.inQ, err = queue.New(opts.InboundCapacity); err != nil {
		return nil, fmt.Errorf("inbound queue: %w", err)
	}
	if s.outQ, err = queue.New(opts.OutboundCapacity); err != nil {
		return nil, fmt.Errorf("outbound queue: %w", err)
	}

	s.disp = pktcmd.New(opts.Dispatcher, pktcmd.WithLogger(s.logger))
	if err := cat.Register(s.disp, builtins); err != nil {
		return nil, err
	}
	if err := s.registerCallbacks(); err != nil {
		return nil, err
	}

	s.pump = outbound.NewPump(s.outQ, outbound.WriterFunc(conn.Write), opts.Pump, s.logger)
	s.pump.OnSent = func(*packet.Packet) { s.countSend("buffered", nil) }
	s.pump.OnFailed = func(_ *packet.Packet, err error) { s.countSend("buffered", err) }
	s.pump.OnDropped = func(p *packet.Packet, err error) {
		s.reject(metrics.QueueOutbound, p, err)
	}
	return s, nil
}

func (s *Session) registerCallbacks() error {
	d := s.disp
	direct := func(mode string, write func([]byte) error) pktcmd.SendFunc {
		return func(d *pktcmd.Dispatcher) error {
			err := write(d.Out().Bytes())
			s.countSend(mode, err)
			return err
		}
	}
	return errors.Join(
		d.RegisterRecvCallback(pktcmd.RecvFunc(s.recv)),
		d.RegisterSendCallback(direct("blocking", s.conn.Write)),
		d.RegisterSendNonblockingCallback(direct("nonblocking", s.conn.TryWrite)),
		d.RegisterReplySendCallback(direct("reply", s.conn.Write)),
		d.RegisterSendBufferedCallback(pktcmd.SendFunc(s.sendBuffered)),
	)
}

// recv 接收钩子：从入站队列取一帧
func (s *Session) recv(d *pktcmd.Dispatcher) (bool, error) {
	err := d.DequeueInputBuffer(s.inQ)
	if errors.Is(err, packet.ErrQueueUnderflow) {
		return false, nil
	}
	return err == nil, err
}

// sendBuffered 缓冲发送：输出缓冲入出站队列并唤醒出站泵
func (s *Session) sendBuffered(d *pktcmd.Dispatcher) error {
	if err := d.EnqueueOutputBuffer(s.outQ); err != nil {
		var p packet.Packet
		_ = d.Out().Snapshot(&p)
		s.reject(metrics.QueueOutbound, &p, err)
		return err
	}
	s.pump.Notify()
	return nil
}

// ID 会话ID
func (s *Session) ID() string { return s.id }

// Remote 远端地址
func (s *Session) Remote() string { return s.remote }

// OnRead 读路径：一次读取即一帧
func (s *Session) OnRead(p []byte) {
	s.received.Add(1)
	var pkt packet.Packet
	loadErr := pkt.Load(p)
	if !s.limiter.Allow() {
		s.countFrame("rate_limited")
		s.reject(metrics.QueueInbound, &pkt, errRateLimited)
		return
	}
	// 放不进报文槽位或输入缓冲的帧一律按溢出丢弃，不截断交给处理器
	if loadErr == nil && len(p) > s.disp.In().Capacity() {
		loadErr = packet.ErrInputBufferOverrun
	}
	if loadErr != nil {
		s.countFrame("overrun")
		s.reject(metrics.QueueInbound, &pkt, loadErr)
		return
	}
	pkt.Timestamp = s.disp.Millis()
	if s.directReply {
		pkt.Flags |= packet.FlagIsQuery
	}

	if err := s.inQ.Enqueue(&pkt); err != nil {
		s.countFrame("dropped")
		s.reject(metrics.QueueInbound, &pkt, err)
		return
	}
	s.countFrame("ok")
	select {
	case s.wakeC <- struct{}{}:
	default:
	}
}

// Start 启动处理协程与出站泵
func (s *Session) Start(ctx context.Context) {
	ctx, s.cancel = context.WithCancel(ctx)
	s.wg.Add(2)
	go func() {
		defer s.wg.Done()
		s.Run(ctx)
	}()
	go func() {
		defer s.wg.Done()
		s.pump.Run(ctx)
	}()
}

// Run 处理循环：排空入站队列后等待唤醒
func (s *Session) Run(ctx context.Context) {
	for {
		err := s.disp.Recv()
		switch {
		case err == nil:
			s.process()
			continue
		case errors.Is(err, packet.ErrNoPacketReceived):
		case errors.Is(err, packet.ErrInputBufferOverrun):
			var p packet.Packet
			_ = s.disp.In().Snapshot(&p)
			s.countFrame("overrun")
			s.reject(metrics.QueueInbound, &p, err)
			continue
		default:
			s.logger.Warn("recv failed", zap.Error(err))
		}
		select {
		case <-ctx.Done():
			return
		case <-s.wakeC:
		}
	}
}

// process 匹配并分发一帧，记录结果
// 处理器设置应答命令会改变当前命令，因此在分发前取命令名。
func (s *Session) process() {
	err := s.disp.MatchCommand()
	cmd := s.disp.CurrentCommand().Name
	if cmd == "" {
		cmd = "none"
	}
	if err == nil {
		err = s.disp.DispatchCommand()
	}
	status := packet.StatusOf(err)
	if s.metrics != nil {
		s.metrics.DispatchTotal.WithLabelValues(cmd, status.String()).Inc()
	}
	if err == nil {
		s.processed.Add(1)
		return
	}
	s.failed.Add(1)
	if pktcmd.IsProtocolError(err) {
		s.logger.Debug("frame rejected",
			zap.String("status", status.String()),
			zap.String("type_id", s.disp.CurrentCommand().TypeID.String()),
			zap.Binary("frame", s.disp.In().Bytes()))
		return
	}
	s.logger.Warn("handler failed", zap.String("cmd", cmd), zap.Error(err))
}

// Close 停止协程并清空队列；剩余出站报文计入死信
func (s *Session) Close() {
	s.once.Do(func() {
		if s.cancel != nil {
			s.cancel()
		}
		s.wg.Wait()

		var p packet.Packet
		for s.outQ.Dequeue(&p) == nil {
			s.reject(metrics.QueueOutbound, &p, errSessionClosed)
		}
		if n := s.inQ.Flush(); n > 0 {
			s.logger.Debug("inbound packets discarded", zap.Int("count", n))
		}
	})
}

var (
	errSessionClosed = errors.New("session closed")
	errRateLimited   = errors.New("rate limited")
)

func (s *Session) countFrame(result string) {
	if s.metrics != nil {
		s.metrics.FramesTotal.WithLabelValues(result).Inc()
	}
}

func (s *Session) countSend(mode string, err error) {
	if s.metrics == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	s.metrics.SendTotal.WithLabelValues(mode, result).Inc()
}

// reject 记录被丢弃的报文（指标 + 死信）
func (s *Session) reject(q string, p *packet.Packet, err error) {
	var reason string
	switch {
	case errors.Is(err, errSessionClosed):
		reason = "session_closed"
	case errors.Is(err, errRateLimited):
		reason = "rate_limited"
	default:
		reason = packet.StatusOf(err).String()
	}
	if s.metrics != nil {
		s.metrics.QueueRejects.WithLabelValues(q, reason).Inc()
	}
	s.logger.Debug("packet rejected", zap.String("queue", q), zap.String("reason", reason), zap.Error(err))
	if s.spill != nil {
		s.spill(&redisstore.DeadLetter{
			SessionID: s.id,
			Remote:    s.remote,
			Queue:     q,
			Reason:    reason,
			Data:      append([]byte(nil), p.Bytes()...),
			Timestamp: p.Timestamp,
		})
	}
}

// Stats 会话统计
func (s *Session) Stats() SessionStats {
	return SessionStats{
		ID:        s.id,
		Remote:    s.remote,
		CreatedAt: s.createdAt,
		Received:  s.received.Load(),
		Processed: s.processed.Load(),
		Failed:    s.failed.Load(),
		Inbound:   s.inQ.Stats(),
		Outbound:  s.outQ.Stats(),
		Pump:      s.pump.Stats(),
		RateLimit: s.limiter.Stats(),
	}
}

// SessionStats 会话统计信息
type SessionStats struct {
	ID        string                     `json:"id"`
	Remote    string                     `json:"remote"`
	CreatedAt time.Time                  `json:"created_at"`
	Received  int64                      `json:"received"`
	Processed int64                      `json:"processed"`
	Failed    int64                      `json:"failed"`
	Inbound   queue.Stats                `json:"inbound"`
	Outbound  queue.Stats                `json:"outbound"`
	Pump      outbound.PumpStats         `json:"pump"`
	RateLimit tcpserver.RateLimiterStats `json:"rate_limit"`
}
