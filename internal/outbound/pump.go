package outbound

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/taoyao-code/packetcmd/internal/protocol/packet"
	"github.com/taoyao-code/packetcmd/internal/queue"
)

// Writer 出站写接口（ConnContext 实现）
type Writer interface {
	Write(b []byte) error
}

// WriterFunc 函数适配器
type WriterFunc func(b []byte) error

func (f WriterFunc) Write(b []byte) error { return f(b) }

// Options 出站泵参数
type Options struct {
	// 两次成功写出之间的最小间隔
	Throttle time.Duration
	// 写失败后报文放回队首，等待该时长再重试
	RetryDelay time.Duration
	// 连续写失败熔断阈值与冷却时间
	BreakerThreshold int
	BreakerCooldown  time.Duration
}

// Pump 将一个 PacketQueue 排空到 Writer
// 写失败的报文以 Requeue 放回队首，保证下一次仍先发送它。
type Pump struct {
	q       *queue.PacketQueue
	w       Writer
	opts    Options
	breaker *Breaker
	logger  *zap.Logger
	wakeC   chan struct{}

	// 可选回调（指标、死信）
	OnSent    func(p *packet.Packet)
	OnFailed  func(p *packet.Packet, err error)
	OnDropped func(p *packet.Packet, err error)

	sent     atomic.Int64
	failed   atomic.Int64
	requeued atomic.Int64
	dropped  atomic.Int64
}

// NewPump 创建出站泵
func NewPump(q *queue.PacketQueue, w Writer, opts Options, logger *zap.Logger) *Pump {
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.RetryDelay <= 0 {
		opts.RetryDelay = 100 * time.Millisecond
	}
	return &Pump{
		q:       q,
		w:       w,
		opts:    opts,
		breaker: NewBreaker(opts.BreakerThreshold, opts.BreakerCooldown),
		logger:  logger,
		wakeC:   make(chan struct{}, 1),
	}
}

// Notify 唤醒泵（入队后调用），不阻塞
func (p *Pump) Notify() {
	select {
	case p.wakeC <- struct{}{}:
	default:
	}
}

// Breaker 写出熔断器
func (p *Pump) Breaker() *Breaker { return p.breaker }

// Run 阻塞运行直至 ctx 结束；退出时不清空队列
func (p *Pump) Run(ctx context.Context) {
	for {
		delay, more := p.processOne()
		if more && delay <= 0 {
			continue
		}
		if !more {
			// 队列已空，等待唤醒
			select {
			case <-ctx.Done():
				return
			case <-p.wakeC:
				continue
			}
		}
		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}
	}
}

// processOne 发送队首一帧
// 返回下一次尝试前的等待时长，以及队列中是否可能仍有报文。
func (p *Pump) processOne() (time.Duration, bool) {
	if !p.breaker.Allow() {
		return p.opts.RetryDelay, true
	}

	var pkt packet.Packet
	if err := p.q.Dequeue(&pkt); err != nil {
		return 0, false
	}

	err := p.breaker.Call(func() error { return p.w.Write(pkt.Bytes()) })
	if err == nil {
		p.sent.Add(1)
		if p.OnSent != nil {
			p.OnSent(&pkt)
		}
		return p.opts.Throttle, true
	}

	p.failed.Add(1)
	if p.OnFailed != nil {
		p.OnFailed(&pkt, err)
	}
	if rqErr := p.q.Requeue(&pkt); rqErr != nil {
		// 重试期间生产者占满了队列，只能丢弃
		p.dropped.Add(1)
		p.logger.Warn("outbound packet dropped",
			zap.Int("len", pkt.Length),
			zap.Error(errors.Join(err, rqErr)))
		if p.OnDropped != nil {
			p.OnDropped(&pkt, rqErr)
		}
		return p.opts.RetryDelay, true
	}
	p.requeued.Add(1)
	p.logger.Debug("outbound write failed, requeued",
		zap.Int("len", pkt.Length),
		zap.String("breaker", p.breaker.State().String()),
		zap.Error(err))
	return p.opts.RetryDelay, true
}

// Stats 获取统计信息
func (p *Pump) Stats() PumpStats {
	return PumpStats{
		Sent:     p.sent.Load(),
		Failed:   p.failed.Load(),
		Requeued: p.requeued.Load(),
		Dropped:  p.dropped.Load(),
		Breaker:  p.breaker.Stats(),
	}
}

// PumpStats 出站泵统计
type PumpStats struct {
	Sent     int64        `json:"sent"`
	Failed   int64        `json:"failed"`
	Requeued int64        `json:"requeued"`
	Dropped  int64        `json:"dropped"`
	Breaker  BreakerStats `json:"breaker"`
}
