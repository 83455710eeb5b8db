package pktcmd

import (
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/taoyao-code/packetcmd/internal/protocol/codec"
	"github.com/taoyao-code/packetcmd/internal/protocol/packet"
)

// Config Dispatcher 构造参数
type Config struct {
	MaxCommands      int
	InputBufferSize  int
	OutputBufferSize int
}

func (c Config) withDefaults() Config {
	if c.MaxCommands <= 0 {
		c.MaxCommands = DefaultMaxCommands
	}
	if c.InputBufferSize <= 0 {
		c.InputBufferSize = packet.DataBufferSize
	}
	if c.OutputBufferSize <= 0 {
		c.OutputBufferSize = packet.DataBufferSize
	}
	return c
}

// Option 可选项
type Option func(*Dispatcher)

// WithLogger 设置日志器
func WithLogger(l *zap.Logger) Option {
	return func(d *Dispatcher) {
		if l != nil {
			d.logger = l
		}
	}
}

// WithClock 设置时钟（测试用）
func WithClock(now func() time.Time) Option {
	return func(d *Dispatcher) {
		if now != nil {
			d.now = now
		}
	}
}

// Dispatcher 接收 -> 匹配 -> 分发 -> 打包 -> 发送 的编排对象
// 持有一个输入缓冲、一个输出缓冲与命令表；非并发安全，同一时刻只处理一帧。
// 跨协程的交接点是 PacketQueue（EnqueueInputBuffer / DequeueInputBuffer 等）。
type Dispatcher struct {
	table   *Table
	in      *codec.Buffer
	out     *codec.Buffer
	current Entry

	recv            Receiver
	send            Sender
	sendNonblocking Sender
	sendBuffered    Sender
	replySend       Sender
	replyRecv       Receiver

	logger *zap.Logger
	now    func() time.Time
	start  time.Time
}

// New 创建 Dispatcher 并分配缓冲区
func New(cfg Config, opts ...Option) *Dispatcher {
	cfg = cfg.withDefaults()
	d := &Dispatcher{
		table:  NewTable(cfg.MaxCommands),
		in:     codec.NewInput(cfg.InputBufferSize),
		out:    codec.NewOutput(cfg.OutputBufferSize),
		logger: zap.NewNop(),
		now:    time.Now,
	}
	for _, o := range opts {
		o(d)
	}
	d.start = d.now()
	return d
}

// Reset 撤销所有注册、回调与缓冲区状态
func (d *Dispatcher) Reset() {
	d.table.Reset()
	d.in.Reset()
	d.out.Reset()
	d.current = Entry{}
	d.recv, d.replyRecv = nil, nil
	d.send, d.sendNonblocking, d.sendBuffered, d.replySend = nil, nil, nil, nil
}

// In 输入缓冲区（解包）
func (d *Dispatcher) In() *codec.Buffer { return d.in }

// Out 输出缓冲区（打包）
func (d *Dispatcher) Out() *codec.Buffer { return d.out }

// Table 命令表（只读用途）
func (d *Dispatcher) Table() *Table { return d.table }

// Logger 日志器，供处理器复用
func (d *Dispatcher) Logger() *zap.Logger { return d.logger }

// Millis 自创建以来的毫秒数（32位回绕）
func (d *Dispatcher) Millis() uint32 {
	return uint32(d.now().Sub(d.start).Milliseconds())
}

// ---------------------------------------------------------------------------
// 注册（初始化阶段，单协程）
// ---------------------------------------------------------------------------

// AddCommand 注册命令；typeID 需符合 0xFF* B 语法
func (d *Dispatcher) AddCommand(typeID []byte, name string, h Handler) error {
	if err := d.table.Add(typeID, name, h); err != nil {
		d.logger.Error("add command failed",
			zap.String("name", name),
			zap.Binary("type_id", typeID),
			zap.Error(err))
		return err
	}
	d.logger.Debug("command added",
		zap.Int("index", d.table.Len()-1),
		zap.String("name", name),
		zap.String("type_id", d.table.entries[d.table.Len()-1].TypeID.String()))
	return nil
}

// RegisterDefaultHandler 设置未匹配时的默认处理器
func (d *Dispatcher) RegisterDefaultHandler(h Handler) error {
	return d.table.SetDefault(h)
}

func (d *Dispatcher) RegisterRecvCallback(r Receiver) error {
	if isNilReceiver(r) {
		return packet.ErrNullHandler
	}
	d.recv = r
	return nil
}

func (d *Dispatcher) RegisterReplyRecvCallback(r Receiver) error {
	if isNilReceiver(r) {
		return packet.ErrNullHandler
	}
	d.replyRecv = r
	return nil
}

func (d *Dispatcher) RegisterSendCallback(s Sender) error {
	return registerSender(&d.send, s)
}

func (d *Dispatcher) RegisterSendNonblockingCallback(s Sender) error {
	return registerSender(&d.sendNonblocking, s)
}

func (d *Dispatcher) RegisterSendBufferedCallback(s Sender) error {
	return registerSender(&d.sendBuffered, s)
}

func (d *Dispatcher) RegisterReplySendCallback(s Sender) error {
	return registerSender(&d.replySend, s)
}

func registerSender(slot *Sender, s Sender) error {
	if s == nil {
		return packet.ErrNullHandler
	}
	if f, ok := s.(SendFunc); ok && f == nil {
		return packet.ErrNullHandler
	}
	*slot = s
	return nil
}

func isNilReceiver(r Receiver) bool {
	if r == nil {
		return true
	}
	if f, ok := r.(RecvFunc); ok && f == nil {
		return true
	}
	return false
}

// ---------------------------------------------------------------------------
// 运行期
// ---------------------------------------------------------------------------

// Recv 调用接收钩子装载一帧；无报文时返回 ErrNoPacketReceived
func (d *Dispatcher) Recv() error {
	if d.recv == nil {
		return packet.ErrNullHandler
	}
	d.in.SetTimestamp(0)
	got, err := d.recv.Recv(d)
	if err != nil {
		return err
	}
	if !got {
		return packet.ErrNoPacketReceived
	}
	if d.in.Timestamp() == 0 {
		d.in.SetTimestamp(d.Millis())
	}
	return nil
}

// ProcessInput 匹配并分发当前输入帧
// 匹配成功、或未匹配但已注册默认处理器时分发；其余错误直接返回，不分发。
func (d *Dispatcher) ProcessInput() error {
	if err := d.MatchCommand(); err != nil {
		d.logger.Debug("match command failed",
			zap.Int("index", d.in.Index()),
			zap.Int("len", d.in.Len()),
			zap.Error(err))
		return err
	}
	d.logger.Debug("matched command",
		zap.String("name", d.current.Name),
		zap.String("type_id", d.current.TypeID.String()))
	return d.DispatchCommand()
}

// CurrentCommand 当前激活的命令
func (d *Dispatcher) CurrentCommand() Entry { return d.current }

// DispatchCommand 执行当前命令的处理器
func (d *Dispatcher) DispatchCommand() error {
	if isNilHandler(d.current.Handler) {
		return packet.ErrNullHandler
	}
	return d.current.Handler.Handle(d)
}

// LookupCommandByName 按名称查找并设为当前命令；失败时当前命令为默认条目
func (d *Dispatcher) LookupCommandByName(name string) error {
	d.current = d.table.Default()
	e, ok := d.table.LookupByName(name)
	if !ok {
		return packet.ErrNoCommandNameMatch
	}
	d.current = e
	return nil
}

// SetupOutputCommandByName 重置输出缓冲并写入该命令的类型ID作为帧头
func (d *Dispatcher) SetupOutputCommandByName(name string) error {
	if err := d.LookupCommandByName(name); err != nil {
		return err
	}
	return d.SetupOutputCommand(d.current)
}

// SetupOutputCommand 重置输出缓冲并写入 e 的类型ID
func (d *Dispatcher) SetupOutputCommand(e Entry) error {
	if e.TypeID.IsZero() {
		return packet.ErrInvalidTypeID
	}
	d.out.Reset()
	return d.out.PackBytes(e.TypeID.Bytes())
}

// Send 阻塞发送
func (d *Dispatcher) Send() error { return d.invokeSender(d.send, "send") }

// SendNonblocking 非阻塞发送
func (d *Dispatcher) SendNonblocking() error {
	return d.invokeSender(d.sendNonblocking, "send_nonblocking")
}

// SendBuffered 缓冲发送（通常入队由后台排空）
func (d *Dispatcher) SendBuffered() error {
	return d.invokeSender(d.sendBuffered, "send_buffered")
}

// ReplySend 快速应答
func (d *Dispatcher) ReplySend() error { return d.invokeSender(d.replySend, "reply_send") }

// ReplyRecv 等待应答报文装入输入缓冲
func (d *Dispatcher) ReplyRecv() error {
	if d.replyRecv == nil {
		return packet.ErrNullHandler
	}
	got, err := d.replyRecv.Recv(d)
	if err != nil {
		return err
	}
	if !got {
		return packet.ErrNoPacketReceived
	}
	return nil
}

func (d *Dispatcher) invokeSender(s Sender, mode string) error {
	if s == nil {
		return packet.ErrNullHandler
	}
	if d.out.Flags().Has(packet.FlagAppendSendTimestamp) {
		// 时间戳只在本次发送期间追加在内容末尾，返回前撤回，重发不会叠加
		idx, n := d.out.Index(), d.out.Len()
		if err := d.out.SetIndex(n); err != nil {
			return err
		}
		if err := d.out.PackUint32(d.Millis()); err != nil {
			_ = d.out.SetIndex(idx)
			return err
		}
		defer func() {
			_ = d.out.Truncate(n)
			_ = d.out.SetIndex(idx)
		}()
	}
	if err := s.Send(d); err != nil {
		d.logger.Debug("send callback failed", zap.String("mode", mode), zap.Error(err))
		return err
	}
	return nil
}

// IsProtocolError 运行期可丢弃继续的协议类错误
func IsProtocolError(err error) bool {
	return errors.Is(err, packet.ErrInvalidPacket) ||
		errors.Is(err, packet.ErrInvalidTypeID) ||
		errors.Is(err, packet.ErrNoTypeIDMatch) ||
		errors.Is(err, packet.ErrNoCommandNameMatch)
}
