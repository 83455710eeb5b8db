package handlers

import (
	"errors"

	"go.uber.org/zap"

	"github.com/taoyao-code/packetcmd/internal/protocol/packet"
	"github.com/taoyao-code/packetcmd/internal/protocol/pktcmd"
)

// 应答命令名，需在命令目录中注册
const (
	ReplyPong          = "pong"
	ReplySum           = "sum_int32"
	ReplyProduct       = "product_float32"
	ReplyTime          = "time_reply"
	ReplyIntFloat      = "int_float_reply"
	ReplyUnknown       = "unknown"
	KindPing           = "ping"
	KindEcho           = "echo"
	KindAddInt32       = "add_int32"
	KindScaleFloat32   = "scale_float32"
	KindTime           = "time"
	KindIntFloat       = "int_float"
	KindUnknownCommand = "unknown"
)

// Builtins 内置处理器种类表，供 catalog.Register 使用
func Builtins() map[string]pktcmd.Handler {
	return map[string]pktcmd.Handler{
		KindPing:           pktcmd.HandlerFunc(Ping),
		KindEcho:           pktcmd.HandlerFunc(Echo),
		KindAddInt32:       pktcmd.HandlerFunc(AddInt32),
		KindScaleFloat32:   pktcmd.HandlerFunc(ScaleFloat32),
		KindTime:           pktcmd.HandlerFunc(Time),
		KindIntFloat:       pktcmd.HandlerFunc(IntFloat),
		KindUnknownCommand: pktcmd.HandlerFunc(Unknown),
	}
}

// Ping u32 nonce -> pong(nonce)
func Ping(d *pktcmd.Dispatcher) error {
	nonce, err := d.In().UnpackUint32()
	if err != nil {
		return err
	}
	if err := d.SetupOutputCommandByName(ReplyPong); err != nil {
		return err
	}
	if err := d.Out().PackUint32(nonce); err != nil {
		return err
	}
	return respond(d)
}

// Echo 以同一命令回显剩余负载
func Echo(d *pktcmd.Dispatcher) error {
	rest, err := d.In().UnpackRest()
	if err != nil {
		return err
	}
	if err := d.SetupOutputCommand(d.CurrentCommand()); err != nil {
		return err
	}
	if err := d.Out().PackBytes(rest); err != nil {
		return err
	}
	return respond(d)
}

func AddInt32(d *pktcmd.Dispatcher) error {
	a, err := d.In().UnpackInt32()
	if err != nil {
		return err
	}
	b, err := d.In().UnpackInt32()
	if err != nil {
		return err
	}
	if err := d.SetupOutputCommandByName(ReplySum); err != nil {
		return err
	}
	if err := d.Out().PackInt32(a + b); err != nil {
		return err
	}
	return respond(d)
}

func ScaleFloat32(d *pktcmd.Dispatcher) error {
	v, err := d.In().UnpackFloat32()
	if err != nil {
		return err
	}
	k, err := d.In().UnpackFloat32()
	if err != nil {
		return err
	}
	if err := d.SetupOutputCommandByName(ReplyProduct); err != nil {
		return err
	}
	if err := d.Out().PackFloat32(v * k); err != nil {
		return err
	}
	return respond(d)
}

// Time 应答 当前毫秒 + 请求接收时刻
func Time(d *pktcmd.Dispatcher) error {
	recvAt := d.In().Timestamp()
	if err := d.SetupOutputCommandByName(ReplyTime); err != nil {
		return err
	}
	if err := d.Out().PackUint32(d.Millis()); err != nil {
		return err
	}
	if err := d.Out().PackUint32(recvAt); err != nil {
		return err
	}
	return respond(d)
}

func IntFloat(d *pktcmd.Dispatcher) error {
	i, err := d.In().UnpackInt32()
	if err != nil {
		return err
	}
	f, err := d.In().UnpackFloat32()
	if err != nil {
		return err
	}
	d.Logger().Debug("int_float", zap.Int32("int", i), zap.Float32("float", f))
	if err := d.SetupOutputCommandByName(ReplyIntFloat); err != nil {
		return err
	}
	if err := d.Out().PackInt32(i); err != nil {
		return err
	}
	if err := d.Out().PackFloat32(f); err != nil {
		return err
	}
	return respond(d)
}

// Unknown 默认处理器：应答 unknown(len, 未匹配的类型ID字节)
func Unknown(d *pktcmd.Dispatcher) error {
	id := d.CurrentCommand().TypeID
	d.Logger().Debug("unrecognized command", zap.String("type_id", id.String()))
	if err := d.SetupOutputCommandByName(ReplyUnknown); err != nil {
		return err
	}
	if err := d.Out().PackUint8(uint8(id.Len())); err != nil {
		return err
	}
	if err := d.Out().PackBytes(id.Bytes()); err != nil {
		return err
	}
	return respond(d)
}

// respond 查询帧走快速应答，其余走缓冲发送；未注册缓冲发送时退回阻塞发送
func respond(d *pktcmd.Dispatcher) error {
	if d.In().Flags().Has(packet.FlagIsQuery) {
		return d.ReplySend()
	}
	err := d.SendBuffered()
	if errors.Is(err, packet.ErrNullHandler) {
		return d.Send()
	}
	return err
}
