package codec

import (
	"encoding/binary"
	"math"

	"github.com/taoyao-code/packetcmd/internal/protocol/packet"
)

// Buffer 带游标的字段缓冲区（输入或输出）
// 输入缓冲：读取以有效长度 length 为界；
// 输出缓冲：写入以容量 capacity 为界，写过 length 时自动扩展 length。
// 所有 pack/unpack 先经边界检查，失败时不写内存、不移动游标。
type Buffer struct {
	data      []byte
	length    int
	index     int
	flags     packet.Flags
	timestamp uint32
	output    bool
}

// NewInput 创建输入缓冲区
func NewInput(capacity int) *Buffer {
	return &Buffer{data: make([]byte, capacity)}
}

// NewOutput 创建输出缓冲区
func NewOutput(capacity int) *Buffer {
	return &Buffer{data: make([]byte, capacity), output: true}
}

func (b *Buffer) Capacity() int { return len(b.data) }
func (b *Buffer) Len() int      { return b.length }
func (b *Buffer) Index() int    { return b.index }

// Remaining 游标之后尚可读取的字节数（输出缓冲为剩余可写容量）
func (b *Buffer) Remaining() int { return b.limit() - b.index }

// Bytes 返回有效数据（共享底层内存，调用方不得越过长度写入）
func (b *Buffer) Bytes() []byte { return b.data[:b.length] }

func (b *Buffer) Flags() packet.Flags     { return b.flags }
func (b *Buffer) SetFlags(f packet.Flags) { b.flags = f }
func (b *Buffer) Timestamp() uint32       { return b.timestamp }
func (b *Buffer) SetTimestamp(ts uint32)  { b.timestamp = ts }

// Reset 清空长度、游标与元数据
func (b *Buffer) Reset() {
	b.length = 0
	b.index = 0
	b.flags = 0
	b.timestamp = 0
}

func (b *Buffer) limit() int {
	if b.output {
		return len(b.data)
	}
	return b.length
}

// SetIndex 统一的边界检查移动原语
func (b *Buffer) SetIndex(i int) error {
	if i < 0 || i > b.limit() {
		return packet.ErrPacketIndexOutOfBounds
	}
	b.index = i
	if b.output && b.index > b.length {
		b.length = b.index
	}
	return nil
}

// Truncate 丢弃 n 之后的内容，游标超出时退到 n
func (b *Buffer) Truncate(n int) error {
	if n < 0 || n > b.length {
		return packet.ErrPacketIndexOutOfBounds
	}
	b.length = n
	if b.index > n {
		b.index = n
	}
	return nil
}

// MoveIndex 相对移动游标
func (b *Buffer) MoveIndex(n int) error { return b.SetIndex(b.index + n) }

// Assign 装载一帧收到的数据，游标归零；超出容量时截断并返回 ErrInputBufferOverrun
func (b *Buffer) Assign(raw []byte) error {
	n := copy(b.data, raw)
	b.length = n
	b.index = 0
	if len(raw) > len(b.data) {
		return packet.ErrInputBufferOverrun
	}
	return nil
}

// Snapshot 将当前内容复制到队列报文
// 内容超过报文槽位时只复制前 DataBufferSize 字节并返回错误，调用方不应再入队。
func (b *Buffer) Snapshot(p *packet.Packet) error {
	n := copy(p.Data[:], b.data[:b.length])
	p.Length = n
	p.Flags = b.flags
	p.Timestamp = b.timestamp
	if b.length > n {
		return b.overflow()
	}
	return nil
}

// Restore 从队列报文恢复内容，游标置于 index（超出时截到长度）
// 报文长于缓冲区容量时保留能容纳的部分并返回错误。
func (b *Buffer) Restore(p *packet.Packet, index int) error {
	b.length = copy(b.data, p.Bytes())
	b.flags = p.Flags
	b.timestamp = p.Timestamp
	if index > b.length {
		index = b.length
	}
	b.index = index
	if p.Length > b.length {
		return b.overflow()
	}
	return nil
}

// overflow 内容放不下时的错误：输入缓冲为溢出，输出缓冲为越界
func (b *Buffer) overflow() error {
	if b.output {
		return packet.ErrPacketIndexOutOfBounds
	}
	return packet.ErrInputBufferOverrun
}

// window 校验 width 字节可用并返回窗口，不移动游标
func (b *Buffer) window(width int) ([]byte, error) {
	if width < 0 || b.index+width > b.limit() {
		return nil, packet.ErrPacketIndexOutOfBounds
	}
	return b.data[b.index : b.index+width], nil
}

// ---------------------------------------------------------------------------
// unpack
// ---------------------------------------------------------------------------

func (b *Buffer) UnpackByte() (byte, error) {
	w, err := b.window(1)
	if err != nil {
		return 0, err
	}
	v := w[0]
	return v, b.MoveIndex(1)
}

func (b *Buffer) UnpackUint8() (uint8, error) { return b.UnpackByte() }

func (b *Buffer) UnpackInt8() (int8, error) {
	v, err := b.UnpackByte()
	return int8(v), err
}

func (b *Buffer) UnpackUint16() (uint16, error) {
	w, err := b.window(2)
	if err != nil {
		return 0, err
	}
	v := binary.LittleEndian.Uint16(w)
	return v, b.MoveIndex(2)
}

func (b *Buffer) UnpackInt16() (int16, error) {
	v, err := b.UnpackUint16()
	return int16(v), err
}

func (b *Buffer) UnpackUint32() (uint32, error) {
	w, err := b.window(4)
	if err != nil {
		return 0, err
	}
	v := binary.LittleEndian.Uint32(w)
	return v, b.MoveIndex(4)
}

func (b *Buffer) UnpackInt32() (int32, error) {
	v, err := b.UnpackUint32()
	return int32(v), err
}

func (b *Buffer) UnpackUint64() (uint64, error) {
	w, err := b.window(8)
	if err != nil {
		return 0, err
	}
	v := binary.LittleEndian.Uint64(w)
	return v, b.MoveIndex(8)
}

func (b *Buffer) UnpackInt64() (int64, error) {
	v, err := b.UnpackUint64()
	return int64(v), err
}

func (b *Buffer) UnpackFloat32() (float32, error) {
	v, err := b.UnpackUint32()
	return math.Float32frombits(v), err
}

func (b *Buffer) UnpackFloat64() (float64, error) {
	v, err := b.UnpackUint64()
	return math.Float64frombits(v), err
}

// UnpackBytes 读取 len(dst) 字节到 dst
func (b *Buffer) UnpackBytes(dst []byte) error {
	w, err := b.window(len(dst))
	if err != nil {
		return err
	}
	copy(dst, w)
	return b.MoveIndex(len(dst))
}

// UnpackString 读取 n 字节的定长字符数组
func (b *Buffer) UnpackString(n int) (string, error) {
	w, err := b.window(n)
	if err != nil {
		return "", err
	}
	s := string(w)
	return s, b.MoveIndex(n)
}

// UnpackRest 读取游标之后的全部剩余字节
func (b *Buffer) UnpackRest() ([]byte, error) {
	dst := make([]byte, b.Remaining())
	return dst, b.UnpackBytes(dst)
}

// ---------------------------------------------------------------------------
// pack
// ---------------------------------------------------------------------------

func (b *Buffer) PackByte(v byte) error {
	w, err := b.window(1)
	if err != nil {
		return err
	}
	w[0] = v
	return b.MoveIndex(1)
}

func (b *Buffer) PackUint8(v uint8) error { return b.PackByte(v) }
func (b *Buffer) PackInt8(v int8) error   { return b.PackByte(byte(v)) }

func (b *Buffer) PackUint16(v uint16) error {
	w, err := b.window(2)
	if err != nil {
		return err
	}
	binary.LittleEndian.PutUint16(w, v)
	return b.MoveIndex(2)
}

func (b *Buffer) PackInt16(v int16) error { return b.PackUint16(uint16(v)) }

func (b *Buffer) PackUint32(v uint32) error {
	w, err := b.window(4)
	if err != nil {
		return err
	}
	binary.LittleEndian.PutUint32(w, v)
	return b.MoveIndex(4)
}

func (b *Buffer) PackInt32(v int32) error { return b.PackUint32(uint32(v)) }

func (b *Buffer) PackUint64(v uint64) error {
	w, err := b.window(8)
	if err != nil {
		return err
	}
	binary.LittleEndian.PutUint64(w, v)
	return b.MoveIndex(8)
}

func (b *Buffer) PackInt64(v int64) error     { return b.PackUint64(uint64(v)) }
func (b *Buffer) PackFloat32(v float32) error { return b.PackUint32(math.Float32bits(v)) }
func (b *Buffer) PackFloat64(v float64) error { return b.PackUint64(math.Float64bits(v)) }

// PackBytes 写入字节数组；剩余容量不足时整体失败，不做部分写入
func (b *Buffer) PackBytes(src []byte) error {
	w, err := b.window(len(src))
	if err != nil {
		return err
	}
	copy(w, src)
	return b.MoveIndex(len(src))
}

// PackString 写入定长字符数组（不追加结束符）
func (b *Buffer) PackString(s string) error {
	w, err := b.window(len(s))
	if err != nil {
		return err
	}
	copy(w, s)
	return b.MoveIndex(len(s))
}
