package packet

// DataBufferSize 单个报文槽位的固定容量（字节）
const DataBufferSize = 32

// Flags 报文标志位
type Flags uint8

const (
	FlagIsQuery             Flags = 0x01 // 请求方期待应答
	FlagAppendSendTimestamp Flags = 0x02 // 发送前追加 u32 毫秒时间戳
)

// Has 判断是否包含指定标志
func (f Flags) Has(flag Flags) bool { return f&flag != 0 }

// Packet 队列存储单元：某一时刻输入/输出缓冲区内容的快照
type Packet struct {
	Data      [DataBufferSize]byte
	Length    int
	Timestamp uint32 // 接收时间（毫秒，可选）
	Flags     Flags
}

// Bytes 返回有效数据
func (p *Packet) Bytes() []byte { return p.Data[:p.Length] }

// Load 复制原始帧；超长时截断到 DataBufferSize 并返回 ErrInputBufferOverrun
func (p *Packet) Load(b []byte) error {
	n := copy(p.Data[:], b)
	p.Length = n
	if len(b) > DataBufferSize {
		return ErrInputBufferOverrun
	}
	return nil
}

// CopyFrom 按值复制，仅复制 Length 个数据字节，避免带出槽位上一个占用者的残留数据
func (p *Packet) CopyFrom(src *Packet) {
	n := src.Length
	if n > DataBufferSize {
		n = DataBufferSize
	}
	if n < 0 {
		n = 0
	}
	copy(p.Data[:n], src.Data[:n])
	p.Length = n
	p.Timestamp = src.Timestamp
	p.Flags = src.Flags
}

// Clear 清空长度与元数据（不清零数据区）
func (p *Packet) Clear() {
	p.Length = 0
	p.Timestamp = 0
	p.Flags = 0
}
