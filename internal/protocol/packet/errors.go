package packet

import "errors"

// 状态与错误定义，所有可失败操作均通过返回值上报，调用方用 errors.Is 判断
var (
	// ErrNoPacketReceived 接收回调未取得报文（正常的"暂无数据"信号，并非故障）
	ErrNoPacketReceived = errors.New("no packet received")

	// 配置类错误（初始化阶段，调用方缺陷）
	ErrExceededMaxCommands = errors.New("exceeded max commands")
	ErrInvalidTypeID       = errors.New("invalid type id")
	ErrNullHandler         = errors.New("null handler")

	// 协议类错误（运行期，坏数据或恶意输入）
	ErrInvalidPacket      = errors.New("invalid packet")
	ErrNoTypeIDMatch      = errors.New("no type id match")
	ErrNoCommandNameMatch = errors.New("no command name match")

	// 资源类错误
	ErrInputBufferOverrun     = errors.New("input buffer overrun")
	ErrPacketIndexOutOfBounds = errors.New("packet index out of bounds")
	ErrQueueOverflow          = errors.New("queue overflow")
	ErrQueueUnderflow         = errors.New("queue underflow")
	ErrMemAllocFail           = errors.New("memory allocation failed")
)

// Status 状态码，与设备端库的数值保持一致，用作日志与指标标签
type Status int

const (
	StatusNoPacketReceived       Status = 1
	StatusSuccess                Status = 0
	StatusExceededMaxCommands    Status = -1
	StatusNoCommandNameMatch     Status = -2
	StatusInvalidPacket          Status = -3
	StatusInvalidTypeID          Status = -4
	StatusNoTypeIDMatch          Status = -5
	StatusNullHandler            Status = -6
	StatusPacketIndexOutOfBounds Status = -7
	StatusInputBufferOverrun     Status = -8
	StatusQueueOverflow          Status = -9
	StatusQueueUnderflow         Status = -10
	StatusMemAllocFail           Status = -11
	StatusUnknown                Status = -99
)

var statusTable = []struct {
	err    error
	status Status
	name   string
	class  string
}{
	{ErrNoPacketReceived, StatusNoPacketReceived, "no_packet_received", "transport"},
	{ErrExceededMaxCommands, StatusExceededMaxCommands, "exceeded_max_commands", "config"},
	{ErrNoCommandNameMatch, StatusNoCommandNameMatch, "no_command_name_match", "protocol"},
	{ErrInvalidPacket, StatusInvalidPacket, "invalid_packet", "protocol"},
	{ErrInvalidTypeID, StatusInvalidTypeID, "invalid_type_id", "config"},
	{ErrNoTypeIDMatch, StatusNoTypeIDMatch, "no_type_id_match", "protocol"},
	{ErrNullHandler, StatusNullHandler, "null_handler", "config"},
	{ErrPacketIndexOutOfBounds, StatusPacketIndexOutOfBounds, "packet_index_out_of_bounds", "resource"},
	{ErrInputBufferOverrun, StatusInputBufferOverrun, "input_buffer_overrun", "resource"},
	{ErrQueueOverflow, StatusQueueOverflow, "queue_overflow", "resource"},
	{ErrQueueUnderflow, StatusQueueUnderflow, "queue_underflow", "resource"},
	{ErrMemAllocFail, StatusMemAllocFail, "mem_alloc_fail", "resource"},
}

// StatusOf 将错误映射为状态码；nil 为 StatusSuccess
func StatusOf(err error) Status {
	if err == nil {
		return StatusSuccess
	}
	for _, e := range statusTable {
		if errors.Is(err, e.err) {
			return e.status
		}
	}
	return StatusUnknown
}

func (s Status) String() string {
	if s == StatusSuccess {
		return "success"
	}
	for _, e := range statusTable {
		if e.status == s {
			return e.name
		}
	}
	return "unknown"
}

// Class 错误分类：config | protocol | resource | transport | ok | other
// 注意：InvalidTypeID 在运行期匹配时属于协议错误，这里按注册期归类为 config
func Class(err error) string {
	if err == nil {
		return "ok"
	}
	for _, e := range statusTable {
		if errors.Is(err, e.err) {
			return e.class
		}
	}
	return "other"
}
