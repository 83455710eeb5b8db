package pktcmd

import (
	"fmt"

	"github.com/taoyao-code/packetcmd/internal/protocol/packet"
)

// DefaultMaxCommands 默认命令表容量
const DefaultMaxCommands = 10

// Entry 命令条目，注册后不可变（仅 Reset 清空）
type Entry struct {
	TypeID  TypeID
	Name    string
	Handler Handler
}

// Table 有序命令表（注册顺序），容量上限 maxCommands
// "未用槽位"由切片长度表示，查找只扫描已注册条目。
type Table struct {
	entries     []Entry
	maxCommands int
	def         Entry
}

// NewTable 创建命令表
func NewTable(maxCommands int) *Table {
	if maxCommands <= 0 {
		maxCommands = DefaultMaxCommands
	}
	return &Table{entries: make([]Entry, 0, maxCommands), maxCommands: maxCommands}
}

// Add 校验并追加一个命令
func (t *Table) Add(typeID []byte, name string, h Handler) error {
	if len(t.entries) >= t.maxCommands {
		return fmt.Errorf("%w: max=%d", packet.ErrExceededMaxCommands, t.maxCommands)
	}
	id, err := ParseTypeID(typeID)
	if err != nil {
		return err
	}
	t.entries = append(t.entries, Entry{TypeID: id, Name: name, Handler: h})
	return nil
}

// SetDefault 设置默认处理器
func (t *Table) SetDefault(h Handler) error {
	if isNilHandler(h) {
		return packet.ErrNullHandler
	}
	t.def = Entry{Name: "default", Handler: h}
	return nil
}

// Default 默认条目（未注册时 Handler 为 nil）
func (t *Table) Default() Entry { return t.def }

// Match 查找在 depth 位置的字节等于 b 的条目
// 更短的类型ID在 depth 处为 0x00，不可能等于合法终结字节，因此不会误匹配。
func (t *Table) Match(depth int, b byte) (Entry, bool) {
	if depth < 0 || depth >= MaxTypeIDLen {
		return Entry{}, false
	}
	for _, e := range t.entries {
		if e.TypeID[depth] == b {
			return e, true
		}
	}
	return Entry{}, false
}

// LookupByName 按名称线性查找
func (t *Table) LookupByName(name string) (Entry, bool) {
	for _, e := range t.entries {
		if e.Name == name {
			return e, true
		}
	}
	return Entry{}, false
}

// Entries 返回已注册条目的副本
func (t *Table) Entries() []Entry {
	out := make([]Entry, len(t.entries))
	copy(out, t.entries)
	return out
}

func (t *Table) Len() int         { return len(t.entries) }
func (t *Table) MaxCommands() int { return t.maxCommands }

// Reset 清空全部注册（包括默认处理器）
func (t *Table) Reset() {
	clear(t.entries)
	t.entries = t.entries[:0]
	t.def = Entry{}
}

func isNilHandler(h Handler) bool {
	if h == nil {
		return true
	}
	if f, ok := h.(HandlerFunc); ok && f == nil {
		return true
	}
	return false
}
