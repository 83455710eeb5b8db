package pktcmd

import (
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/taoyao-code/packetcmd/internal/protocol/packet"
)

// MaxTypeIDLen 类型ID最大字节数（最多3个 0xFF 扩展字节 + 1个终结字节）
const MaxTypeIDLen = 4

const (
	extByte  byte = 0xFF // 扩展字节："再读一个字节"
	nullByte byte = 0x00 // 保留：未用槽位填充
)

// TypeID 变长类型ID，语法 0xFF* B，B ∈ [0x01, 0xFE]
// 固定4字节存储，终结字节之后以 0x00 右填充。
type TypeID [MaxTypeIDLen]byte

// ParseTypeID 按语法逐字节校验并构造类型ID
func ParseTypeID(b []byte) (TypeID, error) {
	var id TypeID
	if len(b) == 0 {
		return id, fmt.Errorf("%w: empty", packet.ErrInvalidTypeID)
	}
	if len(b) > MaxTypeIDLen {
		return id, fmt.Errorf("%w: length %d exceeds %d", packet.ErrInvalidTypeID, len(b), MaxTypeIDLen)
	}
	last := len(b) - 1
	for i, c := range b {
		switch {
		case c == nullByte:
			return TypeID{}, fmt.Errorf("%w: null byte at %d", packet.ErrInvalidTypeID, i)
		case c == extByte:
			if i == last {
				return TypeID{}, fmt.Errorf("%w: cannot end with 0xFF", packet.ErrInvalidTypeID)
			}
		case i != last:
			return TypeID{}, fmt.Errorf("%w: prefix must be 0xFF* (byte %d = 0x%02X)", packet.ErrInvalidTypeID, i, c)
		}
		id[i] = c
	}
	return id, nil
}

// ParseTypeIDHex 解析十六进制形式，如 "41"、"ff01"、"FF 01"
func ParseTypeIDHex(s string) (TypeID, error) {
	s = strings.ToLower(strings.NewReplacer(" ", "", "0x", "", ":", "").Replace(s))
	raw, err := hex.DecodeString(s)
	if err != nil {
		return TypeID{}, fmt.Errorf("%w: %v", packet.ErrInvalidTypeID, err)
	}
	return ParseTypeID(raw)
}

// MustTypeID 仅用于常量表初始化
func MustTypeID(b ...byte) TypeID {
	id, err := ParseTypeID(b)
	if err != nil {
		panic(err)
	}
	return id
}

// Len 有效字节数
func (id TypeID) Len() int {
	for i, c := range id {
		if c == nullByte {
			return i
		}
	}
	return MaxTypeIDLen
}

// Depth 终结字节所在位置（前导 0xFF 的个数）
func (id TypeID) Depth() int { return id.Len() - 1 }

// Terminal 终结字节
func (id TypeID) Terminal() byte {
	n := id.Len()
	if n == 0 {
		return nullByte
	}
	return id[n-1]
}

// Bytes 返回有效字节
func (id TypeID) Bytes() []byte {
	n := id.Len()
	out := make([]byte, n)
	copy(out, id[:n])
	return out
}

// IsZero 是否为空（默认处理器条目）
func (id TypeID) IsZero() bool { return id[0] == nullByte }

func (id TypeID) String() string { return hex.EncodeToString(id[:id.Len()]) }
