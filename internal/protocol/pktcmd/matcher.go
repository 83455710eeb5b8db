package pktcmd

import "github.com/taoyao-code/packetcmd/internal/protocol/packet"

// MatchCommand 从输入游标处识别类型ID并设置当前命令
//
// 规则：
//  1. 游标已到末尾：ErrInvalidTypeID（无数据可匹配）
//  2. 0x00：ErrInvalidTypeID（任何位置均不允许）
//  3. 0xFF：记录并继续读下一字节；深度达到 MaxTypeIDLen 返回 ErrInvalidTypeID，
//     0xFF 之后没有字节返回 ErrInvalidPacket
//  4. [0x01, 0xFE]：终结字节，按 (深度, 字节) 查表
//
// 成功（含回退到默认处理器）时游标越过终结字节；
// 失败时游标停在导致失败的字节上。
func (d *Dispatcher) MatchCommand() error {
	d.current = d.table.Default()
	in := d.in

	// depth 只记录本次读取的类型ID位置，与缓冲区游标分开
	cursor := in.Index()
	depth := 0
	data := in.Bytes()
	for {
		if cursor >= len(data) {
			return d.failAt(cursor, packet.ErrInvalidTypeID)
		}
		cur := data[cursor]
		switch cur {
		case nullByte:
			return d.failAt(cursor, packet.ErrInvalidTypeID)
		case extByte:
			d.current.TypeID[depth] = extByte
			depth++
			cursor++
			if depth >= MaxTypeIDLen {
				return d.failAt(cursor-1, packet.ErrInvalidTypeID)
			}
			if cursor >= len(data) {
				return d.failAt(cursor, packet.ErrInvalidPacket)
			}
			continue
		}

		// 合法终结字节
		if e, ok := d.table.Match(depth, cur); ok {
			d.current = e
			return in.SetIndex(cursor + 1)
		}
		if def := d.table.Default(); !isNilHandler(def.Handler) {
			d.current.Handler = def.Handler
			d.current.TypeID[depth] = cur
			return in.SetIndex(cursor + 1)
		}
		d.current.TypeID[depth] = cur
		return d.failAt(cursor, packet.ErrNoTypeIDMatch)
	}
}

// failAt 将游标停在出错字节（不超过有效长度）并返回 err
func (d *Dispatcher) failAt(cursor int, err error) error {
	if cursor > d.in.Len() {
		cursor = d.in.Len()
	}
	_ = d.in.SetIndex(cursor)
	return err
}
