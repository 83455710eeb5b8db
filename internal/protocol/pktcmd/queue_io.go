package pktcmd

import (
	"github.com/taoyao-code/packetcmd/internal/protocol/packet"
	"github.com/taoyao-code/packetcmd/internal/queue"
)

// 缓冲区与 PacketQueue 之间的交接。入队复制当前缓冲区快照，内容超过 DataBufferSize 时
// 不入队并返回错误；出队覆盖缓冲区，报文放不下时保留前缀并返回错误；队列为空时缓冲区清零。

// EnqueueInputBuffer 输入缓冲入队（尾部）
func (d *Dispatcher) EnqueueInputBuffer(q *queue.PacketQueue) error {
	var p packet.Packet
	if err := d.in.Snapshot(&p); err != nil {
		return err
	}
	return q.Enqueue(&p)
}

// DequeueInputBuffer 出队到输入缓冲，游标置 0 以便重新匹配
func (d *Dispatcher) DequeueInputBuffer(q *queue.PacketQueue) error {
	var p packet.Packet
	if err := q.Dequeue(&p); err != nil {
		d.in.Reset()
		return err
	}
	return d.in.Restore(&p, 0)
}

// EnqueueOutputBuffer 输出缓冲入队（尾部）
func (d *Dispatcher) EnqueueOutputBuffer(q *queue.PacketQueue) error {
	var p packet.Packet
	if err := d.out.Snapshot(&p); err != nil {
		return err
	}
	return q.Enqueue(&p)
}

// DequeueOutputBuffer 出队到输出缓冲，游标置于数据末尾以便继续追加
func (d *Dispatcher) DequeueOutputBuffer(q *queue.PacketQueue) error {
	var p packet.Packet
	if err := q.Dequeue(&p); err != nil {
		d.out.Reset()
		return err
	}
	return d.out.Restore(&p, p.Length)
}

// RequeueOutputBuffer 输出缓冲插回队首
func (d *Dispatcher) RequeueOutputBuffer(q *queue.PacketQueue) error {
	var p packet.Packet
	if err := d.out.Snapshot(&p); err != nil {
		return err
	}
	return q.Requeue(&p)
}
