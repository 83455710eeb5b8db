package queue

import (
	"fmt"
	"sync"

	"github.com/taoyao-code/packetcmd/internal/protocol/packet"
)

// PacketQueue 固定容量环形报文队列
// 槽位在 Begin 时一次性预分配，之后不再分配内存；
// 溢出/下溢立即返回错误，不阻塞、不静默丢弃。
// 所有修改操作在互斥锁内完成，可在读协程（生产者）与处理协程（消费者）间共享。
type PacketQueue struct {
	mu    sync.Mutex
	slots []packet.Packet
	beg   int
	end   int
	size  int
}

// New 创建并分配队列
func New(capacity int) (*PacketQueue, error) {
	q := &PacketQueue{}
	if err := q.Begin(capacity); err != nil {
		return nil, err
	}
	return q, nil
}

// Begin 预分配 capacity 个槽位
func (q *PacketQueue) Begin(capacity int) error {
	if capacity <= 0 {
		return fmt.Errorf("%w: capacity=%d", packet.ErrMemAllocFail, capacity)
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	q.slots = make([]packet.Packet, capacity)
	q.beg, q.end, q.size = 0, 0, 0
	return nil
}

// End 释放槽位；之后容量为 0，入队返回溢出、出队返回下溢
func (q *PacketQueue) End() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.slots = nil
	q.beg, q.end, q.size = 0, 0, 0
}

// Size 当前报文数
func (q *PacketQueue) Size() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.size
}

// Capacity 队列容量
func (q *PacketQueue) Capacity() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.slots)
}

// Reset 清空索引，不清零槽位内容（size 决定可见性）
func (q *PacketQueue) Reset() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.beg, q.end, q.size = 0, 0, 0
}

// Flush 清空队列并返回被丢弃的报文数
func (q *PacketQueue) Flush() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	n := q.size
	q.beg, q.end, q.size = 0, 0, 0
	return n
}

// Enqueue 尾部入队（FIFO）
func (q *PacketQueue) Enqueue(p *packet.Packet) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.size == len(q.slots) {
		return packet.ErrQueueOverflow
	}
	q.slots[q.end].CopyFrom(p)
	q.end = (q.end + 1) % len(q.slots)
	q.size++
	return nil
}

// Dequeue 头部出队；队列为空时返回 ErrQueueUnderflow 并将 p.Length 置 0
func (q *PacketQueue) Dequeue(p *packet.Packet) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.size == 0 {
		p.Length = 0
		return packet.ErrQueueUnderflow
	}
	p.CopyFrom(&q.slots[q.beg])
	q.beg = (q.beg + 1) % len(q.slots)
	q.size--
	return nil
}

// Requeue 头部插入（放回/插队），下一次 Dequeue 即取到该报文
func (q *PacketQueue) Requeue(p *packet.Packet) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.size == len(q.slots) {
		return packet.ErrQueueOverflow
	}
	q.beg = (q.beg - 1 + len(q.slots)) % len(q.slots)
	q.slots[q.beg].CopyFrom(p)
	q.size++
	return nil
}

// Stats 队列统计信息
type Stats struct {
	Size     int `json:"size"`
	Capacity int `json:"capacity"`
	Begin    int `json:"begin"`
	End      int `json:"end"`
}

// Stats 获取统计信息
func (q *PacketQueue) Stats() Stats {
	q.mu.Lock()
	defer q.mu.Unlock()
	return Stats{Size: q.size, Capacity: len(q.slots), Begin: q.beg, End: q.end}
}
