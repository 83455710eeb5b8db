package queue

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/taoyao-code/packetcmd/internal/protocol/packet"
)

func pkt(t *testing.T, b ...byte) *packet.Packet {
	t.Helper()
	p := &packet.Packet{}
	require.NoError(t, p.Load(b))
	return p
}

func mustDequeue(t *testing.T, q *PacketQueue) []byte {
	t.Helper()
	var p packet.Packet
	require.NoError(t, q.Dequeue(&p))
	return append([]byte(nil), p.Bytes()...)
}

func TestPacketQueue_FIFO(t *testing.T) {
	q, err := New(3)
	require.NoError(t, err)

	require.NoError(t, q.Enqueue(pkt(t, 'A')))
	require.NoError(t, q.Enqueue(pkt(t, 'B')))
	assert.Equal(t, []byte("A"), mustDequeue(t, q))
	require.NoError(t, q.Enqueue(pkt(t, 'C')))
	assert.Equal(t, []byte("B"), mustDequeue(t, q))
	assert.Equal(t, []byte("C"), mustDequeue(t, q))

	var p packet.Packet
	p.Length = 9
	assert.ErrorIs(t, q.Dequeue(&p), packet.ErrQueueUnderflow)
	assert.Equal(t, 0, p.Length)
}

func TestPacketQueue_Overflow(t *testing.T) {
	const n = 4
	q, err := New(n)
	require.NoError(t, err)
	for i := 0; i < n; i++ {
		require.NoError(t, q.Enqueue(pkt(t, byte(i))))
	}
	assert.ErrorIs(t, q.Enqueue(pkt(t, 0xFF)), packet.ErrQueueOverflow)
	assert.ErrorIs(t, q.Requeue(pkt(t, 0xFF)), packet.ErrQueueOverflow)
	assert.Equal(t, n, q.Size())
	// 队列内容未被改变
	assert.Equal(t, []byte{0}, mustDequeue(t, q))
}

func TestPacketQueue_RequeueOrdering(t *testing.T) {
	q, err := New(4)
	require.NoError(t, err)
	require.NoError(t, q.Enqueue(pkt(t, 'A')))
	require.NoError(t, q.Enqueue(pkt(t, 'B')))
	require.NoError(t, q.Requeue(pkt(t, 'C')))

	assert.Equal(t, []byte("C"), mustDequeue(t, q))
	assert.Equal(t, []byte("A"), mustDequeue(t, q))
	assert.Equal(t, []byte("B"), mustDequeue(t, q))
}

func TestPacketQueue_RequeueWrapsAtZero(t *testing.T) {
	q, err := New(3)
	require.NoError(t, err)
	require.NoError(t, q.Requeue(pkt(t, 'X')))
	st := q.Stats()
	assert.Equal(t, 2, st.Begin)
	assert.Equal(t, 0, st.End)
	require.NoError(t, q.Enqueue(pkt(t, 'Y')))
	assert.Equal(t, []byte("X"), mustDequeue(t, q))
	assert.Equal(t, []byte("Y"), mustDequeue(t, q))
}

func TestPacketQueue_ResetIdempotent(t *testing.T) {
	q, err := New(2)
	require.NoError(t, err)
	require.NoError(t, q.Enqueue(pkt(t, 1)))
	require.NoError(t, q.Requeue(pkt(t, 2)))

	q.Reset()
	q.Reset()
	assert.Equal(t, 0, q.Size())
	assert.Equal(t, Stats{Size: 0, Capacity: 2}, q.Stats())

	var p packet.Packet
	assert.ErrorIs(t, q.Dequeue(&p), packet.ErrQueueUnderflow)
	require.NoError(t, q.Enqueue(pkt(t, 3)))
	assert.Equal(t, []byte{3}, mustDequeue(t, q))
}

func TestPacketQueue_NoStaleTail(t *testing.T) {
	q, err := New(1)
	require.NoError(t, err)
	require.NoError(t, q.Enqueue(pkt(t, 1, 2, 3, 4)))
	mustDequeue(t, q)
	require.NoError(t, q.Enqueue(pkt(t, 9)))

	var p packet.Packet
	require.NoError(t, q.Dequeue(&p))
	assert.Equal(t, 1, p.Length)
	assert.Equal(t, []byte{9}, p.Bytes())
}

func TestPacketQueue_Lifecycle(t *testing.T) {
	_, err := New(0)
	assert.ErrorIs(t, err, packet.ErrMemAllocFail)

	var q PacketQueue
	require.NoError(t, q.Begin(2))
	require.NoError(t, q.Enqueue(pkt(t, 1)))
	assert.Equal(t, 1, q.Flush())
	assert.Equal(t, 0, q.Size())

	q.End()
	assert.Equal(t, 0, q.Capacity())
	assert.ErrorIs(t, q.Enqueue(pkt(t, 1)), packet.ErrQueueOverflow)
	var p packet.Packet
	assert.ErrorIs(t, q.Dequeue(&p), packet.ErrQueueUnderflow)
}

func TestPacketQueue_ConcurrentProducerConsumer(t *testing.T) {
	q, err := New(8)
	require.NoError(t, err)

	const total = 500
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; i < total; {
			p := packet.Packet{Length: 1}
			p.Data[0] = byte(i)
			if q.Enqueue(&p) == nil {
				i++
			}
		}
	}()

	got := 0
	var p packet.Packet
	for got < total {
		if q.Dequeue(&p) == nil {
			assert.Equal(t, byte(got), p.Data[0])
			got++
		}
	}
	wg.Wait()
	assert.Equal(t, 0, q.Size())
}
