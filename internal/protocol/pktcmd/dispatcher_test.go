package pktcmd

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/taoyao-code/packetcmd/internal/protocol/packet"
	"github.com/taoyao-code/packetcmd/internal/queue"
)

// fakeClock 可手动推进的时钟
type fakeClock struct{ t time.Time }

func (c *fakeClock) now() time.Time          { return c.t }
func (c *fakeClock) advance(d time.Duration) { c.t = c.t.Add(d) }

func TestDispatcher_Registration(t *testing.T) {
	d := New(Config{MaxCommands: 1})

	t.Run("空回调被拒绝", func(t *testing.T) {
		assert.ErrorIs(t, d.RegisterRecvCallback(nil), packet.ErrNullHandler)
		assert.ErrorIs(t, d.RegisterReplyRecvCallback(RecvFunc(nil)), packet.ErrNullHandler)
		assert.ErrorIs(t, d.RegisterSendCallback(nil), packet.ErrNullHandler)
		assert.ErrorIs(t, d.RegisterSendNonblockingCallback(SendFunc(nil)), packet.ErrNullHandler)
		assert.ErrorIs(t, d.RegisterSendBufferedCallback(nil), packet.ErrNullHandler)
		assert.ErrorIs(t, d.RegisterReplySendCallback(nil), packet.ErrNullHandler)
		assert.ErrorIs(t, d.RegisterDefaultHandler(nil), packet.ErrNullHandler)
	})

	t.Run("未注册回调时调用", func(t *testing.T) {
		assert.ErrorIs(t, d.Recv(), packet.ErrNullHandler)
		assert.ErrorIs(t, d.ReplyRecv(), packet.ErrNullHandler)
		assert.ErrorIs(t, d.Send(), packet.ErrNullHandler)
		assert.ErrorIs(t, d.SendNonblocking(), packet.ErrNullHandler)
		assert.ErrorIs(t, d.SendBuffered(), packet.ErrNullHandler)
		assert.ErrorIs(t, d.ReplySend(), packet.ErrNullHandler)
	})

	t.Run("命令数上限先于语法检查", func(t *testing.T) {
		require.NoError(t, d.AddCommand([]byte{0x01}, "a", nil))
		assert.ErrorIs(t, d.AddCommand([]byte{0x00}, "b", nil), packet.ErrExceededMaxCommands)
	})
}

func TestDispatcher_NilHandlerNotDispatched(t *testing.T) {
	d := New(Config{})
	require.NoError(t, d.AddCommand([]byte{0x10}, "client_only", nil))
	require.NoError(t, d.In().Assign([]byte{0x10}))
	assert.ErrorIs(t, d.ProcessInput(), packet.ErrNullHandler)
	assert.Equal(t, "client_only", d.CurrentCommand().Name)
}

func TestDispatcher_HandlerReadsAndReplies(t *testing.T) {
	clock := &fakeClock{t: time.Unix(1000, 0)}
	d := New(Config{}, WithClock(clock.now))

	require.NoError(t, d.AddCommand([]byte{0x01}, "add", HandlerFunc(func(d *Dispatcher) error {
		a, err := d.In().UnpackInt32()
		if err != nil {
			return err
		}
		b, err := d.In().UnpackInt32()
		if err != nil {
			return err
		}
		if err := d.SetupOutputCommandByName("add_result"); err != nil {
			return err
		}
		if err := d.Out().PackInt32(a + b); err != nil {
			return err
		}
		return d.Send()
	})))
	require.NoError(t, d.AddCommand([]byte{0xFF, 0x01}, "add_result", nil))

	var sent [][]byte
	require.NoError(t, d.RegisterSendCallback(SendFunc(func(d *Dispatcher) error {
		sent = append(sent, append([]byte(nil), d.Out().Bytes()...))
		return nil
	})))

	frame := []byte{0x01, 0x02, 0x00, 0x00, 0x00, 0xFD, 0xFF, 0xFF, 0xFF}
	require.NoError(t, d.RegisterRecvCallback(RecvFunc(func(d *Dispatcher) (bool, error) {
		return true, d.In().Assign(frame)
	})))

	clock.advance(250 * time.Millisecond)
	require.NoError(t, d.Recv())
	assert.Equal(t, uint32(250), d.In().Timestamp())
	require.NoError(t, d.ProcessInput())

	require.Len(t, sent, 1)
	assert.Equal(t, []byte{0xFF, 0x01, 0xFF, 0xFF, 0xFF, 0xFF}, sent[0])
}

func TestDispatcher_RecvNoPacket(t *testing.T) {
	d := New(Config{})
	require.NoError(t, d.RegisterRecvCallback(RecvFunc(func(*Dispatcher) (bool, error) {
		return false, nil
	})))
	assert.ErrorIs(t, d.Recv(), packet.ErrNoPacketReceived)

	boom := errors.New("boom")
	require.NoError(t, d.RegisterRecvCallback(RecvFunc(func(*Dispatcher) (bool, error) {
		return false, boom
	})))
	assert.ErrorIs(t, d.Recv(), boom)
}

func TestDispatcher_RecvKeepsTransportTimestamp(t *testing.T) {
	d := New(Config{})
	require.NoError(t, d.RegisterRecvCallback(RecvFunc(func(d *Dispatcher) (bool, error) {
		d.In().SetTimestamp(42)
		return true, d.In().Assign([]byte{0x01})
	})))
	require.NoError(t, d.Recv())
	assert.Equal(t, uint32(42), d.In().Timestamp())
}

func TestDispatcher_LookupCommandByName(t *testing.T) {
	d := New(Config{})
	require.NoError(t, d.AddCommand([]byte{0x41}, "led_on", nil))
	require.NoError(t, d.RegisterDefaultHandler(HandlerFunc(func(*Dispatcher) error { return nil })))

	require.NoError(t, d.LookupCommandByName("led_on"))
	assert.Equal(t, "led_on", d.CurrentCommand().Name)

	assert.ErrorIs(t, d.LookupCommandByName("nope"), packet.ErrNoCommandNameMatch)
	assert.Equal(t, "default", d.CurrentCommand().Name)

	assert.ErrorIs(t, d.SetupOutputCommandByName("nope"), packet.ErrNoCommandNameMatch)
	assert.ErrorIs(t, d.SetupOutputCommand(d.CurrentCommand()), packet.ErrInvalidTypeID)
}

func TestDispatcher_SetupOutputResetsBuffer(t *testing.T) {
	d := New(Config{OutputBufferSize: 8})
	require.NoError(t, d.AddCommand([]byte{0xFF, 0xFF, 0x02}, "deep", nil))

	require.NoError(t, d.Out().PackUint32(0xDEADBEEF))
	require.NoError(t, d.SetupOutputCommandByName("deep"))
	assert.Equal(t, []byte{0xFF, 0xFF, 0x02}, d.Out().Bytes())
	assert.Equal(t, 3, d.Out().Index())

	// 超出容量的游标被拒绝
	assert.ErrorIs(t, d.Out().SetIndex(d.Out().Capacity()+1), packet.ErrPacketIndexOutOfBounds)
	require.NoError(t, d.Out().SetIndex(d.Out().Capacity()))
}

func TestDispatcher_SendTimestampFlag(t *testing.T) {
	clock := &fakeClock{t: time.Unix(0, 0)}
	d := New(Config{}, WithClock(clock.now))
	require.NoError(t, d.AddCommand([]byte{0x05}, "tick", nil))

	var got []byte
	capture := SendFunc(func(d *Dispatcher) error {
		got = append([]byte(nil), d.Out().Bytes()...)
		return nil
	})
	require.NoError(t, d.RegisterSendNonblockingCallback(capture))
	require.NoError(t, d.RegisterReplySendCallback(capture))

	clock.advance(0x0102 * time.Millisecond)
	require.NoError(t, d.SetupOutputCommandByName("tick"))
	d.Out().SetFlags(packet.FlagAppendSendTimestamp)
	require.NoError(t, d.SendNonblocking())
	assert.Equal(t, []byte{0x05, 0x02, 0x01, 0x00, 0x00}, got)
	assert.Equal(t, []byte{0x05}, d.Out().Bytes(), "发送后撤回时间戳")
	assert.Equal(t, 1, d.Out().Index())

	require.NoError(t, d.SetupOutputCommandByName("tick"))
	d.Out().SetFlags(0)
	require.NoError(t, d.ReplySend())
	assert.Equal(t, []byte{0x05}, got)
}

func TestDispatcher_SendTimestampRetry(t *testing.T) {
	clock := &fakeClock{t: time.Unix(0, 0)}
	d := New(Config{}, WithClock(clock.now))
	require.NoError(t, d.AddCommand([]byte{0x05}, "tick", nil))

	fail := true
	var sent [][]byte
	require.NoError(t, d.RegisterSendCallback(SendFunc(func(d *Dispatcher) error {
		sent = append(sent, append([]byte(nil), d.Out().Bytes()...))
		if fail {
			return errors.New("broken pipe")
		}
		return nil
	})))

	require.NoError(t, d.SetupOutputCommandByName("tick"))
	require.NoError(t, d.Out().PackByte(0xAA))
	d.Out().SetFlags(packet.FlagAppendSendTimestamp)

	clock.advance(7 * time.Millisecond)
	assert.Error(t, d.Send())
	fail = false
	clock.advance(time.Millisecond)
	require.NoError(t, d.Send())

	require.Len(t, sent, 2)
	assert.Equal(t, []byte{0x05, 0xAA, 0x07, 0x00, 0x00, 0x00}, sent[0])
	assert.Equal(t, []byte{0x05, 0xAA, 0x08, 0x00, 0x00, 0x00}, sent[1], "重发只带一个时间戳")
}

func TestDispatcher_ReplyRecv(t *testing.T) {
	d := New(Config{})
	calls := 0
	require.NoError(t, d.RegisterReplyRecvCallback(RecvFunc(func(d *Dispatcher) (bool, error) {
		calls++
		if calls == 1 {
			return false, nil
		}
		return true, d.In().Assign([]byte{0x7F})
	})))
	assert.ErrorIs(t, d.ReplyRecv(), packet.ErrNoPacketReceived)
	require.NoError(t, d.ReplyRecv())
	assert.Equal(t, []byte{0x7F}, d.In().Bytes())
}

func TestDispatcher_QueueHandOff(t *testing.T) {
	inQ, err := queue.New(4)
	require.NoError(t, err)
	outQ, err := queue.New(4)
	require.NoError(t, err)

	d := New(Config{})
	require.NoError(t, d.AddCommand([]byte{0x01}, "one", nil))
	require.NoError(t, d.AddCommand([]byte{0x02}, "two", nil))

	t.Run("输入入队后出队游标归零", func(t *testing.T) {
		require.NoError(t, d.In().Assign([]byte{0x01, 0xAA}))
		d.In().SetTimestamp(7)
		require.NoError(t, d.In().SetIndex(2))
		require.NoError(t, d.EnqueueInputBuffer(inQ))

		require.NoError(t, d.In().Assign([]byte{0x09}))
		require.NoError(t, d.DequeueInputBuffer(inQ))
		assert.Equal(t, []byte{0x01, 0xAA}, d.In().Bytes())
		assert.Equal(t, 0, d.In().Index())
		assert.Equal(t, uint32(7), d.In().Timestamp())

		assert.ErrorIs(t, d.DequeueInputBuffer(inQ), packet.ErrQueueUnderflow)
		assert.Equal(t, 0, d.In().Len())
	})

	t.Run("输出插回队首", func(t *testing.T) {
		require.NoError(t, d.SetupOutputCommandByName("one"))
		require.NoError(t, d.EnqueueOutputBuffer(outQ))
		require.NoError(t, d.SetupOutputCommandByName("two"))
		require.NoError(t, d.RequeueOutputBuffer(outQ))

		require.NoError(t, d.DequeueOutputBuffer(outQ))
		assert.Equal(t, []byte{0x02}, d.Out().Bytes())
		assert.Equal(t, 1, d.Out().Index())
		require.NoError(t, d.Out().PackByte(0x33))
		assert.Equal(t, []byte{0x02, 0x33}, d.Out().Bytes())

		require.NoError(t, d.DequeueOutputBuffer(outQ))
		assert.Equal(t, []byte{0x01}, d.Out().Bytes())
		assert.Equal(t, 0, outQ.Size())
	})
}

func TestDispatcher_QueueHandOffOverflow(t *testing.T) {
	q, err := queue.New(4)
	require.NoError(t, err)

	t.Run("输出超过报文槽位不入队", func(t *testing.T) {
		d := New(Config{OutputBufferSize: 64})
		for i := 0; i < 10; i++ {
			require.NoError(t, d.Out().PackUint32(uint32(i)))
		}
		assert.ErrorIs(t, d.EnqueueOutputBuffer(q), packet.ErrPacketIndexOutOfBounds)
		assert.ErrorIs(t, d.RequeueOutputBuffer(q), packet.ErrPacketIndexOutOfBounds)
		assert.Equal(t, 0, q.Size())
	})

	t.Run("报文长于输入缓冲", func(t *testing.T) {
		var p packet.Packet
		require.NoError(t, p.Load([]byte{0x03, 'a', 'b', 'c', 'd', 'e', 'f', 'g', 'h', 'i', 'j', 'k'}))
		require.NoError(t, q.Enqueue(&p))

		d := New(Config{InputBufferSize: 8})
		assert.ErrorIs(t, d.DequeueInputBuffer(q), packet.ErrInputBufferOverrun)
		assert.Equal(t, 0, q.Size(), "报文已出队")
	})
}

func TestDispatcher_Reset(t *testing.T) {
	d := New(Config{})
	require.NoError(t, d.AddCommand([]byte{0x01}, "one", HandlerFunc(func(*Dispatcher) error { return nil })))
	require.NoError(t, d.RegisterSendCallback(SendFunc(func(*Dispatcher) error { return nil })))
	require.NoError(t, d.In().Assign([]byte{0x01}))

	d.Reset()
	assert.Equal(t, 0, d.Table().Len())
	assert.Equal(t, 0, d.In().Len())
	assert.ErrorIs(t, d.Send(), packet.ErrNullHandler)
	assert.ErrorIs(t, d.LookupCommandByName("one"), packet.ErrNoCommandNameMatch)
}

func TestIsProtocolError(t *testing.T) {
	assert.True(t, IsProtocolError(packet.ErrInvalidPacket))
	assert.True(t, IsProtocolError(packet.ErrNoTypeIDMatch))
	assert.False(t, IsProtocolError(packet.ErrNullHandler))
	assert.False(t, IsProtocolError(nil))
}
