package tcpserver

import (
	"context"
	"net"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	cfgpkg "github.com/taoyao-code/packetcmd/internal/config"
)

func startServer(t *testing.T, cfg cfgpkg.TCPConfig, onConnect func(cc *ConnContext), setup ...func(s *Server)) *Server {
	t.Helper()
	cfg.Addr = "127.0.0.1:0"
	s := New(cfg, zap.NewNop())
	s.SetConnHandler(onConnect)
	for _, f := range setup {
		f(s)
	}
	require.NoError(t, s.Start())
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = s.Shutdown(ctx)
	})
	return s
}

func TestServer_EchoPerRead(t *testing.T) {
	var accepted, received atomic.Int64
	s := startServer(t, cfgpkg.TCPConfig{WriteTimeout: time.Second, ReadBufferSize: 16}, func(cc *ConnContext) {
		cc.SetOnRead(func(p []byte) {
			_ = cc.Write(p)
		})
	}, func(s *Server) {
		s.SetMetricsCallbacks(func() { accepted.Add(1) }, func(n int) { received.Add(int64(n)) })
	})

	conn, err := net.Dial("tcp", s.Addr().String())
	require.NoError(t, err)
	defer conn.Close()

	_, err = conn.Write([]byte{0x01, 0x02, 0x03})
	require.NoError(t, err)

	buf := make([]byte, 16)
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	n, err := conn.Read(buf)
	require.NoError(t, err)
	assert.Equal(t, []byte{0x01, 0x02, 0x03}, buf[:n])
	assert.Equal(t, int64(1), accepted.Load())
	assert.Equal(t, int64(3), received.Load())
}

func TestServer_OnCloseAndShutdown(t *testing.T) {
	closed := make(chan uint64, 1)
	connected := make(chan struct{}, 1)
	s := startServer(t, cfgpkg.TCPConfig{}, func(cc *ConnContext) {
		cc.OnClose(func() { closed <- cc.ID() })
		connected <- struct{}{}
	})

	conn, err := net.Dial("tcp", s.Addr().String())
	require.NoError(t, err)
	defer conn.Close()

	select {
	case <-connected:
	case <-time.After(2 * time.Second):
		t.Fatal("连接回调未触发")
	}
	assert.Eventually(t, func() bool { return s.ActiveConns() == 1 }, time.Second, 10*time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, s.Shutdown(ctx))

	select {
	case id := <-closed:
		assert.Equal(t, uint64(1), id)
	case <-time.After(2 * time.Second):
		t.Fatal("关闭回调未触发")
	}
	assert.Equal(t, 0, s.ActiveConns())
	assert.Equal(t, 0, s.Limiter().Current())
}

func TestServer_ConnectionLimit(t *testing.T) {
	s := startServer(t, cfgpkg.TCPConfig{MaxConnections: 1}, nil)

	first, err := net.Dial("tcp", s.Addr().String())
	require.NoError(t, err)
	defer first.Close()
	assert.Eventually(t, func() bool { return s.ActiveConns() == 1 }, time.Second, 10*time.Millisecond)

	second, err := net.Dial("tcp", s.Addr().String())
	require.NoError(t, err)
	defer second.Close()

	// 超出上限的连接被服务端关闭
	require.NoError(t, second.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, err = second.Read(make([]byte, 1))
	assert.Error(t, err)
	assert.Equal(t, int64(1), s.Limiter().Stats().RejectedTotal)
}

func TestConnContext_WriteAfterClose(t *testing.T) {
	a, b := net.Pipe()
	defer b.Close()
	s := New(cfgpkg.TCPConfig{WriteTimeout: 50 * time.Millisecond}, nil)
	cc := newConnContext(s, a)

	require.NoError(t, cc.Close())
	require.NoError(t, cc.Close())
	// 写队列仍有空位，关闭后的写入也必须失败
	for i := 0; i < 100; i++ {
		require.ErrorIs(t, cc.Write([]byte{1}), ErrConnClosed, "第%d次写入", i+1)
		require.ErrorIs(t, cc.TryWrite([]byte{1}), ErrConnClosed, "第%d次写入", i+1)
	}
	assert.Empty(t, cc.writeC)
}

func TestConnContext_QueueFull(t *testing.T) {
	a, b := net.Pipe()
	defer a.Close()
	defer b.Close()
	s := New(cfgpkg.TCPConfig{WriteTimeout: 20 * time.Millisecond}, nil)
	cc := newConnContext(s, a)

	// 未启动写循环，写队列只进不出
	for i := 0; i < cap(cc.writeC); i++ {
		require.NoError(t, cc.TryWrite([]byte{byte(i)}))
	}
	assert.ErrorIs(t, cc.TryWrite([]byte{0xFF}), ErrWriteQueueFull)
	assert.ErrorIs(t, cc.Write([]byte{0xFF}), ErrWriteTimeout)
}
