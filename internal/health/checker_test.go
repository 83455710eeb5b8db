package health

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/taoyao-code/packetcmd/internal/catalog"
	cfgpkg "github.com/taoyao-code/packetcmd/internal/config"
	"github.com/taoyao-code/packetcmd/internal/gateway"
	"github.com/taoyao-code/packetcmd/internal/handlers"
	"github.com/taoyao-code/packetcmd/internal/outbound"
	"github.com/taoyao-code/packetcmd/internal/protocol/pktcmd"
	"github.com/taoyao-code/packetcmd/internal/tcpserver"
)

type nopConn struct{}

func (nopConn) Write([]byte) error    { return nil }
func (nopConn) TryWrite([]byte) error { return nil }

func TestTCPChecker(t *testing.T) {
	srv := tcpserver.New(cfgpkg.TCPConfig{Addr: "127.0.0.1:0", MaxConnections: 2}, zap.NewNop())
	c := NewTCPChecker(srv)

	t.Run("未启动", func(t *testing.T) {
		assert.Equal(t, StatusUnhealthy, c.Check(context.Background()).Status)
	})

	require.NoError(t, srv.Start())
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctx)
	})

	t.Run("空闲", func(t *testing.T) {
		r := c.Check(context.Background())
		assert.Equal(t, StatusHealthy, r.Status)
		assert.Equal(t, 2, r.Details["max_connections"])
	})

	t.Run("连接占满", func(t *testing.T) {
		for i := 0; i < 2; i++ {
			conn, err := net.Dial("tcp", srv.Addr().String())
			require.NoError(t, err)
			t.Cleanup(func() { _ = conn.Close() })
		}
		assert.Eventually(t, func() bool {
			return c.Check(context.Background()).Status == StatusUnhealthy
		}, 2*time.Second, 10*time.Millisecond)
	})
}

func TestGatewayChecker(t *testing.T) {
	opts := gateway.SessionOptions{
		Dispatcher:       pktcmd.Config{MaxCommands: 32},
		InboundCapacity:  2,
		OutboundCapacity: 1,
		Pump:             outbound.Options{RetryDelay: time.Millisecond},
	}
	gw := gateway.New(catalog.DefaultCatalog(), handlers.Builtins(), opts, nil, nil, nil)
	c := NewGatewayChecker(gw)

	r := c.Check(context.Background())
	assert.Equal(t, StatusHealthy, r.Status)
	assert.Equal(t, 0, r.Details["sessions"])

	s, err := gw.NewSession(nopConn{}, "10.0.0.1:1")
	require.NoError(t, err)
	defer s.Close()
	gw.Registry().Add(s)

	s.OnRead([]byte{0x01, 0, 0, 0, 0})
	r = c.Check(context.Background())
	assert.Equal(t, StatusHealthy, r.Status)
	assert.Equal(t, 1, r.Details["inbound_depth"])

	// 处理两帧但不启动出站泵，第二个应答溢出后出站队列保持满
	s.OnRead([]byte{0x01, 0, 0, 0, 0})
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		s.Run(ctx)
	}()
	assert.Eventually(t, func() bool { return s.Stats().Inbound.Size == 0 }, 2*time.Second, 5*time.Millisecond)
	cancel()
	<-done

	r = c.Check(context.Background())
	assert.Equal(t, StatusDegraded, r.Status)
	assert.Equal(t, "outbound queue full", r.Message)
	assert.Equal(t, 1, r.Details["full_outbound"])
}
