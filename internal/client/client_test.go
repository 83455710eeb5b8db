package client

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
	"github.com/taoyao-code/packetcmd/internal/protocol/codec"
	"github.com/taoyao-code/packetcmd/internal/protocol/packet"
	"github.com/taoyao-code/packetcmd/internal/protocol/pktcmd"
	"github.com/taoyao-code/packetcmd/internal/tcpserver"
)

func startGateway(t *testing.T) string {
	t.Helper()
	opts := gateway.SessionOptions{
		Dispatcher:       pktcmd.Config{MaxCommands: 32},
		InboundCapacity:  8,
		OutboundCapacity: 8,
		Pump:             outbound.Options{RetryDelay: time.Millisecond},
	}
	gw := gateway.New(catalog.DefaultCatalog(), handlers.Builtins(), opts, nil, nil, zap.NewNop())
	srv := tcpserver.New(cfgpkg.TCPConfig{Addr: "127.0.0.1:0", WriteTimeout: time.Second}, zap.NewNop())
	srv.SetConnHandler(gw.HandleConn)
	require.NoError(t, srv.Start())
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctx)
	})
	return srv.Addr().String()
}

func TestClient_Call(t *testing.T) {
	addr := startGateway(t)
	c, err := Dial(context.Background(), addr, catalog.DefaultCatalog(), 2*time.Second, nil)
	require.NoError(t, err)
	defer c.Close()

	t.Run("ping", func(t *testing.T) {
		r, err := c.Call("ping", "u32:0x01020304")
		require.NoError(t, err)
		assert.Equal(t, "pong", r.Command)
		v, err := r.Decode([]string{"u32"})
		require.NoError(t, err)
		assert.Equal(t, []any{uint32(0x01020304)}, v)
	})

	t.Run("add_int32", func(t *testing.T) {
		r, err := c.Call("add_int32", "i32:-7", "i32:10")
		require.NoError(t, err)
		assert.Equal(t, "sum_int32", r.Command)
		assert.Equal(t, []byte{0x05, 3, 0, 0, 0}, r.Frame)
	})

	t.Run("int_float 两字节类型ID", func(t *testing.T) {
		r, err := c.Call("int_float", "i32:42", "f32:2.5")
		require.NoError(t, err)
		assert.Equal(t, "int_float_reply", r.Command)
		assert.Equal(t, pktcmd.MustTypeID(0xFF, 0x02), r.TypeID)
		v, err := r.Decode([]string{"i32", "f32"})
		require.NoError(t, err)
		assert.Equal(t, []any{int32(42), float32(2.5)}, v)
	})

	t.Run("echo", func(t *testing.T) {
		r, err := c.Call("echo", "str:hi", "hex:00ff")
		require.NoError(t, err)
		assert.Equal(t, "echo", r.Command)
		assert.Equal(t, []byte{'h', 'i', 0x00, 0xFF}, r.Payload)
	})

	t.Run("未知命令名", func(t *testing.T) {
		_, err := c.Call("nope")
		assert.ErrorIs(t, err, packet.ErrNoCommandNameMatch)
	})
}

func TestClient_UnknownReply(t *testing.T) {
	server, conn := net.Pipe()
	defer server.Close()

	cat := &catalog.Catalog{Commands: []catalog.Command{{Name: "ping", TypeID: "01"}}}
	c, err := New(conn, cat, time.Second, nil)
	require.NoError(t, err)
	defer c.Close()

	go func() {
		buf := make([]byte, 32)
		if _, err := server.Read(buf); err != nil {
			return
		}
		_, _ = server.Write([]byte{0x33, 0x01})
	}()

	r, err := c.Call("ping")
	assert.ErrorIs(t, err, packet.ErrNoTypeIDMatch)
	require.NotNil(t, r)
	assert.Equal(t, []byte{0x33, 0x01}, r.Frame)
}

func TestClient_Timeout(t *testing.T) {
	server, conn := net.Pipe()
	defer server.Close()

	c, err := New(conn, catalog.DefaultCatalog(), 50*time.Millisecond, nil)
	require.NoError(t, err)
	defer c.Close()

	go func() {
		buf := make([]byte, 32)
		_, _ = server.Read(buf)
	}()

	_, err = c.Call("ping", "u32:1")
	require.Error(t, err)
	assert.True(t, IsTimeout(err))
}

func TestPackArg(t *testing.T) {
	out := codec.NewOutput(32)
	for _, a := range []string{"u8:255", "i8:-1", "u16:0x0102", "i16:-2", "u32:7", "i64:-3", "f32:1", "hex:0a 0b", "str:ok"} {
		require.NoError(t, PackArg(out, a), a)
	}
	assert.Equal(t, []byte{
		0xFF, 0xFF,
		0x02, 0x01,
		0xFE, 0xFF,
		7, 0, 0, 0,
		0xFD, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF,
		0x00, 0x00, 0x80, 0x3F,
		0x0A, 0x0B,
		'o', 'k',
	}, out.Bytes())

	t.Run("非法参数", func(t *testing.T) {
		out := codec.NewOutput(4)
		assert.Error(t, PackArg(out, "42"))
		assert.Error(t, PackArg(out, "x:1"))
		assert.Error(t, PackArg(out, "u8:256"))
		assert.Error(t, PackArg(out, "hex:zz"))
		assert.ErrorIs(t, PackArg(out, "u64:1"), packet.ErrPacketIndexOutOfBounds)
		assert.Equal(t, 0, out.Len(), "失败不写入")
	})
}

func TestUnpackAll(t *testing.T) {
	in := codec.NewInput(32)
	require.NoError(t, in.Assign([]byte{0x01, 0xFE, 0xFF, 0xFF, 0xFF, 0xAA, 0xBB}))

	v, err := UnpackAll(in, []string{"u8", "i32", "rest"})
	require.NoError(t, err)
	assert.Equal(t, []any{uint8(1), int32(-2), "aabb"}, v)

	_, err = UnpackAll(in, []string{"u8"})
	assert.ErrorIs(t, err, packet.ErrPacketIndexOutOfBounds)

	_, err = UnpackAll(in, []string{"bogus"})
	assert.Error(t, err)
}
