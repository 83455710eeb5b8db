// Package client 命令帧客户端：按命令目录编码请求、发送并等待一帧应答。
package client

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/taoyao-code/packetcmd/internal/catalog"
	"github.com/taoyao-code/packetcmd/internal/protocol/codec"
	"github.com/taoyao-code/packetcmd/internal/protocol/pktcmd"
)

// Reply 一帧应答
type Reply struct {
	Command string
	TypeID  pktcmd.TypeID
	Frame   []byte
	// 类型ID之后的字节
	Payload []byte
}

// Decode 按格式列表解码负载
func (r *Reply) Decode(kinds []string) ([]any, error) {
	in := codec.NewInput(len(r.Payload))
	if err := in.Assign(r.Payload); err != nil {
		return nil, err
	}
	return UnpackAll(in, kinds)
}

// Client 单连接客户端，Call 串行执行
type Client struct {
	conn    net.Conn
	disp    *pktcmd.Dispatcher
	timeout time.Duration
	logger  *zap.Logger
	readBuf []byte
	mu      sync.Mutex
}

// Dial 连接服务端
func Dial(ctx context.Context, addr string, cat *catalog.Catalog, timeout time.Duration, logger *zap.Logger) (*Client, error) {
	var d net.Dialer
	dctx := ctx
	if timeout > 0 {
		var cancel context.CancelFunc
		dctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	conn, err := d.DialContext(dctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", addr, err)
	}
	c, err := New(conn, cat, timeout, logger)
	if err != nil {
		_ = conn.Close()
		return nil, err
	}
	return c, nil
}

// New 在已有连接上创建客户端
func New(conn net.Conn, cat *catalog.Catalog, timeout time.Duration, logger *zap.Logger) (*Client, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	c := &Client{
		conn:    conn,
		timeout: timeout,
		logger:  logger,
		readBuf: make([]byte, 256),
	}
	c.disp = pktcmd.New(pktcmd.Config{MaxCommands: len(cat.Commands)}, pktcmd.WithLogger(logger))
	if err := cat.RegisterNames(c.disp); err != nil {
		return nil, err
	}
	if err := errors.Join(
		c.disp.RegisterSendCallback(pktcmd.SendFunc(c.write)),
		c.disp.RegisterReplyRecvCallback(pktcmd.RecvFunc(c.read)),
	); err != nil {
		return nil, err
	}
	return c, nil
}

func (c *Client) write(d *pktcmd.Dispatcher) error {
	if c.timeout > 0 {
		_ = c.conn.SetWriteDeadline(time.Now().Add(c.timeout))
	}
	_, err := c.conn.Write(d.Out().Bytes())
	return err
}

// read 一次读取即一帧
func (c *Client) read(d *pktcmd.Dispatcher) (bool, error) {
	if c.timeout > 0 {
		_ = c.conn.SetReadDeadline(time.Now().Add(c.timeout))
	}
	n, err := c.conn.Read(c.readBuf)
	if err != nil {
		return false, err
	}
	if err := d.In().Assign(c.readBuf[:n]); err != nil {
		return false, err
	}
	return true, nil
}

// Send 只发送，不等待应答
func (c *Client) Send(name string, args ...string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.send(name, args)
}

func (c *Client) send(name string, args []string) error {
	if err := c.disp.SetupOutputCommandByName(name); err != nil {
		return fmt.Errorf("command %q: %w", name, err)
	}
	for _, a := range args {
		if err := PackArg(c.disp.Out(), a); err != nil {
			return err
		}
	}
	return c.disp.Send()
}

// Call 发送命令并等待一帧应答
// 应答类型ID不在目录中时返回 ErrNoTypeIDMatch，Reply 仍携带原始帧。
func (c *Client) Call(name string, args ...string) (*Reply, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.send(name, args); err != nil {
		return nil, err
	}
	if err := c.disp.ReplyRecv(); err != nil {
		return nil, fmt.Errorf("await reply: %w", err)
	}

	in := c.disp.In()
	reply := &Reply{Frame: append([]byte(nil), in.Bytes()...)}
	err := c.disp.MatchCommand()
	reply.Command = c.disp.CurrentCommand().Name
	reply.TypeID = c.disp.CurrentCommand().TypeID
	if err != nil {
		return reply, err
	}
	reply.Payload = reply.Frame[in.Index():]
	c.logger.Debug("reply received",
		zap.String("request", name),
		zap.String("reply", reply.Command),
		zap.Binary("frame", reply.Frame))
	return reply, nil
}

// Close 关闭连接
func (c *Client) Close() error { return c.conn.Close() }

// IsTimeout 是否为读写超时
func IsTimeout(err error) bool {
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}
