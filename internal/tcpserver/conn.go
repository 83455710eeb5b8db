package tcpserver

import (
	"errors"
	"net"
	"sync"
	"time"

	"go.uber.org/zap"
)

var (
	ErrConnClosed     = errors.New("connection closed")
	ErrWriteQueueFull = errors.New("write queue full")
	ErrWriteTimeout   = errors.New("write queue timeout")
)

// ConnContext 单个 TCP 连接：读循环按次回调 onRead，写入经写队列串行化
type ConnContext struct {
	s      *Server
	c      net.Conn
	id     uint64
	writeC chan []byte
	closeC chan struct{}
	once   sync.Once

	onRead  func([]byte)
	onClose []func()
}

func newConnContext(s *Server, c net.Conn) *ConnContext {
	return &ConnContext{
		s:      s,
		c:      c,
		id:     s.nextConnID.Add(1),
		writeC: make(chan []byte, 64),
		closeC: make(chan struct{}),
	}
}

// ID 连接ID（进程内递增）
func (cc *ConnContext) ID() uint64 { return cc.id }

// RemoteAddr 远端地址
func (cc *ConnContext) RemoteAddr() net.Addr { return cc.c.RemoteAddr() }

// SetOnRead 安装读取回调；p 仅在回调期间有效
func (cc *ConnContext) SetOnRead(h func(p []byte)) { cc.onRead = h }

// OnClose 注册连接关闭回调（读循环退出后按注册顺序调用）
func (cc *ConnContext) OnClose(f func()) { cc.onClose = append(cc.onClose, f) }

// Write 入写队列，队列满时最多等待写超时；已关闭的连接直接返回 ErrConnClosed
func (cc *ConnContext) Write(b []byte) error {
	select {
	case <-cc.closeC:
		return ErrConnClosed
	default:
	}
	dup := append([]byte(nil), b...)
	to := cc.s.cfg.WriteTimeout
	if to <= 0 {
		to = 5 * time.Second
	}
	timer := time.NewTimer(to)
	defer timer.Stop()
	select {
	case <-cc.closeC:
		return ErrConnClosed
	case cc.writeC <- dup:
		return nil
	case <-timer.C:
		return ErrWriteTimeout
	}
}

// TryWrite 非阻塞入写队列
func (cc *ConnContext) TryWrite(b []byte) error {
	select {
	case <-cc.closeC:
		return ErrConnClosed
	default:
	}
	select {
	case cc.writeC <- append([]byte(nil), b...):
		return nil
	default:
		return ErrWriteQueueFull
	}
}

// Close 关闭连接，可重复调用
func (cc *ConnContext) Close() error {
	var err error
	cc.once.Do(func() {
		close(cc.closeC)
		err = cc.c.Close()
	})
	return err
}

// Done 连接关闭通知
func (cc *ConnContext) Done() <-chan struct{} { return cc.closeC }

// run 启动写循环并在当前协程执行读循环，阻塞直至连接结束
func (cc *ConnContext) run() {
	doneW := make(chan struct{})
	go func() {
		defer close(doneW)
		cc.writeLoop()
	}()

	cc.readLoop()
	_ = cc.Close()
	<-doneW
	for _, f := range cc.onClose {
		f()
	}
}

func (cc *ConnContext) writeLoop() {
	for {
		select {
		case <-cc.closeC:
			return
		case msg := <-cc.writeC:
			if cc.s.cfg.WriteTimeout > 0 {
				_ = cc.c.SetWriteDeadline(time.Now().Add(cc.s.cfg.WriteTimeout))
			}
			if _, err := cc.c.Write(msg); err != nil {
				cc.s.logger.Debug("conn write failed", zap.Uint64("conn_id", cc.id), zap.Error(err))
				_ = cc.Close()
				return
			}
		}
	}
}

func (cc *ConnContext) readLoop() {
	buf := make([]byte, cc.s.cfg.ReadBufferSize)
	for {
		if cc.s.cfg.ReadTimeout > 0 {
			_ = cc.c.SetReadDeadline(time.Now().Add(cc.s.cfg.ReadTimeout))
		}
		n, err := cc.c.Read(buf)
		if n > 0 {
			if cc.s.onRecvBytes != nil {
				cc.s.onRecvBytes(n)
			}
			if cc.onRead != nil {
				cc.onRead(buf[:n])
			}
		}
		if err != nil {
			var ne net.Error
			if errors.As(err, &ne) && ne.Timeout() {
				cc.s.logger.Debug("conn idle timeout", zap.Uint64("conn_id", cc.id))
			}
			return
		}
	}
}
