package pktcmd

// Handler 命令处理器：匹配成功后以 Dispatcher 为上下文调用，
// 通过 In()/Out() 解包剩余字段、打包输出字段，并调用 Send* 发送
type Handler interface {
	Handle(d *Dispatcher) error
}

// HandlerFunc 函数适配器
type HandlerFunc func(d *Dispatcher) error

func (f HandlerFunc) Handle(d *Dispatcher) error { return f(d) }

// Receiver 接收钩子：由传输层填充输入缓冲区并返回是否取得报文
type Receiver interface {
	Recv(d *Dispatcher) (bool, error)
}

// RecvFunc 函数适配器
type RecvFunc func(d *Dispatcher) (bool, error)

func (f RecvFunc) Recv(d *Dispatcher) (bool, error) { return f(d) }

// Sender 发送钩子：消费输出缓冲区
type Sender interface {
	Send(d *Dispatcher) error
}

// SendFunc 函数适配器
type SendFunc func(d *Dispatcher) error

func (f SendFunc) Send(d *Dispatcher) error { return f(d) }
