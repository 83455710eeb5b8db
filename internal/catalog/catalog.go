package catalog

import (
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/taoyao-code/packetcmd/internal/protocol/pktcmd"
)

var (
	ErrDuplicateName   = errors.New("catalog: duplicate command name")
	ErrDuplicateTypeID = errors.New("catalog: duplicate type id")
	ErrEmptyName       = errors.New("catalog: empty command name")
	ErrUnknownHandler  = errors.New("catalog: unknown handler kind")
)

// Command 命令目录条目
// Handler 为空表示仅用于编码（应答帧、客户端发送），服务端不分发。
type Command struct {
	Name        string `yaml:"name" json:"name"`
	TypeID      string `yaml:"type_id" json:"type_id"`
	Handler     string `yaml:"handler,omitempty" json:"handler,omitempty"`
	Description string `yaml:"description,omitempty" json:"description,omitempty"`
}

// Catalog 命令目录：名称 <-> 类型ID <-> 处理器种类
type Catalog struct {
	Commands []Command `yaml:"commands" json:"commands"`
	Default  string    `yaml:"default,omitempty" json:"default,omitempty"`
}

// DefaultCatalog 返回内置命令目录
func DefaultCatalog() *Catalog {
	return &Catalog{
		Commands: []Command{
			{Name: "ping", TypeID: "01", Handler: "ping", Description: "u32 nonce，应答 pong"},
			{Name: "pong", TypeID: "02"},
			{Name: "echo", TypeID: "03", Handler: "echo", Description: "原样回显剩余负载"},
			{Name: "add_int32", TypeID: "04", Handler: "add_int32", Description: "两个 int32 求和"},
			{Name: "sum_int32", TypeID: "05"},
			{Name: "scale_float32", TypeID: "06", Handler: "scale_float32", Description: "float32 值 * 系数"},
			{Name: "product_float32", TypeID: "07"},
			{Name: "time", TypeID: "08", Handler: "time", Description: "应答毫秒时钟"},
			{Name: "time_reply", TypeID: "09"},
			{Name: "int_float", TypeID: "ff01", Handler: "int_float", Description: "int32 + float32"},
			{Name: "int_float_reply", TypeID: "ff02"},
			{Name: "unknown", TypeID: "fe"},
		},
		Default: "unknown",
	}
}

// Load 从 YAML 文件加载并校验
func Load(path string) (*Catalog, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read catalog: %w", err)
	}
	return Parse(b)
}

// Parse 解析 YAML 并校验
func Parse(data []byte) (*Catalog, error) {
	var c Catalog
	if err := yaml.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("unmarshal catalog: %w", err)
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

// Validate 校验名称与类型ID语法、唯一性
func (c *Catalog) Validate() error {
	names := make(map[string]struct{}, len(c.Commands))
	ids := make(map[pktcmd.TypeID]string, len(c.Commands))
	for i, cmd := range c.Commands {
		if cmd.Name == "" {
			return fmt.Errorf("%w: entry %d", ErrEmptyName, i)
		}
		if _, ok := names[cmd.Name]; ok {
			return fmt.Errorf("%w: %s", ErrDuplicateName, cmd.Name)
		}
		names[cmd.Name] = struct{}{}

		id, err := pktcmd.ParseTypeIDHex(cmd.TypeID)
		if err != nil {
			return fmt.Errorf("command %s: %w", cmd.Name, err)
		}
		if prev, ok := ids[id]; ok {
			return fmt.Errorf("%w: %s used by %s and %s", ErrDuplicateTypeID, id, prev, cmd.Name)
		}
		ids[id] = cmd.Name
	}
	return nil
}

// Register 将目录注册到 Dispatcher
// builtins 为处理器种类 -> 处理器；Default 非空时同时注册默认处理器。
func (c *Catalog) Register(d *pktcmd.Dispatcher, builtins map[string]pktcmd.Handler) error {
	for _, cmd := range c.Commands {
		var h pktcmd.Handler
		if cmd.Handler != "" {
			var ok bool
			if h, ok = builtins[cmd.Handler]; !ok {
				return fmt.Errorf("%w: %s (command %s)", ErrUnknownHandler, cmd.Handler, cmd.Name)
			}
		}
		id, err := pktcmd.ParseTypeIDHex(cmd.TypeID)
		if err != nil {
			return fmt.Errorf("command %s: %w", cmd.Name, err)
		}
		if err := d.AddCommand(id.Bytes(), cmd.Name, h); err != nil {
			return fmt.Errorf("register %s: %w", cmd.Name, err)
		}
	}
	if c.Default == "" {
		return nil
	}
	h, ok := builtins[c.Default]
	if !ok {
		return fmt.Errorf("%w: %s (default)", ErrUnknownHandler, c.Default)
	}
	return d.RegisterDefaultHandler(h)
}

// Find 按名称查找条目
func (c *Catalog) Find(name string) (Command, bool) {
	for _, cmd := range c.Commands {
		if cmd.Name == name {
			return cmd, true
		}
	}
	return Command{}, false
}

// FindByTypeID 按类型ID查找条目
func (c *Catalog) FindByTypeID(id pktcmd.TypeID) (Command, bool) {
	for _, cmd := range c.Commands {
		if got, err := pktcmd.ParseTypeIDHex(cmd.TypeID); err == nil && got == id {
			return cmd, true
		}
	}
	return Command{}, false
}

// RegisterNames 只注册名称与类型ID，不绑定处理器（客户端编解码用）
func (c *Catalog) RegisterNames(d *pktcmd.Dispatcher) error {
	for _, cmd := range c.Commands {
		id, err := pktcmd.ParseTypeIDHex(cmd.TypeID)
		if err != nil {
			return fmt.Errorf("command %s: %w", cmd.Name, err)
		}
		if err := d.AddCommand(id.Bytes(), cmd.Name, nil); err != nil {
			return fmt.Errorf("register %s: %w", cmd.Name, err)
		}
	}
	return nil
}
