package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/taoyao-code/packetcmd/internal/protocol/packet"
)

// AppConfig 应用基础信息
type AppConfig struct {
	Name string `mapstructure:"name"`
	Env  string `mapstructure:"env"`
}

// HTTPConfig 运维 HTTP 服务配置
type HTTPConfig struct {
	Addr         string        `mapstructure:"addr"`
	ReadTimeout  time.Duration `mapstructure:"readTimeout"`
	WriteTimeout time.Duration `mapstructure:"writeTimeout"`
}

// TCPConfig TCP 网关配置
type TCPConfig struct {
	Addr           string        `mapstructure:"addr"`
	ReadTimeout    time.Duration `mapstructure:"readTimeout"`
	WriteTimeout   time.Duration `mapstructure:"writeTimeout"`
	MaxConnections int           `mapstructure:"maxConnections"`
	// 单次读取的最大字节数；一次读取即一帧
	ReadBufferSize int `mapstructure:"readBufferSize"`
}

// LumberjackConfig 日志滚动（lumberjack）配置
type LumberjackConfig struct {
	Filename   string `mapstructure:"filename"`
	MaxSizeMB  int    `mapstructure:"maxSize"`
	MaxBackups int    `mapstructure:"maxBackups"`
	MaxAgeDays int    `mapstructure:"maxAge"`
	Compress   bool   `mapstructure:"compress"`
}

// LoggingConfig 日志级别与输出配置
type LoggingConfig struct {
	Level  string           `mapstructure:"level"`
	Format string           `mapstructure:"format"`
	File   LumberjackConfig `mapstructure:"file"`
}

// MetricsConfig Prometheus 指标暴露配置
type MetricsConfig struct {
	Enable bool   `mapstructure:"enable"`
	Path   string `mapstructure:"path"`
}

// RedisConfig Redis 连接配置（死信落盘，可选）
type RedisConfig struct {
	Enabled      bool          `mapstructure:"enabled"`
	Addr         string        `mapstructure:"addr"`
	Password     string        `mapstructure:"password"`
	DB           int           `mapstructure:"db"`
	PoolSize     int           `mapstructure:"poolSize"`
	MinIdleConns int           `mapstructure:"minIdleConns"`
	DialTimeout  time.Duration `mapstructure:"dialTimeout"`
	ReadTimeout  time.Duration `mapstructure:"readTimeout"`
	WriteTimeout time.Duration `mapstructure:"writeTimeout"`
	// 死信列表键与最大保留条数
	DeadLetterKey string `mapstructure:"deadLetterKey"`
	DeadLetterMax int64  `mapstructure:"deadLetterMax"`
}

// DispatcherConfig 每会话 Dispatcher 参数
type DispatcherConfig struct {
	MaxCommands      int `mapstructure:"maxCommands"`
	InputBufferSize  int `mapstructure:"inputBufferSize"`
	OutputBufferSize int `mapstructure:"outputBufferSize"`
}

// QueueConfig 每会话队列容量
type QueueConfig struct {
	InboundCapacity  int `mapstructure:"inboundCapacity"`
	OutboundCapacity int `mapstructure:"outboundCapacity"`
}

// GatewayConfig 会话行为
type GatewayConfig struct {
	// 出站泵两次发送之间的最小间隔
	Throttle    time.Duration `mapstructure:"throttle"`
	RetryDelay  time.Duration `mapstructure:"retryDelay"`
	RatePerSec  float64       `mapstructure:"ratePerSec"`
	Burst       int           `mapstructure:"burst"`
	CatalogPath string        `mapstructure:"catalogPath"`
	// 入站帧标记为查询，处理器直接应答而不经出站队列
	DirectReply bool `mapstructure:"directReply"`
	// 出站连续写失败熔断
	BreakerThreshold int           `mapstructure:"breakerThreshold"`
	BreakerCooldown  time.Duration `mapstructure:"breakerCooldown"`
}

// APIConfig 运维查询接口
type APIConfig struct {
	Auth      APIAuthConfig      `mapstructure:"auth"`
	RateLimit APIRateLimitConfig `mapstructure:"rateLimit"`
}

// APIAuthConfig API Key 认证
type APIAuthConfig struct {
	Enabled bool     `mapstructure:"enabled"`
	APIKeys []string `mapstructure:"apiKeys"`
}

// APIRateLimitConfig 接口限流
type APIRateLimitConfig struct {
	Enabled        bool `mapstructure:"enabled"`
	RequestsPerMin int  `mapstructure:"requestsPerMin"`
	Burst          int  `mapstructure:"burst"`
}

// ClientConfig pcmdctl 客户端
type ClientConfig struct {
	Addr    string        `mapstructure:"addr"`
	Timeout time.Duration `mapstructure:"timeout"`
}

// Config 顶层配置结构
type Config struct {
	App        AppConfig        `mapstructure:"app"`
	HTTP       HTTPConfig       `mapstructure:"http"`
	TCP        TCPConfig        `mapstructure:"tcp"`
	Logging    LoggingConfig    `mapstructure:"logging"`
	Metrics    MetricsConfig    `mapstructure:"metrics"`
	Redis      RedisConfig      `mapstructure:"redis"`
	Dispatcher DispatcherConfig `mapstructure:"dispatcher"`
	Queue      QueueConfig      `mapstructure:"queue"`
	Gateway    GatewayConfig    `mapstructure:"gateway"`
	Client     ClientConfig     `mapstructure:"client"`
	API        APIConfig        `mapstructure:"api"`
}

// Load 从 YAML 文件、.env 与环境变量加载配置。
// 若 path 为空，则尝试从环境变量 PCMD_CONFIG 读取；否则回退到 configs/example.yaml。
func Load(path string) (*Config, error) {
	_ = godotenv.Load(".env")
	_ = godotenv.Load(".env.local")

	v := viper.New()

	if path == "" {
		path = os.Getenv("PCMD_CONFIG")
	}

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.AddConfigPath(".")
		v.AddConfigPath("./configs")
		v.SetConfigName("example")
		v.SetConfigType("yaml")
	}

	setDefaults(v)

	// 环境变量覆盖：前缀 PCMD_，点号替换为下划线
	v.SetEnvPrefix("PCMD")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		// 允许缺少配置文件，依赖默认值与环境变量
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate 校验取值范围
func (c *Config) Validate() error {
	switch {
	case c.Dispatcher.MaxCommands <= 0:
		return fmt.Errorf("dispatcher.maxCommands must be positive, got %d", c.Dispatcher.MaxCommands)
	case c.Queue.InboundCapacity <= 0 || c.Queue.OutboundCapacity <= 0:
		return fmt.Errorf("queue capacities must be positive, got in=%d out=%d",
			c.Queue.InboundCapacity, c.Queue.OutboundCapacity)
	case c.TCP.ReadBufferSize <= 0:
		return fmt.Errorf("tcp.readBufferSize must be positive, got %d", c.TCP.ReadBufferSize)
	// 网关的每一帧都经过报文槽位，缓冲区大于槽位的部分永远用不上
	case !bufferSizeOK(c.Dispatcher.InputBufferSize):
		return fmt.Errorf("dispatcher.inputBufferSize must be within 0..%d, got %d",
			packet.DataBufferSize, c.Dispatcher.InputBufferSize)
	case !bufferSizeOK(c.Dispatcher.OutputBufferSize):
		return fmt.Errorf("dispatcher.outputBufferSize must be within 0..%d, got %d",
			packet.DataBufferSize, c.Dispatcher.OutputBufferSize)
	}
	return nil
}

// bufferSizeOK 0 表示取默认值
func bufferSizeOK(n int) bool { return n >= 0 && n <= packet.DataBufferSize }

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.name", "packetcmd")
	v.SetDefault("app.env", "dev")

	v.SetDefault("http.addr", ":8080")
	v.SetDefault("http.readTimeout", "5s")
	v.SetDefault("http.writeTimeout", "10s")

	v.SetDefault("tcp.addr", ":7000")
	v.SetDefault("tcp.readTimeout", "5m")
	v.SetDefault("tcp.writeTimeout", "10s")
	v.SetDefault("tcp.maxConnections", 5000)
	v.SetDefault("tcp.readBufferSize", 64)

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
	v.SetDefault("logging.file.filename", "logs/packetcmd.log")
	v.SetDefault("logging.file.maxSize", 100)
	v.SetDefault("logging.file.maxBackups", 7)
	v.SetDefault("logging.file.maxAge", 30)
	v.SetDefault("logging.file.compress", true)

	v.SetDefault("metrics.enable", true)
	v.SetDefault("metrics.path", "/metrics")

	v.SetDefault("redis.enabled", false)
	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.poolSize", 20)
	v.SetDefault("redis.minIdleConns", 2)
	v.SetDefault("redis.dialTimeout", "5s")
	v.SetDefault("redis.readTimeout", "3s")
	v.SetDefault("redis.writeTimeout", "3s")
	v.SetDefault("redis.deadLetterKey", "pcmd:deadletters")
	v.SetDefault("redis.deadLetterMax", 10000)

	v.SetDefault("dispatcher.maxCommands", 32)
	v.SetDefault("dispatcher.inputBufferSize", 32)
	v.SetDefault("dispatcher.outputBufferSize", 32)

	v.SetDefault("queue.inboundCapacity", 16)
	v.SetDefault("queue.outboundCapacity", 16)

	v.SetDefault("gateway.throttle", "5ms")
	v.SetDefault("gateway.retryDelay", "100ms")
	v.SetDefault("gateway.ratePerSec", 200)
	v.SetDefault("gateway.burst", 50)
	v.SetDefault("gateway.catalogPath", "")
	v.SetDefault("gateway.directReply", false)
	v.SetDefault("gateway.breakerThreshold", 5)
	v.SetDefault("gateway.breakerCooldown", "1s")

	v.SetDefault("api.auth.enabled", false)
	v.SetDefault("api.rateLimit.enabled", false)
	v.SetDefault("api.rateLimit.requestsPerMin", 600)
	v.SetDefault("api.rateLimit.burst", 20)

	v.SetDefault("client.addr", "127.0.0.1:7000")
	v.SetDefault("client.timeout", "3s")
}
