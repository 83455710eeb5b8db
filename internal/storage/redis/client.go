package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	cfgpkg "github.com/taoyao-code/packetcmd/internal/config"
)

// ErrDisabled 配置未启用 Redis
var ErrDisabled = errors.New("redis is not enabled")

const defaultPingTimeout = 5 * time.Second

// Client 死信落盘使用的 Redis 连接
type Client struct {
	rdb  *redis.Client
	addr string
}

// NewClient 建立连接并 Ping 一次；未启用时返回 ErrDisabled
func NewClient(cfg cfgpkg.RedisConfig) (*Client, error) {
	if !cfg.Enabled {
		return nil, ErrDisabled
	}
	c := &Client{rdb: redis.NewClient(options(cfg)), addr: cfg.Addr}

	timeout := cfg.DialTimeout
	if timeout <= 0 {
		timeout = defaultPingTimeout
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	if err := c.Ping(ctx); err != nil {
		_ = c.rdb.Close()
		return nil, fmt.Errorf("redis ping %s: %w", cfg.Addr, err)
	}
	return c, nil
}

func options(cfg cfgpkg.RedisConfig) *redis.Options {
	return &redis.Options{
		Addr:         cfg.Addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		PoolSize:     cfg.PoolSize,
		MinIdleConns: cfg.MinIdleConns,
		DialTimeout:  cfg.DialTimeout,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	}
}

func (c *Client) Addr() string { return c.addr }

// Ping 连通性检查
func (c *Client) Ping(ctx context.Context) error {
	return c.rdb.Ping(ctx).Err()
}

func (c *Client) Close() error { return c.rdb.Close() }

// PoolSnapshot 连接池统计快照
type PoolSnapshot struct {
	Total    uint32 `json:"total_conns"`
	Idle     uint32 `json:"idle_conns"`
	Hits     uint32 `json:"hits"`
	Misses   uint32 `json:"misses"`
	Timeouts uint32 `json:"timeouts"`
}

// InUse 正在使用的连接占比
func (p PoolSnapshot) InUse() float64 {
	if p.Total == 0 {
		return 0
	}
	return float64(p.Total-p.Idle) / float64(p.Total)
}

func (c *Client) Pool() PoolSnapshot {
	st := c.rdb.PoolStats()
	return PoolSnapshot{
		Total:    st.TotalConns,
		Idle:     st.IdleConns,
		Hits:     st.Hits,
		Misses:   st.Misses,
		Timeouts: st.Timeouts,
	}
}
