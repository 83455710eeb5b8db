package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("PCMD_CONFIG", "")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "packetcmd", cfg.App.Name)
	assert.Equal(t, ":7000", cfg.TCP.Addr)
	assert.Equal(t, 32, cfg.Dispatcher.MaxCommands)
	assert.Equal(t, 16, cfg.Queue.InboundCapacity)
	assert.Equal(t, 5*time.Millisecond, cfg.Gateway.Throttle)
	assert.False(t, cfg.Redis.Enabled)
	assert.Equal(t, "pcmd:deadletters", cfg.Redis.DeadLetterKey)
}

func TestLoad_FileAndEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "pcmd.yaml")
	body := `
app:
  name: gw-test
tcp:
  addr: ":7100"
  maxConnections: 10
queue:
  inboundCapacity: 4
gateway:
  throttle: 20ms
  directReply: true
`
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))

	t.Run("文件覆盖默认值", func(t *testing.T) {
		cfg, err := Load(path)
		require.NoError(t, err)
		assert.Equal(t, "gw-test", cfg.App.Name)
		assert.Equal(t, ":7100", cfg.TCP.Addr)
		assert.Equal(t, 10, cfg.TCP.MaxConnections)
		assert.Equal(t, 4, cfg.Queue.InboundCapacity)
		assert.Equal(t, 16, cfg.Queue.OutboundCapacity)
		assert.Equal(t, 20*time.Millisecond, cfg.Gateway.Throttle)
		assert.True(t, cfg.Gateway.DirectReply)
	})

	t.Run("环境变量优先于文件", func(t *testing.T) {
		t.Setenv("PCMD_TCP_ADDR", ":7200")
		t.Setenv("PCMD_REDIS_ENABLED", "true")
		cfg, err := Load(path)
		require.NoError(t, err)
		assert.Equal(t, ":7200", cfg.TCP.Addr)
		assert.True(t, cfg.Redis.Enabled)
	})

	t.Run("PCMD_CONFIG指定文件", func(t *testing.T) {
		t.Setenv("PCMD_CONFIG", path)
		cfg, err := Load("")
		require.NoError(t, err)
		assert.Equal(t, "gw-test", cfg.App.Name)
	})
}

func TestLoad_Errors(t *testing.T) {
	t.Run("指定文件不存在", func(t *testing.T) {
		_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
		assert.Error(t, err)
	})

	t.Run("取值非法", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "bad.yaml")
		require.NoError(t, os.WriteFile(path, []byte("queue:\n  inboundCapacity: 0\n"), 0o600))
		_, err := Load(path)
		assert.ErrorContains(t, err, "queue capacities")
	})
}

func TestValidate_BufferSizes(t *testing.T) {
	valid := func() Config {
		var c Config
		c.Dispatcher.MaxCommands = 32
		c.Dispatcher.InputBufferSize = 32
		c.Dispatcher.OutputBufferSize = 32
		c.Queue.InboundCapacity = 4
		c.Queue.OutboundCapacity = 4
		c.TCP.ReadBufferSize = 64
		return c
	}

	c := valid()
	require.NoError(t, c.Validate())

	cases := []struct {
		name string
		edit func(c *Config)
		msg  string
	}{
		{"输入缓冲超过报文槽位", func(c *Config) { c.Dispatcher.InputBufferSize = 33 }, "dispatcher.inputBufferSize"},
		{"输入缓冲为负", func(c *Config) { c.Dispatcher.InputBufferSize = -1 }, "dispatcher.inputBufferSize"},
		{"输出缓冲超过报文槽位", func(c *Config) { c.Dispatcher.OutputBufferSize = 64 }, "dispatcher.outputBufferSize"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			c := valid()
			tc.edit(&c)
			assert.ErrorContains(t, c.Validate(), tc.msg)
		})
	}

	t.Run("小于槽位的缓冲合法", func(t *testing.T) {
		c := valid()
		c.Dispatcher.InputBufferSize = 8
		c.Dispatcher.OutputBufferSize = 0
		assert.NoError(t, c.Validate())
	})
}
