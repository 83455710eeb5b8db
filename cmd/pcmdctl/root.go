package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/taoyao-code/packetcmd/internal/catalog"
	cfgpkg "github.com/taoyao-code/packetcmd/internal/config"
	"github.com/taoyao-code/packetcmd/internal/logging"
)

const Version = "0.3.0"

// settings 解析后的客户端参数
type settings struct {
	addr    string
	timeout time.Duration
	cat     *catalog.Catalog
	logger  *zap.Logger
}

var (
	current settings

	rootCmd = &cobra.Command{
		Use:   "pcmdctl",
		Short: "packet command client",
		Long: fmt.Sprintf(`pcmdctl (v%s)

按命令目录编码请求帧，发送到 packetcmd 服务端并解码应答。
参数写法 kind:value，kind 取 u8 i8 u16 i16 u32 i32 u64 i64 f32 f64 hex str。`, Version),
		SilenceUsage:      true,
		PersistentPreRunE: setup,
	}

	versionCmd = &cobra.Command{
		Use:   "version",
		Short: "Print the version number of pcmdctl",
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "pcmdctl v%s\n", Version)
		},
	}
)

func init() {
	cobra.OnInitialize(initEnv)

	rootCmd.PersistentFlags().String("config", "", "配置文件路径，读取 client 与 gateway.catalogPath")
	rootCmd.PersistentFlags().String("addr", "", "服务端 TCP 地址（默认取配置 client.addr）")
	rootCmd.PersistentFlags().Duration("timeout", 0, "连接与应答超时（默认取配置 client.timeout）")
	rootCmd.PersistentFlags().String("catalog", "", "命令目录 YAML（默认内置目录）")
	rootCmd.PersistentFlags().BoolP("verbose", "v", false, "输出调试日志")

	rootCmd.AddCommand(sendCmd)
	rootCmd.AddCommand(catalogCmd)
	rootCmd.AddCommand(typeIDCmd)
	rootCmd.AddCommand(versionCmd)
}

// initEnv 命令行参数也可由 PCMD_ADDR、PCMD_TIMEOUT 等环境变量给出
func initEnv() {
	_ = godotenv.Load(".env")
	_ = godotenv.Load(".env.local")

	viper.SetEnvPrefix("pcmd")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
}

func setup(cmd *cobra.Command, _ []string) error {
	if err := viper.BindPFlags(cmd.Flags()); err != nil {
		return err
	}

	cfg, err := cfgpkg.Load(viper.GetString("config"))
	if err != nil {
		return err
	}

	s, err := resolve(cfg)
	if err != nil {
		return err
	}
	current = s
	return nil
}

// resolve 合并参数：命令行/环境变量优先，其次配置文件
func resolve(cfg *cfgpkg.Config) (settings, error) {
	s := settings{
		addr:    viper.GetString("addr"),
		timeout: viper.GetDuration("timeout"),
	}
	if s.addr == "" {
		s.addr = cfg.Client.Addr
	}
	if s.timeout <= 0 {
		s.timeout = cfg.Client.Timeout
	}

	level := "warn"
	if viper.GetBool("verbose") {
		level = "debug"
	}
	logger, err := logging.InitLogger(cfgpkg.LoggingConfig{Level: level, Format: "console"})
	if err != nil {
		return s, err
	}
	s.logger = logger

	path := viper.GetString("catalog")
	if path == "" {
		path = cfg.Gateway.CatalogPath
	}
	if path == "" {
		s.cat = catalog.DefaultCatalog()
		return s, nil
	}
	if s.cat, err = catalog.Load(path); err != nil {
		return s, fmt.Errorf("load catalog: %w", err)
	}
	return s, nil
}
