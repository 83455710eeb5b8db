package app

import (
	"go.uber.org/zap"

	cfgpkg "github.com/taoyao-code/packetcmd/internal/config"
	"github.com/taoyao-code/packetcmd/internal/gateway"
	"github.com/taoyao-code/packetcmd/internal/metrics"
	"github.com/taoyao-code/packetcmd/internal/tcpserver"
)

// NewTCPServer 根据配置创建 TCP 服务器，连接交给网关
func NewTCPServer(cfg cfgpkg.TCPConfig, gw *gateway.Gateway, appm *metrics.AppMetrics, logger *zap.Logger) *tcpserver.Server {
	srv := tcpserver.New(cfg, logger)
	if appm != nil {
		srv.SetMetricsCallbacks(
			func() { appm.TCPAccepted.Inc() },
			func(n int) { appm.TCPBytesReceived.Add(float64(n)) },
		)
	}
	srv.SetConnHandler(gw.HandleConn)
	return srv
}
