package app

import (
	"github.com/taoyao-code/packetcmd/internal/gateway"
	"github.com/taoyao-code/packetcmd/internal/health"
	redisstore "github.com/taoyao-code/packetcmd/internal/storage/redis"
	"github.com/taoyao-code/packetcmd/internal/tcpserver"
)

// NewHealthAggregator 组装健康检查：启动就绪、TCP、网关，启用时加上 Redis
func NewHealthAggregator(ready *health.Readiness, tcpSrv *tcpserver.Server, gw *gateway.Gateway,
	redisClient *redisstore.Client, dead *redisstore.DeadLetters,
) *health.Aggregator {
	agg := health.NewAggregator(
		ready.Checker(),
		health.NewTCPChecker(tcpSrv),
		health.NewGatewayChecker(gw),
	)
	if redisClient != nil {
		agg.Add(health.NewRedisChecker(redisClient, dead))
	}
	return agg
}
