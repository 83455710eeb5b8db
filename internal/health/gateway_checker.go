package health

import (
	"context"

	"github.com/taoyao-code/packetcmd/internal/gateway"
	"github.com/taoyao-code/packetcmd/internal/outbound"
)

// GatewayChecker 会话与队列健康检查器
//
// 出站队列写满或写出熔断打开时判定为降级：对应会话的应答正在被丢弃或推迟。
type GatewayChecker struct {
	gw *gateway.Gateway
}

func NewGatewayChecker(gw *gateway.Gateway) *GatewayChecker {
	return &GatewayChecker{gw: gw}
}

func (c *GatewayChecker) Name() string { return "gateway" }

func (c *GatewayChecker) Check(context.Context) CheckResult {
	var inDepth, outDepth, fullOutbound, openBreakers int
	snap := c.gw.Registry().Snapshot()
	for _, s := range snap {
		inDepth += s.Inbound.Size
		outDepth += s.Outbound.Size
		if s.Outbound.Capacity > 0 && s.Outbound.Size >= s.Outbound.Capacity {
			fullOutbound++
		}
		if s.Pump.Breaker.State != outbound.StateClosed.String() {
			openBreakers++
		}
	}

	status := StatusHealthy
	message := "ok"
	switch {
	case openBreakers > 0:
		status = StatusDegraded
		message = "outbound breaker open"
	case fullOutbound > 0:
		status = StatusDegraded
		message = "outbound queue full"
	}

	return CheckResult{
		Status:  status,
		Message: message,
		Details: map[string]any{
			"sessions":          len(snap),
			"inbound_depth":     inDepth,
			"outbound_depth":    outDepth,
			"full_outbound":     fullOutbound,
			"open_breakers":     openBreakers,
			"dead_letter_drops": c.gw.DeadLetterDrops(),
		},
	}
}
