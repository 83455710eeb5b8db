package health

import (
	"context"

	"github.com/taoyao-code/packetcmd/internal/tcpserver"
)

var connLimits = usageLimits{degraded: 0.8, unhealthy: 0.95}

// TCPChecker 监听状态与连接上限占用率
type TCPChecker struct {
	srv *tcpserver.Server
}

func NewTCPChecker(srv *tcpserver.Server) *TCPChecker {
	return &TCPChecker{srv: srv}
}

func (c *TCPChecker) Name() string { return "tcp" }

func (c *TCPChecker) Check(context.Context) CheckResult {
	addr := c.srv.Addr()
	if addr == nil {
		return CheckResult{Status: StatusUnhealthy, Message: "listener not started"}
	}

	lim := c.srv.Limiter().Stats()
	res := CheckResult{
		Status:  connLimits.grade(lim.Utilization),
		Message: "ok",
		Details: map[string]any{
			"addr":               addr.String(),
			"active_connections": c.srv.ActiveConns(),
			"max_connections":    lim.MaxConnections,
			"rejected_total":     lim.RejectedTotal,
			"utilization":        percent(lim.Utilization),
		},
	}
	switch res.Status {
	case StatusDegraded:
		res.Message = "high connection usage"
	case StatusUnhealthy:
		res.Message = "connection limit near exhausted"
	}
	return res
}
