package health

import (
	"context"
	"sync/atomic"
)

// Readiness 启动阶段就绪标记：TCP 监听与网关后台任务均已启动
type Readiness struct {
	tcpReady     atomic.Bool
	gatewayReady atomic.Bool
}

func New() *Readiness { return &Readiness{} }

func (r *Readiness) SetTCPReady(v bool)     { r.tcpReady.Store(v) }
func (r *Readiness) SetGatewayReady(v bool) { r.gatewayReady.Store(v) }

// Ready 总体就绪：各子系统均为 true
func (r *Readiness) Ready() bool {
	return r.tcpReady.Load() && r.gatewayReady.Load()
}

// Checker 以检查器形式暴露启动就绪状态
func (r *Readiness) Checker() Checker {
	return NewCheck("startup", func(context.Context) CheckResult {
		details := map[string]any{
			"tcp":     r.tcpReady.Load(),
			"gateway": r.gatewayReady.Load(),
		}
		if !r.Ready() {
			return CheckResult{Status: StatusUnhealthy, Message: "starting", Details: details}
		}
		return CheckResult{Status: StatusHealthy, Message: "ok", Details: details}
	})
}
